package subscriber

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
)

// Acceptor listens on a TCP port and spawns one Handler per accepted
// connection (spec §4.5).
type Acceptor struct {
	listener net.Listener
	registry *Registry
	logger   *zap.Logger
}

func NewAcceptor(listener net.Listener, registry *Registry, logger *zap.Logger) *Acceptor {
	return &Acceptor{listener: listener, registry: registry, logger: logger}
}

// Run accepts connections until ctx is cancelled or the listener is
// closed. Accept errors other than "listener closed" are logged and
// accepting continues, per spec §4.5.
func (a *Acceptor) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		a.listener.Close()
	}()

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			a.logger.Warn("subscriber accept error", zap.Error(err))
			continue
		}

		sub := a.registry.Add()
		a.logger.Info("subscriber connected", zap.Uint64("subscriber_id", sub.ID), zap.String("remote", conn.RemoteAddr().String()))

		h := &Handler{conn: conn, sub: sub, registry: a.registry, logger: a.logger}
		go h.Run(ctx)
	}
}
