package subscriber

import (
	"context"
	"net"

	"go.uber.org/zap"
)

const xmlProlog = "<xml>"

// Handler owns one subscriber's socket: it writes the framing prolog, then
// drains the subscriber's queue until the socket fails or shutdown, per
// spec §4.6. It never reads — subscribers are receive-only.
type Handler struct {
	conn     net.Conn
	sub      *Subscriber
	registry *Registry
	logger   *zap.Logger
}

func (h *Handler) Run(ctx context.Context) {
	defer h.deregister()

	if _, err := h.conn.Write([]byte(xmlProlog)); err != nil {
		h.logger.Warn("subscriber prolog write failed", zap.Uint64("subscriber_id", h.sub.ID), zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-h.sub.Queue:
			if !ok {
				return
			}
			if _, err := h.conn.Write(env.Raw); err != nil {
				h.logger.Warn("subscriber write failed", zap.Uint64("subscriber_id", h.sub.ID), zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) deregister() {
	h.sub.markDead()
	h.conn.Close()
	h.registry.Remove(h.sub.ID)
	h.logger.Info("subscriber disconnected", zap.Uint64("subscriber_id", h.sub.ID))
}
