package upstream

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
)

// Envelope is one message read from upstream, tagged with a monotonically
// increasing sequence id for the ordering assertions in spec §8 and a
// read timestamp used only for metrics and the audit sink — matching
// never depends on it.
type Envelope struct {
	Seq       uint64
	Raw       []byte
	Timestamp time.Time
}

// yieldInterval bounds how long Run blocks trying to push onto a full
// queue before retrying — the "cooperative yield" spec §4.3 calls for
// instead of blocking the reader indefinitely on a slow filter worker.
const yieldInterval = 5 * time.Millisecond

// Run owns conn for the duration of one connection: it dials addr, then
// loops reading framed messages and pushing them onto out until the
// connection drops or ctx is cancelled. cancel is called exactly once, on
// upstream disconnect, so the rest of the process treats a lost upstream
// connection as a full shutdown (spec §4.7's "upstream disconnect is a
// graceful shutdown of the whole process").
// Run's caller may pass a conn that's already connected — the supervisor
// dials upstream itself first so a connect failure is fatal at startup
// (spec §4.7), before any other goroutine has started. Run only dials here
// when that hasn't happened yet, so it remains usable standalone too.
func Run(ctx context.Context, conn Conn, addr string, out chan<- Envelope, cancel context.CancelFunc, logger *zap.Logger) error {
	if !conn.IsConnected() {
		if err := conn.Connect(addr); err != nil {
			return err
		}
	}
	defer conn.Close()

	var seq uint64
	for {
		if ctx.Err() != nil {
			return nil
		}

		raw, err := conn.ReadOne()
		if err != nil {
			if errors.Is(err, io.EOF) || !conn.IsConnected() {
				logger.Warn("upstream connection lost", zap.Error(err))
				cancel()
				return err
			}
			logger.Warn("upstream read error, continuing", zap.Error(err))
			continue
		}
		if len(raw) == 0 {
			continue
		}

		seq++
		env := Envelope{Seq: seq, Raw: raw, Timestamp: time.Now()}
		if !push(ctx, out, env) {
			return nil
		}
	}
}

// push enqueues env on out, retrying with a cooperative yield while out is
// full, per spec §4.3. Returns false only when ctx is cancelled first.
func push(ctx context.Context, out chan<- Envelope, env Envelope) bool {
	for {
		select {
		case out <- env:
			return true
		case <-ctx.Done():
			return false
		default:
		}

		select {
		case <-time.After(yieldInterval):
		case <-ctx.Done():
			return false
		}
	}
}
