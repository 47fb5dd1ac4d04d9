// Package relay implements the filter/dispatch worker (spec §4.4): it
// drains the upstream queue, asks the filter store whether each envelope
// matches, and on a hit fans the envelope out to stdout, the output file,
// every subscriber, and the optional Kafka/audit sinks.
package relay

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpmon-filter/internal/audit"
	"github.com/route-beacon/bgpmon-filter/internal/extract"
	"github.com/route-beacon/bgpmon-filter/internal/filter"
	"github.com/route-beacon/bgpmon-filter/internal/metrics"
	"github.com/route-beacon/bgpmon-filter/internal/subscriber"
	"github.com/route-beacon/bgpmon-filter/internal/upstream"
)

// KafkaSink is the subset of kafka.Sink the worker needs — defined here so
// relay doesn't import internal/kafka when no Kafka sink is configured.
type KafkaSink interface {
	Produce(ctx context.Context, seq uint64, raw []byte)
}

// Worker is the single-threaded filter/dispatch loop. Its own loop is
// single-threaded; the stdout mutex, the output file, and each subscriber
// queue are the serialization points for everything downstream (spec §4.4).
type Worker struct {
	store    *filter.Store
	registry *subscriber.Registry

	stdout       io.Writer // nil disables the stdout sink
	stdoutMu     *sync.Mutex
	outputFile   io.Writer
	outputFileMu *sync.Mutex

	kafka    KafkaSink
	auditOut chan<- audit.Record

	logger *zap.Logger
}

// Config wires the optional sinks; Stdout, OutputFile, Kafka, and AuditOut
// are nil when not configured.
type Config struct {
	Store      *filter.Store
	Registry   *subscriber.Registry
	Stdout     io.Writer
	OutputFile io.Writer
	Kafka      KafkaSink
	AuditOut   chan<- audit.Record
	Logger     *zap.Logger
}

func New(cfg Config) *Worker {
	return &Worker{
		store:        cfg.Store,
		registry:     cfg.Registry,
		stdout:       cfg.Stdout,
		stdoutMu:     &sync.Mutex{},
		outputFile:   cfg.OutputFile,
		outputFileMu: &sync.Mutex{},
		kafka:        cfg.Kafka,
		auditOut:     cfg.AuditOut,
		logger:       cfg.Logger,
	}
}

// Run drains in until it's closed or ctx is cancelled.
func (w *Worker) Run(ctx context.Context, in <-chan upstream.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			w.process(ctx, env)
		}
	}
}

func (w *Worker) process(ctx context.Context, env upstream.Envelope) {
	rec := extract.Record(env.Raw)
	axis, ok := w.store.MatchAxis(rec)
	if !ok {
		metrics.EnvelopesTotal.WithLabelValues("discarded").Inc()
		return
	}
	metrics.EnvelopesTotal.WithLabelValues("matched").Inc()

	if w.stdout != nil {
		w.writeStdout(env.Raw)
	}

	if w.outputFile != nil {
		w.writeOutputFile(env.Raw)
	}

	w.registry.Fanout(subscriber.Envelope{Seq: env.Seq, Raw: env.Raw})

	if w.kafka != nil {
		w.kafka.Produce(ctx, env.Seq, env.Raw)
	}

	if w.auditOut != nil {
		select {
		case w.auditOut <- audit.Record{Seq: env.Seq, MatchedAt: env.Timestamp, Axis: string(axis), Raw: env.Raw}:
		case <-ctx.Done():
		default:
			// Audit is best-effort: a full channel drops the record.
		}
	}
}

func (w *Worker) writeStdout(raw []byte) {
	w.stdoutMu.Lock()
	defer w.stdoutMu.Unlock()
	if _, err := w.stdout.Write(raw); err != nil {
		w.logger.Warn("stdout write failed", zap.Error(err))
	}
}

func (w *Worker) writeOutputFile(raw []byte) {
	w.outputFileMu.Lock()
	defer w.outputFileMu.Unlock()
	if _, err := w.outputFile.Write(raw); err != nil {
		metrics.OutputFileErrorsTotal.Inc()
		w.logger.Warn("output file write failed", zap.Error(err))
		return
	}
	if f, ok := w.outputFile.(flusher); ok {
		if err := f.Flush(); err != nil {
			metrics.OutputFileErrorsTotal.Inc()
			w.logger.Warn("output file flush failed", zap.Error(err))
		}
	} else if s, ok := w.outputFile.(syncer); ok {
		if err := s.Sync(); err != nil {
			metrics.OutputFileErrorsTotal.Inc()
			w.logger.Warn("output file sync failed", zap.Error(err))
		}
	}
}

type flusher interface{ Flush() error }
type syncer interface{ Sync() error }
