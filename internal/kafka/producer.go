// Package kafka provides the optional Kafka fanout sink (spec §4.4a): every
// matched envelope is produced, fire-and-forget, to a configured topic
// alongside the stdout/file/subscriber sinks. There is no Kafka upstream in
// this system — the teacher's consumer-group client is repurposed here as a
// producer, the only direction that fits a relay with no Kafka source.
package kafka

import (
	"context"
	"crypto/tls"
	"errors"

	"github.com/route-beacon/bgpmon-filter/internal/metrics"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Sink is an async, non-blocking Kafka fanout target. Produce never blocks
// the caller, even when the broker is slow or unreachable and the client's
// internal buffer is full — it uses TryProduce, which fails the record
// immediately instead of waiting for room. Delivery failures (including a
// full buffer) are logged, not surfaced, matching the "audit/Kafka sink
// errors follow the output-file error rule" policy (logged, not fatal).
type Sink struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

// Config holds the subset of internal/config's fields needed to build a
// Sink.
type Config struct {
	Brokers       []string
	Topic         string
	TLS           bool
	SASLMechanism string
	SASLUsername  string
	SASLPassword  string
}

// New dials the configured Kafka brokers and returns a ready producer sink.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.MaxBufferedRecords(10000),
	}
	if cfg.TLS {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	if cfg.SASLMechanism != "" {
		mech, err := saslMechanism(cfg.SASLMechanism, cfg.SASLUsername, cfg.SASLPassword)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.SASL(mech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return &Sink{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Produce fires off one envelope's raw bytes as a Kafka record. It does not
// wait for the broker ack and never blocks on a full client buffer: a
// backed-up producer drops the record via TryProduce rather than stalling
// the filter/dispatch worker that calls it. Delivery outcome (including a
// buffer-full drop) is observed asynchronously in the callback and only
// logged.
func (s *Sink) Produce(ctx context.Context, seq uint64, raw []byte) {
	rec := &kgo.Record{Topic: s.topic, Value: raw, Key: seqKey(seq)}
	s.client.TryProduce(ctx, rec, func(r *kgo.Record, err error) {
		if err != nil {
			metrics.KafkaProduceErrorsTotal.Inc()
			if errors.Is(err, kgo.ErrMaxBuffered) {
				s.logger.Warn("kafka sink: produce dropped, buffer full",
					zap.Uint64("seq", seq),
				)
				return
			}
			s.logger.Error("kafka sink: produce failed",
				zap.Uint64("seq", seq),
				zap.Error(err),
			)
		}
	})
}

// Close flushes any buffered records and closes the client.
func (s *Sink) Close(ctx context.Context) {
	if err := s.client.Flush(ctx); err != nil {
		s.logger.Warn("kafka sink: flush on close failed", zap.Error(err))
	}
	s.client.Close()
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(seq)
		seq >>= 8
	}
	return b
}
