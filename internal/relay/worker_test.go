package relay

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpmon-filter/internal/audit"
	"github.com/route-beacon/bgpmon-filter/internal/filter"
	"github.com/route-beacon/bgpmon-filter/internal/subscriber"
	"github.com/route-beacon/bgpmon-filter/internal/upstream"
)

const matchingUpdate = `<BGP_MESSAGE>
  <ASCII_MSG>
    <UPDATE>
      <NLRI>
        <PREFIX><ADDRESS>198.51.100.0/24</ADDRESS></PREFIX>
      </NLRI>
    </UPDATE>
  </ASCII_MSG>
</BGP_MESSAGE>`

const nonMatchingUpdate = `<BGP_MESSAGE>
  <ASCII_MSG>
    <UPDATE>
      <NLRI>
        <PREFIX><ADDRESS>203.0.113.0/24</ADDRESS></PREFIX>
      </NLRI>
    </UPDATE>
  </ASCII_MSG>
</BGP_MESSAGE>`

func newTestStore(t *testing.T) *filter.Store {
	t.Helper()
	s := filter.New()
	if _, err := filter.LoadFrom(s, strings.NewReader("ipv4 198.51.100.0/24 ms\n"), false); err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	return s
}

type fakeKafkaSink struct {
	produced []uint64
}

func (f *fakeKafkaSink) Produce(_ context.Context, seq uint64, _ []byte) {
	f.produced = append(f.produced, seq)
}

func TestProcessDiscardsNonMatchingEnvelope(t *testing.T) {
	var stdout bytes.Buffer
	registry := subscriber.NewRegistry(4)
	w := New(Config{
		Store:    newTestStore(t),
		Registry: registry,
		Stdout:   &stdout,
		Logger:   zap.NewNop(),
	})

	w.process(context.Background(), upstream.Envelope{Seq: 1, Raw: []byte(nonMatchingUpdate)})

	if stdout.Len() != 0 {
		t.Fatalf("expected no stdout output for a non-matching envelope, got %q", stdout.String())
	}
}

func TestProcessFansOutMatchingEnvelope(t *testing.T) {
	var stdout, outputFile bytes.Buffer
	registry := subscriber.NewRegistry(4)
	sub := registry.Add()
	kafka := &fakeKafkaSink{}
	auditCh := make(chan audit.Record, 1)

	w := New(Config{
		Store:      newTestStore(t),
		Registry:   registry,
		Stdout:     &stdout,
		OutputFile: &outputFile,
		Kafka:      kafka,
		AuditOut:   auditCh,
		Logger:     zap.NewNop(),
	})

	env := upstream.Envelope{Seq: 42, Raw: []byte(matchingUpdate), Timestamp: time.Now()}
	w.process(context.Background(), env)

	if stdout.String() != matchingUpdate {
		t.Fatalf("expected stdout to receive the raw envelope, got %q", stdout.String())
	}
	if outputFile.String() != matchingUpdate {
		t.Fatalf("expected output file to receive the raw envelope, got %q", outputFile.String())
	}
	if len(kafka.produced) != 1 || kafka.produced[0] != 42 {
		t.Fatalf("expected kafka sink to receive seq 42, got %v", kafka.produced)
	}

	select {
	case rec := <-auditCh:
		if rec.Seq != 42 {
			t.Fatalf("expected audit record seq 42, got %d", rec.Seq)
		}
		if rec.Axis != "v4" {
			t.Fatalf("expected audit record axis %q, got %q", "v4", rec.Axis)
		}
	default:
		t.Fatal("expected an audit record to be queued")
	}

	select {
	case got := <-sub.Queue:
		if got.Seq != 42 {
			t.Fatalf("expected subscriber to receive seq 42, got %d", got.Seq)
		}
	default:
		t.Fatal("expected the subscriber to receive the fanned-out envelope")
	}
}

func TestProcessSkipsAuditWhenChannelFull(t *testing.T) {
	registry := subscriber.NewRegistry(4)
	auditCh := make(chan audit.Record, 1)
	auditCh <- audit.Record{Seq: 0}

	w := New(Config{
		Store:    newTestStore(t),
		Registry: registry,
		AuditOut: auditCh,
		Logger:   zap.NewNop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.process(ctx, upstream.Envelope{Seq: 1, Raw: []byte(matchingUpdate)})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("process blocked indefinitely on a full audit channel past ctx cancellation")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	registry := subscriber.NewRegistry(4)
	w := New(Config{
		Store:    newTestStore(t),
		Registry: registry,
		Logger:   zap.NewNop(),
	})

	in := make(chan upstream.Envelope)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx, in)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRunStopsOnChannelClose(t *testing.T) {
	registry := subscriber.NewRegistry(4)
	w := New(Config{
		Store:    newTestStore(t),
		Registry: registry,
		Logger:   zap.NewNop(),
	})

	in := make(chan upstream.Envelope)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), in)
		close(done)
	}()

	close(in)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after input channel close")
	}
}
