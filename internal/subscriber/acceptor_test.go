package subscriber

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestAcceptorRegistersAndStreamsEnvelopes(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	registry := NewRegistry(8)
	acc := NewAcceptor(ln, registry, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go acc.Run(ctx)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for registry.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for subscriber registration")
		}
		time.Sleep(time.Millisecond)
	}

	r := bufio.NewReader(conn)
	prolog := make([]byte, len(xmlProlog))
	if _, err := r.Read(prolog); err != nil {
		t.Fatalf("reading prolog: %v", err)
	}
	if string(prolog) != xmlProlog {
		t.Fatalf("expected prolog %q, got %q", xmlProlog, prolog)
	}

	registry.Fanout(Envelope{Seq: 1, Raw: []byte("<BGP_MESSAGE/>")})

	buf := make([]byte, len("<BGP_MESSAGE/>"))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("reading envelope: %v", err)
	}
	if string(buf) != "<BGP_MESSAGE/>" {
		t.Fatalf("expected envelope bytes, got %q", buf)
	}
}

func TestAcceptorDeregistersOnDisconnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	registry := NewRegistry(8)
	acc := NewAcceptor(ln, registry, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go acc.Run(ctx)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for registry.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for subscriber registration")
		}
		time.Sleep(time.Millisecond)
	}

	conn.Close()

	// The handler only discovers a dead socket on its next write attempt
	// (spec §4.6) — there is no read loop to notice the close on its own.
	deadline = time.Now().Add(time.Second)
	for {
		registry.Fanout(Envelope{Seq: 1, Raw: []byte("x")})
		if registry.Count() == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for subscriber deregistration")
		}
		time.Sleep(time.Millisecond)
	}
}
