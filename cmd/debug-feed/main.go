// debug-feed is a development utility adapted from the teacher's
// cmd/debug-raw: instead of dumping decoded BMP messages pulled from
// Kafka, it connects directly to a configured upstream BGP monitor and
// dumps each raw envelope it reads to stdout, so a relay operator can see
// exactly what's arriving on the wire without a subscriber client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/bgpmon-filter/internal/upstream"
)

func main() {
	addr := "127.0.0.1:50001"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	logger := zap.NewNop()

	conn := &upstream.TCPConn{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	envelopes := make(chan upstream.Envelope, 16)
	go func() {
		if err := upstream.Run(ctx, conn, addr, envelopes, cancel, logger); err != nil {
			fmt.Fprintf(os.Stderr, "upstream connection ended: %v\n", err)
		}
		close(envelopes)
	}()

	msgNum := 0
	for env := range envelopes {
		msgNum++
		fmt.Printf("=== envelope %d (seq=%d, %d bytes, read at %s) ===\n",
			msgNum, env.Seq, len(env.Raw), env.Timestamp.Format(time.RFC3339Nano))
		fmt.Println(string(env.Raw))
		fmt.Println()
	}

	fmt.Printf("Total envelopes: %d\n", msgNum)
}
