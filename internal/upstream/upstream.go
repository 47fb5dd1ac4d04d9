// Package upstream owns the persistent connection to the upstream BGP
// monitor and the reader loop that turns its framed XML stream into
// envelopes on a bounded queue (spec §4.3).
package upstream

import (
	"bufio"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Conn is the upstream transport contract: connect, read one framed XML
// message, report liveness, close. A TCP+XML-framing implementation is
// provided by TCPConn; tests substitute a fake.
type Conn interface {
	Connect(addr string) error
	ReadOne() ([]byte, error)
	IsConnected() bool
	Close() error
}

// TCPConn is the default Conn: a TCP socket on which the upstream monitor
// writes a continuous stream of "<BGP_MESSAGE ...>...</BGP_MESSAGE>"
// documents with no length prefix — framing is inferred by scanning for the
// closing tag, since that's the only delimiter the wire format offers.
type TCPConn struct {
	conn      net.Conn
	reader    *bufio.Reader
	connected atomic.Bool
}

const closeTag = "</BGP_MESSAGE>"

func (t *TCPConn) Connect(addr string) error {
	c, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dialing upstream %s: %w", addr, err)
	}
	t.conn = c
	t.reader = bufio.NewReaderSize(c, 64*1024)
	t.connected.Store(true)
	return nil
}

// ReadOne reads bytes up to and including the next "</BGP_MESSAGE>" close
// tag. Returns io.EOF (via the underlying read) when the peer closes the
// connection; any read error marks the connection dead.
func (t *TCPConn) ReadOne() ([]byte, error) {
	var msg []byte
	for {
		chunk, err := t.reader.ReadBytes('>')
		if len(chunk) > 0 {
			msg = append(msg, chunk...)
		}
		if err != nil {
			t.connected.Store(false)
			return nil, err
		}
		if len(msg) >= len(closeTag) && string(msg[len(msg)-len(closeTag):]) == closeTag {
			return msg, nil
		}
	}
}

func (t *TCPConn) IsConnected() bool {
	return t.connected.Load()
}

func (t *TCPConn) Close() error {
	t.connected.Store(false)
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
