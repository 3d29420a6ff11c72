// Package transport implements the minimal TCP byte-pipe boundary
// consumed by the core (spec.md §6): connect, send, a byte stream to
// read from, and close. Grounded on kissutil.go's net.Dial("tcp", ...)
// connection to a KISS TNC, generalized into a small interface so the
// coordinator can be driven by a fake in tests.
package transport

import (
	"fmt"
	"io"
	"net"
	"time"
)

// Conn is the boundary interface the coordinator consumes. A closed
// socket is surfaced to the caller as a read error; the core treats
// that as teardown of every session on the link (spec.md §6:
// "notifyError(linkDown)").
type Conn interface {
	io.ReadWriteCloser
}

// TCPTransport dials a KISS TNC over TCP, the same connection style as
// kissutil.go's default localhost:8001 target.
type TCPTransport struct {
	dialTimeout time.Duration
}

// NewTCPTransport returns a transport with the given dial timeout (0
// means no explicit timeout, i.e. the OS default).
func NewTCPTransport(dialTimeout time.Duration) *TCPTransport {
	return &TCPTransport{dialTimeout: dialTimeout}
}

// Connect opens a TCP connection to host:port.
func (t *TCPTransport) Connect(host string, port int) (Conn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	if t.dialTimeout > 0 {
		return net.DialTimeout("tcp", addr, t.dialTimeout)
	}
	return net.Dial("tcp", addr)
}
