package conn

import (
	"fmt"
	"net"
	"sync"
)

// TCPConnection is a Connection backed by a raw net.Conn. Raw TCP framing
// needs nothing beyond what net.Conn already provides, so there is no
// ecosystem library standing in for this one; it is the plain stdlib
// transport the others generalize from.
type TCPConnection struct {
	conn net.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// DialTCP connects to a VM listening at addr.
func DialTCP(addr string) (*TCPConnection, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial vm at %s: %w", addr, err)
	}
	return NewTCPConnection(c), nil
}

// NewTCPConnection wraps an already-established net.Conn.
func NewTCPConnection(c net.Conn) *TCPConnection {
	return &TCPConnection{conn: c, done: make(chan struct{})}
}

func (t *TCPConnection) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *TCPConnection) Write(p []byte) (int, error) { return t.conn.Write(p) }

func (t *TCPConnection) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
		close(t.done)
	})
	return err
}

func (t *TCPConnection) Done() <-chan struct{} { return t.done }

func (t *TCPConnection) Description() string {
	return fmt.Sprintf("tcp://%s", t.conn.RemoteAddr())
}
