// ABOUTME: Plain TCP transport
// ABOUTME: Text messages are single reads, binary fields are read in full
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Resonate-Protocol/lanaudio/internal/protocol"
)

type tcpConn struct {
	conn    net.Conn
	mu      sync.Mutex
	timeout time.Duration
}

func newTCPConn(conn net.Conn) *tcpConn {
	return &tcpConn{conn: conn, timeout: DefaultTimeout}
}

func (c *tcpConn) deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.timeout)
}

// ReadMessage reads one text message with a single Read. This relies on the
// lock-step exchange: the peer never has a second message in flight.
func (c *tcpConn) ReadMessage() ([]byte, error) {
	if err := c.conn.SetReadDeadline(c.deadline()); err != nil {
		return nil, err
	}
	buf := make([]byte, protocol.MaxMessageSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return buf[:n], nil
}

func (c *tcpConn) ReadFull(n int) ([]byte, error) {
	if err := c.conn.SetReadDeadline(c.deadline()); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, fmt.Errorf("read %d bytes: %w", n, err)
	}
	return buf, nil
}

func (c *tcpConn) WriteText(msg string) error {
	return c.WriteBinary([]byte(msg))
}

func (c *tcpConn) WriteBinary(data []byte) error {
	if err := c.conn.SetWriteDeadline(c.deadline()); err != nil {
		return err
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *tcpConn) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

type tcpListener struct {
	ln net.Listener
}

func listenTCP(addr string) (*tcpListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &tcpListener{ln: ln}, nil
}

func (l *tcpListener) Accept() (Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newTCPConn(conn), nil
}

func (l *tcpListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}

func dialTCP(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := newTCPConn(conn)
	c.SetTimeout(timeout)
	return c, nil
}

// WrapTCP adapts an established stream connection, such as one end of a
// net.Pipe, to Conn.
func WrapTCP(conn net.Conn) Conn {
	return newTCPConn(conn)
}
