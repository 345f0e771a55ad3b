// ABOUTME: WebSocket transport built on gorilla/websocket
// ABOUTME: Serves the protocol at /lanaudio, one protocol message per WebSocket message
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errListenerClosed = errors.New("listener closed")

type wsConn struct {
	conn    *websocket.Conn
	remote  string
	mu      sync.Mutex
	timeout time.Duration
	pending []byte
}

func newWSConn(conn *websocket.Conn, remote string, timeout time.Duration) *wsConn {
	conn.SetReadLimit(1 << 20)
	return &wsConn{conn: conn, remote: remote, timeout: timeout}
}

func (c *wsConn) deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.timeout)
}

func (c *wsConn) next() ([]byte, error) {
	if err := c.conn.SetReadDeadline(c.deadline()); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return data, nil
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	if len(c.pending) > 0 {
		msg := c.pending
		c.pending = nil
		return msg, nil
	}
	return c.next()
}

// ReadFull collects n bytes, spanning WebSocket messages if a peer split a
// binary field.
func (c *wsConn) ReadFull(n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		data := c.pending
		c.pending = nil
		if len(data) == 0 {
			var err error
			if data, err = c.next(); err != nil {
				return nil, err
			}
		}
		need := n - len(buf)
		if len(data) > need {
			c.pending = data[need:]
			data = data[:need]
		}
		buf = append(buf, data...)
	}
	return buf, nil
}

func (c *wsConn) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(c.deadline()); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *wsConn) WriteText(msg string) error {
	return c.write(websocket.TextMessage, []byte(msg))
}

func (c *wsConn) WriteBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *wsConn) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

func (c *wsConn) RemoteAddr() string {
	return c.remote
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

type wsListener struct {
	ln         net.Listener
	httpServer *http.Server
	upgrader   websocket.Upgrader
	conns      chan Conn
	done       chan struct{}
	closeOnce  sync.Once
}

func listenWebSocket(addr string) (*wsListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	l := &wsListener{
		ln:    ln,
		conns: make(chan Conn),
		done:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Served on trusted local networks only
				if origin := r.Header.Get("Origin"); origin != "" {
					log.Printf("Warning: accepting WebSocket from origin: %s", origin)
				}
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, l.handleWebSocket)
	l.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := l.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("WebSocket listener error: %v", err)
		}
	}()

	return l, nil
}

func (l *wsListener) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	// The hijacked connection outlives this handler.
	select {
	case l.conns <- newWSConn(conn, r.RemoteAddr, DefaultTimeout):
	case <-l.done:
		conn.Close()
	}
}

func (l *wsListener) Accept() (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, errListenerClosed
	}
}

func (l *wsListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = l.httpServer.Shutdown(ctx)
	})
	return err
}

func dialWebSocket(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: Path}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return newWSConn(conn, addr, timeout), nil
}
