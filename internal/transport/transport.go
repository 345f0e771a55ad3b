// ABOUTME: Message transports carrying the streaming protocol
// ABOUTME: Raw TCP and WebSocket connections behind one Conn interface
package transport

import (
	"context"
	"fmt"
	"time"
)

const (
	// TCP carries protocol messages over a plain TCP stream
	TCP = "tcp"
	// WebSocket carries each protocol message as one WebSocket message
	WebSocket = "ws"

	// Path is the HTTP path the WebSocket transport is served on
	Path = "/lanaudio"

	// DefaultTimeout bounds every blocking read and write
	DefaultTimeout = 5 * time.Second
)

// Conn is one protocol connection. Text messages are handshake lines and
// acks; binary messages are length headers and payloads.
type Conn interface {
	// ReadMessage reads one text message of at most protocol.MaxMessageSize bytes
	ReadMessage() ([]byte, error)
	// ReadFull reads exactly n bytes of binary data
	ReadFull(n int) ([]byte, error)
	WriteText(msg string) error
	WriteBinary(data []byte) error
	// SetTimeout changes the deadline applied to each following read and write
	SetTimeout(d time.Duration)
	RemoteAddr() string
	Close() error
}

// Listener accepts protocol connections
type Listener interface {
	Accept() (Conn, error)
	Addr() string
	Close() error
}

// Listen opens a listener for the given transport kind
func Listen(kind, addr string) (Listener, error) {
	switch kind {
	case TCP, "":
		return listenTCP(addr)
	case WebSocket:
		return listenWebSocket(addr)
	}
	return nil, fmt.Errorf("unknown transport: %q", kind)
}

// Dial connects to a server over the given transport kind
func Dial(ctx context.Context, kind, addr string, timeout time.Duration) (Conn, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	switch kind {
	case TCP, "":
		return dialTCP(ctx, addr, timeout)
	case WebSocket:
		return dialWebSocket(ctx, addr, timeout)
	}
	return nil, fmt.Errorf("unknown transport: %q", kind)
}

// Valid reports whether kind names a supported transport
func Valid(kind string) bool {
	return kind == TCP || kind == WebSocket
}
