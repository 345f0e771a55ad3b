// ABOUTME: Per-client session that sends chunks from the ring buffer
// ABOUTME: Handles the handshake, silence catch-up, header echo and acknowledgements
package server

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/lanaudio/internal/codec"
	"github.com/Resonate-Protocol/lanaudio/internal/protocol"
	"github.com/Resonate-Protocol/lanaudio/internal/transport"
	"github.com/google/uuid"
)

// Session streams the shared ring buffer to one client
type Session struct {
	ID     string
	Addr   string
	conn   transport.Conn
	server *Server
	depth  int

	mu          sync.RWMutex
	currentID   int64 // id of the next chunk to send
	curPos      int   // distance of currentID from the newest chunk, 1 = newest
	highest     int
	sent        int64
	skipped     int64
	bytesSent   int64
	connectedAt time.Time
}

// SessionInfo is a point-in-time view of a session
type SessionInfo struct {
	ID          string
	Addr        string
	Mode        codec.Mode
	Depth       int
	Position    int
	Highest     int
	Sent        int64
	Skipped     int64
	BytesSent   int64
	ConnectedAt time.Time
}

// handshake runs the hello/parameters/ack exchange and returns a session
// positioned at the requested depth.
func (s *Server) handshake(conn transport.Conn) (*Session, error) {
	conn.SetTimeout(s.config.HandshakeTimeout)

	msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read hello: %w", protocol.ErrHandshake, err)
	}

	hello, err := protocol.ParseClientHello(string(msg))
	if err != nil {
		return nil, err
	}
	if hello.Identity != protocol.ClientIdentity {
		if err := conn.WriteText(protocol.Reject); err != nil {
			log.Printf("Error rejecting %s: %v", conn.RemoteAddr(), err)
		}
		return nil, fmt.Errorf("%w: unknown identity %q", protocol.ErrHandshake, hello.Identity)
	}

	depth := s.config.DefaultDepth
	if hello.HasDepth {
		depth = hello.Depth
	}

	params := protocol.StreamParams{Format: s.format, Mode: s.config.Mode}
	if err := conn.WriteText(params.String()); err != nil {
		return nil, fmt.Errorf("%w: send parameters: %w", protocol.ErrHandshake, err)
	}

	ack, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read ack: %w", protocol.ErrHandshake, err)
	}
	if !protocol.IsAck(ack) {
		return nil, fmt.Errorf("%w: expected %q, got %q", protocol.ErrHandshake, protocol.Ack, ack)
	}

	conn.SetTimeout(s.config.SocketTimeout)
	return s.newSession(conn, depth), nil
}

// newSession starts a session increment chunks short of the oldest held
// chunk, or at the requested depth if that is closer to the newest.
func (s *Server) newSession(conn transport.Conn, depth int) *Session {
	pos := depth
	if limit := s.ring.Len() - s.config.Increment; pos > limit {
		pos = limit
	}
	if pos < 1 {
		pos = 1
	}

	return &Session{
		ID:          uuid.New().String(),
		Addr:        conn.RemoteAddr(),
		conn:        conn,
		server:      s,
		depth:       depth,
		currentID:   s.ring.Newest() - int64(pos) + 1,
		curPos:      pos,
		connectedAt: time.Now(),
	}
}

// run exchanges chunks until the connection fails or ctx ends
func (sess *Session) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, id, err := sess.next(ctx)
		if err != nil {
			return err
		}
		if err := sess.send(chunk); err != nil {
			return err
		}
		sess.advance(id)
	}
}

// next resolves the session position against the ring and returns the
// chunk to send, skipping silence while catch-up allows it. Chunks are
// looked up by id so a concurrent Append cannot shift the session forward.
func (sess *Session) next(ctx context.Context) ([]byte, int64, error) {
	ring := sess.server.ring
	cfg := sess.server.config

	sess.mu.RLock()
	currentID := sess.currentID
	sess.mu.RUnlock()

	if ring.Newest() < currentID {
		// Ahead of the producer, wait for the chunk to exist
		if err := ring.WaitNewer(ctx, currentID-1); err != nil {
			return nil, 0, err
		}
	}

	chunk, id, pos := ring.Locate(currentID)
	if id > currentID {
		log.Printf("Session %s falling behind: chunk %d already evicted, resuming at %d (buffer length %d)",
			sess.Addr, currentID, id, ring.Len())
		if ring.Grow(cfg.Increment, cfg.MaxChunks) {
			log.Printf("Buffer grown to %d chunks", ring.Cap())
		}
	}

	var skipped int64
	for cfg.CatchUp && codec.IsSilence(chunk) && pos > 2 {
		next, ok := ring.At(id + 1)
		if !ok {
			break
		}
		chunk = next
		id++
		pos--
		skipped++
	}

	sess.mu.Lock()
	sess.curPos = pos
	sess.currentID = id
	sess.skipped += skipped
	sess.mu.Unlock()

	if skipped > 0 && cfg.Debug {
		log.Printf("[DEBUG] Session %s skipped %d silent chunks, now at position %d", sess.Addr, skipped, pos)
	}
	return chunk, id, nil
}

// send writes one chunk and waits for the client's acknowledgement
func (sess *Session) send(chunk []byte) error {
	conn := sess.conn
	format := sess.server.format

	payload := chunk
	if !sess.server.config.Mode.Compressed() {
		// Raw chunks have no length prefix so the marker goes out expanded
		if codec.IsSilence(payload) {
			payload = codec.SilentChunk(format)
		}
	} else {
		header, err := protocol.EncodeHeader(len(payload))
		if err != nil {
			return err
		}
		if err := conn.WriteBinary(header); err != nil {
			return fmt.Errorf("send header: %w", err)
		}
		echo, err := conn.ReadFull(protocol.HeaderSize)
		if err != nil {
			return fmt.Errorf("read header echo: %w", err)
		}
		if !bytes.Equal(echo, header) {
			return fmt.Errorf("%w: sent %x, got %x", protocol.ErrHeaderMismatch, header, echo)
		}
	}

	if err := conn.WriteBinary(payload); err != nil {
		return fmt.Errorf("send payload: %w", err)
	}

	ack, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read ack: %w", err)
	}
	if !protocol.IsAck(ack) {
		return fmt.Errorf("%w: %q", protocol.ErrBadAck, ack)
	}

	sess.mu.Lock()
	sess.sent++
	sess.bytesSent += int64(len(payload))
	sess.mu.Unlock()
	return nil
}

// advance moves past the chunk just sent and records the new lag
func (sess *Session) advance(sentID int64) {
	newest := sess.server.ring.Newest()

	sess.mu.Lock()
	sess.currentID = sentID + 1
	sess.curPos = int(newest-sess.currentID) + 1
	pos := sess.curPos
	if pos > sess.highest {
		sess.highest = pos
	}
	sess.mu.Unlock()

	sess.server.lag.Observe(pos)
}

// Position returns the current distance from the newest chunk
func (sess *Session) Position() int {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return sess.curPos
}

// Info returns a snapshot of the session
func (sess *Session) Info() SessionInfo {
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	return SessionInfo{
		ID:          sess.ID,
		Addr:        sess.Addr,
		Mode:        sess.server.config.Mode,
		Depth:       sess.depth,
		Position:    sess.curPos,
		Highest:     sess.highest,
		Sent:        sess.sent,
		Skipped:     sess.skipped,
		BytesSent:   sess.bytesSent,
		ConnectedAt: sess.connectedAt,
	}
}
