// ABOUTME: Streaming client that connects to a lanaudio server
// ABOUTME: Pulls chunks ahead of playback into a bounded FIFO and reconnects forever
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/lanaudio/internal/codec"
	"github.com/Resonate-Protocol/lanaudio/internal/protocol"
	"github.com/Resonate-Protocol/lanaudio/internal/transport"
	"github.com/gammazero/deque"
)

// State is the receiver's connection state
type State int

const (
	Disconnected State = iota
	Connecting
	Streaming
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config holds receiver configuration
type Config struct {
	Addr      string
	Transport string
	// Depth is the lag requested from the server and the FIFO target
	Depth          int
	ConnectRetries int
	RetryBackoff   time.Duration
	CycleBackoff   time.Duration
	SocketTimeout  time.Duration
	Debug          bool
}

// Chunk is one decoded chunk of interleaved 16-bit PCM
type Chunk struct {
	Format codec.Format
	PCM    []byte
	Seq    int64
}

// Stats is a snapshot of receiver counters
type Stats struct {
	State      State
	Format     codec.Format
	Mode       codec.Mode
	Buffered   int
	Received   int64
	Failures   int64
	Reconnects int64
	Underruns  int64
}

// ErrClosed is returned once the receiver has been closed
var ErrClosed = errors.New("receiver closed")

// Receiver keeps a FIFO of decoded chunks filled from the server
type Receiver struct {
	config Config

	mu   sync.Mutex
	cond *sync.Cond
	fifo deque.Deque[Chunk]

	state   State
	closed  bool
	conn    transport.Conn
	params  protocol.StreamParams
	decoder codec.Decoder

	seq          int64
	received     int64
	pastFailures int64 // failures of decoders already replaced
	reconnects   int64
	underruns    int64

	// OnStateChange is called after every state transition
	OnStateChange func(State)
	// OnFormat is called when a handshake yields new stream parameters
	OnFormat func(codec.Format, codec.Mode)
}

// NewReceiver creates a disconnected receiver
func NewReceiver(config Config) *Receiver {
	if config.Depth < 1 {
		config.Depth = 1
	}
	if config.ConnectRetries < 1 {
		config.ConnectRetries = 1
	}
	if config.SocketTimeout <= 0 {
		config.SocketTimeout = transport.DefaultTimeout
	}
	if config.Transport == "" {
		config.Transport = transport.TCP
	}

	r := &Receiver{config: config}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *Receiver) setState(s State) {
	r.mu.Lock()
	changed := r.state != s
	r.state = s
	cb := r.OnStateChange
	r.mu.Unlock()

	if changed && cb != nil {
		cb(s)
	}
}

// State returns the current connection state
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Connect dials the server and performs the handshake, retrying up to
// ConnectRetries times with RetryBackoff between attempts.
func (r *Receiver) Connect(ctx context.Context) error {
	r.setState(Connecting)

	var lastErr error
	for attempt := 1; attempt <= r.config.ConnectRetries; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, r.config.RetryBackoff); err != nil {
				r.setState(Disconnected)
				return err
			}
		}

		log.Printf("Connecting to %s over %s (attempt %d/%d)", r.config.Addr, r.config.Transport, attempt, r.config.ConnectRetries)
		conn, err := transport.Dial(ctx, r.config.Transport, r.config.Addr, r.config.SocketTimeout)
		if err != nil {
			lastErr = err
			log.Printf("Connection failed: %v", err)
			continue
		}

		params, err := r.handshake(conn)
		if err != nil {
			conn.Close()
			lastErr = err
			log.Printf("Handshake failed: %v", err)
			continue
		}

		if err := r.attach(conn, params); err != nil {
			conn.Close()
			r.setState(Disconnected)
			return err
		}
		log.Printf("Streaming %dHz, %d channels, %d frames per chunk, compression %s",
			params.Format.SampleRate, params.Format.Channels, params.Format.FrameCount, params.Mode)
		r.setState(Streaming)
		return nil
	}

	r.setState(Disconnected)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("connect to %s failed after %d attempts: %w", r.config.Addr, r.config.ConnectRetries, lastErr)
}

func (r *Receiver) handshake(conn transport.Conn) (protocol.StreamParams, error) {
	hello := protocol.ClientHello{
		Identity: protocol.ClientIdentity,
		Depth:    r.config.Depth,
		HasDepth: true,
	}
	if err := conn.WriteText(hello.String()); err != nil {
		return protocol.StreamParams{}, fmt.Errorf("%w: send hello: %w", protocol.ErrHandshake, err)
	}

	msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.StreamParams{}, fmt.Errorf("%w: read parameters: %w", protocol.ErrHandshake, err)
	}
	if string(msg) == protocol.Reject {
		return protocol.StreamParams{}, fmt.Errorf("%w: server rejected client", protocol.ErrHandshake)
	}

	params, err := protocol.ParseStreamParams(string(msg))
	if err != nil {
		return protocol.StreamParams{}, err
	}
	if params.Mode.Compressed() && params.Format.MaxPayload(params.Mode) > protocol.MaxPayload {
		return protocol.StreamParams{}, fmt.Errorf("%w: frame count %d too large for %s", protocol.ErrHandshake, params.Format.FrameCount, params.Mode)
	}

	if err := conn.WriteText(protocol.Ack); err != nil {
		return protocol.StreamParams{}, fmt.Errorf("%w: send ack: %w", protocol.ErrHandshake, err)
	}
	return params, nil
}

// attach installs a freshly handshaken connection. The decoder is rebuilt
// when the parameters changed and reset otherwise.
func (r *Receiver) attach(conn transport.Conn, params protocol.StreamParams) error {
	conn.SetTimeout(r.config.SocketTimeout)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}

	changed := r.decoder == nil || r.params != params
	if changed {
		decoder, err := codec.NewDecoder(params.Mode, params.Format)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		if r.decoder != nil {
			r.pastFailures += r.decoder.Failures()
		}
		r.decoder = decoder
		r.params = params
	} else {
		r.decoder.Reset()
	}
	r.conn = conn
	cb := r.OnFormat
	r.mu.Unlock()

	if changed && cb != nil {
		cb(params.Format, params.Mode)
	}
	return nil
}

// disconnect drops the current connection
func (r *Receiver) disconnect() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	if conn != nil {
		r.reconnects++
	}
	r.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	r.setState(Disconnected)
}

// Run keeps the FIFO filled until ctx ends or the receiver is closed
func (r *Receiver) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			r.disconnect()
			return err
		}
		if r.isClosed() {
			return ErrClosed
		}

		if r.connection() == nil {
			if err := r.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, ErrClosed) {
					return err
				}
				log.Printf("%v, trying again in %v", err, r.config.CycleBackoff)
				if err := sleep(ctx, r.config.CycleBackoff); err != nil {
					return err
				}
				continue
			}
		}

		if err := r.waitForRoom(ctx); err != nil {
			r.disconnect()
			return err
		}

		chunk, err := r.pull()
		if err != nil {
			if ctx.Err() == nil && !r.isClosed() {
				log.Printf("Lost connection to %s: %v", r.config.Addr, err)
			}
			r.disconnect()
			continue
		}
		r.push(chunk)
	}
}

func (r *Receiver) connection() transport.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

func (r *Receiver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// waitForRoom blocks while the FIFO holds Depth chunks
func (r *Receiver) waitForRoom(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.fifo.Len() >= r.config.Depth {
		if r.closed {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r.cond.Wait()
	}
	return nil
}

// pull receives, decodes and acknowledges one chunk
func (r *Receiver) pull() (Chunk, error) {
	r.mu.Lock()
	conn := r.conn
	params := r.params
	decoder := r.decoder
	r.mu.Unlock()

	if conn == nil {
		return Chunk{}, fmt.Errorf("not connected")
	}

	size := params.Format.ChunkBytes()
	if params.Mode.Compressed() {
		header, err := conn.ReadFull(protocol.HeaderSize)
		if err != nil {
			return Chunk{}, fmt.Errorf("read header: %w", err)
		}
		size, err = protocol.DecodeHeader(header, params.Format.MaxPayload(params.Mode))
		if err != nil {
			return Chunk{}, err
		}
		if err := conn.WriteBinary(header); err != nil {
			return Chunk{}, fmt.Errorf("echo header: %w", err)
		}
	}

	payload, err := conn.ReadFull(size)
	if err != nil {
		return Chunk{}, fmt.Errorf("read payload: %w", err)
	}

	pcm := decoder.Decode(payload)

	if err := conn.WriteText(protocol.Ack); err != nil {
		return Chunk{}, fmt.Errorf("send ack: %w", err)
	}

	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	if r.config.Debug && seq%100 == 0 {
		log.Printf("[DEBUG] Received chunk %d (%d payload bytes)", seq, len(payload))
	}
	return Chunk{Format: params.Format, PCM: pcm, Seq: seq}, nil
}

func (r *Receiver) push(chunk Chunk) {
	r.mu.Lock()
	r.fifo.PushBack(chunk)
	r.received++
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Next blocks until a chunk is available
func (r *Receiver) Next(ctx context.Context) (Chunk, error) {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.fifo.Len() == 0 {
		if r.closed {
			return Chunk{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Chunk{}, err
		}
		r.cond.Wait()
	}
	chunk := r.fifo.PopFront()
	r.cond.Broadcast()
	return chunk, nil
}

// TryNext pops a chunk without blocking. An empty FIFO counts as an underrun.
func (r *Receiver) TryNext() (Chunk, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fifo.Len() == 0 {
		r.underruns++
		return Chunk{}, false
	}
	chunk := r.fifo.PopFront()
	r.cond.Broadcast()
	return chunk, true
}

// Buffered returns the number of chunks waiting in the FIFO
func (r *Receiver) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fifo.Len()
}

// Stats returns a snapshot of the receiver counters
func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	failures := r.pastFailures
	if r.decoder != nil {
		failures += r.decoder.Failures()
	}
	return Stats{
		State:      r.state,
		Format:     r.params.Format,
		Mode:       r.params.Mode,
		Buffered:   r.fifo.Len(),
		Received:   r.received,
		Failures:   failures,
		Reconnects: r.reconnects,
		Underruns:  r.underruns,
	}
}

// Close drops the connection and wakes every waiter
func (r *Receiver) Close() error {
	r.mu.Lock()
	r.closed = true
	conn := r.conn
	r.conn = nil
	r.cond.Broadcast()
	r.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
