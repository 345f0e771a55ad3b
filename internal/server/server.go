// ABOUTME: Main server implementation for lanaudio
// ABOUTME: Accepts clients, tracks sessions and runs the producer and buffer controller
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Resonate-Protocol/lanaudio/internal/codec"
	"github.com/Resonate-Protocol/lanaudio/internal/discovery"
	"github.com/Resonate-Protocol/lanaudio/internal/protocol"
	"github.com/Resonate-Protocol/lanaudio/internal/ringbuf"
	"github.com/Resonate-Protocol/lanaudio/internal/transport"
	"github.com/google/uuid"
)

// Config holds server configuration
type Config struct {
	Name      string
	Addr      string
	Transport string

	FrameCount int
	Mode       codec.Mode

	InitialChunks    int
	MinChunks        int
	MaxChunks        int
	Increment        int
	DefaultDepth     int
	OptimizeInterval time.Duration
	CatchUp          bool

	SocketTimeout    time.Duration
	HandshakeTimeout time.Duration

	EnableMDNS bool
	UseTUI     bool
	Debug      bool
}

// Server fans one audio source out to many clients
type Server struct {
	config   Config
	serverID string
	format   codec.Format
	source   Source

	ring       *ringbuf.Buffer
	lag        lagMark
	producer   *Producer
	controller *BufferController

	listener transport.Listener

	// Sessions keyed by remote address
	sessions   map[string]*Session
	sessionsMu sync.RWMutex

	// mDNS discovery
	mdnsManager *discovery.Manager

	// TUI
	tui       *ServerTUI
	startTime time.Time

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// New creates a server streaming source. The stream's sample rate and
// channel count come from the source.
func New(config Config, source Source) (*Server, error) {
	format := codec.Format{
		SampleRate: source.SampleRate(),
		FrameCount: config.FrameCount,
		Channels:   source.Channels(),
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream format: %w", err)
	}
	if config.Mode.Compressed() && format.MaxPayload(config.Mode) > protocol.MaxPayload {
		return nil, fmt.Errorf("frame count %d too large for %s compression", config.FrameCount, config.Mode)
	}
	if config.InitialChunks < 1 || config.Increment < 1 {
		return nil, fmt.Errorf("buffer sizes must be positive")
	}

	encoder, err := codec.NewEncoder(config.Mode, format)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:    config,
		serverID:  uuid.New().String(),
		format:    format,
		source:    source,
		ring:      ringbuf.New(config.InitialChunks),
		sessions:  make(map[string]*Session),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}
	s.producer = NewProducer(source, s.ring, encoder, format, config.InitialChunks, config.Debug)
	s.controller = newBufferController(s.ring, &s.lag, config.Increment, config.MinChunks, config.OptimizeInterval, config.Debug)
	return s, nil
}

// Format returns the negotiated stream format
func (s *Server) Format() codec.Format {
	return s.format
}

// Listen binds the listener. It is the only fatal startup step.
func (s *Server) Listen() error {
	ln, err := transport.Listen(s.config.Transport, s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound listener address
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.Addr
	}
	return s.listener.Addr()
}

// Start listens and serves until Stop is called
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve runs the producer, buffer controller and accept loop on a bound
// listener and blocks until Stop or a TUI quit.
func (s *Server) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("server is not listening")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s.config.UseTUI {
		s.tui = NewServerTUI()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(s.status()); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	}

	log.Printf("Server starting: %s (ID: %s)", s.config.Name, s.serverID)
	log.Printf("Streaming %dHz, %d channels, %d frames per chunk, compression %s",
		s.format.SampleRate, s.format.Channels, s.format.FrameCount, s.config.Mode)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.producer.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.controller.Run(ctx)
	}()

	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.ring.WaitFor(ctx, s.config.InitialChunks); err != nil {
		log.Printf("Stopped before the buffer was pre-filled")
		s.shutdown(cancel)
		return nil
	}
	log.Printf("Buffer pre-filled with %d chunks", s.ring.Len())

	if s.config.EnableMDNS {
		s.startMDNS()
	}

	log.Printf("%s server listening on %s", s.config.Transport, s.listener.Addr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()

	var tuiQuitChan <-chan struct{}
	var tuiTicker <-chan time.Time
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		tuiTicker = ticker.C
	}

wait:
	for {
		select {
		case <-s.stopChan:
			log.Printf("Server shutting down...")
			break wait
		case <-tuiQuitChan:
			log.Printf("TUI quit requested, shutting down...")
			break wait
		case <-tuiTicker:
			s.updateTUI()
		}
	}

	s.shutdown(cancel)
	return nil
}

func (s *Server) startMDNS() {
	_, portStr, err := net.SplitHostPort(s.listener.Addr())
	if err != nil {
		log.Printf("Failed to start mDNS advertisement: %v", err)
		return
	}
	port, _ := strconv.Atoi(portStr)

	s.mdnsManager = discovery.NewManager(discovery.Config{
		ServiceName: s.config.Name,
		Port:        port,
		Transport:   s.config.Transport,
		Mode:        int(s.config.Mode),
		SampleRate:  s.format.SampleRate,
	})
	if err := s.mdnsManager.Advertise(); err != nil {
		log.Printf("Failed to start mDNS advertisement: %v", err)
	} else {
		log.Printf("mDNS advertisement started")
	}
}

func (s *Server) shutdown(cancel context.CancelFunc) {
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}

	cancel()
	if err := s.listener.Close(); err != nil {
		log.Printf("Listener close error: %v", err)
	}

	// Fail in-flight reads and writes fast
	s.sessionsMu.RLock()
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
	s.sessionsMu.RUnlock()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	// Wakes a producer blocked on a capture device
	if err := s.source.Close(); err != nil {
		log.Printf("Error closing audio source: %v", err)
	}

	s.wg.Wait()
	log.Printf("Server stopped cleanly")
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShutdown
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || s.shuttingDown() {
				return
			}
			log.Printf("Accept error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection runs one client from handshake to disconnect
func (s *Server) handleConnection(ctx context.Context, conn transport.Conn) {
	defer conn.Close()

	if s.shuttingDown() {
		log.Printf("Rejecting connection during shutdown")
		return
	}

	if s.config.Debug {
		log.Printf("[DEBUG] New connection from %s, waiting for handshake", conn.RemoteAddr())
	}

	sess, err := s.handshake(conn)
	if err != nil {
		log.Printf("Handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}

	s.register(sess)
	defer s.unregister(sess)

	log.Printf("Client connected: %s (session %s, depth %d, position %d)",
		sess.Addr, sess.ID, sess.depth, sess.Position())

	if err := sess.run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("Client %s disconnected: %v", sess.Addr, err)
	}
}

func (s *Server) register(sess *Session) {
	s.sessionsMu.Lock()
	s.sessions[sess.Addr] = sess
	s.sessionsMu.Unlock()

	s.updateTUI()
}

func (s *Server) unregister(sess *Session) {
	s.sessionsMu.Lock()
	if s.sessions[sess.Addr] == sess {
		delete(s.sessions, sess.Addr)
	}
	s.sessionsMu.Unlock()

	info := sess.Info()
	log.Printf("Session %s closed: %d chunks sent, %d silent chunks skipped", sess.Addr, info.Sent, info.Skipped)
	s.updateTUI()
}

// Sessions returns a snapshot of all connected sessions
func (s *Server) Sessions() []SessionInfo {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()

	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, sess.Info())
	}
	return infos
}
