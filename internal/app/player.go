// ABOUTME: Main player application orchestration
// ABOUTME: Coordinates discovery, the receiver, playback and the TUI
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/lanaudio/internal/client"
	"github.com/Resonate-Protocol/lanaudio/internal/codec"
	"github.com/Resonate-Protocol/lanaudio/internal/discovery"
	"github.com/Resonate-Protocol/lanaudio/internal/player"
	"github.com/Resonate-Protocol/lanaudio/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

// Config holds player configuration
type Config struct {
	Name string
	// Client.Addr may be empty, the server is then found via mDNS
	Client           client.Config
	DiscoveryTimeout time.Duration
	UnderrunWait     time.Duration
	Volume           int
	UseTUI           bool
	Debug            bool
}

// Player represents the main player application
type Player struct {
	config   Config
	id       string
	output   player.Output
	volume   volumeSetter

	mu       sync.Mutex
	receiver *client.Receiver
	loop     *player.Loop

	tuiProg  *tea.Program
	controls *ui.Controls

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// volumeSetter is implemented by outputs with software volume
type volumeSetter interface {
	SetVolume(volume int)
	SetMuted(muted bool)
}

// New creates a new player writing to output
func New(config Config, output player.Output) *Player {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Player{
		config: config,
		id:     uuid.New().String(),
		output: output,
		ctx:    ctx,
		cancel: cancel,
	}
	if v, ok := output.(volumeSetter); ok {
		p.volume = v
	}
	if config.UseTUI {
		p.controls = ui.NewControls()
		p.tuiProg = ui.Run(p.controls, config.Volume, config.Client.Depth)
	}
	return p
}

// Start runs the player until Stop is called or the TUI quits
func (p *Player) Start() error {
	log.Printf("Starting player %s (ID: %s)", p.config.Name, p.id)

	if p.tuiProg != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if _, err := p.tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
		go p.handleControls()
	}

	cfg := p.config.Client
	if cfg.Addr == "" {
		server, err := p.discover()
		if err != nil {
			p.Stop()
			return err
		}
		cfg.Addr = server.Addr()
		if cfg.Transport == "" {
			cfg.Transport = server.Transport
		}
	}

	receiver := client.NewReceiver(cfg)
	receiver.OnStateChange = func(state client.State) {
		p.updateTUI(ui.StatusMsg{State: state.String(), ServerName: cfg.Addr, Transport: cfg.Transport})
	}
	receiver.OnFormat = func(format codec.Format, mode codec.Mode) {
		p.updateTUI(ui.StatusMsg{
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			FrameCount: format.FrameCount,
			Mode:       mode.String(),
		})
	}
	loop := player.NewLoop(receiver, p.output, p.config.UnderrunWait, p.config.Debug)

	p.mu.Lock()
	if p.ctx.Err() != nil {
		p.mu.Unlock()
		return nil
	}
	p.receiver = receiver
	p.loop = loop
	p.wg.Add(2)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if err := receiver.Run(p.ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, client.ErrClosed) {
			log.Printf("Receiver stopped: %v", err)
		}
	}()
	go func() {
		defer p.wg.Done()
		loop.Run(p.ctx)
	}()

	if p.tuiProg != nil {
		go p.statsUpdateLoop()
	}

	<-p.ctx.Done()
	return nil
}

// discover waits for a server announced via mDNS
func (p *Player) discover() (*discovery.ServerInfo, error) {
	timeout := p.config.DiscoveryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log.Printf("Starting server discovery...")

	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	server, err := discovery.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("no server found after %v: %w", timeout, err)
	}
	log.Printf("Discovered server %s at %s (%s, mode %d)", server.Name, server.Addr(), server.Transport, server.Mode)
	return server, nil
}

// handleControls applies volume changes and quit requests from the TUI
func (p *Player) handleControls() {
	for {
		select {
		case change := <-p.controls.Changes:
			if p.volume != nil {
				p.volume.SetVolume(change.Volume)
				p.volume.SetMuted(change.Muted)
			}
		case <-p.controls.Quit:
			log.Printf("Received quit signal from TUI")
			p.cancel()
			return
		case <-p.ctx.Done():
			return
		}
	}
}

// statsUpdateLoop periodically updates TUI with playback statistics
func (p *Player) statsUpdateLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := p.Stats()
			p.updateTUI(ui.StatusMsg{
				Stats:      true,
				Received:   stats.Received,
				Played:     stats.Played,
				Underruns:  stats.Underruns,
				Failures:   stats.Failures,
				Reconnects: stats.Reconnects,
				Buffered:   stats.Buffered,
			})
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Player) updateTUI(msg ui.StatusMsg) {
	if p.tuiProg != nil {
		p.tuiProg.Send(msg)
	}
}

// Stats combines receiver and playback counters
type Stats struct {
	State      client.State
	Received   int64
	Played     int64
	Underruns  int64
	Dropped    int64
	Failures   int64
	Reconnects int64
	Buffered   int
}

// Stats returns a snapshot of the player counters
func (p *Player) Stats() Stats {
	p.mu.Lock()
	receiver, loop := p.receiver, p.loop
	p.mu.Unlock()

	if receiver == nil || loop == nil {
		return Stats{}
	}
	rs := receiver.Stats()
	ls := loop.Stats()
	return Stats{
		State:      rs.State,
		Received:   rs.Received,
		Played:     ls.Played,
		Underruns:  ls.Underruns,
		Dropped:    ls.Dropped,
		Failures:   rs.Failures,
		Reconnects: rs.Reconnects,
		Buffered:   rs.Buffered,
	}
}

// Done is closed once the player is stopping
func (p *Player) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Stop stops the player and waits for its goroutines
func (p *Player) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.cancel()
		receiver := p.receiver
		p.mu.Unlock()

		if receiver != nil {
			receiver.Close()
		}
		// Wakes a loop blocked in Write
		if err := p.output.Close(); err != nil {
			log.Printf("Error closing output: %v", err)
		}
		if p.tuiProg != nil {
			p.tuiProg.Quit()
		}

		p.wg.Wait()
		log.Printf("Player stopped")
	})
}
