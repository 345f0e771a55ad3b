// ABOUTME: Tests for player application orchestration
// ABOUTME: Runs a player against a loopback server and checks playback
package app

import (
	"testing"
	"time"

	"github.com/Resonate-Protocol/lanaudio/internal/client"
	"github.com/Resonate-Protocol/lanaudio/internal/codec"
	"github.com/Resonate-Protocol/lanaudio/internal/player"
	"github.com/Resonate-Protocol/lanaudio/internal/server"
	"github.com/Resonate-Protocol/lanaudio/internal/transport"
)

func startServer(t *testing.T, kind string, mode codec.Mode) *server.Server {
	t.Helper()

	format := codec.Format{SampleRate: 8000, FrameCount: 128, Channels: 1}
	srv, err := server.New(server.Config{
		Name:             "test",
		Addr:             "127.0.0.1:0",
		Transport:        kind,
		FrameCount:       format.FrameCount,
		Mode:             mode,
		InitialChunks:    8,
		MinChunks:        4,
		MaxChunks:        32,
		Increment:        2,
		DefaultDepth:     4,
		OptimizeInterval: time.Minute,
		CatchUp:          true,
		SocketTimeout:    2 * time.Second,
		HandshakeTimeout: 2 * time.Second,
	}, server.NewTestToneSource(format, 440))
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve()
	}()
	t.Cleanup(func() {
		srv.Stop()
		<-done
	})
	return srv
}

func TestNewPlayer(t *testing.T) {
	config := Config{
		Name:   "test-player",
		Client: client.Config{Addr: "localhost:1060", Depth: 96},
		Volume: 100,
	}

	p := New(config, player.NewDiscard(false))
	if p.config.Client.Addr != config.Client.Addr {
		t.Errorf("expected Addr %s, got %s", config.Client.Addr, p.config.Client.Addr)
	}
	if p.id == "" {
		t.Error("expected an instance id")
	}
	if p.tuiProg != nil {
		t.Error("TUI should not be created when disabled")
	}
	if p.volume != nil {
		t.Error("discard output has no volume control")
	}
	if p.Stats() != (Stats{}) {
		t.Error("stats should be zero before Start")
	}
}

func TestPlayerVolumeControl(t *testing.T) {
	p := New(Config{}, player.NewOto(100))
	if p.volume == nil {
		t.Fatal("oto output should expose volume control")
	}
}

func TestPlayerStreams(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		mode      codec.Mode
	}{
		{"tcp raw", transport.TCP, codec.ModeRaw},
		{"tcp extrema", transport.TCP, codec.ModeExtrema},
		{"ws interpolate", transport.WebSocket, codec.ModeInterpolate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := startServer(t, tt.transport, tt.mode)

			out := player.NewDiscard(false)
			p := New(Config{
				Name: "test-player",
				Client: client.Config{
					Addr:           srv.Addr(),
					Transport:      tt.transport,
					Depth:          4,
					ConnectRetries: 20,
					RetryBackoff:   20 * time.Millisecond,
					CycleBackoff:   50 * time.Millisecond,
					SocketTimeout:  2 * time.Second,
				},
				UnderrunWait: 5 * time.Millisecond,
			}, out)

			done := make(chan error, 1)
			go func() { done <- p.Start() }()

			deadline := time.Now().Add(5 * time.Second)
			for out.Chunks() < 10 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}

			stats := p.Stats()
			p.Stop()
			if err := <-done; err != nil {
				t.Fatalf("Start returned %v", err)
			}

			if out.Chunks() < 10 {
				t.Fatalf("played %d chunks, want at least 10", out.Chunks())
			}
			if out.Opens() != 1 {
				t.Errorf("output opened %d times, want 1", out.Opens())
			}
			if stats.Failures != 0 {
				t.Errorf("decode failures = %d, want 0", stats.Failures)
			}
			if stats.Received < stats.Played {
				t.Errorf("played %d chunks but received only %d", stats.Played, stats.Received)
			}
		})
	}
}

func TestPlayerStopBeforeStart(t *testing.T) {
	p := New(Config{Client: client.Config{Addr: "127.0.0.1:1"}}, player.NewDiscard(false))
	p.Stop()

	done := make(chan error, 1)
	go func() { done <- p.Start() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
