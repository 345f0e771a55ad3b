// ABOUTME: Tests for handshake messages and the length header
// ABOUTME: Verifies parsing edge cases and error classification
package protocol

import (
	"errors"
	"fmt"
	"net"
	"os"
	"testing"

	"github.com/Resonate-Protocol/lanaudio/internal/codec"
)

func TestParseClientHello(t *testing.T) {
	tests := []struct {
		msg      string
		identity string
		depth    int
		hasDepth bool
		wantErr  bool
	}{
		{msg: "AudioClient,96", identity: "AudioClient", depth: 96, hasDepth: true},
		{msg: "AudioClient", identity: "AudioClient"},
		{msg: " AudioClient , 12 \n", identity: "AudioClient", depth: 12, hasDepth: true},
		{msg: "Browser,4", identity: "Browser", depth: 4, hasDepth: true},
		{msg: "AudioClient,lots", wantErr: true},
		{msg: "AudioClient,0", identity: "AudioClient", depth: 0, hasDepth: true},
		{msg: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			hello, err := ParseClientHello(tt.msg)
			if tt.wantErr {
				if !errors.Is(err, ErrHandshake) {
					t.Fatalf("expected ErrHandshake, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if hello.Identity != tt.identity || hello.Depth != tt.depth || hello.HasDepth != tt.hasDepth {
				t.Errorf("got %+v", hello)
			}
		})
	}
}

func TestClientHelloString(t *testing.T) {
	h := ClientHello{Identity: ClientIdentity, Depth: 96, HasDepth: true}
	if h.String() != "AudioClient,96" {
		t.Errorf("got %q", h.String())
	}
}

func TestStreamParams(t *testing.T) {
	p := StreamParams{
		Format: codec.Format{SampleRate: 44100, FrameCount: 2048, Channels: 1},
		Mode:   codec.ModeInterpolate,
	}
	if p.String() != "44100,2048,1,1" {
		t.Fatalf("got %q", p.String())
	}

	parsed, err := ParseStreamParams(p.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != p {
		t.Errorf("parsed %+v, want %+v", parsed, p)
	}

	for _, bad := range []string{"44100,2048,1", "44100,2048,1,7", "a,b,c,d", "44100,2048,5,0"} {
		if _, err := ParseStreamParams(bad); !errors.Is(err, ErrHandshake) {
			t.Errorf("%q: expected ErrHandshake, got %v", bad, err)
		}
	}
}

func TestHeader(t *testing.T) {
	h, err := EncodeHeader(2048)
	if err != nil {
		t.Fatal(err)
	}
	if h[0] != 0x00 || h[1] != 0x08 {
		t.Errorf("unexpected header bytes %v", h)
	}
	n, err := DecodeHeader(h, 4096)
	if err != nil || n != 2048 {
		t.Errorf("DecodeHeader = %d, %v", n, err)
	}

	if _, err := EncodeHeader(40000); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol for oversized length, got %v", err)
	}
	if _, err := DecodeHeader([]byte{0xff, 0xff}, 4096); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol for negative length, got %v", err)
	}
	if _, err := DecodeHeader(h, 100); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol for length above max, got %v", err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTimeout(t *testing.T) {
	var _ net.Error = timeoutErr{}

	if !IsTimeout(fmt.Errorf("read: %w", os.ErrDeadlineExceeded)) {
		t.Error("deadline exceeded should be a timeout")
	}
	if !IsTimeout(fmt.Errorf("read: %w", timeoutErr{})) {
		t.Error("net timeout should be a timeout")
	}
	if IsTimeout(errors.New("boom")) {
		t.Error("plain error is not a timeout")
	}
}
