// ABOUTME: Handshake messages exchanged when a client connects
// ABOUTME: Formats and parses the client hello, stream parameters and acks
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Resonate-Protocol/lanaudio/internal/codec"
)

const (
	// ClientIdentity is the only identity the server streams to
	ClientIdentity = "AudioClient"
	// Ack confirms the stream parameters and every received chunk
	Ack = "ok"
	// Reject is sent to peers that announce a foreign identity
	Reject = "i have nothing for you"
	// MaxMessageSize bounds a single text message
	MaxMessageSize = 1024
)

// ClientHello is the first message a client sends
type ClientHello struct {
	Identity string
	// Depth is the requested lag behind the newest chunk, 0 if omitted
	Depth    int
	HasDepth bool
}

// String renders the hello as sent on the wire
func (h ClientHello) String() string {
	if !h.HasDepth {
		return h.Identity
	}
	return fmt.Sprintf("%s,%d", h.Identity, h.Depth)
}

// ParseClientHello parses "<identity>[,<depth>]". A foreign identity is not
// an error here, callers decide how to answer it.
func ParseClientHello(msg string) (ClientHello, error) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return ClientHello{}, fmt.Errorf("%w: empty hello", ErrHandshake)
	}

	identity, depth, found := strings.Cut(msg, ",")
	hello := ClientHello{Identity: strings.TrimSpace(identity)}
	if !found {
		return hello, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(depth))
	if err != nil {
		return hello, fmt.Errorf("%w: invalid buffer depth %q", ErrHandshake, depth)
	}
	hello.Depth = n
	hello.HasDepth = true
	return hello, nil
}

// StreamParams is the server's answer to a hello
type StreamParams struct {
	Format codec.Format
	Mode   codec.Mode
}

// String renders "<rate>,<frame_count>,<channels>,<mode>"
func (p StreamParams) String() string {
	return fmt.Sprintf("%d,%d,%d,%d",
		p.Format.SampleRate, p.Format.FrameCount, p.Format.Channels, int(p.Mode))
}

// ParseStreamParams parses the server's parameter message
func ParseStreamParams(msg string) (StreamParams, error) {
	fields := strings.Split(strings.TrimSpace(msg), ",")
	if len(fields) != 4 {
		return StreamParams{}, fmt.Errorf("%w: expected 4 stream parameters, got %q", ErrHandshake, msg)
	}

	values := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return StreamParams{}, fmt.Errorf("%w: invalid stream parameter %q", ErrHandshake, f)
		}
		values[i] = v
	}

	mode, err := codec.ParseMode(values[3])
	if err != nil {
		return StreamParams{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	params := StreamParams{
		Format: codec.Format{
			SampleRate: values[0],
			FrameCount: values[1],
			Channels:   values[2],
		},
		Mode: mode,
	}
	if err := params.Format.Validate(); err != nil {
		return StreamParams{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return params, nil
}

// IsAck reports whether msg is the acknowledgement
func IsAck(msg []byte) bool {
	return string(msg) == Ack
}
