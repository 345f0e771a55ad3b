// ABOUTME: Chunk codecs shared by the server and the client receiver
// ABOUTME: Defines compression modes, chunk format and the silence marker
package codec

import (
	"fmt"
)

// Mode selects how chunks are compressed on the wire
type Mode int

const (
	// ModeRaw sends 16-bit PCM chunks unchanged
	ModeRaw Mode = 0
	// ModeInterpolate keeps every other sample and interpolates on decode
	ModeInterpolate Mode = 1
	// ModeExtrema keeps local extrema and interpolates between them on decode
	ModeExtrema Mode = 2
)

// SilenceThreshold is the summed sample magnitude below which a compressed
// chunk is sent as the silence marker.
const SilenceThreshold = 5

// MarkerSize is the length of the silence marker in bytes.
const MarkerSize = 2

// ParseMode converts a handshake or config value into a Mode
func ParseMode(v int) (Mode, error) {
	switch Mode(v) {
	case ModeRaw, ModeInterpolate, ModeExtrema:
		return Mode(v), nil
	}
	return 0, fmt.Errorf("unsupported compression mode: %d", v)
}

// String returns a short human readable mode name
func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeInterpolate:
		return "interpolate"
	case ModeExtrema:
		return "extrema"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Compressed reports whether chunks in this mode carry a length header
func (m Mode) Compressed() bool {
	return m != ModeRaw
}

// Format describes the PCM layout of one chunk
type Format struct {
	SampleRate int
	FrameCount int
	Channels   int
}

// Samples returns the number of int16 samples in a chunk
func (f Format) Samples() int {
	return f.FrameCount * f.Channels
}

// ChunkBytes returns the size of a raw chunk in bytes
func (f Format) ChunkBytes() int {
	return f.Samples() * 2
}

// Validate checks that the format can describe real chunks
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.FrameCount <= 0 {
		return fmt.Errorf("invalid frame count: %d", f.FrameCount)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("unsupported channel count: %d", f.Channels)
	}
	return nil
}

// MaxPayload returns the largest payload any encoder can emit for f
func (f Format) MaxPayload(mode Mode) int {
	switch mode {
	case ModeInterpolate:
		return ((f.FrameCount + 1) / 2) * f.Channels * 2
	case ModeExtrema:
		return f.Channels * (2 + f.FrameCount*4)
	default:
		return f.ChunkBytes()
	}
}

// Encoder turns a raw PCM chunk into a wire payload
type Encoder interface {
	Encode(raw []byte) []byte
}

// Decoder turns a wire payload back into a raw PCM chunk of full length.
// Decoders are stateful and owned by a single goroutine.
type Decoder interface {
	Decode(payload []byte) []byte
	Reset()
	Failures() int64
}

// NewEncoder creates the encoder for mode
func NewEncoder(mode Mode, format Format) (Encoder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	switch mode {
	case ModeRaw:
		return &rawEncoder{format: format}, nil
	case ModeInterpolate:
		return &interpolateEncoder{format: format}, nil
	case ModeExtrema:
		return &extremaEncoder{format: format}, nil
	}
	return nil, fmt.Errorf("unsupported compression mode: %d", int(mode))
}

// NewDecoder creates the decoder for mode
func NewDecoder(mode Mode, format Format) (Decoder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	switch mode {
	case ModeRaw:
		return &rawDecoder{format: format}, nil
	case ModeInterpolate:
		return newInterpolateDecoder(format), nil
	case ModeExtrema:
		return &extremaDecoder{format: format}, nil
	}
	return nil, fmt.Errorf("unsupported compression mode: %d", int(mode))
}

// Silence returns a fresh silence marker
func Silence() []byte {
	return make([]byte, MarkerSize)
}

// IsSilence reports whether chunk is the silence marker
func IsSilence(chunk []byte) bool {
	return len(chunk) == MarkerSize && chunk[0] == 0 && chunk[1] == 0
}

// SilentChunk returns a zero-filled raw chunk for format
func SilentChunk(format Format) []byte {
	return make([]byte, format.ChunkBytes())
}
