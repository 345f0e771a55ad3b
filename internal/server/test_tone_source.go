// ABOUTME: Test tone generator for audio source
// ABOUTME: Generates an endless sine wave at the configured format
package server

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/Resonate-Protocol/lanaudio/internal/codec"
)

// TestToneSource generates a sine test tone
type TestToneSource struct {
	sampleIndex uint64
	sampleMu    sync.Mutex
	frequency   float64
	sampleRate  int
	channels    int
}

// NewTestToneSource creates a new test tone generator. A zero frequency
// selects 440Hz.
func NewTestToneSource(format codec.Format, frequency float64) *TestToneSource {
	if frequency <= 0 {
		frequency = 440.0 // A4 note
	}
	return &TestToneSource{
		frequency:  frequency,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
	}
}

func (s *TestToneSource) PullChunk(frameCount int) ([]byte, error) {
	s.sampleMu.Lock()
	defer s.sampleMu.Unlock()

	chunk := make([]byte, frameCount*s.channels*2)
	for i := 0; i < frameCount; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleRate)
		sample := math.Sin(2 * math.Pi * s.frequency * t)

		pcmValue := int16(sample * 32767.0 * 0.5) // 50% volume

		for ch := 0; ch < s.channels; ch++ {
			binary.LittleEndian.PutUint16(chunk[(i*s.channels+ch)*2:], uint16(pcmValue))
		}
	}

	s.sampleIndex += uint64(frameCount)

	return chunk, nil
}

func (s *TestToneSource) Exhausted() bool { return false }
func (s *TestToneSource) SampleRate() int { return s.sampleRate }
func (s *TestToneSource) Channels() int   { return s.channels }
func (s *TestToneSource) Metadata() (string, string, string) {
	return fmt.Sprintf("Test Tone (%gHz)", s.frequency), "lanaudio", ""
}
func (s *TestToneSource) Close() error { return nil }
