// ABOUTME: Audio output using oto library
// ABOUTME: Streams PCM chunks to the sound card with software volume control
package player

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Output is a playback sink for interleaved 16-bit little-endian PCM
type Output interface {
	// Open prepares the sink for a format. Opening the current format again is a no-op.
	Open(sampleRate, channels int) error
	// Write queues one chunk and blocks while the sink is full
	Write(pcm []byte) error
	Close() error
}

// ErrFormatChange is returned when a sink cannot switch to a new format
var ErrFormatChange = errors.New("output cannot change format")

// errOutputClosed is returned by writes after Close
var errOutputClosed = errors.New("output closed")

// Oto plays audio through the default device. oto allows one context per
// process, so the first opened format is kept for the process lifetime.
type Oto struct {
	mu      sync.Mutex
	cond    *sync.Cond
	otoCtx  *oto.Context
	player  *oto.Player
	pending bytes.Buffer
	limit   int

	sampleRate int
	channels   int
	volume     int
	muted      bool
	closed     bool
}

// NewOto creates an unopened oto output at the given volume (0-100)
func NewOto(volume int) *Oto {
	o := &Oto{volume: clampVolume(volume)}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// Open creates the oto context on first use
func (o *Oto) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return errOutputClosed
	}
	if o.otoCtx != nil {
		if sampleRate == o.sampleRate && channels == o.channels {
			return nil
		}
		return fmt.Errorf("%w: playing %dHz %dch, stream is %dHz %dch",
			ErrFormatChange, o.sampleRate, o.channels, sampleRate, channels)
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels
	// About 200ms queued ahead of the device
	o.limit = sampleRate * channels * 2 / 5
	o.player = ctx.NewPlayer(o)
	o.player.Play()

	log.Printf("Audio output initialized: %dHz, %d channels", sampleRate, channels)
	return nil
}

// Read feeds the oto player. It never blocks; an empty queue plays silence.
func (o *Oto) Read(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return 0, io.EOF
	}
	n, _ := o.pending.Read(p)
	clear(p[n:])
	o.cond.Broadcast()
	return len(p), nil
}

// Write applies volume and queues pcm for playback
func (o *Oto) Write(pcm []byte) error {
	o.mu.Lock()
	volume, muted := o.volume, o.muted
	o.mu.Unlock()

	scaled := scalePCM(pcm, volume, muted)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.otoCtx == nil {
		return fmt.Errorf("output not initialized")
	}
	for !o.closed && o.pending.Len() >= o.limit {
		o.cond.Wait()
	}
	if o.closed {
		return errOutputClosed
	}
	o.pending.Write(scaled)
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	o.mu.Lock()
	o.volume = clampVolume(volume)
	o.mu.Unlock()
	log.Printf("Volume set to %d", volume)
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
	log.Printf("Muted: %v", muted)
}

// Volume returns current volume
func (o *Oto) Volume() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// Muted returns mute state
func (o *Oto) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// Close stops playback and wakes a blocked writer
func (o *Oto) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.cond.Broadcast()
	player, otoCtx := o.player, o.otoCtx
	o.mu.Unlock()

	var err error
	if player != nil {
		err = player.Close()
	}
	if otoCtx != nil {
		if serr := otoCtx.Suspend(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func clampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}

// scalePCM applies volume to little-endian int16 samples
func scalePCM(pcm []byte, volume int, muted bool) []byte {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	samples = applyVolume(samples, volume, muted)

	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// applyVolume applies volume and mute to samples
func applyVolume(samples []int16, volume int, muted bool) []int16 {
	multiplier := getVolumeMultiplier(volume, muted)

	result := make([]int16, len(samples))
	for i, sample := range samples {
		result[i] = int16(float64(sample) * multiplier)
	}

	return result
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
