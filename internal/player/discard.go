// ABOUTME: Output that drops audio instead of playing it
// ABOUTME: Used for headless players and tests
package player

import "sync"

// Discard counts written audio and throws it away
type Discard struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	opens      int
	chunks     int64
	bytes      int64
	data       []byte
	keep       bool
}

// NewDiscard creates a discarding output. With keep set the written PCM is
// retained and available from Data.
func NewDiscard(keep bool) *Discard {
	return &Discard{keep: keep}
}

func (d *Discard) Open(sampleRate, channels int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sampleRate == d.sampleRate && channels == d.channels {
		return nil
	}
	d.sampleRate = sampleRate
	d.channels = channels
	d.opens++
	return nil
}

func (d *Discard) Write(pcm []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunks++
	d.bytes += int64(len(pcm))
	if d.keep {
		d.data = append(d.data, pcm...)
	}
	return nil
}

func (d *Discard) Close() error {
	return nil
}

// Chunks returns the number of chunks written
func (d *Discard) Chunks() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chunks
}

// Opens returns how many distinct formats were opened
func (d *Discard) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Data returns a copy of the retained PCM
func (d *Discard) Data() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.data...)
}
