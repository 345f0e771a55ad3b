// ABOUTME: Producer loop that pulls audio from the source into the ring buffer
// ABOUTME: Encodes each chunk once, paces file sources, and streams silence after the source ends
package server

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/lanaudio/internal/codec"
	"github.com/Resonate-Protocol/lanaudio/internal/ringbuf"
)

// Producer fills the ring buffer with encoded chunks
type Producer struct {
	source  Source
	ring    *ringbuf.Buffer
	encoder codec.Encoder
	format  codec.Format
	period  time.Duration
	prefill int
	debug   bool

	produced  atomic.Int64
	silent    atomic.Int64
	errors    atomic.Int64
	exhausted atomic.Bool
}

// ProducerStats is a snapshot of producer counters
type ProducerStats struct {
	Produced  int64
	Silent    int64
	Errors    int64
	Exhausted bool
}

// NewProducer creates a producer. Until the ring holds prefill chunks it
// produces without pacing.
func NewProducer(source Source, ring *ringbuf.Buffer, encoder codec.Encoder, format codec.Format, prefill int, debug bool) *Producer {
	period := time.Duration(float64(format.FrameCount) / float64(format.SampleRate) * float64(time.Second))
	return &Producer{
		source:  source,
		ring:    ring,
		encoder: encoder,
		format:  format,
		period:  period,
		prefill: prefill,
		debug:   debug,
	}
}

// Run produces chunks until ctx is cancelled
func (p *Producer) Run(ctx context.Context) {
	paced := !isSelfPaced(p.source)
	log.Printf("Producer starting: %dHz, %d channels, %d frames per chunk (%v, paced=%v)",
		p.format.SampleRate, p.format.Channels, p.format.FrameCount, p.period, paced)

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			log.Printf("Producer stopping after %d chunks", p.produced.Load())
			return
		}

		id, err := p.produceOne()

		if p.debug && id%100 == 0 {
			log.Printf("[DEBUG] Produced chunk %d (ring %d/%d)", id, p.ring.Len(), p.ring.Cap())
		}

		// Self-paced sources stop blocking once they end or fail
		if (paced || err != nil || p.exhausted.Load()) && p.ring.Len() >= p.prefill {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
		}
	}
}

// produceOne appends exactly one chunk and returns its id. A source error
// is logged and replaced by silence.
func (p *Producer) produceOne() (int64, error) {
	chunk := codec.Silence()
	var err error

	if p.source.Exhausted() {
		if !p.exhausted.Swap(true) {
			log.Printf("Source exhausted, streaming silence")
		}
	} else {
		var raw []byte
		raw, err = p.source.PullChunk(p.format.FrameCount)
		if err != nil {
			p.errors.Add(1)
			log.Printf("Error reading audio source: %v", err)
		} else if len(raw) > 0 {
			chunk = p.encoder.Encode(raw)
		}
	}

	if codec.IsSilence(chunk) {
		p.silent.Add(1)
	}
	id := p.ring.Append(chunk)
	p.produced.Add(1)
	return id, err
}

// Stats returns the producer counters
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		Produced:  p.produced.Load(),
		Silent:    p.silent.Load(),
		Errors:    p.errors.Load(),
		Exhausted: p.exhausted.Load(),
	}
}
