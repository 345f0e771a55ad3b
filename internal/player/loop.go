// ABOUTME: Playback loop moving decoded chunks from the receiver to an output
// ABOUTME: Waits on underruns without blocking the receiver's fill goroutine
package player

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/lanaudio/internal/client"
	"github.com/Resonate-Protocol/lanaudio/internal/codec"
)

// ChunkSource yields decoded chunks without blocking
type ChunkSource interface {
	TryNext() (client.Chunk, bool)
}

// Loop plays chunks from a ChunkSource
type Loop struct {
	source       ChunkSource
	output       Output
	underrunWait time.Duration
	debug        bool

	format    codec.Format
	opened    bool
	played    atomic.Int64
	underruns atomic.Int64
	dropped   atomic.Int64
}

// LoopStats is a snapshot of playback counters
type LoopStats struct {
	Played    int64
	Underruns int64
	Dropped   int64
}

// NewLoop creates a playback loop. An empty source is polled again after
// underrunWait.
func NewLoop(source ChunkSource, output Output, underrunWait time.Duration, debug bool) *Loop {
	if underrunWait <= 0 {
		underrunWait = time.Second
	}
	return &Loop{
		source:       source,
		output:       output,
		underrunWait: underrunWait,
		debug:        debug,
	}
}

// Run plays until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	empty := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, ok := l.source.TryNext()
		if !ok {
			l.underruns.Add(1)
			if !empty {
				log.Printf("Buffer empty, waiting %v", l.underrunWait)
				empty = true
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.underrunWait):
			}
			continue
		}
		if empty && l.debug {
			log.Printf("[DEBUG] Playback resumed at chunk %d", chunk.Seq)
		}
		empty = false

		l.play(chunk)
	}
}

func (l *Loop) play(chunk client.Chunk) {
	if !l.opened || chunk.Format.SampleRate != l.format.SampleRate || chunk.Format.Channels != l.format.Channels {
		if err := l.output.Open(chunk.Format.SampleRate, chunk.Format.Channels); err != nil {
			// Log each unplayable format once
			if l.format != chunk.Format {
				log.Printf("Failed to open output: %v", err)
			}
			l.format = chunk.Format
			l.opened = false
			l.dropped.Add(1)
			return
		}
		l.format = chunk.Format
		l.opened = true
	}

	if err := l.output.Write(chunk.PCM); err != nil {
		log.Printf("Playback error: %v", err)
		l.dropped.Add(1)
		return
	}
	l.played.Add(1)
}

// Stats returns the playback counters
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Played:    l.played.Load(),
		Underruns: l.underruns.Load(),
		Dropped:   l.dropped.Load(),
	}
}
