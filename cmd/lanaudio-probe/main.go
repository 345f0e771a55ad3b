// ABOUTME: Diagnostic client that receives a fixed number of chunks
// ABOUTME: Reports stream parameters, throughput, silence and decode failures
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Resonate-Protocol/lanaudio/internal/client"
	"github.com/Resonate-Protocol/lanaudio/internal/codec"
	"github.com/Resonate-Protocol/lanaudio/internal/transport"
)

var (
	serverAddr = flag.String("server", "localhost:1060", "Server address")
	kind       = flag.String("transport", transport.TCP, "Transport: tcp or ws")
	depth      = flag.Int("depth", 32, "Requested buffer depth in chunks")
	count      = flag.Int("chunks", 500, "Number of chunks to receive")
	timeout    = flag.Duration("timeout", 30*time.Second, "Overall time limit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	if !transport.Valid(*kind) {
		log.Fatalf("unknown transport %q", *kind)
	}

	r := client.NewReceiver(client.Config{
		Addr:           *serverAddr,
		Transport:      *kind,
		Depth:          *depth,
		ConnectRetries: 3,
		RetryBackoff:   time.Second,
		CycleBackoff:   time.Second,
		SocketTimeout:  5 * time.Second,
	})
	r.OnFormat = func(format codec.Format, mode codec.Mode) {
		fmt.Printf("Stream: %dHz, %d channels, %d frames per chunk, compression %s\n",
			format.SampleRate, format.Channels, format.FrameCount, mode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	go func() {
		if err := r.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Receiver stopped: %v", err)
		}
	}()
	defer r.Close()

	fmt.Printf("Connecting to %s over %s...\n", *serverAddr, *kind)

	var (
		start   time.Time
		silent  int
		audio   time.Duration
		samples int
	)
	for i := 0; i < *count; i++ {
		chunk, err := r.Next(ctx)
		if err != nil {
			log.Printf("Stopped after %d chunks: %v", i, err)
			os.Exit(1)
		}
		if i == 0 {
			start = time.Now()
		}
		if isSilent(chunk.PCM) {
			silent++
		}
		samples += chunk.Format.Samples()
		audio += time.Duration(chunk.Format.FrameCount) * time.Second / time.Duration(chunk.Format.SampleRate)
	}

	elapsed := time.Since(start)
	stats := r.Stats()
	fmt.Printf("Received %d chunks (%d samples) in %v\n", *count, samples, elapsed.Round(time.Millisecond))
	fmt.Printf("Audio duration %v, %.1fx real time\n", audio.Round(time.Millisecond), audio.Seconds()/max(elapsed.Seconds(), 1e-9))
	fmt.Printf("Silent chunks %d, decode failures %d, reconnects %d\n", silent, stats.Failures, stats.Reconnects)
}

func isSilent(pcm []byte) bool {
	for _, b := range pcm {
		if b != 0 {
			return false
		}
	}
	return true
}
