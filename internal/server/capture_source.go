// ABOUTME: Live capture source using miniaudio via malgo
// ABOUTME: Buffers device callbacks and hands out fixed-size PCM chunks
package server

import (
	"bytes"
	"fmt"
	"log"
	"sync"

	"github.com/Resonate-Protocol/lanaudio/internal/codec"
	"github.com/gen2brain/malgo"
)

// maxPendingChunks bounds how much captured audio waits for the producer
const maxPendingChunks = 16

// CaptureSource records from an input device
type CaptureSource struct {
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	channels   int
	deviceName string

	mu      sync.Mutex
	cond    *sync.Cond
	pending bytes.Buffer
	closed  bool
	dropped int64
}

// NewCaptureSource opens the input device at index (negative = default)
// with the given format and starts recording.
func NewCaptureSource(format codec.Format, index int) (*CaptureSource, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	s := &CaptureSource{
		malgoCtx:   ctx,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		deviceName: "default input",
	}
	s.cond = sync.NewCond(&s.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if index >= 0 {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			s.freeContext()
			return nil, fmt.Errorf("failed to list capture devices: %w", err)
		}
		if index >= len(infos) {
			s.freeContext()
			return nil, fmt.Errorf("input device %d not found (%d available)", index, len(infos))
		}
		deviceConfig.Capture.DeviceID = infos[index].ID.Pointer()
		s.deviceName = infos[index].Name()
	}

	maxPending := format.ChunkBytes() * maxPendingChunks
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.mu.Lock()
			if s.pending.Len()+len(input) > maxPending {
				// The producer stalled; keep the newest audio
				s.pending.Next(len(input))
				s.dropped++
			}
			s.pending.Write(input)
			s.mu.Unlock()
			s.cond.Broadcast()
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		s.freeContext()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		s.freeContext()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}
	s.device = device

	log.Printf("Capturing from %s: %dHz, %d channels", s.deviceName, s.sampleRate, s.channels)
	return s, nil
}

// PullChunk blocks until frameCount frames have been captured
func (s *CaptureSource) PullChunk(frameCount int) ([]byte, error) {
	size := frameCount * s.channels * 2

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending.Len() < size && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil, fmt.Errorf("capture source closed")
	}

	chunk := make([]byte, size)
	copy(chunk, s.pending.Next(size))
	return chunk, nil
}

func (s *CaptureSource) SelfPaced() bool { return true }
func (s *CaptureSource) Exhausted() bool { return false }
func (s *CaptureSource) SampleRate() int { return s.sampleRate }
func (s *CaptureSource) Channels() int   { return s.channels }
func (s *CaptureSource) Metadata() (string, string, string) {
	return "Live: " + s.deviceName, "", ""
}

// Close stops the device and wakes a blocked PullChunk
func (s *CaptureSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dropped := s.dropped
	s.mu.Unlock()
	s.cond.Broadcast()

	if s.device != nil {
		s.device.Uninit()
	}
	s.freeContext()

	if dropped > 0 {
		log.Printf("Capture dropped %d callbacks while the producer was behind", dropped)
	}
	return nil
}

func (s *CaptureSource) freeContext() {
	if s.malgoCtx != nil {
		_ = s.malgoCtx.Uninit()
		s.malgoCtx.Free()
		s.malgoCtx = nil
	}
}
