// ABOUTME: Audio source abstraction feeding the producer with 16-bit PCM chunks
// ABOUTME: Decodes MP3, FLAC and Ogg Opus files into memory and reads them with a cursor
package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Resonate-Protocol/lanaudio/internal/codec"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"gopkg.in/hraban/opus.v2"
)

// Source provides raw interleaved 16-bit little-endian PCM
type Source interface {
	// PullChunk returns up to frameCount frames. It may block, and it may
	// return a short or empty chunk once the source runs out.
	PullChunk(frameCount int) ([]byte, error)
	// Exhausted reports that no further audio will be produced
	Exhausted() bool
	SampleRate() int
	Channels() int
	// Metadata returns title, artist, album
	Metadata() (title, artist, album string)
	Close() error
}

// selfPaced is implemented by sources that block in PullChunk until real
// time has caught up, such as capture devices.
type selfPaced interface {
	SelfPaced() bool
}

func isSelfPaced(s Source) bool {
	p, ok := s.(selfPaced)
	return ok && p.SelfPaced()
}

// SourceOptions selects and configures a source
type SourceOptions struct {
	Path        string
	Loop        bool
	Capture     bool
	InputDevice int
	ToneHz      float64
	Format      codec.Format
}

// NewSource opens a file source when a path is given, otherwise live capture
// or a test tone.
func NewSource(opts SourceOptions) (Source, error) {
	switch {
	case opts.Path != "":
		return NewFileSource(opts.Path, opts.Loop)
	case opts.Capture:
		return NewCaptureSource(opts.Format, opts.InputDevice)
	default:
		return NewTestToneSource(opts.Format, opts.ToneHz), nil
	}
}

// NewFileSource decodes a whole file into memory
func NewFileSource(path string, loop bool) (Source, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}

	var (
		pcm        []byte
		sampleRate int
		channels   int
		err        error
	)

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3":
		pcm, sampleRate, channels, err = decodeMP3(path)
	case ".flac":
		pcm, sampleRate, channels, err = decodeFLAC(path)
	case ".opus", ".ogg":
		pcm, sampleRate, channels, err = decodeOpus(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac, .opus)", ext)
	}
	if err != nil {
		return nil, err
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("unsupported channel count %d in %s", channels, path)
	}

	filename := filepath.Base(path)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))

	log.Printf("Loaded %s: %s (sample rate: %d Hz, channels: %d, %d frames)",
		strings.TrimPrefix(ext, "."), title, sampleRate, channels, len(pcm)/(2*channels))

	return newMemorySource(pcm, sampleRate, channels, title, loop), nil
}

// memorySource serves pre-decoded PCM through a cursor
type memorySource struct {
	mu         sync.Mutex
	pcm        []byte
	cursor     int
	exhausted  bool
	loop       bool
	sampleRate int
	channels   int
	title      string
}

func newMemorySource(pcm []byte, sampleRate, channels int, title string, loop bool) *memorySource {
	return &memorySource{
		pcm:        pcm,
		sampleRate: sampleRate,
		channels:   channels,
		title:      title,
		loop:       loop,
		exhausted:  len(pcm) == 0,
	}
}

func (s *memorySource) PullChunk(frameCount int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exhausted {
		return nil, nil
	}

	size := frameCount * s.channels * 2
	chunk := make([]byte, 0, size)
	for len(chunk) < size {
		if s.cursor >= len(s.pcm) {
			if !s.loop {
				break
			}
			s.cursor = 0
		}
		n := size - len(chunk)
		if rest := len(s.pcm) - s.cursor; n > rest {
			n = rest
		}
		chunk = append(chunk, s.pcm[s.cursor:s.cursor+n]...)
		s.cursor += n
	}

	if !s.loop && s.cursor >= len(s.pcm) {
		s.exhausted = true
	}
	return chunk, nil
}

func (s *memorySource) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

func (s *memorySource) SampleRate() int { return s.sampleRate }
func (s *memorySource) Channels() int   { return s.channels }
func (s *memorySource) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *memorySource) Close() error { return nil }

func decodeMP3(path string) ([]byte, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode MP3: %w", err)
	}

	// go-mp3 always produces 16-bit stereo
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return pcm, decoder.SampleRate(), 2, nil
}

func decodeFLAC(path string) ([]byte, int, int, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	bitDepth := int(stream.Info.BitsPerSample)

	var pcm []byte
	sample := make([]byte, 2)
	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, 0, fmt.Errorf("failed to decode FLAC frame: %w", err)
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				binary.LittleEndian.PutUint16(sample, uint16(to16Bit(frame.Subframes[ch].Samples[i], bitDepth)))
				pcm = append(pcm, sample...)
			}
		}
	}
	return pcm, int(stream.Info.SampleRate), channels, nil
}

// to16Bit rescales a FLAC sample of the given bit depth
func to16Bit(sample int32, bitDepth int) int16 {
	switch {
	case bitDepth > 16:
		return int16(sample >> (bitDepth - 16))
	case bitDepth < 16:
		return int16(sample << (16 - bitDepth))
	default:
		return int16(sample)
	}
}

// opusSampleRate is the rate libopusfile always decodes to
const opusSampleRate = 48000

func decodeOpus(path string) ([]byte, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open Opus file: %w", err)
	}
	defer f.Close()

	channels, err := opusChannels(f)
	if err != nil {
		return nil, 0, 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to rewind Opus file: %w", err)
	}

	stream, err := opus.NewStream(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode Opus: %w", err)
	}
	defer stream.Close()

	// 120ms is the longest Opus frame
	buf := make([]int16, opusSampleRate*120/1000*channels)
	var pcm []byte
	for {
		n, err := stream.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, 0, fmt.Errorf("failed to decode Opus packet: %w", err)
		}
		for _, s := range buf[:n*channels] {
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(s))
		}
	}
	return pcm, opusSampleRate, channels, nil
}

// opusChannels reads the channel count from the OpusHead packet in the first
// Ogg page.
func opusChannels(r io.Reader) (int, error) {
	header := make([]byte, 27)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, fmt.Errorf("failed to read Ogg page: %w", err)
	}
	if string(header[:4]) != "OggS" {
		return 0, fmt.Errorf("not an Ogg file")
	}

	segments := make([]byte, header[26])
	if _, err := io.ReadFull(r, segments); err != nil {
		return 0, fmt.Errorf("failed to read Ogg segment table: %w", err)
	}

	head := make([]byte, 10)
	if _, err := io.ReadFull(r, head); err != nil {
		return 0, fmt.Errorf("failed to read OpusHead: %w", err)
	}
	if string(head[:8]) != "OpusHead" {
		return 0, fmt.Errorf("missing OpusHead packet")
	}
	return int(head[9]), nil
}
