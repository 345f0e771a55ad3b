// ABOUTME: YAML configuration parsing and validation
// ABOUTME: Defines server, client, device and logging settings with defaults
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/Resonate-Protocol/lanaudio/internal/codec"
	"github.com/Resonate-Protocol/lanaudio/internal/transport"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Devices DeviceConfig  `yaml:"devices"`
	Logging LoggingConfig `yaml:"logging"`
}

type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ServerConfig struct {
	Name               string          `yaml:"name"`
	Listen             ListenConfig    `yaml:"listen"`
	Transport          string          `yaml:"transport"`
	Stream             StreamConfig    `yaml:"stream"`
	Buffering          BufferingConfig `yaml:"buffering"`
	Source             SourceConfig    `yaml:"source"`
	SocketTimeoutMs    int             `yaml:"socket_timeout_ms"`
	HandshakeTimeoutMs int             `yaml:"handshake_timeout_ms"`
	MDNS               bool            `yaml:"mdns"`
}

type StreamConfig struct {
	SampleRate  int `yaml:"sample_rate"`
	FrameCount  int `yaml:"frame_count"`
	Channels    int `yaml:"channels"`
	Compression int `yaml:"compression"`
}

type BufferingConfig struct {
	InitialChunks      int  `yaml:"initial_chunks"`
	MinChunks          int  `yaml:"min_chunks"`
	MaxChunks          int  `yaml:"max_chunks"`
	Increment          int  `yaml:"increment"`
	DefaultDepth       int  `yaml:"default_depth"`
	OptimizeIntervalMs int  `yaml:"optimize_interval_ms"`
	CatchUp            bool `yaml:"catch_up"`
}

type SourceConfig struct {
	// Path to an MP3, FLAC or Ogg Opus file. Empty selects Capture or the test tone.
	Path    string  `yaml:"path"`
	Loop    bool    `yaml:"loop"`
	Capture bool    `yaml:"capture"`
	ToneHz  float64 `yaml:"tone_hz"`
}

type ClientConfig struct {
	// Server is host:port. Empty means discover a server over mDNS.
	Server          string `yaml:"server"`
	Transport       string `yaml:"transport"`
	Depth           int    `yaml:"depth"`
	ConnectRetries  int    `yaml:"connect_retries"`
	RetryBackoffMs  int    `yaml:"retry_backoff_ms"`
	CycleBackoffMs  int    `yaml:"cycle_backoff_ms"`
	SocketTimeoutMs int    `yaml:"socket_timeout_ms"`
	UnderrunWaitMs  int    `yaml:"underrun_wait_ms"`
	Volume          int    `yaml:"volume"`
}

type DeviceConfig struct {
	Input  int `yaml:"input"`
	Output int `yaml:"output"`
}

type LoggingConfig struct {
	File  string `yaml:"file"`
	Debug bool   `yaml:"debug"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "lanaudio",
			Listen:    ListenConfig{Host: "0.0.0.0", Port: 1060},
			Transport: transport.TCP,
			Stream: StreamConfig{
				SampleRate:  44100,
				FrameCount:  2048,
				Channels:    1,
				Compression: int(codec.ModeRaw),
			},
			Buffering: BufferingConfig{
				InitialChunks:      12,
				MinChunks:          4,
				MaxChunks:          128,
				Increment:          4,
				DefaultDepth:       8,
				OptimizeIntervalMs: 5 * 60 * 1000,
				CatchUp:            true,
			},
			Source:             SourceConfig{ToneHz: 440},
			SocketTimeoutMs:    5000,
			HandshakeTimeoutMs: 5000,
			MDNS:               true,
		},
		Client: ClientConfig{
			Transport:       transport.TCP,
			Depth:           96,
			ConnectRetries:  3,
			RetryBackoffMs:  2000,
			CycleBackoffMs:  10000,
			SocketTimeoutMs: 3000,
			UnderrunWaitMs:  1000,
			Volume:          100,
		},
		Devices: DeviceConfig{Input: -1, Output: -1},
		Logging: LoggingConfig{File: "lanaudio.log"},
	}
}

// Load reads a YAML file on top of the defaults and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks both sections and reports every problem found
func (c *Config) Validate() error {
	return errors.Join(c.Server.Validate(), c.Client.Validate())
}

// Format returns the chunk format the server streams
func (s ServerConfig) Format() codec.Format {
	return codec.Format{
		SampleRate: s.Stream.SampleRate,
		FrameCount: s.Stream.FrameCount,
		Channels:   s.Stream.Channels,
	}
}

func (s ServerConfig) Validate() error {
	var errs []error
	if s.Listen.Port < 0 || s.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.listen.port out of range: %d", s.Listen.Port))
	}
	if !transport.Valid(s.Transport) {
		errs = append(errs, fmt.Errorf("server.transport must be %q or %q, got %q", transport.TCP, transport.WebSocket, s.Transport))
	}

	format := s.Format()
	if err := format.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server.stream: %w", err))
	}
	mode, err := codec.ParseMode(s.Stream.Compression)
	if err != nil {
		errs = append(errs, fmt.Errorf("server.stream: %w", err))
	} else if mode.Compressed() && format.MaxPayload(mode) > math.MaxInt16 {
		errs = append(errs, fmt.Errorf("server.stream: frame_count %d too large for compression %d (payload %d bytes exceeds length header)",
			format.FrameCount, int(mode), format.MaxPayload(mode)))
	}

	b := s.Buffering
	if b.MinChunks < 1 {
		errs = append(errs, fmt.Errorf("server.buffering.min_chunks must be at least 1"))
	}
	if b.MaxChunks < b.MinChunks {
		errs = append(errs, fmt.Errorf("server.buffering.max_chunks (%d) below min_chunks (%d)", b.MaxChunks, b.MinChunks))
	}
	if b.InitialChunks < b.MinChunks || b.InitialChunks > b.MaxChunks {
		errs = append(errs, fmt.Errorf("server.buffering.initial_chunks (%d) outside [%d, %d]", b.InitialChunks, b.MinChunks, b.MaxChunks))
	}
	if b.Increment < 1 {
		errs = append(errs, fmt.Errorf("server.buffering.increment must be at least 1"))
	}
	if b.DefaultDepth < 1 {
		errs = append(errs, fmt.Errorf("server.buffering.default_depth must be at least 1"))
	}
	if b.OptimizeIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("server.buffering.optimize_interval_ms must be positive"))
	}
	if s.SocketTimeoutMs <= 0 || s.HandshakeTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("server timeouts must be positive"))
	}
	return errors.Join(errs...)
}

func (c ClientConfig) Validate() error {
	var errs []error
	if !transport.Valid(c.Transport) {
		errs = append(errs, fmt.Errorf("client.transport must be %q or %q, got %q", transport.TCP, transport.WebSocket, c.Transport))
	}
	if c.Depth < 1 {
		errs = append(errs, fmt.Errorf("client.depth must be at least 1"))
	}
	if c.ConnectRetries < 1 {
		errs = append(errs, fmt.Errorf("client.connect_retries must be at least 1"))
	}
	if c.SocketTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("client.socket_timeout_ms must be positive"))
	}
	if c.Volume < 0 || c.Volume > 100 {
		errs = append(errs, fmt.Errorf("client.volume must be within 0-100"))
	}
	return errors.Join(errs...)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (s ServerConfig) SocketTimeout() time.Duration    { return millis(s.SocketTimeoutMs) }
func (s ServerConfig) HandshakeTimeout() time.Duration { return millis(s.HandshakeTimeoutMs) }
func (b BufferingConfig) OptimizeInterval() time.Duration {
	return millis(b.OptimizeIntervalMs)
}

func (c ClientConfig) RetryBackoff() time.Duration  { return millis(c.RetryBackoffMs) }
func (c ClientConfig) CycleBackoff() time.Duration  { return millis(c.CycleBackoffMs) }
func (c ClientConfig) SocketTimeout() time.Duration { return millis(c.SocketTimeoutMs) }
func (c ClientConfig) UnderrunWait() time.Duration  { return millis(c.UnderrunWaitMs) }

// ListenAddr returns host:port for the server listener
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Listen.Host, s.Listen.Port)
}
