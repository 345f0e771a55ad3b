// ABOUTME: Entry point for the lanaudio server
// ABOUTME: Parses CLI flags and config, opens the audio source and serves clients
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/lanaudio/internal/codec"
	"github.com/Resonate-Protocol/lanaudio/internal/config"
	"github.com/Resonate-Protocol/lanaudio/internal/server"
	"github.com/Resonate-Protocol/lanaudio/internal/version"
)

var (
	configPath  = flag.String("config", "", "YAML config file")
	port        = flag.Int("port", 0, "Listen port (default 1060)")
	transport   = flag.String("transport", "", "Transport: tcp or ws")
	name        = flag.String("name", "", "Server friendly name (default: hostname-lanaudio-server)")
	mode        = flag.Int("compression", -1, "Compression mode: 0 raw, 1 interpolate, 2 extrema")
	frameCount  = flag.Int("frame-count", 0, "Frames per chunk")
	audioFile   = flag.String("audio", "", "Audio file to stream (MP3, FLAC, Opus). If not specified, plays test tone")
	loop        = flag.Bool("loop", false, "Loop the audio file")
	capture     = flag.Bool("capture", false, "Stream the input device instead of a file")
	logFile     = flag.String("log-file", "", "Log file path")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	noMDNS      = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	useTUI      = flag.Bool("tui", false, "Show the status TUI")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s server %s\n", version.Product, version.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Server.Validate(); err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}

	// Set up logging (file, plus console unless the TUI owns the terminal)
	f, err := os.OpenFile(cfg.Logging.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if *useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	sc := cfg.Server
	serverName := sc.Name
	if *name != "" {
		serverName = *name
	} else if serverName == "" || serverName == config.Default().Server.Name {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-lanaudio-server", hostname)
	}

	log.Printf("Starting %s server %s: %s on %s", version.Product, version.Version, serverName, sc.ListenAddr())
	if cfg.Logging.Debug {
		log.Printf("Debug logging enabled")
	}
	log.Printf("Logging to: %s", cfg.Logging.File)

	inputIndex, _, err := config.StaticDevices{Devices: cfg.Devices}.ResolveDeviceIndices()
	if err != nil {
		log.Fatalf("Invalid device settings: %v", err)
	}

	source, err := server.NewSource(server.SourceOptions{
		Path:        sc.Source.Path,
		Loop:        sc.Source.Loop,
		Capture:     sc.Source.Capture,
		InputDevice: inputIndex,
		ToneHz:      sc.Source.ToneHz,
		Format:      sc.Format(),
	})
	if err != nil {
		log.Fatalf("Failed to open audio source: %v", err)
	}

	compression, err := codec.ParseMode(sc.Stream.Compression)
	if err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}
	b := sc.Buffering
	srv, err := server.New(server.Config{
		Name:             serverName,
		Addr:             sc.ListenAddr(),
		Transport:        sc.Transport,
		FrameCount:       sc.Stream.FrameCount,
		Mode:             compression,
		InitialChunks:    b.InitialChunks,
		MinChunks:        b.MinChunks,
		MaxChunks:        b.MaxChunks,
		Increment:        b.Increment,
		DefaultDepth:     b.DefaultDepth,
		OptimizeInterval: b.OptimizeInterval(),
		CatchUp:          b.CatchUp,
		SocketTimeout:    sc.SocketTimeout(),
		HandshakeTimeout: sc.HandshakeTimeout(),
		EnableMDNS:       sc.MDNS,
		UseTUI:           *useTUI,
		Debug:            cfg.Logging.Debug,
	}, source)
	if err != nil {
		source.Close()
		log.Fatalf("Failed to create server: %v", err)
	}

	// Binding is the only fatal step once the source is open
	if err := srv.Listen(); err != nil {
		source.Close()
		log.Fatalf("Failed to listen on %s: %v", sc.ListenAddr(), err)
	}
	if !*useTUI {
		log.Printf("Press Ctrl-C to stop")
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Serve(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}

// applyFlags overrides config values with flags given on the command line
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Listen.Port = *port
		case "transport":
			cfg.Server.Transport = *transport
		case "compression":
			cfg.Server.Stream.Compression = *mode
		case "frame-count":
			cfg.Server.Stream.FrameCount = *frameCount
		case "audio":
			cfg.Server.Source.Path = *audioFile
		case "loop":
			cfg.Server.Source.Loop = *loop
		case "capture":
			cfg.Server.Source.Capture = *capture
		case "log-file":
			cfg.Logging.File = *logFile
		case "debug":
			cfg.Logging.Debug = *debug
		case "no-mdns":
			cfg.Server.MDNS = !*noMDNS
		}
	})
}
