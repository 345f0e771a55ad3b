// ABOUTME: Entry point for the lanaudio player
// ABOUTME: Parses CLI flags and config, then starts the player application
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/lanaudio/internal/app"
	"github.com/Resonate-Protocol/lanaudio/internal/client"
	"github.com/Resonate-Protocol/lanaudio/internal/config"
	"github.com/Resonate-Protocol/lanaudio/internal/player"
	"github.com/Resonate-Protocol/lanaudio/internal/version"
)

var (
	configPath  = flag.String("config", "", "YAML config file")
	serverAddr  = flag.String("server", "", "Server address host:port (skip mDNS)")
	transport   = flag.String("transport", "", "Transport: tcp or ws")
	depth       = flag.Int("depth", 0, "Requested buffer depth in chunks")
	volume      = flag.Int("volume", -1, "Initial volume 0-100")
	name        = flag.String("name", "", "Player friendly name (default: hostname-lanaudio-player)")
	logFile     = flag.String("log-file", "", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	headless    = flag.Bool("headless", false, "Receive and decode without playing audio")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s player %s\n", version.Product, version.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Client.Validate(); err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(cfg.Logging.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-lanaudio-player", hostname)
	}

	_, outputIndex, err := config.StaticDevices{Devices: cfg.Devices}.ResolveDeviceIndices()
	if err != nil {
		log.Fatalf("Invalid device settings: %v", err)
	}

	var output player.Output
	if *headless {
		output = player.NewDiscard(false)
	} else {
		if outputIndex >= 0 {
			log.Printf("Output device %d requested, oto always plays to the system default device", outputIndex)
		}
		output = player.NewOto(cfg.Client.Volume)
	}

	log.Printf("Starting %s player %s: %s", version.Product, version.Version, playerName)
	if cfg.Logging.Debug {
		log.Printf("Debug logging enabled")
	}

	c := cfg.Client
	p := app.New(app.Config{
		Name: playerName,
		Client: client.Config{
			Addr:           c.Server,
			Transport:      c.Transport,
			Depth:          c.Depth,
			ConnectRetries: c.ConnectRetries,
			RetryBackoff:   c.RetryBackoff(),
			CycleBackoff:   c.CycleBackoff(),
			SocketTimeout:  c.SocketTimeout(),
			Debug:          cfg.Logging.Debug,
		},
		UnderrunWait: c.UnderrunWait(),
		Volume:       c.Volume,
		UseTUI:       useTUI,
		Debug:        cfg.Logging.Debug,
	}, output)

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Printf("Received %v signal, shutting down...", sig)
			p.Stop()
		case <-p.Done():
		}
	}()

	if err := p.Start(); err != nil {
		log.Fatalf("Player error: %v", err)
	}
	p.Stop()
}

// applyFlags overrides config values with flags given on the command line
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.Client.Server = *serverAddr
		case "transport":
			cfg.Client.Transport = *transport
		case "depth":
			cfg.Client.Depth = *depth
		case "volume":
			cfg.Client.Volume = *volume
		case "log-file":
			cfg.Logging.File = *logFile
		case "debug":
			cfg.Logging.Debug = *debug
		}
	})
}
