// ABOUTME: mDNS service discovery for lanaudio servers
// ABOUTME: Servers advertise their transport and compression, players browse for them
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Resonate-Protocol/lanaudio/internal/version"
	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service type of lanaudio servers
const ServiceType = "_lanaudio._tcp"

// Config holds advertisement settings
type Config struct {
	ServiceName string
	Port        int
	Transport   string
	Mode        int
	SampleRate  int
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name      string
	Host      string
	Port      int
	Transport string
	Mode      int
}

// Addr returns host:port
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// txtRecords renders the advertised stream properties
func (c Config) txtRecords() []string {
	return []string{
		"transport=" + c.Transport,
		"mode=" + strconv.Itoa(c.Mode),
		"rate=" + strconv.Itoa(c.SampleRate),
		"version=" + version.Version,
	}
}

// Advertise announces this server via mDNS until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.config.txtRecords(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for lanaudio servers in the background
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				server := entryToServer(entry)
				if server == nil {
					continue
				}

				log.Printf("Discovered server: %s at %s (%s, mode %d)", server.Name, server.Addr(), server.Transport, server.Mode)

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				default:
					// Nobody is listening; drop rather than stall the query
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: ServiceType,
			Domain:  "local",
			Timeout: 3 * time.Second,
			Entries: entries,
		}

		if err := mdns.Query(params); err != nil {
			log.Printf("mDNS query failed: %v", err)
		}
		close(entries)
		<-done

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// entryToServer converts a service entry, ignoring other services
func entryToServer(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || entry.AddrV4 == nil || !strings.Contains(entry.Name, ServiceType) {
		return nil
	}

	server := &ServerInfo{
		Name:      strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host:      entry.AddrV4.String(),
		Port:      entry.Port,
		Transport: "tcp",
	}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "transport":
			server.Transport = value
		case "mode":
			if v, err := strconv.Atoi(value); err == nil {
				server.Mode = v
			}
		}
	}
	return server
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Discover browses until the first server shows up or ctx ends
func Discover(ctx context.Context) (*ServerInfo, error) {
	mgr := NewManager(Config{})
	defer mgr.Stop()

	if err := mgr.Browse(); err != nil {
		return nil, err
	}

	select {
	case server := <-mgr.Servers():
		return server, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no server discovered: %w", ctx.Err())
	}
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
