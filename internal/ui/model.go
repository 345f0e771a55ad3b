// ABOUTME: Bubbletea model for player TUI
// ABOUTME: Defines application state and update logic
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	// Connection
	state      string
	serverName string
	transport  string

	// Stream
	sampleRate int
	channels   int
	frameCount int
	mode       string

	// Playback
	volume int
	muted  bool

	// Stats
	received   int64
	played     int64
	underruns  int64
	failures   int64
	reconnects int64
	buffered   int
	depth      int

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int

	controls *Controls
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderStreamInfo())
	b.WriteString(m.renderControls())
	b.WriteString(m.renderStats())

	if m.showDebug {
		b.WriteString(m.renderDebug())
	}

	b.WriteString(m.renderHelp())
	return b.String()
}

// renderHeader renders connection status
func (m Model) renderHeader() string {
	status := "Disconnected"
	switch m.state {
	case "connecting":
		status = fmt.Sprintf("Connecting to %s", m.serverName)
	case "streaming":
		status = fmt.Sprintf("Streaming from %s", m.serverName)
	}

	return fmt.Sprintf(`┌─ lanaudio player ────────────────────────────────────┐
│ Status: %-45s │
├──────────────────────────────────────────────────────┤
`, truncate(status, 45))
}

// renderStreamInfo renders the negotiated stream
func (m Model) renderStreamInfo() string {
	if m.sampleRate == 0 {
		return "│ No stream                                            │\n"
	}

	format := fmt.Sprintf("%dHz %s, %d frames/chunk", m.sampleRate, channelName(m.channels), m.frameCount)
	return fmt.Sprintf("│ Format: %-45s │\n│ Codec:  %-45s │\n",
		truncate(format, 45), truncate(m.mode+" over "+m.transport, 45))
}

// renderControls renders volume and buffer status
func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}

	volume := fmt.Sprintf("[%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, muteIcon)
	buffer := fmt.Sprintf("[%s] %d/%d chunks", renderBar(m.buffered, m.depth, 10), m.buffered, m.depth)

	return fmt.Sprintf("│                                                      │\n"+
		"│ Volume: %-45s │\n"+
		"│ Buffer: %-45s │\n", volume, buffer)
}

// renderStats renders playback statistics
func (m Model) renderStats() string {
	stats := fmt.Sprintf("RX: %d  Played: %d  Underruns: %d", m.received, m.played, m.underruns)
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Stats:  %-45s │
│                                                      │
`, truncate(stats, 45))
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ ↑/↓:Volume  m:Mute  d:Debug  q:Quit                  │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Decode failures: %-34d │
│   Reconnects:      %-34d │
`, m.failures, m.reconnects)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.quit()
		return m, tea.Quit
	case "up":
		if m.volume < 100 {
			m.volume += 5
			if m.volume > 100 {
				m.volume = 100
			}
			m.controls.send(m.volume, m.muted)
		}
	case "down":
		if m.volume > 0 {
			m.volume -= 5
			if m.volume < 0 {
				m.volume = 0
			}
			m.controls.send(m.volume, m.muted)
		}
	case "m":
		m.muted = !m.muted
		m.controls.send(m.volume, m.muted)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
		m.transport = msg.Transport
	}
	if msg.SampleRate != 0 {
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
		m.frameCount = msg.FrameCount
		m.mode = msg.Mode
	}
	if msg.Volume != 0 {
		m.volume = msg.Volume
	}
	if msg.Depth != 0 {
		m.depth = msg.Depth
	}
	if msg.Stats {
		m.received = msg.Received
		m.played = msg.Played
		m.underruns = msg.Underruns
		m.failures = msg.Failures
		m.reconnects = msg.Reconnects
		m.buffered = msg.Buffered
	}
}

// StatusMsg updates TUI state. Zero fields are ignored except the counters,
// which are applied together when Stats is set.
type StatusMsg struct {
	State      string
	ServerName string
	Transport  string
	SampleRate int
	Channels   int
	FrameCount int
	Mode       string
	Volume     int
	Depth      int

	Stats      bool
	Received   int64
	Played     int64
	Underruns  int64
	Failures   int64
	Reconnects int64
	Buffered   int
}

// Utility functions
func renderBar(value, total, width int) string {
	filled := 0
	if total > 0 {
		filled = (value * width) / total
	}
	filled = max(0, min(filled, width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}
