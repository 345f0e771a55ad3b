// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for player UI and relays key actions
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChangeMsg is a volume or mute change made in the TUI
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// Controls carries user actions out of the TUI
type Controls struct {
	Changes chan VolumeChangeMsg
	Quit    chan struct{}
}

// NewControls creates a control handler
func NewControls() *Controls {
	return &Controls{
		Changes: make(chan VolumeChangeMsg, 10),
		Quit:    make(chan struct{}, 1),
	}
}

func (c *Controls) send(volume int, muted bool) {
	if c == nil {
		return
	}
	select {
	case c.Changes <- VolumeChangeMsg{Volume: volume, Muted: muted}:
	default:
	}
}

func (c *Controls) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls, volume, depth int) Model {
	return Model{
		state:    "disconnected",
		volume:   volume,
		depth:    depth,
		controls: controls,
	}
}

// Run creates the TUI program. The caller runs it.
func Run(controls *Controls, volume, depth int) *tea.Program {
	return tea.NewProgram(NewModel(controls, volume, depth), tea.WithAltScreen())
}
