// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling, and rendering helpers
package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestNewModel(t *testing.T) {
	model := NewModel(nil, 80, 96) // Controls are optional for testing

	if model.state != "disconnected" {
		t.Errorf("expected initial state 'disconnected', got %q", model.state)
	}
	if model.volume != 80 {
		t.Errorf("expected volume 80, got %d", model.volume)
	}
	if model.depth != 96 {
		t.Errorf("expected depth 96, got %d", model.depth)
	}
	if model.muted || model.showDebug {
		t.Error("expected muted and showDebug to be false initially")
	}
}

func TestStatusMsgConnection(t *testing.T) {
	model := NewModel(nil, 100, 8)

	model.applyStatus(StatusMsg{State: "streaming", ServerName: "10.0.0.2:1060", Transport: "tcp"})
	if model.state != "streaming" || model.serverName != "10.0.0.2:1060" || model.transport != "tcp" {
		t.Errorf("connection not applied: %+v", model)
	}

	model.applyStatus(StatusMsg{State: "disconnected"})
	if model.state != "disconnected" {
		t.Errorf("expected disconnected, got %q", model.state)
	}
	if model.serverName != "10.0.0.2:1060" {
		t.Error("server name should survive a state change")
	}
}

func TestStatusMsgStreamInfo(t *testing.T) {
	model := NewModel(nil, 100, 8)

	model.applyStatus(StatusMsg{SampleRate: 44100, Channels: 1, FrameCount: 2048, Mode: "interpolate"})

	if model.sampleRate != 44100 || model.channels != 1 || model.frameCount != 2048 || model.mode != "interpolate" {
		t.Errorf("stream info not applied: %+v", model)
	}
}

func TestStatusMsgStats(t *testing.T) {
	model := NewModel(nil, 100, 8)

	model.applyStatus(StatusMsg{Stats: true, Received: 1000, Played: 950, Underruns: 3, Failures: 2, Reconnects: 1, Buffered: 6})
	if model.received != 1000 || model.played != 950 || model.underruns != 3 ||
		model.failures != 2 || model.reconnects != 1 || model.buffered != 6 {
		t.Errorf("stats not applied: %+v", model)
	}

	// Zero counters are valid once Stats is set
	model.applyStatus(StatusMsg{Stats: true})
	if model.received != 0 || model.buffered != 0 {
		t.Error("stats should be updated to 0")
	}

	// Without Stats the counters are left alone
	model.applyStatus(StatusMsg{Stats: true, Received: 5})
	model.applyStatus(StatusMsg{State: "streaming"})
	if model.received != 5 {
		t.Errorf("received changed to %d by a non-stats update", model.received)
	}
}

func TestStatusMsgZeroVolumeIgnored(t *testing.T) {
	model := NewModel(nil, 75, 8)
	model.applyStatus(StatusMsg{Volume: 0})
	if model.volume != 75 {
		t.Errorf("volume should stay 75, got %d", model.volume)
	}
}

func TestHandleKey(t *testing.T) {
	tests := []struct {
		name       string
		start      int
		keys       []tea.KeyMsg
		wantVolume int
		wantMuted  bool
		wantDebug  bool
	}{
		{"up", 50, []tea.KeyMsg{{Type: tea.KeyUp}}, 55, false, false},
		{"up clamps", 98, []tea.KeyMsg{{Type: tea.KeyUp}}, 100, false, false},
		{"down", 50, []tea.KeyMsg{{Type: tea.KeyDown}}, 45, false, false},
		{"down clamps", 3, []tea.KeyMsg{{Type: tea.KeyDown}}, 0, false, false},
		{"mute", 50, []tea.KeyMsg{{Type: tea.KeyRunes, Runes: []rune("m")}}, 50, true, false},
		{"mute twice", 50, []tea.KeyMsg{{Type: tea.KeyRunes, Runes: []rune("m")}, {Type: tea.KeyRunes, Runes: []rune("m")}}, 50, false, false},
		{"debug", 50, []tea.KeyMsg{{Type: tea.KeyRunes, Runes: []rune("d")}}, 50, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controls := NewControls()
			var model tea.Model = NewModel(controls, tt.start, 8)
			for _, k := range tt.keys {
				model, _ = model.Update(k)
			}
			m := model.(Model)
			if m.volume != tt.wantVolume || m.muted != tt.wantMuted || m.showDebug != tt.wantDebug {
				t.Errorf("got volume %d muted %v debug %v", m.volume, m.muted, m.showDebug)
			}

			if tt.wantVolume != tt.start || tt.wantMuted {
				select {
				case change := <-controls.Changes:
					_ = change
				default:
					t.Error("expected a volume change to be sent")
				}
			}
		})
	}
}

func TestQuitKey(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls, 100, 8)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	select {
	case <-controls.Quit:
	default:
		t.Error("expected quit to be signalled")
	}
}

func TestView(t *testing.T) {
	model := NewModel(nil, 100, 8)
	if got := model.View(); got != "Loading..." {
		t.Errorf("View before a size message = %q", got)
	}

	var m tea.Model = model
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.Update(StatusMsg{State: "streaming", ServerName: "host:1060", Transport: "tcp",
		SampleRate: 44100, Channels: 2, FrameCount: 2048, Mode: "raw"})

	view := m.View()
	for _, want := range []string{"Streaming from host:1060", "44100Hz Stereo", "raw over tcp"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		value, total, width int
		want                string
	}{
		{50, 100, 4, "██░░"},
		{0, 100, 3, "░░░"},
		{200, 100, 2, "██"},
		{3, 0, 2, "░░"},
	}
	for _, tt := range tests {
		if got := renderBar(tt.value, tt.total, tt.width); got != tt.want {
			t.Errorf("renderBar(%d, %d, %d) = %q, want %q", tt.value, tt.total, tt.width, got, tt.want)
		}
	}
}

func TestTruncateFunction(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"this is longer than allowed", 10, "this is..."},
		{"this is longer than allowed", 15, "this is long..."},
		{"", 10, ""},
		{"abcd", 4, "abcd"},
		{"abcde", 4, "a..."},
	}

	for _, tt := range tests {
		result := truncate(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, expected %q",
				tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestChannelNameFunction(t *testing.T) {
	tests := []struct {
		channels int
		expected string
	}{
		{1, "Mono"},
		{2, "Stereo"},
	}

	for _, tt := range tests {
		result := channelName(tt.channels)
		if result != tt.expected {
			t.Errorf("channelName(%d) = %q, expected %q",
				tt.channels, result, tt.expected)
		}
	}
}
