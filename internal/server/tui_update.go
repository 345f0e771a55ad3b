// ABOUTME: TUI update helpers for server
// ABOUTME: Builds status snapshots from the ring, producer and sessions
package server

import (
	"fmt"
	"sort"
)

// status collects the current server state
func (s *Server) status() ServerStatus {
	sessions := s.Sessions()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ConnectedAt.Before(sessions[j].ConnectedAt)
	})

	title, artist, _ := s.source.Metadata()
	audioTitle := title
	if artist != "" {
		audioTitle = artist + " - " + title
	}

	stats := s.producer.Stats()
	return ServerStatus{
		Name:      s.config.Name,
		Addr:      s.Addr(),
		Transport: s.config.Transport,
		Format: fmt.Sprintf("%dHz %dch, %d frames/chunk",
			s.format.SampleRate, s.format.Channels, s.format.FrameCount),
		Mode:       s.config.Mode.String(),
		AudioTitle: audioTitle,
		RingLen:    s.ring.Len(),
		RingCap:    s.ring.Cap(),
		Newest:     s.ring.Newest(),
		Produced:   stats.Produced,
		Silent:     stats.Silent,
		Exhausted:  stats.Exhausted,
		Sessions:   sessions,
	}
}

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.status())
}
