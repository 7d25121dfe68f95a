package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/lingoplay/internal/session"
)

// statusDisplay summarizes the session for the status bar and the detail
// line under the transcript.
type statusDisplay struct {
	state      session.StateType
	lineIndex  int
	totalLines int
	position   float64
	duration   float64
	finished   bool
	fromCache  bool
	errMessage string
}

func newStatusDisplay() statusDisplay {
	return statusDisplay{
		state:     session.StateIdle,
		lineIndex: -1,
	}
}

// Update copies the parts of snap the status bar shows.
func (s *statusDisplay) Update(snap session.Snapshot) {
	s.state = snap.State
	s.duration = snap.Duration
	s.finished = snap.Finished
	s.lineIndex = -1
	s.totalLines = 0
	s.fromCache = false

	if snap.Session != nil {
		s.totalLines = len(snap.Session.Script.Lines)
		s.fromCache = snap.Session.FromHistory
		if snap.HasActiveLine {
			for i, l := range snap.Session.Script.Lines {
				if l.ID == snap.ActiveLine {
					s.lineIndex = i
					break
				}
			}
		}
	}
	if !snap.State.Ready() {
		s.position = 0
	} else if !snap.Playing() {
		s.position = snap.Progress
	}

	s.errMessage = ""
	if snap.Err != nil {
		s.errMessage = snap.Err.Message()
	}
}

// SetPosition records the live clock time between snapshots.
func (s *statusDisplay) SetPosition(t float64) {
	s.position = t
}

// Fraction is the playback position as a value in [0, 1].
func (s *statusDisplay) Fraction() float64 {
	if s.duration <= 0 {
		return 0
	}
	return max(0, min(1, s.position/s.duration))
}

// CompactStatus returns a compact status string for the status bar.
func (s *statusDisplay) CompactStatus() string {
	if s.state == session.StateIdle && s.errMessage == "" {
		return ""
	}

	statusStyle := lipgloss.NewStyle().Foreground(s.stateColor())
	status := statusStyle.Render(s.stateIcon() + " " + s.state.String())

	if s.state.Ready() && s.totalLines > 0 && s.lineIndex >= 0 {
		counterStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
		status += counterStyle.Render(fmt.Sprintf(" %d/%d", s.lineIndex+1, s.totalLines))
	}
	return status
}

// DetailedStatus is the time readout shown beside the progress bar.
func (s *statusDisplay) DetailedStatus(width int) string {
	if !s.state.Ready() {
		return ""
	}

	var parts []string
	parts = append(parts, formatSeconds(s.position)+" / "+formatSeconds(s.duration))
	if s.finished {
		parts = append(parts, "finished")
	}
	if s.fromCache {
		parts = append(parts, "from history")
	}
	out := strings.Join(parts, " · ")
	if width > 0 {
		out = truncate.StringWithTail(out, uint(width), ellipsis) //nolint:gosec
	}
	return out
}

// ErrorLine renders the current error, if any.
func (s *statusDisplay) ErrorLine(width int) string {
	if s.errMessage == "" {
		return ""
	}
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	line := truncate.StringWithTail(s.errMessage, uint(max(0, width-2)), ellipsis) //nolint:gosec
	return errorStyle.Render("✗ " + line)
}

func (s *statusDisplay) stateColor() lipgloss.Color {
	switch s.state {
	case session.StatePlaying:
		return lipgloss.Color("#00FF00") // Green
	case session.StatePaused:
		return lipgloss.Color("#FFFF00") // Yellow
	case session.StateGenerating, session.StateAwaitingAudio:
		return lipgloss.Color("#00AAFF") // Blue
	case session.StateCompleted:
		return lipgloss.Color("#888888") // Gray
	case session.StateStopped:
		return lipgloss.Color("#FF8800") // Orange
	default:
		if s.errMessage != "" {
			return lipgloss.Color("#FF0000")
		}
		return lipgloss.Color("#666666")
	}
}

func (s *statusDisplay) stateIcon() string {
	switch s.state {
	case session.StatePlaying:
		return "▶"
	case session.StatePaused:
		return "⏸"
	case session.StateGenerating, session.StateAwaitingAudio:
		return "⟳"
	case session.StateCompleted:
		return "✓"
	case session.StateStopped:
		return "◼"
	default:
		if s.errMessage != "" {
			return "✗"
		}
		return "○"
	}
}

// formatSeconds formats a position as m:ss.
func formatSeconds(t float64) string {
	if t < 0 {
		t = 0
	}
	total := int(t)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
