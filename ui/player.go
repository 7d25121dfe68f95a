package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/lingoplay/internal/session"
	"github.com/dgnsrekt/lingoplay/utils"
)

const statusBarHeight = 1

var (
	green     = lipgloss.Color("#04B575")
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(lipgloss.Color("#5A56E0")).
			Bold(true)

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg)

	statusBarStateStyle = lipgloss.NewStyle().
				Background(statusBarBg)

	statusBarHelpStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"})

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen)

	statusBarMessageHelpStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("#B6FFE4")).
					Background(green)

	titleStyle = lipgloss.NewStyle().Bold(true)

	levelBadgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(darkGreen).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().Faint(true)
)

type contextRenderedMsg struct {
	sessionID string
	content   string
}

func (m model) playerView(height int) string {
	width := max(20, m.common.width-4)
	snap := m.snap

	var top []string
	if snap.Session != nil {
		title := snap.Session.Script.Title
		if title == "" {
			title = "Untitled dialogue"
		}
		level := string(snap.Session.Script.Difficulty)
		if level == "" {
			level = string(snap.Level)
		}
		top = append(top, titleStyle.Render(truncate.StringWithTail(title, uint(max(0, width-20)), ellipsis))+ //nolint:gosec
			" "+levelBadgeStyle.Render(level))
		if m.header != "" {
			top = append(top, m.header)
		}
		top = append(top, "")
	}

	var bottom []string
	if e := m.status.ErrorLine(width); e != "" {
		bottom = append(bottom, "", e, subtleStyle.Render("x dismiss · n try again"))
	}
	if snap.State.Ready() {
		line := m.status.DetailedStatus(width)
		if m.common.cfg.ShowProgress {
			line = m.progress.ViewAs(m.status.Fraction()) + "  " + line
		}
		bottom = append(bottom, "", line)
		if snap.Finished {
			bottom = append(bottom, subtleStyle.Render("Finished. c keeps it in history, space plays it again."))
		}
	}
	if m.picker.active {
		bottom = append(bottom, "", m.picker.view(width))
	}

	topView := strings.Join(top, "\n")
	bottomView := strings.Join(bottom, "\n")
	room := height - lipgloss.Height(bottomView)
	if topView != "" {
		room -= lipgloss.Height(topView)
	}

	var middle string
	switch {
	case snap.State == session.StateGenerating:
		middle = m.spinner.View() + " Writing a new " + string(snap.Level) + " dialogue…"
	case snap.Session == nil:
		middle = m.welcomeView()
	default:
		rows, start, end := renderTranscript(snap.Session.Script, transcriptOptions{
			width:        width,
			active:       snap.ActiveLine,
			hasActive:    snap.HasActiveLine,
			translations: m.translations,
		})
		if snap.State == session.StateAwaitingAudio {
			room--
			rows = window(rows, start, end, room)
			for i := range rows {
				rows[i] = dimStyle.Render(rows[i])
			}
			middle = m.spinner.View() + " Recording the audio…\n" + strings.Join(rows, "\n")
		} else {
			middle = strings.Join(window(rows, start, end, room), "\n")
		}
	}

	parts := []string{}
	if topView != "" {
		parts = append(parts, topView)
	}
	parts = append(parts, middle)
	if bottomView != "" {
		parts = append(parts, bottomView)
	}
	return strings.Join(parts, "\n")
}

func (m model) welcomeView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("lingoplay") + "\n\n")
	fmt.Fprintf(&b, "Press %s to generate a %s dialogue, %s to change the level.\n",
		wordStyle.Render("n"), levelBadgeStyle.Render(m.level.String()), wordStyle.Render("l"))
	fmt.Fprintf(&b, "Press %s to replay one from your history.", wordStyle.Render("h"))
	return b.String()
}

func (m model) statusBarView(b *strings.Builder) {
	showStatusMessage := m.statusMessage != ""

	logo := logoStyle.Render(" lingoplay ")

	state := m.status.CompactStatus()
	if state != "" {
		state = statusBarStateStyle.Render(" " + state + " ")
	}

	// "Help" note
	var helpNote string
	if showStatusMessage {
		helpNote = statusBarMessageHelpStyle.Render(" ? Help ")
	} else {
		helpNote = statusBarHelpStyle.Render(" ? Help ")
	}

	var note string
	switch {
	case showStatusMessage:
		note = m.statusMessage
	case m.screen != screenPlayer:
		note = m.screen.String()
	case m.snap.Session != nil:
		note = m.snap.Session.Script.Title
	default:
		note = "next: " + m.level.String()
	}
	if m.common.cfg.Engine != "" && !showStatusMessage {
		note += " · " + m.common.cfg.Engine
	}

	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(state)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)
	if showStatusMessage {
		note = statusBarMessageStyle.Render(note)
	} else {
		note = statusBarNoteStyle.Render(note)
	}

	// Empty space
	padding := max(0,
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(state)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := strings.Repeat(" ", padding)
	if showStatusMessage {
		emptySpace = statusBarMessageStyle.Render(emptySpace)
	} else {
		emptySpace = statusBarNoteStyle.Render(emptySpace)
	}

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		state,
		helpNote,
	)
}

// COMMANDS

func renderContext(common *commonModel, sess *session.Session) tea.Cmd {
	id := sess.ID
	context := sess.Script.Context
	width := max(20, common.width-4)
	cfg := common.cfg

	return func() tea.Msg {
		if context == "" {
			return contextRenderedMsg{sessionID: id}
		}
		out, err := glamourRender(cfg, width, "_"+context+"_")
		if err != nil {
			log.Error("error rendering with Glamour", "error", err)
			out = context
		}
		return contextRenderedMsg{sessionID: id, content: out}
	}
}

func glamourRender(cfg Config, width int, markdown string) (string, error) {
	if !cfg.GlamourEnabled {
		return markdown, nil
	}

	if cfg.GlamourMaxWidth > 0 {
		width = min(int(cfg.GlamourMaxWidth), width) //nolint:gosec
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(utils.ExpandPath(cfg.GlamourStyle)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("error creating glamour renderer: %w", err)
	}

	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("error rendering markdown: %w", err)
	}
	return strings.Trim(out, "\n"), nil
}
