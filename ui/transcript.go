package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/lingoplay/internal/script"
)

var (
	highlightStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("226")). // Yellow
			Foreground(lipgloss.Color("0")).   // Black
			Bold(true)

	translationStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#8E8E8E", Dark: "#747373"}).
				Italic(true)

	speakerColors = []lipgloss.AdaptiveColor{
		{Light: "#1C8760", Dark: "#04B575"},
		{Light: "#5A56E0", Dark: "#7571F9"},
		{Light: "#C74665", Dark: "#F25D94"},
		{Light: "#B8860B", Dark: "#ECFD65"},
	}
)

// transcriptOptions controls how a script is laid out.
type transcriptOptions struct {
	width        int
	active       int
	hasActive    bool
	translations bool
}

// renderTranscript lays the script out one line block per spoken line and
// returns the rows plus the row range [start, end) of the active block. The
// range is -1, -1 with no active line.
func renderTranscript(s script.Script, opts transcriptOptions) (rows []string, start, end int) {
	start, end = -1, -1

	labelWidth := 0
	for _, sp := range s.Speakers() {
		labelWidth = max(labelWidth, runewidth.StringWidth(sp))
	}
	speakers := make(map[string]int)
	for i, sp := range s.Speakers() {
		speakers[sp] = i
	}

	textWidth := max(10, opts.width-labelWidth-2)
	pad := strings.Repeat(" ", labelWidth+2)

	for _, l := range s.Lines {
		active := opts.hasActive && l.ID == opts.active
		if active {
			start = len(rows)
		}

		label := l.Speaker + strings.Repeat(" ", labelWidth-runewidth.StringWidth(l.Speaker))
		label = lipgloss.NewStyle().
			Foreground(speakerColors[speakers[l.Speaker]%len(speakerColors)]).
			Bold(true).
			Render(label)

		for i, row := range strings.Split(wordwrap.String(l.Text, textWidth), "\n") {
			if active {
				row = highlightStyle.Render(row)
			}
			if i == 0 {
				rows = append(rows, label+"  "+row)
			} else {
				rows = append(rows, pad+row)
			}
		}
		if opts.translations && l.Translation != "" {
			for _, row := range strings.Split(wordwrap.String(l.Translation, textWidth), "\n") {
				rows = append(rows, pad+translationStyle.Render(row))
			}
		}
		if active {
			end = len(rows)
		}
		rows = append(rows, "")
	}
	if n := len(rows); n > 0 {
		rows = rows[:n-1]
	}
	return rows, start, end
}

// window returns at most height rows, scrolled so the block [start, end)
// stays visible.
func window(rows []string, start, end, height int) []string {
	if height <= 0 {
		return nil
	}
	if len(rows) <= height {
		return rows
	}
	if start < 0 {
		return rows[:height]
	}

	// keep a little context above the active block
	top := max(0, start-2)
	if end-top > height {
		top = start
	}
	if top+height > len(rows) {
		top = len(rows) - height
	}
	return rows[top : top+height]
}
