package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"

	"github.com/dgnsrekt/lingoplay/internal/store"
)

const keyEsc = "esc"

var (
	listTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}).
			Bold(true)

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"})
)

type filterState int

const (
	unfiltered filterState = iota
	filtering
	filterApplied
)

// historyModel lists completed sessions and filters them with a fuzzy
// search over title, context and level.
type historyModel struct {
	common      *commonModel
	entries     []store.HistoryEntry
	filtered    []store.HistoryEntry
	cursor      int
	filterInput textinput.Model
	filterState filterState
	now         func() time.Time
}

// selectHistoryMsg asks the root model to replay an entry.
type selectHistoryMsg store.HistoryEntry

func newHistoryModel(common *commonModel) historyModel {
	ti := textinput.New()
	ti.Prompt = "Find: "
	ti.Placeholder = "title, context or level"
	ti.CharLimit = 64

	return historyModel{
		common:      common,
		filterInput: ti,
		now:         time.Now,
	}
}

func (m *historyModel) setEntries(entries []store.HistoryEntry) {
	m.entries = entries
	m.applyFilter()
}

func (m *historyModel) applyFilter() {
	m.filtered = filterHistory(m.entries, m.filterInput.Value())
	if m.cursor >= len(m.filtered) {
		m.cursor = max(0, len(m.filtered)-1)
	}
}

func (m historyModel) selected() (store.HistoryEntry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.filtered) {
		return store.HistoryEntry{}, false
	}
	return m.filtered[m.cursor], true
}

func (m historyModel) update(msg tea.Msg) (historyModel, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.filterState == filtering {
		switch keyMsg.String() {
		case keyEsc:
			m.filterInput.Reset()
			m.filterInput.Blur()
			m.filterState = unfiltered
			m.applyFilter()
			return m, nil
		case "enter", "tab", "up", "down":
			m.filterInput.Blur()
			m.filterState = filterApplied
			if m.filterInput.Value() == "" {
				m.filterState = unfiltered
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.filterInput, cmd = m.filterInput.Update(msg)
		m.cursor = 0
		m.applyFilter()
		return m, cmd
	}

	switch keyMsg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.filtered)-1 {
			m.cursor++
		}
	case "/":
		m.filterState = filtering
		cmd := m.filterInput.Focus()
		return m, cmd
	case keyEsc:
		if m.filterState == filterApplied {
			m.filterInput.Reset()
			m.filterState = unfiltered
			m.applyFilter()
		}
	case "enter":
		if entry, ok := m.selected(); ok {
			return m, func() tea.Msg { return selectHistoryMsg(entry) }
		}
	case "d", "delete":
		if entry, ok := m.selected(); ok && m.common.services.Session != nil {
			m.common.services.Session.DeleteHistory(entry.ID)
		}
	}
	return m, nil
}

func (m historyModel) view(height int) string {
	var b strings.Builder
	b.WriteString(listTitleStyle.Render("History") + " ")
	b.WriteString(subtleStyle.Render(fmt.Sprintf("%d dialogues", len(m.entries))))
	b.WriteString("\n\n")

	if m.filterState != unfiltered {
		b.WriteString(m.filterInput.View() + "\n\n")
	}

	if len(m.filtered) == 0 {
		if len(m.entries) == 0 {
			b.WriteString(subtleStyle.Render("Nothing here yet. Complete a dialogue with c to keep it."))
		} else {
			b.WriteString(subtleStyle.Render("No matches."))
		}
		return b.String()
	}

	// two rows per entry
	perPage := max(1, (height-4)/2)
	top := 0
	if m.cursor >= perPage {
		top = m.cursor - perPage + 1
	}
	width := max(20, m.common.width-4)

	for i := top; i < len(m.filtered) && i < top+perPage; i++ {
		e := m.filtered[i]
		title := e.Script.Title
		if title == "" {
			title = "Untitled"
		}
		title = truncate.StringWithTail(title, uint(width), ellipsis) //nolint:gosec
		meta := fmt.Sprintf("%s · %d lines · %s", e.Script.Difficulty, len(e.Script.Lines), humanize.RelTime(e.CreatedAt, m.now(), "ago", "from now"))

		if i == m.cursor {
			b.WriteString(selectedStyle.Render("│ "+title) + "\n")
			b.WriteString(selectedStyle.Render("│ ") + subtleStyle.Render(meta) + "\n")
		} else {
			b.WriteString("  " + title + "\n")
			b.WriteString("  " + subtleStyle.Render(meta) + "\n")
		}
	}

	b.WriteString("\n" + subtleStyle.Render("enter replay · / find · d delete · esc back"))
	return b.String()
}

// filterHistory returns the entries matching term, best match first. An
// empty term keeps every entry in its original order.
func filterHistory(entries []store.HistoryEntry, term string) []store.HistoryEntry {
	term = strings.TrimSpace(term)
	if term == "" {
		return entries
	}

	targets := make([]string, len(entries))
	for i, e := range entries {
		targets[i] = strings.Join([]string{e.Script.Title, e.Script.Context, string(e.Script.Difficulty)}, " ")
	}

	matches := fuzzy.Find(term, targets)
	out := make([]store.HistoryEntry, 0, len(matches))
	for _, match := range matches {
		out = append(out, entries[match.Index])
	}
	return out
}
