package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"

	"github.com/dgnsrekt/lingoplay/internal/script"
	"github.com/dgnsrekt/lingoplay/internal/store"
	"github.com/dgnsrekt/lingoplay/utils"
)

var (
	wordStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#04B575"})

	pickedWordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("#04B575"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}).
			Padding(0, 1)
)

type definitionMsg struct {
	word       string
	definition script.Definition
	err        error
}

// wordPicker lets the learner choose a word from the active line, look it
// up and save it.
type wordPicker struct {
	active     bool
	words      []string
	index      int
	sentence   string
	sessionID  string
	loading    bool
	definition *script.Definition
	err        error
}

func (p *wordPicker) open(sentence, sessionID string) bool {
	words := utils.Words(sentence)
	if len(words) == 0 {
		return false
	}
	*p = wordPicker{
		active:    true,
		words:     words,
		sentence:  sentence,
		sessionID: sessionID,
	}
	return true
}

func (p *wordPicker) close() {
	*p = wordPicker{}
}

func (p wordPicker) word() string {
	if p.index < 0 || p.index >= len(p.words) {
		return ""
	}
	return p.words[p.index]
}

func (p *wordPicker) move(delta int) {
	if len(p.words) == 0 {
		return
	}
	p.index = (p.index + delta + len(p.words)) % len(p.words)
	p.definition = nil
	p.err = nil
}

func (p wordPicker) entry(now time.Time) (store.VocabularyEntry, bool) {
	if p.definition == nil {
		return store.VocabularyEntry{}, false
	}
	return store.VocabularyEntry{
		ID:         uuid.NewString(),
		Definition: *p.definition,
		Sentence:   p.sentence,
		SessionID:  p.sessionID,
		CreatedAt:  now,
	}, true
}

func (p wordPicker) view(width int) string {
	var b strings.Builder
	for i, w := range p.words {
		if i > 0 {
			b.WriteByte(' ')
		}
		if i == p.index {
			b.WriteString(pickedWordStyle.Render(w))
		} else {
			b.WriteString(w)
		}
	}
	b.WriteString("\n")

	inner := max(20, width-4)
	switch {
	case p.loading:
		b.WriteString(subtleStyle.Render("Looking up " + p.word() + "…"))
	case p.err != nil:
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Render(p.err.Error()))
	case p.definition != nil:
		b.WriteString(definitionView(*p.definition, inner))
		b.WriteString("\n" + subtleStyle.Render("s save · y copy · ←/→ word · esc close"))
	default:
		b.WriteString(subtleStyle.Render("←/→ choose · enter define · esc close"))
	}
	return panelStyle.Width(inner).Render(b.String())
}

func definitionView(d script.Definition, width int) string {
	var b strings.Builder
	b.WriteString(wordStyle.Render(d.Word))
	if d.Primary != "" {
		b.WriteString("\n" + wordwrap.String(d.Primary, width))
	}
	if d.Secondary != "" {
		b.WriteString("\n" + translationStyle.Render(wordwrap.String(d.Secondary, width)))
	}
	if d.Example != "" {
		b.WriteString("\n" + subtleStyle.Render(wordwrap.String("“"+d.Example+"”", width)))
	}
	return b.String()
}

// copyText puts s on the clipboard with OSC 52 and the native clipboard.
func copyText(s string) {
	termenv.Copy(s)
	if err := clipboard.WriteAll(s); err != nil {
		log.Debug("native clipboard unavailable", "error", err)
	}
}

// vocabularyModel lists saved words.
type vocabularyModel struct {
	common  *commonModel
	entries []store.VocabularyEntry
	cursor  int
	now     func() time.Time
}

func newVocabularyModel(common *commonModel) vocabularyModel {
	return vocabularyModel{common: common, now: time.Now}
}

func (m *vocabularyModel) setEntries(entries []store.VocabularyEntry) {
	m.entries = entries
	if m.cursor >= len(entries) {
		m.cursor = max(0, len(entries)-1)
	}
}

func (m vocabularyModel) update(msg tea.Msg) (vocabularyModel, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "d", "delete":
		if m.cursor < len(m.entries) && m.common.services.Library != nil {
			m.common.services.Library.DeleteVocabulary(m.entries[m.cursor].ID)
		}
	case "y":
		if m.cursor < len(m.entries) {
			e := m.entries[m.cursor]
			copyText(e.Definition.Word + ": " + e.Definition.Primary)
			return m, func() tea.Msg { return statusMsg("Copied " + e.Definition.Word) }
		}
	}
	return m, nil
}

func (m vocabularyModel) view(height int) string {
	var b strings.Builder
	b.WriteString(listTitleStyle.Render("Vocabulary") + " ")
	b.WriteString(subtleStyle.Render(fmt.Sprintf("%d words", len(m.entries))))
	b.WriteString("\n\n")

	if len(m.entries) == 0 {
		b.WriteString(subtleStyle.Render("No saved words. Press w while listening to look one up."))
		return b.String()
	}

	width := max(20, m.common.width-4)
	perPage := max(1, (height-4)/2)
	top := 0
	if m.cursor >= perPage {
		top = m.cursor - perPage + 1
	}

	for i := top; i < len(m.entries) && i < top+perPage; i++ {
		e := m.entries[i]
		head := wordStyle.Render(e.Definition.Word) + "  " + e.Definition.Primary
		meta := humanize.RelTime(e.CreatedAt, m.now(), "ago", "from now")
		if e.Sentence != "" {
			meta = e.Sentence + " · " + meta
		}
		meta = subtleStyle.Render(lipgloss.NewStyle().MaxWidth(width).Render(meta))

		if i == m.cursor {
			b.WriteString(selectedStyle.Render("│ ") + head + "\n")
			b.WriteString(selectedStyle.Render("│ ") + meta + "\n")
		} else {
			b.WriteString("  " + head + "\n")
			b.WriteString("  " + meta + "\n")
		}
	}

	b.WriteString("\n" + subtleStyle.Render("y copy · d delete · esc back"))
	return b.String()
}

// COMMANDS

func defineCmd(ctx context.Context, dict Dictionary, word, sentence string) tea.Cmd {
	return func() tea.Msg {
		d, err := dict.Define(ctx, word, sentence)
		return definitionMsg{word: word, definition: d, err: err}
	}
}
