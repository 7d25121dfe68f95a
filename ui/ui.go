// Package ui provides the terminal player for lingoplay.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	te "github.com/muesli/termenv"

	"github.com/dgnsrekt/lingoplay/internal/script"
	"github.com/dgnsrekt/lingoplay/internal/session"
	"github.com/dgnsrekt/lingoplay/internal/store"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "saved!"
	positionInterval     = 100 * time.Millisecond
	seekStep             = 5.0
	ellipsis             = "…"
)

// Player is the session the interface drives. *session.Orchestrator
// implements it.
type Player interface {
	Start(ctx context.Context, level script.Level) error
	SelectHistory(ctx context.Context, entry store.HistoryEntry) error
	Toggle()
	Seek(t float64)
	SeekLine(lineID int)
	Complete()
	Stop()
	DeleteHistory(id string)
	DismissError()
	CurrentTime() float64
	Subscribe(fn func(session.Snapshot)) func()
}

// Library holds history and saved words. *store.Library implements it.
type Library interface {
	SubscribeHistory(fn func([]store.HistoryEntry)) func()
	SubscribeVocabulary(fn func([]store.VocabularyEntry)) func()
	SaveVocabulary(entry store.VocabularyEntry)
	DeleteVocabulary(id string)
}

// Dictionary looks up words. *define.Dictionary implements it.
type Dictionary interface {
	Define(ctx context.Context, word, sentence string) (script.Definition, error)
}

// Services are the components the interface talks to.
type Services struct {
	Session    Player
	Library    Library
	Dictionary Dictionary
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, services Services) *tea.Program {
	log.Debug(
		"Starting lingoplay",
		"level", cfg.Level,
		"engine", cfg.Engine,
		"glamour", cfg.GlamourEnabled,
	)
	m := newModel(cfg, services)
	return tea.NewProgram(m, tea.WithAltScreen())
}

type (
	statusMsg               string
	statusMessageTimeoutMsg struct{}
	positionTickMsg         struct{ id int }
)

// screen is the top-level application view.
type screen int

const (
	screenPlayer screen = iota
	screenHistory
	screenVocabulary
)

func (s screen) String() string {
	return map[screen]string{
		screenPlayer:     "player",
		screenHistory:    "history",
		screenVocabulary: "vocabulary",
	}[s]
}

// Common stuff we'll need to access in all models.
type commonModel struct {
	cfg      Config
	services Services
	ctx      context.Context
	cancel   context.CancelFunc
	width    int
	height   int
}

type model struct {
	common *commonModel
	bridge *bridge
	screen screen

	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	progress progress.Model
	status   statusDisplay

	snap         session.Snapshot
	level        script.Level
	lastLine     int
	translations bool
	showHelp     bool

	picker  wordPicker
	history historyModel
	vocab   vocabularyModel

	// glamour-rendered scene context of the current session
	header   string
	headerID string

	tickID  int
	ticking bool

	statusMessage      string
	statusMessageTimer *time.Timer
}

func newModel(cfg Config, services Services) model {
	if cfg.GlamourStyle == styles.AutoStyle || cfg.GlamourStyle == "" {
		if te.HasDarkBackground() {
			cfg.GlamourStyle = styles.DarkStyle
		} else {
			cfg.GlamourStyle = styles.LightStyle
		}
	}
	level, err := script.ParseLevel(string(cfg.Level))
	if err != nil {
		level = script.Beginner
	}
	cfg.Level = level

	ctx, cancel := context.WithCancel(context.Background())
	common := &commonModel{
		cfg:      cfg,
		services: services,
		ctx:      ctx,
		cancel:   cancel,
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = wordStyle

	return model{
		common:   common,
		bridge:   newBridge(services),
		keys:     newKeyMap(),
		help:     help.New(),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		status:   newStatusDisplay(),
		level:    cfg.Level,
		lastLine: -1,
		history:  newHistoryModel(common),
		vocab:    newVocabularyModel(common),
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForSnapshot(m.bridge)}
	if m.common.services.Library != nil {
		cmds = append(cmds, waitForHistory(m.bridge), waitForVocabulary(m.bridge))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.help.Width = msg.Width
		m.progress.Width = max(10, min(60, msg.Width-24))
		if m.snap.Session != nil {
			m.header = ""
			cmds = append(cmds, renderContext(m.common, m.snap.Session))
		}

	case snapshotMsg:
		cmds = append(cmds, m.applySnapshot(session.Snapshot(msg))...)
		cmds = append(cmds, waitForSnapshot(m.bridge))

	case historyMsg:
		m.history.setEntries(msg)
		cmds = append(cmds, waitForHistory(m.bridge))

	case vocabularyMsg:
		m.vocab.setEntries(msg)
		cmds = append(cmds, waitForVocabulary(m.bridge))

	case positionTickMsg:
		if msg.id != m.tickID {
			return m, nil
		}
		if !m.snap.Playing() {
			m.ticking = false
			return m, nil
		}
		m.status.SetPosition(m.common.services.Session.CurrentTime())
		return m, positionTick(m.tickID)

	case spinner.TickMsg:
		if !m.snap.State.Loading() && !m.picker.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case contextRenderedMsg:
		if m.snap.Session != nil && msg.sessionID == m.snap.Session.ID {
			m.header = msg.content
			m.headerID = msg.sessionID
		}

	case definitionMsg:
		if m.picker.active && m.picker.loading && m.picker.word() == msg.word {
			m.picker.loading = false
			if msg.err != nil {
				m.picker.err = msg.err
			} else {
				d := msg.definition
				m.picker.definition = &d
			}
		}

	case selectHistoryMsg:
		m.screen = screenPlayer
		return m, replayCmd(m.common.ctx, m.common.services.Session, store.HistoryEntry(msg))

	case statusMsg:
		cmd := m.showStatusMessage(string(msg))
		return m, cmd

	case statusMessageTimeoutMsg:
		m.statusMessage = ""
	}

	return m, tea.Batch(cmds...)
}

// applySnapshot stores a newly published snapshot and returns the commands
// it makes necessary.
func (m *model) applySnapshot(snap session.Snapshot) []tea.Cmd {
	var cmds []tea.Cmd
	wasLoading := m.snap.State.Loading()
	prevID := sessionID(m.snap)

	m.snap = snap
	m.status.Update(snap)
	if snap.HasActiveLine {
		m.lastLine = snap.ActiveLine
	}

	if id := sessionID(snap); id != prevID {
		m.header = ""
		m.headerID = ""
		m.lastLine = -1
		if snap.HasActiveLine {
			m.lastLine = snap.ActiveLine
		}
		if m.picker.active {
			m.picker.close()
		}
		if snap.Session != nil {
			cmds = append(cmds, renderContext(m.common, snap.Session))
		}
	}

	if snap.State.Loading() && !wasLoading {
		cmds = append(cmds, m.spinner.Tick)
	}
	if snap.Playing() && !m.ticking {
		m.ticking = true
		m.tickID++
		cmds = append(cmds, positionTick(m.tickID))
	}
	if !snap.Playing() {
		m.ticking = false
	}
	return cmds
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}
	if msg.String() == "ctrl+z" {
		return m, tea.Suspend
	}

	if m.picker.active {
		return m.handlePickerKey(msg)
	}

	var cmd tea.Cmd
	switch m.screen { //nolint:exhaustive
	case screenHistory:
		// pass through all keys if we're editing the filter
		if m.history.filterState != filtering {
			switch msg.String() {
			case "q":
				return m.quit()
			case "h":
				m.screen = screenPlayer
				return m, nil
			case keyEsc:
				if m.history.filterState == unfiltered {
					m.screen = screenPlayer
					return m, nil
				}
			}
		}
		m.history, cmd = m.history.update(msg)
		return m, cmd

	case screenVocabulary:
		switch msg.String() {
		case "q":
			return m.quit()
		case keyEsc, "v":
			m.screen = screenPlayer
			return m, nil
		}
		m.vocab, cmd = m.vocab.update(msg)
		return m, cmd
	}

	s := m.common.services.Session
	ready := m.snap.State.Ready()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp

	case key.Matches(msg, m.keys.Toggle):
		if ready {
			s.Toggle()
		}

	case key.Matches(msg, m.keys.New):
		return m, startCmd(m.common.ctx, s, m.level)

	case key.Matches(msg, m.keys.Level):
		m.level = m.level.Next()
		cmd := m.showStatusMessage("Next dialogue: " + m.level.String())
		return m, cmd

	case key.Matches(msg, m.keys.Back):
		if ready {
			s.Seek(s.CurrentTime() - seekStep)
		}

	case key.Matches(msg, m.keys.Forward):
		if ready {
			s.Seek(s.CurrentTime() + seekStep)
		}

	case key.Matches(msg, m.keys.PrevLine):
		if id, ok := m.adjacentLine(-1); ok && ready {
			s.SeekLine(id)
		}

	case key.Matches(msg, m.keys.NextLine):
		if id, ok := m.adjacentLine(1); ok && ready {
			s.SeekLine(id)
		}

	case key.Matches(msg, m.keys.Complete):
		if ready && m.snap.Session != nil {
			return m, completeCmd(s)
		}

	case key.Matches(msg, m.keys.Stop):
		if m.snap.Session != nil || m.snap.State.Loading() {
			s.Stop()
		}

	case key.Matches(msg, m.keys.Word):
		cmd := m.openPicker()
		return m, cmd

	case key.Matches(msg, m.keys.Translations):
		m.translations = !m.translations

	case key.Matches(msg, m.keys.History):
		m.screen = screenHistory

	case key.Matches(msg, m.keys.Vocabulary):
		m.screen = screenVocabulary

	case key.Matches(msg, m.keys.Dismiss):
		if m.snap.Err != nil {
			s.DismissError()
		}
	}

	return m, nil
}

func (m model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyEsc, "w":
		m.picker.close()
	case "q":
		return m.quit()
	case " ":
		if m.snap.State.Ready() {
			m.common.services.Session.Toggle()
		}
	case "left", "shift+tab":
		m.picker.move(-1)
	case "right", "tab":
		m.picker.move(1)
	case "enter":
		if m.picker.loading {
			return m, nil
		}
		dict := m.common.services.Dictionary
		if dict == nil {
			m.picker.err = fmt.Errorf("no dictionary for engine %q", m.common.cfg.Engine)
			return m, nil
		}
		m.picker.loading = true
		m.picker.definition = nil
		m.picker.err = nil
		return m, tea.Batch(
			m.spinner.Tick,
			defineCmd(m.common.ctx, dict, m.picker.word(), m.picker.sentence),
		)
	case "s":
		entry, ok := m.picker.entry(time.Now())
		if !ok || m.common.services.Library == nil {
			return m, nil
		}
		m.common.services.Library.SaveVocabulary(entry)
		cmd := m.showStatusMessage("Saved " + entry.Definition.Word)
		return m, cmd
	case "y":
		if m.picker.definition != nil {
			d := m.picker.definition
			copyText(d.Word + ": " + d.Primary)
			cmd := m.showStatusMessage("Copied " + d.Word)
			return m, cmd
		}
	}
	return m, nil
}

// openPicker starts a word lookup on the active line, or the last line
// that was active.
func (m *model) openPicker() tea.Cmd {
	if m.snap.Session == nil {
		return nil
	}
	lines := m.snap.Session.Script.Lines
	if len(lines) == 0 {
		return nil
	}
	line, ok := m.snap.Session.Script.Line(m.lastLine)
	if !ok {
		line = lines[0]
	}
	if !m.picker.open(line.Text, m.snap.Session.ID) {
		return m.showStatusMessage("Nothing to look up on this line")
	}
	return nil
}

// adjacentLine returns the id of the line delta steps from the active one.
func (m model) adjacentLine(delta int) (int, bool) {
	if m.snap.Session == nil || len(m.snap.Session.Script.Lines) == 0 {
		return 0, false
	}
	lines := m.snap.Session.Script.Lines

	idx := -1
	if m.snap.HasActiveLine {
		for i, l := range lines {
			if l.ID == m.snap.ActiveLine {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return lines[0].ID, true
	}
	idx = max(0, min(len(lines)-1, idx+delta))
	return lines[idx].ID, true
}

func (m model) quit() (tea.Model, tea.Cmd) {
	m.common.cancel()
	m.bridge.close()
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	return m, tea.Quit
}

func (m *model) showStatusMessage(msg string) tea.Cmd {
	m.statusMessage = msg
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func (m model) View() string {
	height := m.common.height - statusBarHeight
	var helpView string
	if m.showHelp {
		helpView = "\n" + indent(m.help.View(m.keys), 2)
		height -= strings.Count(helpView, "\n")
	}

	var body string
	switch m.screen { //nolint:exhaustive
	case screenHistory:
		body = m.history.view(height - 1)
	case screenVocabulary:
		body = m.vocab.view(height - 1)
	default:
		body = m.playerView(height - 1)
	}
	body = "\n" + indent(body, 2)

	var b strings.Builder
	b.WriteString(fitHeight(body, height))
	b.WriteString("\n")
	m.statusBarView(&b)
	b.WriteString(helpView)
	return b.String()
}

func sessionID(snap session.Snapshot) string {
	if snap.Session == nil {
		return ""
	}
	return snap.Session.ID
}

// COMMANDS

func startCmd(ctx context.Context, s Player, level script.Level) tea.Cmd {
	return func() tea.Msg {
		if err := s.Start(ctx, level); err != nil {
			log.Debug("dialogue not started", "level", level, "error", err)
		}
		return nil
	}
}

func replayCmd(ctx context.Context, s Player, entry store.HistoryEntry) tea.Cmd {
	return func() tea.Msg {
		if err := s.SelectHistory(ctx, entry); err != nil {
			log.Debug("history entry not loaded", "id", entry.ID, "error", err)
		}
		return nil
	}
}

func completeCmd(s Player) tea.Cmd {
	return func() tea.Msg {
		s.Complete()
		return statusMsg("Saved to history")
	}
}

func positionTick(id int) tea.Cmd {
	return tea.Tick(positionInterval, func(time.Time) tea.Msg {
		return positionTickMsg{id: id}
	})
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}

// ETC

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for j, v := range l {
		if j > 0 {
			b.WriteByte('\n')
		}
		if v != "" {
			fmt.Fprintf(&b, "%s%s", i, v)
		}
	}
	return b.String()
}

// fitHeight pads or cuts s to exactly n lines.
func fitHeight(s string, n int) string {
	if n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) < n {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
