package ui

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/lingoplay/internal/script"
	"github.com/dgnsrekt/lingoplay/internal/session"
	"github.com/dgnsrekt/lingoplay/internal/store"
)

type fakePlayer struct {
	mu sync.Mutex

	snap      session.Snapshot
	now       float64
	started   []script.Level
	selected  []string
	toggles   int
	seeks     []float64
	seekLines []int
	completes int
	stops     int
	deleted   []string
	dismissed int
}

func (p *fakePlayer) Start(_ context.Context, level script.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, level)
	return nil
}

func (p *fakePlayer) SelectHistory(_ context.Context, entry store.HistoryEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = append(p.selected, entry.ID)
	return nil
}

func (p *fakePlayer) Toggle() { p.toggles++ }

func (p *fakePlayer) Seek(t float64) { p.seeks = append(p.seeks, t) }

func (p *fakePlayer) SeekLine(id int) { p.seekLines = append(p.seekLines, id) }

func (p *fakePlayer) Complete() { p.completes++ }

func (p *fakePlayer) Stop() { p.stops++ }

func (p *fakePlayer) DeleteHistory(id string) { p.deleted = append(p.deleted, id) }

func (p *fakePlayer) DismissError() { p.dismissed++ }

func (p *fakePlayer) CurrentTime() float64 { return p.now }

func (p *fakePlayer) Subscribe(fn func(session.Snapshot)) func() {
	fn(p.snap)
	return func() {}
}

type fakeLibrary struct {
	history    []store.HistoryEntry
	vocabulary []store.VocabularyEntry
	saved      []store.VocabularyEntry
	removed    []string
}

func (l *fakeLibrary) SubscribeHistory(fn func([]store.HistoryEntry)) func() {
	fn(l.history)
	return func() {}
}

func (l *fakeLibrary) SubscribeVocabulary(fn func([]store.VocabularyEntry)) func() {
	fn(l.vocabulary)
	return func() {}
}

func (l *fakeLibrary) SaveVocabulary(e store.VocabularyEntry) { l.saved = append(l.saved, e) }

func (l *fakeLibrary) DeleteVocabulary(id string) { l.removed = append(l.removed, id) }

type fakeDictionary struct {
	mu    sync.Mutex
	words []string
	err   error
}

func (d *fakeDictionary) Define(_ context.Context, word, _ string) (script.Definition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.words = append(d.words, word)
	if d.err != nil {
		return script.Definition{}, d.err
	}
	return script.Definition{Word: word, Primary: "what", Secondary: "interrogative", Example: "¿Qué hora es?"}, nil
}

func dialogue() script.Script {
	return script.Script{
		Title:      "En el café",
		Context:    "Two friends meet for coffee.",
		Difficulty: script.Beginner,
		Lines: []script.Line{
			{ID: 1, Speaker: "Ana", Text: "Hola, ¿qué tal?", Translation: "Hi, how are you?"},
			{ID: 2, Speaker: "Luis", Text: "Muy bien, gracias. ¿Y tú?", Translation: "Very well, thanks. And you?"},
			{ID: 3, Speaker: "Ana", Text: "Bien.", Translation: "Good."},
		},
	}
}

func readySnapshot() session.Snapshot {
	return session.Snapshot{
		State:         session.StatePaused,
		Level:         script.Beginner,
		Session:       &session.Session{ID: "s1", Script: dialogue()},
		Duration:      10,
		ActiveLine:    1,
		HasActiveLine: true,
	}
}

type harness struct {
	player  *fakePlayer
	library *fakeLibrary
	dict    *fakeDictionary
}

func newTestModel(t *testing.T) (model, *harness) {
	t.Helper()
	h := &harness{
		player:  &fakePlayer{},
		library: &fakeLibrary{},
		dict:    &fakeDictionary{},
	}
	cfg := Config{
		GlamourStyle: "dark",
		Level:        script.Beginner,
		Engine:       "mock",
		ShowProgress: true,
	}
	m := newModel(cfg, Services{Session: h.player, Library: h.library, Dictionary: h.dict})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, h
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return nm, cmd
}

func keyPress(k string) tea.KeyMsg {
	switch k {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
}

// runBatch executes cmd and any commands it batches, returning the messages.
func runBatch(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		if c != nil {
			out = append(out, c())
		}
	}
	return out
}

// TestPlayerKeys tests the playback shortcuts against a loaded session.
func TestPlayerKeys(t *testing.T) {
	testCases := []struct {
		key         string
		description string
		check       func(t *testing.T, p *fakePlayer)
	}{
		{" ", "Space toggles playback", func(t *testing.T, p *fakePlayer) {
			if p.toggles != 1 {
				t.Errorf("toggles = %d, want 1", p.toggles)
			}
		}},
		{"right", "Right seeks forward", func(t *testing.T, p *fakePlayer) {
			if !reflect.DeepEqual(p.seeks, []float64{8}) {
				t.Errorf("seeks = %v, want [8]", p.seeks)
			}
		}},
		{"left", "Left seeks back", func(t *testing.T, p *fakePlayer) {
			if !reflect.DeepEqual(p.seeks, []float64{-2}) {
				t.Errorf("seeks = %v, want [-2]", p.seeks)
			}
		}},
		{"down", "Down jumps to the next line", func(t *testing.T, p *fakePlayer) {
			if !reflect.DeepEqual(p.seekLines, []int{2}) {
				t.Errorf("seekLines = %v, want [2]", p.seekLines)
			}
		}},
		{"up", "Up stays on the first line", func(t *testing.T, p *fakePlayer) {
			if !reflect.DeepEqual(p.seekLines, []int{1}) {
				t.Errorf("seekLines = %v, want [1]", p.seekLines)
			}
		}},
		{"s", "s stops the session", func(t *testing.T, p *fakePlayer) {
			if p.stops != 1 {
				t.Errorf("stops = %d, want 1", p.stops)
			}
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			m, h := newTestModel(t)
			h.player.now = 3
			m, _ = update(t, m, snapshotMsg(readySnapshot()))
			_, _ = update(t, m, keyPress(tc.key))
			tc.check(t, h.player)
		})
	}
}

// TestPlayerKeysWhileLoading tests that playback keys do nothing until audio
// is loaded.
func TestPlayerKeysWhileLoading(t *testing.T) {
	m, h := newTestModel(t)
	snap := readySnapshot()
	snap.State = session.StateAwaitingAudio
	m, _ = update(t, m, snapshotMsg(snap))

	for _, k := range []string{" ", "left", "right", "up", "down", "c"} {
		var cmd tea.Cmd
		m, cmd = update(t, m, keyPress(k))
		if cmd != nil {
			runBatch(cmd)
		}
	}

	if h.player.toggles != 0 || len(h.player.seeks) != 0 || len(h.player.seekLines) != 0 || h.player.completes != 0 {
		t.Errorf("unexpected playback calls while loading: %+v", h.player)
	}

	// stopping is allowed while loading
	_, _ = update(t, m, keyPress("s"))
	if h.player.stops != 1 {
		t.Errorf("stops = %d, want 1", h.player.stops)
	}
}

// TestNewDialogueUsesSelectedLevel tests level cycling and starting.
func TestNewDialogueUsesSelectedLevel(t *testing.T) {
	m, h := newTestModel(t)

	m, _ = update(t, m, keyPress("l"))
	if m.level != script.Intermediate {
		t.Fatalf("level = %s, want intermediate", m.level)
	}

	_, cmd := update(t, m, keyPress("n"))
	if cmd == nil {
		t.Fatal("expected a start command")
	}
	cmd()

	if !reflect.DeepEqual(h.player.started, []script.Level{script.Intermediate}) {
		t.Errorf("started = %v, want [intermediate]", h.player.started)
	}
}

// TestCompleteAndDismiss tests the session-ending shortcuts.
func TestCompleteAndDismiss(t *testing.T) {
	m, h := newTestModel(t)
	m, _ = update(t, m, snapshotMsg(readySnapshot()))

	_, cmd := update(t, m, keyPress("c"))
	if cmd == nil {
		t.Fatal("expected a complete command")
	}
	if msg, ok := cmd().(statusMsg); !ok || msg != "Saved to history" {
		t.Errorf("complete message = %v", msg)
	}
	if h.player.completes != 1 {
		t.Errorf("completes = %d, want 1", h.player.completes)
	}

	// x only dismisses when there is an error
	m, _ = update(t, m, keyPress("x"))
	if h.player.dismissed != 0 {
		t.Errorf("dismissed without an error")
	}

	snap := session.Snapshot{
		State: session.StateIdle,
		Err:   &session.Error{Err: errors.New("boom"), Component: session.ComponentAudio, Action: "synthesize audio"},
	}
	m, _ = update(t, m, snapshotMsg(snap))
	_, _ = update(t, m, keyPress("x"))
	if h.player.dismissed != 1 {
		t.Errorf("dismissed = %d, want 1", h.player.dismissed)
	}
}

// TestWordLookup tests choosing, defining and saving a word.
func TestWordLookup(t *testing.T) {
	m, h := newTestModel(t)
	m, _ = update(t, m, snapshotMsg(readySnapshot()))

	m, _ = update(t, m, keyPress("w"))
	if !m.picker.active {
		t.Fatal("word picker should be open")
	}
	if want := []string{"Hola", "qué", "tal"}; !reflect.DeepEqual(m.picker.words, want) {
		t.Fatalf("words = %q, want %q", m.picker.words, want)
	}

	m, _ = update(t, m, keyPress("right"))
	if m.picker.word() != "qué" {
		t.Fatalf("picked %q, want qué", m.picker.word())
	}

	// keys go to the picker, not the player
	if len(h.player.seeks) != 0 {
		t.Error("right should not seek while picking a word")
	}

	m, cmd := update(t, m, keyPress("enter"))
	if !m.picker.loading {
		t.Error("picker should be loading")
	}
	var def definitionMsg
	for _, msg := range runBatch(cmd) {
		if d, ok := msg.(definitionMsg); ok {
			def = d
		}
	}
	if def.word != "qué" || def.err != nil {
		t.Fatalf("definition = %+v", def)
	}

	m, _ = update(t, m, def)
	if m.picker.loading || m.picker.definition == nil {
		t.Fatal("definition should be shown")
	}

	m, _ = update(t, m, keyPress("s"))
	if len(h.library.saved) != 1 {
		t.Fatalf("saved = %d entries, want 1", len(h.library.saved))
	}
	saved := h.library.saved[0]
	if saved.Definition.Word != "qué" || saved.SessionID != "s1" || saved.Sentence != "Hola, ¿qué tal?" || saved.ID == "" {
		t.Errorf("saved entry = %+v", saved)
	}

	m, _ = update(t, m, keyPress("esc"))
	if m.picker.active {
		t.Error("esc should close the picker")
	}
}

// TestWordLookupError tests that a failed lookup stays in the panel.
func TestWordLookupError(t *testing.T) {
	m, h := newTestModel(t)
	h.dict.err = errors.New("offline")
	m, _ = update(t, m, snapshotMsg(readySnapshot()))
	m, _ = update(t, m, keyPress("w"))
	m, cmd := update(t, m, keyPress("enter"))

	for _, msg := range runBatch(cmd) {
		if d, ok := msg.(definitionMsg); ok {
			m, _ = update(t, m, d)
		}
	}
	if m.picker.err == nil || m.picker.definition != nil {
		t.Errorf("picker = %+v, want an error", m.picker)
	}

	// nothing to save
	_, _ = update(t, m, keyPress("s"))
	if len(h.library.saved) != 0 {
		t.Error("saved a word without a definition")
	}
}

// TestNewSessionClosesPicker tests that switching sessions drops the picker.
func TestNewSessionClosesPicker(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = update(t, m, snapshotMsg(readySnapshot()))
	m, _ = update(t, m, keyPress("w"))

	next := readySnapshot()
	next.Session = &session.Session{ID: "s2", Script: dialogue()}
	m, _ = update(t, m, snapshotMsg(next))

	if m.picker.active {
		t.Error("picker should close when the session changes")
	}
}

// TestHistoryReplay tests opening history and replaying an entry.
func TestHistoryReplay(t *testing.T) {
	m, h := newTestModel(t)
	m, _ = update(t, m, historyMsg(testHistory()))

	m, _ = update(t, m, keyPress("h"))
	if m.screen != screenHistory {
		t.Fatalf("screen = %s, want history", m.screen)
	}

	m, _ = update(t, m, keyPress("down"))
	m, cmd := update(t, m, keyPress("enter"))
	if cmd == nil {
		t.Fatal("expected a select command")
	}
	sel, ok := cmd().(selectHistoryMsg)
	if !ok {
		t.Fatal("expected selectHistoryMsg")
	}

	m, cmd = update(t, m, sel)
	if m.screen != screenPlayer {
		t.Errorf("screen = %s, want player", m.screen)
	}
	cmd()
	if !reflect.DeepEqual(h.player.selected, []string{"train"}) {
		t.Errorf("selected = %v, want [train]", h.player.selected)
	}
}

// TestHistoryDelete tests deleting from the history list.
func TestHistoryDelete(t *testing.T) {
	m, h := newTestModel(t)
	m, _ = update(t, m, historyMsg(testHistory()))
	m, _ = update(t, m, keyPress("h"))
	_, _ = update(t, m, keyPress("d"))

	if !reflect.DeepEqual(h.player.deleted, []string{"cafe"}) {
		t.Errorf("deleted = %v, want [cafe]", h.player.deleted)
	}
}

// TestVocabularyDelete tests deleting a saved word.
func TestVocabularyDelete(t *testing.T) {
	m, h := newTestModel(t)
	m, _ = update(t, m, vocabularyMsg{
		{ID: "v1", Definition: script.Definition{Word: "hola"}},
		{ID: "v2", Definition: script.Definition{Word: "gracias"}},
	})

	m, _ = update(t, m, keyPress("v"))
	m, _ = update(t, m, keyPress("j"))
	m, _ = update(t, m, keyPress("d"))
	if !reflect.DeepEqual(h.library.removed, []string{"v2"}) {
		t.Errorf("removed = %v, want [v2]", h.library.removed)
	}

	m, _ = update(t, m, keyPress("esc"))
	if m.screen != screenPlayer {
		t.Errorf("screen = %s, want player", m.screen)
	}
}

// TestPositionTicks tests that the live position is only polled while
// playing.
func TestPositionTicks(t *testing.T) {
	m, h := newTestModel(t)
	snap := readySnapshot()
	snap.State = session.StatePlaying
	m, _ = update(t, m, snapshotMsg(snap))
	if !m.ticking {
		t.Fatal("should tick while playing")
	}

	h.player.now = 4
	m, cmd := update(t, m, positionTickMsg{id: m.tickID})
	if cmd == nil {
		t.Error("tick should reschedule while playing")
	}
	if m.status.position != 4 {
		t.Errorf("position = %v, want 4", m.status.position)
	}

	// stale ticks are dropped
	h.player.now = 9
	m, cmd = update(t, m, positionTickMsg{id: m.tickID - 1})
	if cmd != nil || m.status.position != 4 {
		t.Error("stale tick should be ignored")
	}

	snap.State = session.StatePaused
	snap.Progress = 4.5
	m, _ = update(t, m, snapshotMsg(snap))
	if m.ticking {
		t.Error("should stop ticking when paused")
	}
	if m.status.position != 4.5 {
		t.Errorf("paused position = %v, want 4.5", m.status.position)
	}
}

// TestQuit tests that quitting cancels in-flight work.
func TestQuit(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := update(t, m, keyPress("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if m.common.ctx.Err() == nil {
		t.Error("context should be cancelled on quit")
	}
}

// TestViewRenders tests that every screen renders at the window height.
func TestViewRenders(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = update(t, m, snapshotMsg(readySnapshot()))
	m, _ = update(t, m, historyMsg(testHistory()))

	for _, k := range []string{"", "h"} {
		if k != "" {
			m, _ = update(t, m, keyPress(k))
		}
		out := m.View()
		if out == "" {
			t.Errorf("empty view on %s", m.screen)
		}
		if lines := len(strings.Split(out, "\n")); lines != 30 {
			t.Errorf("%s view has %d lines, want 30", m.screen, lines)
		}
	}
}

func TestIndent(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"", 2, ""},
		{"a", 0, "a"},
		{"a\nb", 2, "  a\n  b"},
		{"a\n\nb", 1, " a\n\n b"},
	}
	for _, tt := range tests {
		if got := indent(tt.in, tt.n); got != tt.want {
			t.Errorf("indent(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestFitHeight(t *testing.T) {
	if got := fitHeight("a\nb\nc", 2); got != "a\nb" {
		t.Errorf("cut = %q", got)
	}
	if got := fitHeight("a", 3); got != "a\n\n" {
		t.Errorf("pad = %q", got)
	}
	if got := fitHeight("a", 0); got != "" {
		t.Errorf("zero = %q", got)
	}
}
