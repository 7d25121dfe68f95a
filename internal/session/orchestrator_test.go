package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/lingoplay/internal/audio"
	"github.com/dgnsrekt/lingoplay/internal/cache"
	"github.com/dgnsrekt/lingoplay/internal/generate"
	"github.com/dgnsrekt/lingoplay/internal/script"
	"github.com/dgnsrekt/lingoplay/internal/store"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// pcm returns seconds of raw PCM16LE mono at the default rate.
func pcm(seconds float64) []byte {
	frames := int(seconds * audio.DefaultSampleRate)
	return make([]byte, frames*2)
}

func approx(a, b float64) bool {
	const eps = 1e-3
	d := a - b
	return d < eps && d > -eps
}

func dialogue(title, first, second string) script.Script {
	return script.Script{
		Title:      title,
		Difficulty: script.Beginner,
		Lines: []script.Line{
			{ID: 1, Speaker: "Ana", Text: first},
			{ID: 2, Speaker: "Luis", Text: second},
		},
	}
}

var (
	scriptA = dialogue("A", "Hi", "Hello there")
	scriptB = dialogue("B", "Buenos días", "Hola")
)

type scriptCall struct {
	level  script.Level
	result chan scriptResult
}

type scriptResult struct {
	script script.Script
	err    error
}

// fakeScripts returns next immediately, or hands each call to the test
// when gated.
type fakeScripts struct {
	mu    sync.Mutex
	next  script.Script
	err   error
	gated bool
	calls chan *scriptCall
}

func (f *fakeScripts) Generate(ctx context.Context, level script.Level) (script.Script, error) {
	f.mu.Lock()
	gated, s, err := f.gated, f.next, f.err
	f.mu.Unlock()

	if !gated {
		return s, err
	}

	c := &scriptCall{level: level, result: make(chan scriptResult, 1)}
	f.calls <- c
	select {
	case r := <-c.result:
		return r.script, r.err
	case <-ctx.Done():
		return script.Script{}, ctx.Err()
	}
}

func (f *fakeScripts) await(t *testing.T) *scriptCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a script request")
		return nil
	}
}

type audioCall struct {
	lines  []script.Line
	result chan audioResult
}

type audioResult struct {
	payload []byte
	err     error
}

// fakeAudio renders silence whose length depends on the first line.
type fakeAudio struct {
	mu        sync.Mutex
	durations map[string]float64
	payload   []byte
	err       error
	gated     bool
	requested []string
	calls     chan *audioCall
}

func (f *fakeAudio) Synthesize(ctx context.Context, lines []script.Line) ([]byte, error) {
	f.mu.Lock()
	f.requested = append(f.requested, lines[0].Text)
	gated, payload, err := f.gated, f.payload, f.err
	seconds, ok := f.durations[lines[0].Text]
	f.mu.Unlock()

	if gated {
		c := &audioCall{lines: lines, result: make(chan audioResult, 1)}
		f.calls <- c
		select {
		case r := <-c.result:
			return r.payload, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if payload != nil {
		return payload, nil
	}
	if !ok {
		seconds = 10
	}
	return pcm(seconds), nil
}

func (f *fakeAudio) Requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requested...)
}

func (f *fakeAudio) await(t *testing.T) *audioCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an audio request")
		return nil
	}
}

type fakeHistory struct {
	mu      sync.Mutex
	saved   []store.HistoryEntry
	deleted []string
}

func (f *fakeHistory) SaveHistory(e store.HistoryEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, e)
}

func (f *fakeHistory) DeleteHistory(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

func (f *fakeHistory) Saved() []store.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.HistoryEntry(nil), f.saved...)
}

type harness struct {
	o       *Orchestrator
	clock   *audio.Clock
	hw      *audio.ManualClock
	out     *audio.MockOutput
	scripts *fakeScripts
	audio   *fakeAudio
	cache   *cache.ArtifactCache
	history *fakeHistory
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	hw := audio.NewManualClock()
	out := audio.NewMockOutput(hw)
	h := &harness{
		clock: audio.NewClock(out, hw),
		hw:    hw,
		out:   out,
		scripts: &fakeScripts{
			next:  scriptA,
			calls: make(chan *scriptCall, 4),
		},
		audio: &fakeAudio{
			durations: map[string]float64{"Hi": 10, "Buenos días": 6},
			calls:     make(chan *audioCall, 4),
		},
		cache:   cache.NewArtifactCache(cache.Config{MemoryCapacity: 16 << 20}, quietLogger()),
		history: &fakeHistory{},
	}
	h.o = New(Config{
		Scripts:       h.scripts,
		Audio:         h.audio,
		Cache:         h.cache,
		Player:        h.clock,
		History:       h.history,
		Logger:        quietLogger(),
		FrameInterval: time.Millisecond,
	})
	t.Cleanup(h.o.Stop)
	return h
}

func waitFor(t *testing.T, o *Orchestrator, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := o.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last state %s", what, snap.State)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for operation to return")
		return nil
	}
}

func TestOrchestrator_FreshSession(t *testing.T) {
	h := newHarness(t)

	if err := h.o.Start(context.Background(), script.Beginner); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snap := h.o.Snapshot()
	if snap.State != StatePaused {
		t.Fatalf("expected paused, got %s", snap.State)
	}
	if snap.Session == nil || snap.Session.Script.Title != "A" || snap.Session.ID == "" {
		t.Fatalf("unexpected session: %+v", snap.Session)
	}
	if !approx(snap.Duration, 10) {
		t.Errorf("duration = %f, want 10", snap.Duration)
	}
	if len(snap.Timings) != 2 || !approx(snap.Timings[0].End, 3.636) || !approx(snap.Timings[1].End, 10) {
		t.Errorf("unexpected timings: %+v", snap.Timings)
	}
	if _, ok := h.cache.Get(snap.Session.ID); !ok {
		t.Error("synthesized audio should be cached under the session id")
	}

	h.o.Play()
	snap = h.o.Snapshot()
	if snap.State != StatePlaying || !snap.HasActiveLine || snap.ActiveLine != 1 {
		t.Fatalf("expected playing on line 1, got %s line %d", snap.State, snap.ActiveLine)
	}

	h.hw.Advance(4 * time.Second)
	snap = waitFor(t, h.o, "line 2", func(s Snapshot) bool { return s.ActiveLine == 2 })
	if !approx(snap.Progress, 4) {
		t.Errorf("progress = %f, want 4", snap.Progress)
	}

	h.o.Pause()
	snap = h.o.Snapshot()
	if snap.State != StatePaused || !approx(snap.Progress, 4) {
		t.Errorf("after pause: %s at %f", snap.State, snap.Progress)
	}
	if h.out.Active() != 0 {
		t.Errorf("%d runs still active after pause", h.out.Active())
	}
}

func TestOrchestrator_StaleScriptDiscarded(t *testing.T) {
	tests := []struct {
		name       string
		olderFirst bool
	}{
		{"older result arrives first", true},
		{"newer result arrives first", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.scripts.gated = true
			ctx := context.Background()

			errA := make(chan error, 1)
			go func() { errA <- h.o.Start(ctx, script.Beginner) }()
			callA := h.scripts.await(t)

			errB := make(chan error, 1)
			go func() { errB <- h.o.Start(ctx, script.Intermediate) }()
			callB := h.scripts.await(t)

			if tt.olderFirst {
				callA.result <- scriptResult{script: scriptA}
				if err := waitErr(t, errA); err != nil {
					t.Errorf("stale start should return nil, got %v", err)
				}
				callB.result <- scriptResult{script: scriptB}
				if err := waitErr(t, errB); err != nil {
					t.Fatalf("current start failed: %v", err)
				}
			} else {
				callB.result <- scriptResult{script: scriptB}
				if err := waitErr(t, errB); err != nil {
					t.Fatalf("current start failed: %v", err)
				}
				callA.result <- scriptResult{script: scriptA}
				if err := waitErr(t, errA); err != nil {
					t.Errorf("stale start should return nil, got %v", err)
				}
			}

			snap := h.o.Snapshot()
			if snap.State != StatePaused || snap.Session == nil || snap.Session.Script.Title != "B" {
				t.Fatalf("expected B ready, got %s %+v", snap.State, snap.Session)
			}
			if snap.Level != script.Intermediate {
				t.Errorf("level = %s, want intermediate", snap.Level)
			}
			if !approx(h.clock.Duration(), 6) {
				t.Errorf("player holds %f seconds of audio, want B's 6", h.clock.Duration())
			}
			if got := h.audio.Requested(); len(got) != 1 || got[0] != "Buenos días" {
				t.Errorf("audio requested for %v, want only B", got)
			}
		})
	}
}

func TestOrchestrator_StaleAudioDiscarded(t *testing.T) {
	h := newHarness(t)
	h.audio.gated = true
	ctx := context.Background()

	errA := make(chan error, 1)
	go func() { errA <- h.o.Start(ctx, script.Beginner) }()
	callA := h.audio.await(t)

	h.cache.Put("y", pcm(6))
	if err := h.o.SelectHistory(ctx, store.HistoryEntry{ID: "y", Script: scriptB}); err != nil {
		t.Fatalf("SelectHistory failed: %v", err)
	}

	callA.result <- audioResult{payload: pcm(10)}
	if err := waitErr(t, errA); err != nil {
		t.Errorf("stale start should return nil, got %v", err)
	}

	snap := h.o.Snapshot()
	if snap.Session == nil || snap.Session.ID != "y" || !snap.Session.FromHistory {
		t.Fatalf("expected history session y, got %+v", snap.Session)
	}
	if !approx(h.clock.Duration(), 6) {
		t.Errorf("player holds %f seconds, want 6", h.clock.Duration())
	}
}

func TestOrchestrator_RapidHistorySwitch(t *testing.T) {
	h := newHarness(t)
	h.audio.gated = true
	ctx := context.Background()

	x := store.HistoryEntry{ID: "x", Script: scriptA, CreatedAt: time.Now()}
	y := store.HistoryEntry{ID: "y", Script: scriptB, CreatedAt: time.Now()}

	errX := make(chan error, 1)
	go func() { errX <- h.o.SelectHistory(ctx, x) }()
	callX := h.audio.await(t)

	errY := make(chan error, 1)
	go func() { errY <- h.o.SelectHistory(ctx, y) }()
	callY := h.audio.await(t)

	if snap := h.o.Snapshot(); snap.Session == nil || snap.Session.ID != "y" || snap.State != StateAwaitingAudio {
		t.Fatalf("Y's script should show while its audio loads, got %+v", snap.Session)
	}

	callY.result <- audioResult{payload: pcm(6)}
	if err := waitErr(t, errY); err != nil {
		t.Fatalf("SelectHistory(y) failed: %v", err)
	}
	callX.result <- audioResult{payload: pcm(10)}
	if err := waitErr(t, errX); err != nil {
		t.Errorf("stale select should return nil, got %v", err)
	}

	snap := h.o.Snapshot()
	if snap.Session.ID != "y" || snap.State != StatePaused {
		t.Fatalf("expected y ready, got %s %s", snap.Session.ID, snap.State)
	}
	if !approx(h.clock.Duration(), 6) {
		t.Errorf("player holds %f seconds, want Y's 6", h.clock.Duration())
	}
	if _, ok := h.cache.Get("x"); ok {
		t.Error("stale audio must not be cached")
	}
}

// TestOrchestrator_ConcurrentSelect lets two selections contend for the
// orchestrator lock. Whichever enters last must end up loaded, never a mix
// of the two.
func TestOrchestrator_ConcurrentSelect(t *testing.T) {
	x := store.HistoryEntry{ID: "x", Script: scriptA, CreatedAt: time.Now()}
	y := store.HistoryEntry{ID: "y", Script: scriptB, CreatedAt: time.Now()}
	want := map[string]float64{"x": 10, "y": 6}

	for i := 0; i < 50; i++ {
		h := newHarness(t)
		ctx := context.Background()

		h.o.mu.Lock()
		errX := make(chan error, 1)
		go func() { errX <- h.o.SelectHistory(ctx, x) }()
		time.Sleep(time.Millisecond)
		h.o.mu.Unlock()

		if err := h.o.SelectHistory(ctx, y); err != nil {
			t.Fatalf("SelectHistory(y) failed: %v", err)
		}
		if err := waitErr(t, errX); err != nil {
			t.Fatalf("SelectHistory(x) failed: %v", err)
		}

		snap := h.o.Snapshot()
		if snap.State != StatePaused || snap.Session == nil {
			t.Fatalf("run %d: expected a ready session, got %s", i, snap.State)
		}
		if d := want[snap.Session.ID]; !approx(h.clock.Duration(), d) || !approx(snap.Duration, d) {
			t.Fatalf("run %d: session %s holds %f seconds of audio, want %f",
				i, snap.Session.ID, h.clock.Duration(), d)
		}
	}
}

func TestOrchestrator_CacheHitSkipsSynthesis(t *testing.T) {
	h := newHarness(t)
	h.cache.Put("h1", pcm(5))

	entry := store.HistoryEntry{ID: "h1", Script: scriptA, CreatedAt: time.Now()}
	if err := h.o.SelectHistory(context.Background(), entry); err != nil {
		t.Fatalf("SelectHistory failed: %v", err)
	}

	if got := h.audio.Requested(); len(got) != 0 {
		t.Errorf("cache hit should not synthesize, requested %v", got)
	}
	snap := h.o.Snapshot()
	if snap.State != StatePaused || !approx(snap.Duration, 5) {
		t.Errorf("expected 5s ready, got %s %f", snap.State, snap.Duration)
	}
}

func TestOrchestrator_NaturalEnd(t *testing.T) {
	h := newHarness(t)
	if err := h.o.Start(context.Background(), script.Beginner); err != nil {
		t.Fatal(err)
	}

	h.o.Play()
	h.hw.Advance(10500 * time.Millisecond)

	snap := waitFor(t, h.o, "natural end", func(s Snapshot) bool { return s.Finished })
	if snap.State != StatePaused {
		t.Errorf("expected paused after natural end, got %s", snap.State)
	}
	if snap.Progress != 0 || snap.HasActiveLine {
		t.Errorf("expected rewind with no active line, got %f line %v", snap.Progress, snap.HasActiveLine)
	}

	h.o.Play()
	if snap := h.o.Snapshot(); snap.State != StatePlaying || snap.Finished {
		t.Errorf("replay after end: %s finished=%v", snap.State, snap.Finished)
	}
}

func TestOrchestrator_Seek(t *testing.T) {
	h := newHarness(t)
	if err := h.o.Start(context.Background(), script.Beginner); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var published []Snapshot
	h.o.Subscribe(func(s Snapshot) {
		mu.Lock()
		published = append(published, s)
		mu.Unlock()
	})

	tests := []struct {
		to       float64
		progress float64
		line     int
		active   bool
	}{
		{5, 5, 2, true},
		{100, 10, 0, false},
		{-3, 0, 1, true},
	}
	for _, tt := range tests {
		h.o.Seek(tt.to)
		snap := h.o.Snapshot()
		if !approx(snap.Progress, tt.progress) || snap.HasActiveLine != tt.active || snap.ActiveLine != tt.line {
			t.Errorf("Seek(%v): progress %f line %d active %v", tt.to, snap.Progress, snap.ActiveLine, snap.HasActiveLine)
		}
	}

	h.o.SeekLine(2)
	if snap := h.o.Snapshot(); !approx(snap.Progress, 3.636) || snap.ActiveLine != 2 {
		t.Errorf("SeekLine(2): progress %f line %d", snap.Progress, snap.ActiveLine)
	}

	mu.Lock()
	defer mu.Unlock()
	// Initial snapshot plus one per seek.
	if len(published) != 5 {
		t.Errorf("got %d published snapshots, want 5", len(published))
	}
}

func TestOrchestrator_Complete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.o.Start(ctx, script.Beginner); err != nil {
		t.Fatal(err)
	}
	id := h.o.Snapshot().Session.ID

	h.o.Play()
	h.o.Complete()

	snap := h.o.Snapshot()
	if snap.State != StateIdle || snap.Session != nil {
		t.Fatalf("expected idle with no session, got %s", snap.State)
	}
	if h.clock.Loaded() {
		t.Error("player should be cleared")
	}
	if h.o.tokens.current.Load() != nil {
		t.Error("ticket should be cleared")
	}

	h.o.Complete()
	saved := h.history.Saved()
	if len(saved) != 1 || saved[0].ID != id || saved[0].Script.Title != "A" {
		t.Fatalf("unexpected saves: %+v", saved)
	}

	// Replaying comes from the cache and completing again reuses the id.
	if err := h.o.SelectHistory(ctx, saved[0]); err != nil {
		t.Fatal(err)
	}
	if got := h.audio.Requested(); len(got) != 1 {
		t.Errorf("replay should hit the cache, synthesized %d times", len(got))
	}
	h.o.Complete()
	saved = h.history.Saved()
	if len(saved) != 2 || saved[1].ID != id {
		t.Errorf("second completion should save under %s: %+v", id, saved)
	}
}

func TestOrchestrator_Errors(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness)
		component string
		target    error
	}{
		{
			name:      "script rate limited",
			setup:     func(h *harness) { h.scripts.err = generate.ErrRateLimited },
			component: ComponentScript,
			target:    generate.ErrRateLimited,
		},
		{
			name:      "audio failure",
			setup:     func(h *harness) { h.audio.err = generate.ErrGeneration },
			component: ComponentAudio,
			target:    generate.ErrGeneration,
		},
		{
			name:      "undecodable audio",
			setup:     func(h *harness) { h.audio.payload = []byte{1, 2, 3} },
			component: ComponentAudio,
			target:    audio.ErrDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			err := h.o.Start(context.Background(), script.Beginner)
			var sessErr *Error
			if !errors.As(err, &sessErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if sessErr.Component != tt.component || !errors.Is(err, tt.target) {
				t.Errorf("got %s %v", sessErr.Component, err)
			}
			if sessErr.Message() == "" {
				t.Error("error should carry a message")
			}

			snap := h.o.Snapshot()
			if snap.State != StateIdle || snap.Session != nil || snap.Err == nil {
				t.Fatalf("expected idle with error, got %s err=%v", snap.State, snap.Err)
			}
			if h.clock.Loaded() {
				t.Error("failed session must not leave audio loaded")
			}

			h.o.DismissError()
			if h.o.Snapshot().Err != nil {
				t.Error("DismissError should clear the error")
			}
		})
	}
}

func TestOrchestrator_UndecodableAudioLeavesCache(t *testing.T) {
	h := newHarness(t)
	h.cache.Put("bad", []byte{1, 2, 3})

	err := h.o.SelectHistory(context.Background(), store.HistoryEntry{ID: "bad", Script: scriptA})
	if !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, ok := h.cache.Get("bad"); ok {
		t.Error("undecodable payload should be evicted")
	}
}

func TestOrchestrator_StartClearsError(t *testing.T) {
	h := newHarness(t)
	h.scripts.err = generate.ErrRateLimited
	_ = h.o.Start(context.Background(), script.Beginner)

	h.scripts.err = nil
	if err := h.o.Start(context.Background(), script.Beginner); err != nil {
		t.Fatal(err)
	}
	if h.o.Snapshot().Err != nil {
		t.Error("a new session should clear the old error")
	}
}

func TestOrchestrator_StopDuringGeneration(t *testing.T) {
	h := newHarness(t)
	h.scripts.gated = true

	errCh := make(chan error, 1)
	go func() { errCh <- h.o.Start(context.Background(), script.Beginner) }()
	call := h.scripts.await(t)

	h.o.Play()
	if snap := h.o.Snapshot(); snap.State != StateGenerating {
		t.Errorf("Play while generating should be ignored, got %s", snap.State)
	}

	h.o.Stop()
	call.result <- scriptResult{script: scriptA}
	if err := waitErr(t, errCh); err != nil {
		t.Errorf("stopped start should return nil, got %v", err)
	}

	snap := h.o.Snapshot()
	if snap.State != StateIdle || snap.Session != nil {
		t.Errorf("expected idle, got %s", snap.State)
	}
	if got := h.audio.Requested(); len(got) != 0 {
		t.Errorf("stopped session requested audio: %v", got)
	}
	if h.out.Starts() != 0 {
		t.Errorf("output started %d times", h.out.Starts())
	}
}

func TestOrchestrator_PlaybackStartError(t *testing.T) {
	h := newHarness(t)
	if err := h.o.Start(context.Background(), script.Beginner); err != nil {
		t.Fatal(err)
	}

	h.out.SetStartError(errors.New("no device"))
	h.o.Play()

	snap := h.o.Snapshot()
	if snap.State != StatePaused || snap.Session == nil {
		t.Errorf("session should stay loaded, got %s", snap.State)
	}
	if snap.Err == nil || snap.Err.Component != ComponentPlayback {
		t.Errorf("expected playback error, got %v", snap.Err)
	}
}

func TestOrchestrator_DeleteHistory(t *testing.T) {
	h := newHarness(t)
	h.cache.Put("h1", pcm(5))
	entry := store.HistoryEntry{ID: "h1", Script: scriptA}
	if err := h.o.SelectHistory(context.Background(), entry); err != nil {
		t.Fatal(err)
	}

	h.o.DeleteHistory("h1")

	if snap := h.o.Snapshot(); snap.State != StateIdle || snap.Session != nil {
		t.Errorf("deleting the current session should stop it, got %s", snap.State)
	}
	if _, ok := h.cache.Get("h1"); ok {
		t.Error("cached audio should be deleted")
	}
	h.history.mu.Lock()
	defer h.history.mu.Unlock()
	if len(h.history.deleted) != 1 || h.history.deleted[0] != "h1" {
		t.Errorf("unexpected deletes: %v", h.history.deleted)
	}
}

func TestOrchestrator_DeleteOtherHistoryKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.cache.Put("h1", pcm(5))
	h.cache.Put("h2", pcm(3))
	entry := store.HistoryEntry{ID: "h1", Script: scriptA}
	if err := h.o.SelectHistory(context.Background(), entry); err != nil {
		t.Fatal(err)
	}

	h.o.DeleteHistory("h2")

	snap := h.o.Snapshot()
	if snap.State != StatePaused || snap.Session == nil || snap.Session.ID != "h1" {
		t.Errorf("deleting another entry should keep h1 loaded, got %s", snap.State)
	}
	if !approx(h.clock.Duration(), 5) {
		t.Errorf("player holds %f seconds, want 5", h.clock.Duration())
	}
	if _, ok := h.cache.Get("h2"); ok {
		t.Error("h2 audio should be deleted")
	}
}
