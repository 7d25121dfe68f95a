// Package session owns the lifecycle of a listening session: acquiring a
// script and its audio, driving playback and publishing the state the
// interface renders.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/lingoplay/internal/cache"
	"github.com/dgnsrekt/lingoplay/internal/generate"
	"github.com/dgnsrekt/lingoplay/internal/metrics"
	"github.com/dgnsrekt/lingoplay/internal/script"
	"github.com/dgnsrekt/lingoplay/internal/store"
	"github.com/dgnsrekt/lingoplay/internal/timing"
)

// Player is the playback clock the orchestrator drives. *audio.Clock
// implements it.
type Player interface {
	Load(payload []byte) (float64, error)
	Play(onNaturalEnd func()) error
	Pause()
	Seek(t float64) error
	Reset()
	CurrentTime() float64
	IsPlaying() bool
}

// HistoryStore receives completed sessions. *store.Library implements it.
type HistoryStore interface {
	SaveHistory(entry store.HistoryEntry)
	DeleteHistory(id string)
}

// Config wires an Orchestrator.
type Config struct {
	Scripts generate.ScriptGenerator
	Audio   generate.AudioGenerator
	Cache   cache.Store
	Player  Player
	History HistoryStore
	Logger  *log.Logger

	// FrameInterval is how often the active line is sampled while playing.
	FrameInterval time.Duration
}

// Session is the script currently owned by the orchestrator.
type Session struct {
	ID          string
	Script      script.Script
	CreatedAt   time.Time
	FromHistory bool
}

// Orchestrator serializes session changes. Every operation that starts a
// session issues a new ticket; asynchronous work checks its ticket before
// touching shared state and silently gives up when it has been replaced.
type Orchestrator struct {
	scripts generate.ScriptGenerator
	audio   generate.AudioGenerator
	cache   cache.Store
	player  Player
	history HistoryStore
	logger  *log.Logger
	frame   time.Duration

	tokens tokenRegister

	mu            sync.Mutex
	sm            *StateMachine
	level         script.Level
	session       *Session
	timings       timing.Table
	duration      float64
	activeLine    int
	hasActiveLine bool
	progress      float64
	finished      bool
	err           *Error
	sampler       *sampler

	subMu       sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSub     int
}

// New creates an idle orchestrator.
func New(config Config) *Orchestrator {
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultFrameInterval
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	o := &Orchestrator{
		scripts:     config.Scripts,
		audio:       config.Audio,
		cache:       config.Cache,
		player:      config.Player,
		history:     config.History,
		logger:      config.Logger,
		frame:       config.FrameInterval,
		sm:          NewStateMachine(),
		level:       script.Beginner,
		subscribers: make(map[int]func(Snapshot)),
	}
	for _, st := range allStates {
		st := st
		o.sm.OnEnter(st, func() {
			o.logger.Debug("Session state", "state", st)
		})
	}
	return o
}

// Start generates a new session at level. Any current session is dropped
// immediately. The returned error is also kept in the snapshot; a start
// that is overtaken by another returns nil.
func (o *Orchestrator) Start(ctx context.Context, level script.Level) error {
	return quiet(o.generate(ctx, level))
}

func (o *Orchestrator) generate(ctx context.Context, level script.Level) error {
	// The ticket is issued under the lock so the reset below always belongs
	// to the newest caller.
	o.mu.Lock()
	t := o.tokens.issue()
	o.resetLocked()
	o.err = nil
	o.level = level
	o.transitionLocked(StateGenerating)
	o.mu.Unlock()
	o.publish()

	metrics.SessionsStarted.WithLabelValues("generate").Inc()
	o.logger.Info("Generating session", "level", level)

	start := time.Now()
	s, err := o.scripts.Generate(ctx, level)
	metrics.ObserveStage("script", start)

	if !o.tokens.valid(t) {
		return o.discard("script")
	}
	if err != nil {
		return o.fail(t, newError(err, ComponentScript, "generate the script"))
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Script:    s,
		CreatedAt: time.Now(),
	}

	o.mu.Lock()
	if !o.tokens.valid(t) {
		o.mu.Unlock()
		return o.discard("script")
	}
	o.session = sess
	o.transitionLocked(StateAwaitingAudio)
	o.mu.Unlock()
	o.publish()

	return o.acquireAudio(ctx, t, sess)
}

// SelectHistory replays a saved session. The script is shown at once and
// the audio comes from the cache when it is still there.
func (o *Orchestrator) SelectHistory(ctx context.Context, entry store.HistoryEntry) error {
	return quiet(o.replay(ctx, entry))
}

func (o *Orchestrator) replay(ctx context.Context, entry store.HistoryEntry) error {
	sess := &Session{
		ID:          entry.ID,
		Script:      entry.Script,
		CreatedAt:   entry.CreatedAt,
		FromHistory: true,
	}

	o.mu.Lock()
	t := o.tokens.issue()
	o.resetLocked()
	o.err = nil
	o.level = entry.Script.Difficulty
	o.session = sess
	o.transitionLocked(StateAwaitingAudio)
	o.mu.Unlock()
	o.publish()

	metrics.SessionsStarted.WithLabelValues("history").Inc()
	o.logger.Info("Replaying session", "id", entry.ID, "title", entry.Script.Title)

	return o.acquireAudio(ctx, t, sess)
}

func (o *Orchestrator) acquireAudio(ctx context.Context, t *ticket, sess *Session) error {
	payload, hit := o.cache.Get(sess.ID)
	if !o.tokens.valid(t) {
		return o.discard("cache")
	}

	if hit {
		o.logger.Debug("Audio cache hit", "id", sess.ID)
	} else {
		start := time.Now()
		var err error
		payload, err = o.audio.Synthesize(ctx, sess.Script.Lines)
		metrics.ObserveStage("audio", start)

		if !o.tokens.valid(t) {
			return o.discard("audio")
		}
		if err != nil {
			return o.fail(t, newError(err, ComponentAudio, "generate the audio"))
		}
		o.cache.Put(sess.ID, payload)
	}

	// Loading holds the lock so a replaced session can never land in the
	// player after its successor.
	o.mu.Lock()
	if !o.tokens.valid(t) {
		o.mu.Unlock()
		return o.discard("decode")
	}
	start := time.Now()
	duration, err := o.player.Load(payload)
	metrics.ObserveStage("decode", start)
	if err != nil {
		o.mu.Unlock()
		o.cache.Delete(sess.ID)
		return o.fail(t, newError(err, ComponentAudio, "decode the audio"))
	}

	o.duration = duration
	o.timings = timing.ComputeTimings(sess.Script.Lines, duration)
	o.progress = 0
	o.hasActiveLine = false
	o.finished = false
	o.transitionLocked(StatePaused)
	o.mu.Unlock()
	o.publish()

	o.logger.Info("Session ready", "id", sess.ID, "duration", duration, "cached", hit)
	return nil
}

// Play starts or resumes playback. It does nothing while a session is
// loading or already playing.
func (o *Orchestrator) Play() {
	t := o.tokens.current.Load()

	o.mu.Lock()
	if o.sm.Current() != StatePaused || !o.tokens.valid(t) {
		o.mu.Unlock()
		return
	}

	if err := o.player.Play(func() { o.naturalEnd(t) }); err != nil {
		o.recordLocked(newError(err, ComponentPlayback, "start playback"))
		o.mu.Unlock()
		o.publish()
		return
	}

	o.finished = false
	o.transitionLocked(StatePlaying)
	o.startSamplerLocked()
	o.sampleLocked(true)
	o.mu.Unlock()
	o.publish()
}

// Pause halts playback, keeping the position.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	if o.sm.Current() != StatePlaying {
		o.mu.Unlock()
		return
	}

	o.player.Pause()
	o.stopSamplerLocked()
	o.transitionLocked(StatePaused)
	o.sampleLocked(true)
	o.mu.Unlock()
	o.publish()
}

// Toggle plays when paused and pauses when playing.
func (o *Orchestrator) Toggle() {
	o.mu.Lock()
	playing := o.sm.Current() == StatePlaying
	o.mu.Unlock()

	if playing {
		o.Pause()
	} else {
		o.Play()
	}
}

// Seek moves to t seconds, clamped to the audio. The new progress is
// published immediately even when paused.
func (o *Orchestrator) Seek(t float64) {
	o.mu.Lock()
	if !o.sm.Current().Ready() {
		o.mu.Unlock()
		return
	}

	if err := o.player.Seek(t); err != nil {
		o.recordLocked(newError(err, ComponentPlayback, "seek"))
	}
	if o.sm.Current() == StatePlaying && !o.player.IsPlaying() {
		o.stopSamplerLocked()
		o.transitionLocked(StatePaused)
	}
	o.finished = false
	o.sampleLocked(true)
	o.mu.Unlock()
	o.publish()
}

// SeekLine moves to the start of the given line.
func (o *Orchestrator) SeekLine(lineID int) {
	o.mu.Lock()
	r, ok := o.timings.Range(lineID)
	o.mu.Unlock()

	if ok {
		o.Seek(r.Start)
	}
}

// Complete saves the current session to history and ends it. Completing a
// replayed session leaves the saved entry as it is.
func (o *Orchestrator) Complete() {
	o.mu.Lock()
	if !o.sm.Current().Ready() || o.session == nil {
		o.mu.Unlock()
		return
	}

	o.tokens.clear()
	entry := store.HistoryEntry{
		ID:        o.session.ID,
		Script:    o.session.Script,
		CreatedAt: o.session.CreatedAt,
	}
	o.transitionLocked(StateCompleted)
	o.resetLocked()
	o.transitionLocked(StateIdle)
	o.mu.Unlock()

	o.history.SaveHistory(entry)
	o.logger.Info("Session completed", "id", entry.ID)
	o.publish()
}

// Stop drops the current session without saving it. Work still running for
// it is discarded when it finishes.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopLocked()
	o.mu.Unlock()
	o.publish()
}

func (o *Orchestrator) stopLocked() {
	o.tokens.clear()
	o.transitionLocked(StateStopped)
	o.resetLocked()
	o.transitionLocked(StateIdle)
}

// DeleteHistory removes a saved session and its cached audio, stopping it
// first if it is the current one.
func (o *Orchestrator) DeleteHistory(id string) {
	o.mu.Lock()
	current := o.session != nil && o.session.ID == id
	if current {
		o.stopLocked()
	}
	o.mu.Unlock()

	if current {
		o.publish()
	}
	o.cache.Delete(id)
	o.history.DeleteHistory(id)
}

// DismissError clears the visible error.
func (o *Orchestrator) DismissError() {
	o.mu.Lock()
	if o.err == nil {
		o.mu.Unlock()
		return
	}
	o.err = nil
	o.mu.Unlock()
	o.publish()
}

// CurrentTime is the live playback position, for progress displays that
// redraw more often than the active line changes.
func (o *Orchestrator) CurrentTime() float64 {
	return o.player.CurrentTime()
}

// Subscribe registers fn for every published snapshot and calls it once
// with the current one. The returned function unsubscribes.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) func() {
	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = fn
	o.subMu.Unlock()

	fn(o.Snapshot())

	return func() {
		o.subMu.Lock()
		delete(o.subscribers, id)
		o.subMu.Unlock()
	}
}

func (o *Orchestrator) publish() {
	snap := o.Snapshot()

	o.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(o.subscribers))
	for _, fn := range o.subscribers {
		fns = append(fns, fn)
	}
	o.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// naturalEnd runs when the audio plays to its end. The session rewinds to
// the start, paused, and is flagged finished.
func (o *Orchestrator) naturalEnd(t *ticket) {
	o.mu.Lock()
	if !o.tokens.valid(t) || !o.sm.Current().Ready() {
		o.mu.Unlock()
		return
	}

	o.stopSamplerLocked()
	if o.sm.Current() == StatePlaying {
		o.transitionLocked(StatePaused)
	}
	o.progress = 0
	o.hasActiveLine = false
	o.finished = true
	o.mu.Unlock()

	o.logger.Debug("Playback finished")
	o.publish()
}

// fail records err for the session holding t and returns to idle.
func (o *Orchestrator) fail(t *ticket, err *Error) error {
	o.mu.Lock()
	if !o.tokens.valid(t) {
		o.mu.Unlock()
		return o.discard(err.Component)
	}
	o.tokens.clear()
	o.resetLocked()
	o.recordLocked(err)
	o.transitionLocked(StateIdle)
	o.mu.Unlock()
	o.publish()

	return err
}

func (o *Orchestrator) discard(stage string) error {
	metrics.StaleDiscards.WithLabelValues(stage).Inc()
	o.logger.Debug("Discarded stale result", "stage", stage)
	return errStaleSession
}

func (o *Orchestrator) recordLocked(err *Error) {
	o.err = err
	metrics.Errors.WithLabelValues(err.Component, errorType(err.Err)).Inc()
	o.logger.Error("Session error", "component", err.Component, "action", err.Action, "error", err.Err)
}

// resetLocked drops the session and everything derived from it.
func (o *Orchestrator) resetLocked() {
	o.stopSamplerLocked()
	o.player.Reset()
	o.session = nil
	o.timings = nil
	o.duration = 0
	o.progress = 0
	o.activeLine = 0
	o.hasActiveLine = false
	o.finished = false
}

func (o *Orchestrator) transitionLocked(to StateType) {
	from := o.sm.Current()
	if from == to && to != StateGenerating && to != StateAwaitingAudio {
		return
	}
	if !o.sm.Transition(to) {
		o.logger.Debug("Ignored state transition", "from", from, "to", to)
	}
}

// Snapshot returns a copy of the published state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		State:         o.sm.Current(),
		Level:         o.level,
		Timings:       append(timing.Table(nil), o.timings...),
		Duration:      o.duration,
		ActiveLine:    o.activeLine,
		HasActiveLine: o.hasActiveLine,
		Progress:      o.progress,
		Finished:      o.finished,
		Err:           o.err,
	}
	if o.session != nil {
		sess := *o.session
		sess.Script.Lines = append([]script.Line(nil), o.session.Script.Lines...)
		snap.Session = &sess
	}
	return snap
}

// Snapshot is the state the interface renders.
type Snapshot struct {
	State         StateType
	Level         script.Level
	Session       *Session
	Timings       timing.Table
	Duration      float64
	ActiveLine    int
	HasActiveLine bool
	Progress      float64
	Finished      bool
	Err           *Error
}

// CanPlay reports whether Play would start playback.
func (s Snapshot) CanPlay() bool {
	return s.State == StatePaused
}

// Playing reports whether audio is playing.
func (s Snapshot) Playing() bool {
	return s.State == StatePlaying
}

// quiet hides errStaleSession from callers.
func quiet(err error) error {
	if errors.Is(err, errStaleSession) {
		return nil
	}
	return err
}
