package audio

import (
	"sync"
	"sync/atomic"
	"time"
)

// ManualClock is a HardwareClock that only moves when told to.
type ManualClock struct {
	mu        sync.Mutex
	now       time.Duration
	listeners []func(time.Duration)
}

// NewManualClock creates a clock at time zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// Now implements HardwareClock.
func (m *ManualClock) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward and notifies listeners.
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	now := m.now
	listeners := make([]func(time.Duration), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
}

// OnAdvance registers fn to run after every Advance.
func (m *ManualClock) OnAdvance(fn func(now time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// MockOutput is an Output whose runs end when a ManualClock passes the end
// of their buffer. No sound is produced.
type MockOutput struct {
	clock *ManualClock

	mu       sync.Mutex
	runs     []*MockRun
	startErr error

	starts atomic.Int64
}

// NewMockOutput creates an output driven by clock.
func NewMockOutput(clock *ManualClock) *MockOutput {
	o := &MockOutput{clock: clock}
	clock.OnAdvance(o.tick)
	return o
}

// MockRun is a simulated playback run.
type MockRun struct {
	Offset int           // byte offset the run started at
	EndsAt time.Duration // clock time the buffer runs out

	done    chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

// Done implements Run.
func (r *MockRun) Done() <-chan struct{} {
	return r.done
}

// Stop implements Run.
func (r *MockRun) Stop() {
	r.stopped.Store(true)
	r.finish()
}

// Stopped reports whether the run was halted rather than played out.
func (r *MockRun) Stopped() bool {
	return r.stopped.Load()
}

// Finished reports whether the run is over.
func (r *MockRun) Finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *MockRun) finish() {
	r.once.Do(func() { close(r.done) })
}

// Start implements Output.
func (o *MockOutput) Start(pcm *PCM, offset int) (Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.startErr != nil {
		return nil, o.startErr
	}

	remaining := 0.0
	if pcm.SampleRate > 0 && pcm.frameSize() > 0 {
		remaining = float64((len(pcm.Data)-offset)/pcm.frameSize()) / float64(pcm.SampleRate)
	}

	run := &MockRun{
		Offset: offset,
		EndsAt: o.clock.Now() + time.Duration(remaining*float64(time.Second)),
		done:   make(chan struct{}),
	}
	if remaining <= 0 {
		run.finish()
	}

	o.runs = append(o.runs, run)
	o.starts.Add(1)
	return run, nil
}

// SetStartError makes subsequent Start calls fail with err.
func (o *MockOutput) SetStartError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startErr = err
}

// Starts returns how many runs have been started.
func (o *MockOutput) Starts() int {
	return int(o.starts.Load())
}

// Active returns how many runs are still playing.
func (o *MockOutput) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, r := range o.runs {
		if !r.Finished() {
			n++
		}
	}
	return n
}

// LastRun returns the most recently started run, or nil.
func (o *MockOutput) LastRun() *MockRun {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.runs) == 0 {
		return nil
	}
	return o.runs[len(o.runs)-1]
}

func (o *MockOutput) tick(now time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, r := range o.runs {
		if !r.Finished() && now >= r.EndsAt {
			r.finish()
		}
	}
}
