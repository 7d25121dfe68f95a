package audio

import (
	"bytes"
	"fmt"
	"math"
	"sync"

	"github.com/charmbracelet/log"
)

// NaturalEndTolerance is how close to the end of a buffer, in seconds, a run
// must get for its ending to count as the track finishing.
const NaturalEndTolerance = 0.2

// IsNaturalEnd reports whether a run that stopped after elapsed seconds
// reached the end of a buffer lasting duration seconds.
func IsNaturalEnd(elapsed, duration float64) bool {
	return elapsed >= duration-NaturalEndTolerance
}

// State is a snapshot of the clock.
type State struct {
	IsPlaying   bool
	IsLoading   bool
	Duration    float64
	CurrentTime float64
}

// ClockOption configures a Clock.
type ClockOption func(*Clock)

// WithFormat sets the format of the output device. Headerless payloads are
// read at this rate, and WAV payloads in any other format fail to load.
func WithFormat(sampleRate, channels int) ClockOption {
	return func(c *Clock) {
		c.sampleRate = sampleRate
		c.channels = channels
	}
}

// Clock is a seekable playback timeline over one decoded buffer.
//
// While playing, the current time is derived from the hardware clock as
// now minus the anchor; otherwise it is the stored offset. Every transition
// halts the running output before starting another, so at most one run
// exists at a time.
type Clock struct {
	out        Output
	hw         HardwareClock
	sampleRate int
	channels   int

	mu       sync.Mutex
	pcm      *PCM
	duration float64
	offset   float64
	anchor   float64
	playing  bool
	loads    int
	run      Run
	gen      uint64
	onEnd    func()
}

// NewClock creates an empty clock. A nil hw uses the system clock.
func NewClock(out Output, hw HardwareClock, opts ...ClockOption) *Clock {
	if hw == nil {
		hw = NewSystemClock()
	}
	c := &Clock{
		out:        out,
		hw:         hw,
		sampleRate: DefaultSampleRate,
		channels:   DefaultChannels,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load decodes payload and makes it the current buffer, paused at 0.
// On error the clock is left exactly as it was.
func (c *Clock) Load(payload []byte) (float64, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()

	pcm, err := Decode(payload, c.sampleRate)
	if err == nil && (pcm.SampleRate != c.sampleRate || pcm.Channels != c.channels) {
		err = &DecodeError{
			Format: payloadFormat(payload),
			Err: fmt.Errorf("%d Hz x %d channels does not match the output's %d Hz x %d",
				pcm.SampleRate, pcm.Channels, c.sampleRate, c.channels),
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads--

	if err != nil {
		return 0, err
	}

	c.haltLocked()
	c.pcm = pcm
	c.duration = pcm.Duration()
	c.offset = 0
	c.playing = false
	c.onEnd = nil

	return c.duration, nil
}

// Play starts output from the stored offset. Playing from the end restarts
// from the beginning. onNaturalEnd runs once if the buffer plays to its end;
// it never runs for runs halted by Pause, Seek, Stop or Reset.
func (c *Clock) Play(onNaturalEnd func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pcm == nil {
		return nil
	}

	if c.playing {
		c.offset = c.elapsedLocked()
	}
	if c.duration > 0 && c.offset >= c.duration {
		c.offset = math.Mod(c.offset, c.duration)
	}

	return c.startLocked(onNaturalEnd)
}

// Pause stores the current position and halts output.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playing {
		return
	}

	c.offset = c.elapsedLocked()
	c.haltLocked()
	c.playing = false
	c.onEnd = nil
}

// Seek moves to t, clamped to [0, duration]. A playing clock restarts output
// at the new position and keeps its end callback.
func (c *Clock) Seek(t float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t = clamp(t, 0, c.duration)
	if !c.playing {
		c.offset = t
		return nil
	}

	c.offset = t
	return c.startLocked(c.onEnd)
}

// Stop halts output and rewinds to 0, keeping the buffer.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.haltLocked()
	c.playing = false
	c.offset = 0
	c.onEnd = nil
}

// Reset halts output and discards the buffer.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.haltLocked()
	c.playing = false
	c.offset = 0
	c.onEnd = nil
	c.pcm = nil
	c.duration = 0
}

// CurrentTime returns the playback position in seconds.
func (c *Clock) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playing {
		return c.elapsedLocked()
	}
	return c.offset
}

// Duration returns the length of the loaded buffer in seconds.
func (c *Clock) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// IsPlaying reports whether output is running.
func (c *Clock) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Loaded reports whether a buffer is loaded.
func (c *Clock) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pcm != nil
}

// State returns a snapshot of the clock.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		IsPlaying:   c.playing,
		IsLoading:   c.loads > 0,
		Duration:    c.duration,
		CurrentTime: c.offset,
	}
	if c.playing {
		s.CurrentTime = c.elapsedLocked()
	}
	return s
}

func (c *Clock) startLocked(onEnd func()) error {
	c.haltLocked()

	run, err := c.out.Start(c.pcm, c.pcm.ByteOffset(c.offset))
	if err != nil {
		c.playing = false
		c.onEnd = nil
		return fmt.Errorf("failed to start output: %w", err)
	}

	c.run = run
	c.playing = true
	c.onEnd = onEnd
	c.anchor = c.now() - c.offset

	go c.watch(run, c.gen)
	return nil
}

// haltLocked stops the current run. Bumping the generation first makes the
// run's watcher ignore the Done it is about to see.
func (c *Clock) haltLocked() {
	c.gen++
	if c.run != nil {
		c.run.Stop()
		c.run = nil
	}
}

func (c *Clock) watch(run Run, gen uint64) {
	<-run.Done()

	c.mu.Lock()
	if gen != c.gen || !c.playing {
		c.mu.Unlock()
		return
	}

	elapsed := c.now() - c.anchor
	c.run = nil
	c.playing = false

	if !IsNaturalEnd(elapsed, c.duration) {
		c.offset = clamp(elapsed, 0, c.duration)
		c.onEnd = nil
		c.mu.Unlock()
		log.Warn("Audio output stopped before the end", "elapsed", elapsed, "duration", c.duration)
		return
	}

	c.offset = 0
	cb := c.onEnd
	c.onEnd = nil
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func (c *Clock) elapsedLocked() float64 {
	return clamp(c.now()-c.anchor, 0, c.duration)
}

func (c *Clock) now() float64 {
	return c.hw.Now().Seconds()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func payloadFormat(payload []byte) string {
	if bytes.HasPrefix(payload, []byte("RIFF")) {
		return "wav"
	}
	return "pcm"
}
