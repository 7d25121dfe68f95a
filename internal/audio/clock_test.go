package audio

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// silence returns seconds of raw PCM16LE mono at the default rate.
func silence(seconds float64) []byte {
	frames := int(seconds * DefaultSampleRate)
	return make([]byte, frames*bytesPerSample)
}

func newTestClock(t *testing.T) (*Clock, *ManualClock, *MockOutput) {
	t.Helper()
	hw := NewManualClock()
	out := NewMockOutput(hw)
	return NewClock(out, hw), hw, out
}

func approx(a, b float64) bool {
	const eps = 1e-6
	d := a - b
	return d < eps && d > -eps
}

func TestIsNaturalEnd(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  float64
		duration float64
		want     bool
	}{
		{"exact end", 5.0, 5.0, true},
		{"past end", 5.05, 5.0, true},
		{"inside tolerance", 4.85, 5.0, true},
		{"outside tolerance", 4.7, 5.0, false},
		{"start of clip", 0, 5.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNaturalEnd(tt.elapsed, tt.duration); got != tt.want {
				t.Errorf("IsNaturalEnd(%v, %v) = %v, want %v", tt.elapsed, tt.duration, got, tt.want)
			}
		})
	}
}

func TestClockLoad(t *testing.T) {
	c, _, _ := newTestClock(t)

	d, err := c.Load(silence(5))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !approx(d, 5) || !approx(c.Duration(), 5) {
		t.Errorf("expected duration 5, got %v / %v", d, c.Duration())
	}
	if c.IsPlaying() {
		t.Error("Load must not start playback")
	}
	if c.CurrentTime() != 0 {
		t.Errorf("expected time 0 after load, got %v", c.CurrentTime())
	}
}

func TestClockLoadFailureLeavesState(t *testing.T) {
	c, _, _ := newTestClock(t)

	if _, err := c.Load(silence(2)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := c.Seek(1); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}

	for _, payload := range [][]byte{nil, {1, 2, 3}, []byte("RIFFjunk")} {
		if _, err := c.Load(payload); !errors.Is(err, ErrDecode) {
			t.Errorf("expected ErrDecode for %v, got %v", payload, err)
		}
	}

	if !approx(c.Duration(), 2) {
		t.Errorf("duration changed after failed load: %v", c.Duration())
	}
	if !approx(c.CurrentTime(), 1) {
		t.Errorf("time changed after failed load: %v", c.CurrentTime())
	}
	if c.State().IsLoading {
		t.Error("clock still reports loading")
	}
}

func TestClockLoadFormatMismatch(t *testing.T) {
	samples := make([]int, 4410)

	tests := []struct {
		name    string
		opts    []ClockOption
		payload func(t *testing.T) []byte
		want    float64
		wantErr bool
	}{
		{
			name:    "wav at the output rate",
			payload: func(t *testing.T) []byte { return writeWAV(t, DefaultSampleRate, 16, 1, samples) },
			want:    float64(len(samples)) / DefaultSampleRate,
		},
		{
			name:    "wav at another rate",
			payload: func(t *testing.T) []byte { return writeWAV(t, 44100, 16, 1, samples) },
			wantErr: true,
		},
		{
			name:    "stereo wav on a mono output",
			payload: func(t *testing.T) []byte { return writeWAV(t, DefaultSampleRate, 16, 2, samples) },
			wantErr: true,
		},
		{
			name:    "raw pcm follows the output rate",
			opts:    []ClockOption{WithFormat(48000, 1)},
			payload: func(*testing.T) []byte { return make([]byte, 48000*bytesPerSample) },
			want:    1,
		},
		{
			name:    "raw pcm on a stereo output",
			opts:    []ClockOption{WithFormat(DefaultSampleRate, 2)},
			payload: func(*testing.T) []byte { return silence(1) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hw := NewManualClock()
			c := NewClock(NewMockOutput(hw), hw, tt.opts...)

			d, err := c.Load(tt.payload(t))
			if tt.wantErr {
				if !errors.Is(err, ErrDecode) {
					t.Fatalf("expected ErrDecode, got %v", err)
				}
				if c.Loaded() {
					t.Error("a rejected payload must not be loaded")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if !approx(d, tt.want) {
				t.Errorf("duration = %v, want %v", d, tt.want)
			}
		})
	}
}

func TestClockPlayWithoutBuffer(t *testing.T) {
	c, _, out := newTestClock(t)

	if err := c.Play(nil); err != nil {
		t.Fatalf("Play on empty clock should be a no-op, got %v", err)
	}
	if c.IsPlaying() {
		t.Error("empty clock should not play")
	}
	if out.Starts() != 0 {
		t.Errorf("expected no output runs, got %d", out.Starts())
	}
}

func TestClockMonotonic(t *testing.T) {
	c, hw, _ := newTestClock(t)
	c.Load(silence(10))

	if err := c.Play(nil); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	last := c.CurrentTime()
	for i := 0; i < 50; i++ {
		hw.Advance(37 * time.Millisecond)
		now := c.CurrentTime()
		if now < last {
			t.Fatalf("time went backwards: %v -> %v", last, now)
		}
		last = now
	}

	if !approx(last, 50*0.037) {
		t.Errorf("expected %v elapsed, got %v", 50*0.037, last)
	}
}

func TestClockPauseAndResume(t *testing.T) {
	c, hw, out := newTestClock(t)
	c.Load(silence(5))

	var ended atomic.Int32
	c.Play(func() { ended.Add(1) })
	hw.Advance(1500 * time.Millisecond)

	c.Pause()
	if c.IsPlaying() {
		t.Fatal("expected paused clock")
	}
	if !approx(c.CurrentTime(), 1.5) {
		t.Errorf("expected paused at 1.5, got %v", c.CurrentTime())
	}
	if !out.LastRun().Stopped() {
		t.Error("pause should stop the output run")
	}

	hw.Advance(2 * time.Second)
	if !approx(c.CurrentTime(), 1.5) {
		t.Errorf("time moved while paused: %v", c.CurrentTime())
	}

	c.Pause() // idempotent

	if err := c.Play(nil); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if got, want := out.LastRun().Offset, 72000; got != want {
		t.Errorf("resume offset = %d bytes, want %d", got, want)
	}

	hw.Advance(500 * time.Millisecond)
	if !approx(c.CurrentTime(), 2.0) {
		t.Errorf("expected 2.0 after resume, got %v", c.CurrentTime())
	}

	time.Sleep(20 * time.Millisecond)
	if ended.Load() != 0 {
		t.Error("pause must not fire the natural end callback")
	}
}

func TestClockSeekWhilePaused(t *testing.T) {
	c, _, out := newTestClock(t)
	c.Load(silence(10))

	tests := []struct {
		seek float64
		want float64
	}{
		{3.25, 3.25},
		{-1, 0},
		{99, 10},
		{7, 7},
	}

	for _, tt := range tests {
		if err := c.Seek(tt.seek); err != nil {
			t.Fatalf("Seek(%v) failed: %v", tt.seek, err)
		}
		if got := c.CurrentTime(); got != tt.want {
			t.Errorf("Seek(%v): CurrentTime() = %v, want %v", tt.seek, got, tt.want)
		}
	}

	if c.IsPlaying() || out.Starts() != 0 {
		t.Error("seeking a paused clock must not start output")
	}
}

func TestClockSeekWhilePlaying(t *testing.T) {
	c, hw, out := newTestClock(t)
	c.Load(silence(10))

	var ended atomic.Int32
	done := make(chan struct{})
	c.Play(func() {
		ended.Add(1)
		close(done)
	})
	hw.Advance(time.Second)

	if err := c.Seek(4); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if !c.IsPlaying() {
		t.Fatal("seek should keep playing")
	}
	if !approx(c.CurrentTime(), 4) {
		t.Errorf("expected 4 after seek, got %v", c.CurrentTime())
	}
	if out.Starts() != 2 || out.Active() != 1 {
		t.Errorf("expected 2 starts and 1 active run, got %d / %d", out.Starts(), out.Active())
	}

	hw.Advance(time.Second)
	if !approx(c.CurrentTime(), 5) {
		t.Errorf("expected 5, got %v", c.CurrentTime())
	}

	// The callback survives the seek.
	hw.Advance(5 * time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("natural end callback did not fire after seek")
	}
	if ended.Load() != 1 {
		t.Errorf("expected one callback, got %d", ended.Load())
	}
}

func TestClockNaturalEnd(t *testing.T) {
	c, hw, _ := newTestClock(t)
	c.Load(silence(5))

	var calls atomic.Int32
	done := make(chan struct{}, 1)
	c.Play(func() {
		calls.Add(1)
		done <- struct{}{}
	})

	hw.Advance(5050 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("natural end callback did not fire")
	}

	if c.IsPlaying() {
		t.Error("clock should stop at the end")
	}
	if c.CurrentTime() != 0 {
		t.Errorf("expected time 0 after natural end, got %v", c.CurrentTime())
	}

	hw.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("expected exactly one callback, got %d", calls.Load())
	}
}

func TestClockReplayAfterEnd(t *testing.T) {
	c, hw, out := newTestClock(t)
	c.Load(silence(1))

	done := make(chan struct{})
	c.Play(func() { close(done) })
	hw.Advance(1100 * time.Millisecond)
	<-done

	if err := c.Play(nil); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if out.LastRun().Offset != 0 {
		t.Errorf("replay should restart at 0, got offset %d", out.LastRun().Offset)
	}
}

func TestClockStopAndReset(t *testing.T) {
	c, hw, out := newTestClock(t)
	c.Load(silence(5))

	var ended atomic.Int32
	c.Play(func() { ended.Add(1) })
	hw.Advance(2 * time.Second)

	c.Stop()
	if c.IsPlaying() || c.CurrentTime() != 0 {
		t.Errorf("stop should rewind: playing=%v time=%v", c.IsPlaying(), c.CurrentTime())
	}
	if !c.Loaded() || !approx(c.Duration(), 5) {
		t.Error("stop must keep the buffer")
	}
	c.Stop() // stopping a stopped clock is fine

	c.Reset()
	if c.Loaded() || c.Duration() != 0 {
		t.Error("reset must discard the buffer")
	}
	if out.Active() != 0 {
		t.Errorf("expected no active runs, got %d", out.Active())
	}

	time.Sleep(20 * time.Millisecond)
	if ended.Load() != 0 {
		t.Error("stop must not fire the natural end callback")
	}
}

func TestClockSingleRun(t *testing.T) {
	c, hw, out := newTestClock(t)
	c.Load(silence(30))

	for i := 0; i < 20; i++ {
		c.Play(nil)
		hw.Advance(100 * time.Millisecond)
		c.Seek(float64(i))
		if out.Active() > 1 {
			t.Fatalf("more than one output run after step %d", i)
		}
		if i%3 == 0 {
			c.Pause()
		}
	}
}

func TestClockStartError(t *testing.T) {
	c, _, out := newTestClock(t)
	c.Load(silence(1))

	out.SetStartError(errors.New("device busy"))
	if err := c.Play(nil); err == nil {
		t.Fatal("expected start error")
	}
	if c.IsPlaying() {
		t.Error("clock should not be playing after a failed start")
	}
}

func TestClockState(t *testing.T) {
	c, hw, _ := newTestClock(t)
	c.Load(silence(4))
	c.Play(nil)
	hw.Advance(time.Second)

	s := c.State()
	if !s.IsPlaying || s.IsLoading || !approx(s.Duration, 4) || !approx(s.CurrentTime, 1) {
		t.Errorf("unexpected state %+v", s)
	}
}
