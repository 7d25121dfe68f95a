package audio

import (
	"errors"
	"fmt"
	"time"
)

// HardwareClock is the time source playback is measured against.
type HardwareClock interface {
	// Now returns a monotonic time since an arbitrary fixed origin.
	Now() time.Duration
}

// Output plays PCM buffers. Each Start creates one independent run.
type Output interface {
	// Start begins playing pcm from the given byte offset.
	Start(pcm *PCM, offset int) (Run, error)
}

// Run is a single playback of a buffer.
type Run interface {
	// Done is closed once the run has stopped for any reason.
	Done() <-chan struct{}

	// Stop halts the run. Stopping a finished run is a no-op.
	Stop()
}

// SystemClock measures wall time since it was created.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock whose origin is now.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now implements HardwareClock.
func (s *SystemClock) Now() time.Duration {
	return time.Since(s.start)
}

// OutputConfig configures the audio device.
type OutputConfig struct {
	SampleRate int           // Hz
	Channels   int           // 1 = mono, 2 = stereo
	BufferSize time.Duration // device buffer
	Volume     float64       // 0.0 to 1.0
}

// DefaultOutputConfig matches the speech synthesis output format.
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BufferSize: 100 * time.Millisecond,
		Volume:     1.0,
	}
}

func validateConfig(config OutputConfig) error {
	if config.SampleRate < 8000 || config.SampleRate > 192000 {
		return fmt.Errorf("sample rate must be between 8000 and 192000 Hz, got %d", config.SampleRate)
	}

	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}

	if config.BufferSize < 0 {
		return errors.New("buffer size must not be negative")
	}

	if config.Volume < 0.0 || config.Volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", config.Volume)
	}

	return nil
}
