package audio

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// ErrUnsupportedFormat is returned when a buffer does not match the device format.
var ErrUnsupportedFormat = errors.New("audio format does not match output device")

// pollInterval is how often a run checks whether oto has drained its buffer.
const pollInterval = 10 * time.Millisecond

// OtoOutput plays buffers on the system audio device using oto.
// oto allows a single context per process, so it is created on first use
// and shared by every run.
type OtoOutput struct {
	config OutputConfig

	once    sync.Once
	context *oto.Context
	initErr error
}

// NewOtoOutput validates the configuration. The device is opened lazily.
func NewOtoOutput(config OutputConfig) (*OtoOutput, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &OtoOutput{config: config}, nil
}

func (o *OtoOutput) open() (*oto.Context, error) {
	o.once.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   o.config.SampleRate,
			ChannelCount: o.config.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   o.config.BufferSize,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			o.initErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}

		<-readyChan
		o.context = ctx
		log.Debug("Audio device ready", "sample_rate", o.config.SampleRate, "channels", o.config.Channels)
	})
	return o.context, o.initErr
}

// Start implements Output.
func (o *OtoOutput) Start(pcm *PCM, offset int) (Run, error) {
	if pcm.SampleRate != o.config.SampleRate || pcm.Channels != o.config.Channels {
		return nil, fmt.Errorf("%w: got %d Hz/%d ch, device is %d Hz/%d ch",
			ErrUnsupportedFormat, pcm.SampleRate, pcm.Channels, o.config.SampleRate, o.config.Channels)
	}

	ctx, err := o.open()
	if err != nil {
		return nil, err
	}

	if offset < 0 || offset > len(pcm.Data) {
		offset = len(pcm.Data)
	}

	// The reader holds pcm.Data, which keeps the buffer alive for the run.
	player := ctx.NewPlayer(bytes.NewReader(pcm.Data[offset:]))
	if player == nil {
		return nil, errors.New("failed to create oto player")
	}
	player.SetVolume(o.config.Volume)
	player.Play()

	r := &otoRun{player: player, done: make(chan struct{})}
	go r.watch()
	return r, nil
}

type otoRun struct {
	player *oto.Player
	done   chan struct{}
	once   sync.Once
}

func (r *otoRun) Done() <-chan struct{} {
	return r.done
}

func (r *otoRun) Stop() {
	r.finish()
}

func (r *otoRun) finish() {
	r.once.Do(func() {
		r.player.Pause()
		if err := r.player.Close(); err != nil {
			log.Debug("Closing oto player", "error", err)
		}
		close(r.done)
	})
}

// watch detects the end of the buffer. oto has no completion callback, so
// the player is polled until it stops on its own.
func (r *otoRun) watch() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if !r.player.IsPlaying() {
				if err := r.player.Err(); err != nil {
					log.Warn("Audio playback failed", "error", err)
				}
				r.finish()
				return
			}
		}
	}
}
