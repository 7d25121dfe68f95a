package session

import "time"

const (
	// DefaultFrameInterval samples roughly once per display frame.
	DefaultFrameInterval = 16 * time.Millisecond

	// EndEpsilon is how close to the end, in seconds, the clock must be for
	// the active line to clear.
	EndEpsilon = 0.05
)

// sampler polls the player while it is playing and publishes when the
// active line changes.
type sampler struct {
	stopCh chan struct{}
}

func (o *Orchestrator) startSamplerLocked() {
	if o.sampler != nil {
		return
	}
	s := &sampler{stopCh: make(chan struct{})}
	o.sampler = s
	go o.sampleLoop(s)
}

func (o *Orchestrator) stopSamplerLocked() {
	if o.sampler == nil {
		return
	}
	close(o.sampler.stopCh)
	o.sampler = nil
}

func (o *Orchestrator) sampleLoop(s *sampler) {
	ticker := time.NewTicker(o.frame)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !o.sampleTick(s) {
				return
			}
		}
	}
}

// sampleTick takes one sample and reports whether the loop should go on.
// It ends the loop as soon as the player is no longer playing.
func (o *Orchestrator) sampleTick(s *sampler) bool {
	o.mu.Lock()
	if o.sampler != s {
		o.mu.Unlock()
		return false
	}

	if !o.player.IsPlaying() {
		// Output ended on its own. A natural end is handled by its callback;
		// an early one leaves the player paused where it stopped.
		o.sampler = nil
		if o.sm.Current() == StatePlaying {
			o.transitionLocked(StatePaused)
		}
		o.sampleLocked(true)
		o.mu.Unlock()
		o.publish()
		return false
	}

	changed := o.sampleLocked(false)
	o.mu.Unlock()

	if changed {
		o.publish()
	}
	return true
}

// sampleLocked maps the player position to a line. Progress is updated
// when the line changes, or always when force is set.
func (o *Orchestrator) sampleLocked(force bool) bool {
	cur := o.player.CurrentTime()
	id, ok := o.timings.LineAt(cur)

	changed := false
	switch {
	case ok && (!o.hasActiveLine || id != o.activeLine):
		o.activeLine = id
		o.hasActiveLine = true
		changed = true
	case !ok && o.hasActiveLine && cur >= o.duration-EndEpsilon:
		o.activeLine = 0
		o.hasActiveLine = false
		changed = true
	}

	if changed || force {
		o.progress = cur
	}
	return changed
}
