package generate

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lingoplay/internal/metrics"
	"github.com/dgnsrekt/lingoplay/internal/script"
)

// FallbackSynthesizer wraps a multi-voice primary with a single-voice
// degraded mode. Rate-limit failures are returned as they are; any other
// primary failure is retried once in degraded mode. A successful fallback
// looks exactly like a primary success to the caller.
type FallbackSynthesizer struct {
	primary  AudioGenerator
	fallback AudioGenerator
}

var _ AudioGenerator = (*FallbackSynthesizer)(nil)

// NewFallbackSynthesizer creates a synthesizer with automatic fallback.
func NewFallbackSynthesizer(primary, fallback AudioGenerator) *FallbackSynthesizer {
	return &FallbackSynthesizer{
		primary:  primary,
		fallback: fallback,
	}
}

// Synthesize implements AudioGenerator.
func (f *FallbackSynthesizer) Synthesize(ctx context.Context, lines []script.Line) ([]byte, error) {
	payload, err := f.primary.Synthesize(ctx, lines)
	if err == nil {
		return payload, nil
	}

	if errors.Is(err, ErrRateLimited) || ctx.Err() != nil {
		return nil, err
	}

	log.Warn("Multi-voice synthesis failed, retrying with a single voice", "error", err)
	metrics.SynthesisFallbacks.Inc()

	payload, fbErr := f.fallback.Synthesize(ctx, lines)
	if fbErr != nil {
		return nil, fmt.Errorf("both synthesizers failed: %w (primary: %v)", fbErr, err)
	}
	return payload, nil
}
