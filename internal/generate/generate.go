// Package generate produces dialogue scripts, their audio and word
// definitions. OpenAIGenerator talks to the OpenAI API; MockGenerator works
// offline and is used by tests and the "mock" engine.
package generate

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgnsrekt/lingoplay/internal/script"
)

var (
	// ErrGeneration is matched by every generator failure.
	ErrGeneration = errors.New("generation failed")

	// ErrRateLimited is returned when the provider refused the request
	// because of quota or request rate. It also matches ErrGeneration.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrGeneration)
)

// ScriptGenerator writes a dialogue for a difficulty level.
type ScriptGenerator interface {
	Generate(ctx context.Context, level script.Level) (script.Script, error)
}

// AudioGenerator turns dialogue lines into one audio payload.
type AudioGenerator interface {
	Synthesize(ctx context.Context, lines []script.Line) ([]byte, error)
}

// Definer explains a word in the context of the sentence it came from.
type Definer interface {
	Define(ctx context.Context, word, sentence string) (script.Definition, error)
}

// Engine bundles the three generators of one provider.
type Engine interface {
	ScriptGenerator
	AudioGenerator
	Definer
}

// Engine names accepted by New.
const (
	EngineOpenAI = "openai"
	EngineMock   = "mock"
)

// New builds the generators for the named engine. For "openai" the returned
// audio generator already falls back to single-voice synthesis.
func New(name string, config OpenAIConfig) (ScriptGenerator, AudioGenerator, Definer, error) {
	switch name {
	case EngineMock:
		m := NewMockGenerator()
		return m, m, m, nil
	case EngineOpenAI, "":
		g, err := NewOpenAIGenerator(config)
		if err != nil {
			return nil, nil, nil, err
		}
		return g, NewFallbackSynthesizer(g, g.SingleVoice()), g, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown engine %q (use %s or %s)", name, EngineOpenAI, EngineMock)
	}
}

// generationError wraps err so it matches ErrGeneration while keeping the
// original cause reachable.
func generationError(op string, err error) error {
	if errors.Is(err, ErrGeneration) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrGeneration, op, err)
}
