package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/lingoplay/internal/audio"
	"github.com/dgnsrekt/lingoplay/internal/generate"
)

// errStaleSession marks work whose session was replaced while it ran. It
// never reaches callers.
var errStaleSession = errors.New("session is no longer current")

// Components reported in Error.
const (
	ComponentScript   = "script"
	ComponentAudio    = "audio"
	ComponentPlayback = "playback"
)

// Error is the one user-visible failure the orchestrator keeps until it is
// dismissed or a new session starts.
type Error struct {
	Err       error     // The underlying error
	Component string    // Stage that failed
	Action    string    // What was being done
	Timestamp time.Time // When it happened
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Message is a short explanation for the learner.
func (e *Error) Message() string {
	switch {
	case errors.Is(e.Err, generate.ErrMissingAPIKey):
		return "No OpenAI API key. Set OPENAI_API_KEY or run with --engine mock."
	case errors.Is(e.Err, generate.ErrRateLimited):
		return "The generator is busy. Wait a moment and try again."
	case errors.Is(e.Err, audio.ErrDecode):
		return "The audio for this session could not be decoded."
	case errors.Is(e.Err, generate.ErrGeneration):
		return fmt.Sprintf("Could not %s. Try again.", e.Action)
	default:
		return e.Error()
	}
}

func newError(err error, component, action string) *Error {
	return &Error{
		Err:       err,
		Component: component,
		Action:    action,
		Timestamp: time.Now(),
	}
}

// errorType labels an error for metrics.
func errorType(err error) string {
	switch {
	case errors.Is(err, generate.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, generate.ErrGeneration):
		return "generation"
	case errors.Is(err, audio.ErrDecode):
		return "decode"
	default:
		return "other"
	}
}
