// Package script holds the dialogue types shared by generation, playback and
// storage.
package script

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors.
var (
	// ErrInvalidLevel is returned for an unknown difficulty level.
	ErrInvalidLevel = errors.New("invalid difficulty level")

	// ErrEmptyScript is returned when a script has no lines.
	ErrEmptyScript = errors.New("script has no lines")

	// ErrInvalidLine is returned when a line is missing its text or speaker.
	ErrInvalidLine = errors.New("invalid script line")
)

// Level is the difficulty a script is written for.
type Level string

const (
	// Beginner scripts use short sentences and common vocabulary.
	Beginner Level = "beginner"
	// Intermediate scripts use everyday conversation.
	Intermediate Level = "intermediate"
	// Advanced scripts use idioms and longer exchanges.
	Advanced Level = "advanced"
)

// Levels lists every supported level in ascending difficulty.
var Levels = []Level{Beginner, Intermediate, Advanced}

// ParseLevel normalizes s into a Level. Aliases "easy" and "hard" are
// accepted.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beginner", "easy":
		return Beginner, nil
	case "intermediate", "medium", "":
		return Intermediate, nil
	case "advanced", "hard":
		return Advanced, nil
	default:
		return "", fmt.Errorf("%w: %q (use beginner, intermediate or advanced)", ErrInvalidLevel, s)
	}
}

// String implements fmt.Stringer.
func (l Level) String() string { return string(l) }

// Next cycles to the following level, wrapping after Advanced.
func (l Level) Next() Level {
	for i, lv := range Levels {
		if lv == l {
			return Levels[(i+1)%len(Levels)]
		}
	}
	return Beginner
}

// Line is one spoken line of a dialogue. Lines are kept in speaking order.
type Line struct {
	ID          int    `json:"id"`
	Speaker     string `json:"speaker"`
	Text        string `json:"text"`
	Translation string `json:"translation"`
	Sentiment   string `json:"sentiment"`
}

// Script is a generated dialogue.
type Script struct {
	Title      string `json:"title"`
	Context    string `json:"context"`
	Difficulty Level  `json:"difficulty"`
	Lines      []Line `json:"lines"`
}

// Validate checks that the script can be synthesized and displayed.
func (s Script) Validate() error {
	if len(s.Lines) == 0 {
		return ErrEmptyScript
	}

	seen := make(map[int]bool, len(s.Lines))
	for i, l := range s.Lines {
		if strings.TrimSpace(l.Text) == "" {
			return fmt.Errorf("%w: line %d has no text", ErrInvalidLine, i)
		}
		if strings.TrimSpace(l.Speaker) == "" {
			return fmt.Errorf("%w: line %d has no speaker", ErrInvalidLine, i)
		}
		if seen[l.ID] {
			return fmt.Errorf("%w: duplicate line id %d", ErrInvalidLine, l.ID)
		}
		seen[l.ID] = true
	}
	return nil
}

// Speakers returns the distinct speakers in order of first appearance.
func (s Script) Speakers() []string {
	var speakers []string
	seen := make(map[string]bool)
	for _, l := range s.Lines {
		if !seen[l.Speaker] {
			seen[l.Speaker] = true
			speakers = append(speakers, l.Speaker)
		}
	}
	return speakers
}

// Line returns the line with the given id.
func (s Script) Line(id int) (Line, bool) {
	for _, l := range s.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return Line{}, false
}

// Transcript joins the lines as "Speaker: text", one per line.
func (s Script) Transcript() string {
	var b strings.Builder
	for i, l := range s.Lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Speaker)
		b.WriteString(": ")
		b.WriteString(l.Text)
	}
	return b.String()
}

// Definition is the result of a vocabulary lookup.
type Definition struct {
	Word      string `json:"word"`
	Primary   string `json:"definitionPrimary"`
	Secondary string `json:"definitionSecondary"`
	Example   string `json:"example"`
}
