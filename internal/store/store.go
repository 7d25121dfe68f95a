// Package store keeps the learner's history of completed sessions and saved
// vocabulary. Signed-in users get a SQLite document store; everyone else a
// local JSON list.
package store

import (
	"errors"
	"time"

	"github.com/dgnsrekt/lingoplay/internal/script"
)

// ErrStorage wraps every backend failure. Library absorbs these.
var ErrStorage = errors.New("library storage failure")

// Collection names one of the two lists.
type Collection string

const (
	History    Collection = "history"
	Vocabulary Collection = "vocabulary"
)

// HistoryEntry is a completed session. ID is the session id, which is also
// the audio cache key.
type HistoryEntry struct {
	ID        string        `json:"id"`
	Script    script.Script `json:"script"`
	CreatedAt time.Time     `json:"createdAt"`
}

// VocabularyEntry is a saved word.
type VocabularyEntry struct {
	ID         string            `json:"id"`
	Definition script.Definition `json:"definition"`
	Sentence   string            `json:"sentence"`
	SessionID  string            `json:"sessionId"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Backend is one storage implementation. Lists are returned newest first.
// Saving a history id that already exists is a no-op; saving a vocabulary
// id replaces the entry.
type Backend interface {
	History() ([]HistoryEntry, error)
	SaveHistory(e HistoryEntry) error
	DeleteHistory(id string) error

	Vocabulary() ([]VocabularyEntry, error)
	SaveVocabulary(e VocabularyEntry) error
	DeleteVocabulary(id string) error

	Close() error
}
