// Package define looks up vocabulary and remembers the answers for the
// rest of the session.
package define

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lingoplay/internal/cache"
	"github.com/dgnsrekt/lingoplay/internal/generate"
	"github.com/dgnsrekt/lingoplay/internal/script"
	"golang.org/x/text/cases"
)

// ErrEmptyWord is returned when the word is blank after normalization.
var ErrEmptyWord = errors.New("no word to define")

// DefaultCapacity bounds the cached definitions, in encoded bytes.
const DefaultCapacity = 1 << 20

// Dictionary caches definitions by normalized word. It is independent of
// the audio cache.
type Dictionary struct {
	definer generate.Definer
	cache   *cache.MemoryCache
	logger  *log.Logger
}

// New creates a dictionary in front of definer.
func New(definer generate.Definer, capacity int64, logger *log.Logger) *Dictionary {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dictionary{
		definer: definer,
		cache:   cache.NewMemoryCache(capacity),
		logger:  logger,
	}
}

// Normalize case-folds word and strips surrounding punctuation, so "¿Qué?"
// and "qué" share a cache entry.
func Normalize(word string) string {
	// A Caser keeps state, so each call gets its own.
	return cases.Fold().String(trimWord(word))
}

func trimWord(word string) string {
	return strings.TrimFunc(word, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// Define returns the definition of word as used in sentence.
func (d *Dictionary) Define(ctx context.Context, word, sentence string) (script.Definition, error) {
	key := Normalize(word)
	if key == "" {
		return script.Definition{}, ErrEmptyWord
	}

	if data, ok := d.cache.Get(key); ok {
		var def script.Definition
		if err := json.Unmarshal(data, &def); err == nil {
			return def, nil
		}
		_ = d.cache.Delete(key)
	}

	def, err := d.definer.Define(ctx, trimWord(word), sentence)
	if err != nil {
		return script.Definition{}, err
	}

	if data, err := json.Marshal(def); err == nil {
		if err := d.cache.Put(key, data); err != nil {
			d.logger.Debug("Definition not cached", "word", key, "error", err)
		}
	}
	return def, nil
}

// Forget drops a cached definition.
func (d *Dictionary) Forget(word string) {
	_ = d.cache.Delete(Normalize(word))
}
