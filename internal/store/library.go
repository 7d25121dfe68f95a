package store

import (
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lingoplay/internal/metrics"
)

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "lingoplay.db"

// Config selects the backend.
type Config struct {
	// DataDir holds the database and the local lists.
	DataDir string
	// UserID selects the document store. Empty means the local list.
	UserID string
}

// Library routes the two collections to the right backend and fans changes
// out to subscribers. Backend failures are logged and absorbed: reads
// return empty lists and writes are dropped.
type Library struct {
	backend Backend
	local   *LocalStore // the backend itself, or the migration source when signed in
	signed  bool
	logger  *log.Logger

	migrateOnce sync.Once

	mu          sync.Mutex
	historySubs map[int]func([]HistoryEntry)
	vocabSubs   map[int]func([]VocabularyEntry)
	nextSub     int
}

// Open creates the library for config. A user id selects the SQLite store;
// without one the local JSON lists are used and watched for outside
// changes.
func Open(config Config, logger *log.Logger) (*Library, error) {
	if logger == nil {
		logger = log.Default()
	}

	l := &Library{
		logger:      logger,
		historySubs: make(map[int]func([]HistoryEntry)),
		vocabSubs:   make(map[int]func([]VocabularyEntry)),
	}

	local, err := NewLocalStore(config.DataDir)
	if err != nil {
		return nil, err
	}

	if config.UserID == "" {
		l.backend = local
		l.local = local
		if err := local.Watch(l.publish); err != nil {
			logger.Warn("Library changes from other processes will not be shown", "error", err)
		}
		return l, nil
	}

	sqlStore, err := NewSQLStore(filepath.Join(config.DataDir, DatabaseFile), config.UserID)
	if err != nil {
		return nil, err
	}
	l.backend = sqlStore
	l.local = local
	l.signed = true
	return l, nil
}

// NewLibrary wraps an already opened backend. local, when not nil, is
// migrated into backend on the first subscription.
func NewLibrary(backend Backend, local *LocalStore, logger *log.Logger) *Library {
	if logger == nil {
		logger = log.Default()
	}
	return &Library{
		backend:     backend,
		local:       local,
		signed:      local != nil && Backend(local) != backend,
		logger:      logger,
		historySubs: make(map[int]func([]HistoryEntry)),
		vocabSubs:   make(map[int]func([]VocabularyEntry)),
	}
}

// SubscribeHistory calls fn with the current history now and after every
// change. The returned function unsubscribes.
func (l *Library) SubscribeHistory(fn func([]HistoryEntry)) func() {
	l.migrateLocal()

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.historySubs[id] = fn
	l.mu.Unlock()

	fn(l.History())
	return func() {
		l.mu.Lock()
		delete(l.historySubs, id)
		l.mu.Unlock()
	}
}

// SubscribeVocabulary is SubscribeHistory for saved words.
func (l *Library) SubscribeVocabulary(fn func([]VocabularyEntry)) func() {
	l.migrateLocal()

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.vocabSubs[id] = fn
	l.mu.Unlock()

	fn(l.Vocabulary())
	return func() {
		l.mu.Lock()
		delete(l.vocabSubs, id)
		l.mu.Unlock()
	}
}

// History returns the completed sessions, newest first.
func (l *Library) History() []HistoryEntry {
	entries, err := l.backend.History()
	if err != nil {
		l.absorb("list_history", err)
		return nil
	}
	return entries
}

// Vocabulary returns the saved words, newest first.
func (l *Library) Vocabulary() []VocabularyEntry {
	entries, err := l.backend.Vocabulary()
	if err != nil {
		l.absorb("list_vocabulary", err)
		return nil
	}
	return entries
}

// SaveHistory stores e unless an entry with the same id exists.
func (l *Library) SaveHistory(e HistoryEntry) {
	if err := l.backend.SaveHistory(e); err != nil {
		l.absorb("save_history", err)
		return
	}
	l.publish(History)
}

// DeleteHistory removes the entry with id.
func (l *Library) DeleteHistory(id string) {
	if err := l.backend.DeleteHistory(id); err != nil {
		l.absorb("delete_history", err)
		return
	}
	l.publish(History)
}

// SaveVocabulary stores e, replacing any entry with the same id.
func (l *Library) SaveVocabulary(e VocabularyEntry) {
	if err := l.backend.SaveVocabulary(e); err != nil {
		l.absorb("save_vocabulary", err)
		return
	}
	l.publish(Vocabulary)
}

// DeleteVocabulary removes the entry with id.
func (l *Library) DeleteVocabulary(id string) {
	if err := l.backend.DeleteVocabulary(id); err != nil {
		l.absorb("delete_vocabulary", err)
		return
	}
	l.publish(Vocabulary)
}

// Close releases the backends.
func (l *Library) Close() error {
	var err error
	if l.local != nil && Backend(l.local) != l.backend {
		err = l.local.Close()
	}
	if cerr := l.backend.Close(); cerr != nil {
		err = cerr
	}
	return err
}

func (l *Library) publish(c Collection) {
	l.mu.Lock()
	var hs []func([]HistoryEntry)
	var vs []func([]VocabularyEntry)
	if c == History {
		for _, fn := range l.historySubs {
			hs = append(hs, fn)
		}
	} else {
		for _, fn := range l.vocabSubs {
			vs = append(vs, fn)
		}
	}
	l.mu.Unlock()

	if len(hs) > 0 {
		entries := l.History()
		for _, fn := range hs {
			fn(entries)
		}
	}
	if len(vs) > 0 {
		entries := l.Vocabulary()
		for _, fn := range vs {
			fn(entries)
		}
	}
}

// migrateLocal copies the local lists into the document store once. It is
// best-effort: entries that fail to copy stay in the local list.
func (l *Library) migrateLocal() {
	if !l.signed || l.local == nil {
		return
	}

	l.migrateOnce.Do(func() {
		history, err := l.local.History()
		if err != nil {
			l.absorb("migrate", err)
			return
		}
		vocab, err := l.local.Vocabulary()
		if err != nil {
			l.absorb("migrate", err)
			return
		}
		if len(history) == 0 && len(vocab) == 0 {
			return
		}

		failed := 0
		for _, e := range history {
			if err := l.backend.SaveHistory(e); err != nil {
				failed++
				continue
			}
			if err := l.local.DeleteHistory(e.ID); err != nil {
				failed++
			}
		}
		for _, e := range vocab {
			if err := l.backend.SaveVocabulary(e); err != nil {
				failed++
				continue
			}
			if err := l.local.DeleteVocabulary(e.ID); err != nil {
				failed++
			}
		}

		if failed > 0 {
			l.logger.Warn("Some local entries were not migrated", "failed", failed)
			metrics.StorageErrors.WithLabelValues("library", "migrate").Add(float64(failed))
		} else {
			l.logger.Info("Migrated local library", "history", len(history), "vocabulary", len(vocab))
		}
	})
}

func (l *Library) absorb(op string, err error) {
	l.logger.Warn("Library operation failed", "op", op, "error", err)
	metrics.StorageErrors.WithLabelValues("library", op).Inc()
}
