package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Well-known keys of the local lists. Each is stored as <key>.json.
const (
	HistoryKey    = "lingoplay_history"
	VocabularyKey = "lingoplay_vocabulary"
)

const watchDebounce = 100 * time.Millisecond

// LocalStore keeps both lists as JSON files in one directory. Other
// processes writing the same files are picked up through Watch.
type LocalStore struct {
	dir string
	mu  sync.Mutex

	watcher       *fsnotify.Watcher
	debounceMu    sync.Mutex
	debounceTimer map[Collection]*time.Timer
}

var _ Backend = (*LocalStore)(nil)

// NewLocalStore opens the lists in dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStorage, dir, err)
	}
	return &LocalStore{
		dir:           dir,
		debounceTimer: make(map[Collection]*time.Timer),
	}, nil
}

func (s *LocalStore) path(c Collection) string {
	key := HistoryKey
	if c == Vocabulary {
		key = VocabularyKey
	}
	return filepath.Join(s.dir, key+".json")
}

// History implements Backend.
func (s *LocalStore) History() ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []HistoryEntry
	if err := s.read(History, &entries); err != nil {
		return nil, err
	}
	sortHistory(entries)
	return entries, nil
}

// SaveHistory implements Backend.
func (s *LocalStore) SaveHistory(e HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []HistoryEntry
	if err := s.read(History, &entries); err != nil {
		return err
	}
	for _, existing := range entries {
		if existing.ID == e.ID {
			return nil
		}
	}
	return s.write(History, append(entries, e))
}

// DeleteHistory implements Backend.
func (s *LocalStore) DeleteHistory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []HistoryEntry
	if err := s.read(History, &entries); err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return s.write(History, kept)
}

// Vocabulary implements Backend.
func (s *LocalStore) Vocabulary() ([]VocabularyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []VocabularyEntry
	if err := s.read(Vocabulary, &entries); err != nil {
		return nil, err
	}
	sortVocabulary(entries)
	return entries, nil
}

// SaveVocabulary implements Backend.
func (s *LocalStore) SaveVocabulary(e VocabularyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []VocabularyEntry
	if err := s.read(Vocabulary, &entries); err != nil {
		return err
	}
	replaced := false
	for i := range entries {
		if entries[i].ID == e.ID {
			entries[i] = e
			replaced = true
		}
	}
	if !replaced {
		entries = append(entries, e)
	}
	return s.write(Vocabulary, entries)
}

// DeleteVocabulary implements Backend.
func (s *LocalStore) DeleteVocabulary(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []VocabularyEntry
	if err := s.read(Vocabulary, &entries); err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return s.write(Vocabulary, kept)
}

// Clear removes both lists.
func (s *LocalStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range []Collection{History, Vocabulary} {
		if err := os.Remove(s.path(c)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: clear %s: %w", ErrStorage, c, err)
		}
	}
	return nil
}

// Watch calls onChange whenever a list file changes on disk, including
// changes made by this store. Events are debounced per collection.
func (s *LocalStore) Watch(onChange func(Collection)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: create watcher: %w", ErrStorage, err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("%w: watch %s: %w", ErrStorage, s.dir, err)
	}
	s.watcher = watcher

	log.Debug("fsnotify watching library", "dir", s.dir)
	go s.watchLoop(onChange)
	return nil
}

func (s *LocalStore) watchLoop(onChange func(Collection)) {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			var c Collection
			switch filepath.Clean(event.Name) {
			case s.path(History):
				c = History
			case s.path(Vocabulary):
				c = Vocabulary
			default:
				continue
			}

			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			s.debounce(c, onChange)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Debug("fsnotify error", "dir", s.dir, "error", err)
		}
	}
}

func (s *LocalStore) debounce(c Collection, onChange func(Collection)) {
	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()

	if t := s.debounceTimer[c]; t != nil {
		t.Stop()
	}
	s.debounceTimer[c] = time.AfterFunc(watchDebounce, func() { onChange(c) })
}

// Close stops watching.
func (s *LocalStore) Close() error {
	s.debounceMu.Lock()
	for _, t := range s.debounceTimer {
		t.Stop()
	}
	s.debounceMu.Unlock()

	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *LocalStore) read(c Collection, v any) error {
	data, err := os.ReadFile(s.path(c))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrStorage, c, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrStorage, c, err)
	}
	return nil
}

func (s *LocalStore) write(c Collection, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrStorage, c, err)
	}

	path := s.path(c)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStorage, c, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: write %s: %w", ErrStorage, c, err)
	}
	return nil
}

func sortHistory(entries []HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

func sortVocabulary(entries []VocabularyEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
