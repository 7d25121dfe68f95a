package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgnsrekt/lingoplay/internal/script"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type historyRecord struct {
	UserID    string        `gorm:"primaryKey"`
	ID        string        `gorm:"primaryKey"`
	Title     string
	Level     string        `gorm:"index"`
	Script    script.Script `gorm:"serializer:json"`
	CreatedAt time.Time     `gorm:"index"`
}

func (historyRecord) TableName() string { return "history" }

type vocabularyRecord struct {
	UserID     string            `gorm:"primaryKey"`
	ID         string            `gorm:"primaryKey"`
	Word       string            `gorm:"index"`
	Definition script.Definition `gorm:"serializer:json"`
	Sentence   string
	SessionID  string
	CreatedAt  time.Time `gorm:"index"`
}

func (vocabularyRecord) TableName() string { return "vocabulary" }

// SQLStore is the document store for a signed-in user, backed by SQLite.
// Every query is scoped to the user id it was opened with.
type SQLStore struct {
	db     *gorm.DB
	userID string
}

var _ Backend = (*SQLStore)(nil)

// NewSQLStore opens (or creates) the database at path for userID.
func NewSQLStore(path, userID string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStorage, filepath.Dir(path), err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStorage, path, err)
	}

	if err := db.AutoMigrate(&historyRecord{}, &vocabularyRecord{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %w", ErrStorage, err)
	}

	return &SQLStore{db: db, userID: userID}, nil
}

// History implements Backend.
func (s *SQLStore) History() ([]HistoryEntry, error) {
	var records []historyRecord
	err := s.db.Where("user_id = ?", s.userID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list history: %w", ErrStorage, err)
	}

	entries := make([]HistoryEntry, len(records))
	for i, r := range records {
		entries[i] = HistoryEntry{ID: r.ID, Script: r.Script, CreatedAt: r.CreatedAt}
	}
	return entries, nil
}

// SaveHistory implements Backend.
func (s *SQLStore) SaveHistory(e HistoryEntry) error {
	record := historyRecord{
		UserID:    s.userID,
		ID:        e.ID,
		Title:     e.Script.Title,
		Level:     e.Script.Difficulty.String(),
		Script:    e.Script,
		CreatedAt: e.CreatedAt,
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("%w: save history %s: %w", ErrStorage, e.ID, err)
	}
	return nil
}

// DeleteHistory implements Backend.
func (s *SQLStore) DeleteHistory(id string) error {
	err := s.db.Where("user_id = ? AND id = ?", s.userID, id).Delete(&historyRecord{}).Error
	if err != nil {
		return fmt.Errorf("%w: delete history %s: %w", ErrStorage, id, err)
	}
	return nil
}

// Vocabulary implements Backend.
func (s *SQLStore) Vocabulary() ([]VocabularyEntry, error) {
	var records []vocabularyRecord
	err := s.db.Where("user_id = ?", s.userID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list vocabulary: %w", ErrStorage, err)
	}

	entries := make([]VocabularyEntry, len(records))
	for i, r := range records {
		entries[i] = VocabularyEntry{
			ID:         r.ID,
			Definition: r.Definition,
			Sentence:   r.Sentence,
			SessionID:  r.SessionID,
			CreatedAt:  r.CreatedAt,
		}
	}
	return entries, nil
}

// SaveVocabulary implements Backend.
func (s *SQLStore) SaveVocabulary(e VocabularyEntry) error {
	record := vocabularyRecord{
		UserID:     s.userID,
		ID:         e.ID,
		Word:       e.Definition.Word,
		Definition: e.Definition,
		Sentence:   e.Sentence,
		SessionID:  e.SessionID,
		CreatedAt:  e.CreatedAt,
	}
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("%w: save vocabulary %s: %w", ErrStorage, e.ID, err)
	}
	return nil
}

// DeleteVocabulary implements Backend.
func (s *SQLStore) DeleteVocabulary(id string) error {
	err := s.db.Where("user_id = ? AND id = ?", s.userID, id).Delete(&vocabularyRecord{}).Error
	if err != nil {
		return fmt.Errorf("%w: delete vocabulary %s: %w", ErrStorage, id, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
