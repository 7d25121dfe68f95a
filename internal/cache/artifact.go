package cache

import (
	"errors"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/lingoplay/internal/metrics"
)

// ArtifactCache maps session ids to audio payloads. Reads check memory,
// then disk, promoting disk hits into memory. Every storage failure is
// logged and absorbed: callers only ever see a hit or a miss.
type ArtifactCache struct {
	l1     *MemoryCache
	l2     *DiskCache // nil when the disk level is unavailable
	logger *log.Logger
}

var _ Store = (*ArtifactCache)(nil)

// NewArtifactCache creates the cache. If the disk level cannot be opened
// the cache keeps working from memory alone.
func NewArtifactCache(config Config, logger *log.Logger) *ArtifactCache {
	if logger == nil {
		logger = log.Default()
	}
	if config.MemoryCapacity <= 0 {
		config.MemoryCapacity = DefaultConfig().MemoryCapacity
	}

	ac := &ArtifactCache{
		l1:     NewMemoryCache(config.MemoryCapacity),
		logger: logger,
	}

	if config.DiskPath == "" {
		logger.Debug("Audio cache running without a disk level")
		return ac
	}
	if config.DiskCapacity <= 0 {
		config.DiskCapacity = DefaultConfig().DiskCapacity
	}

	l2, err := NewDiskCache(config.DiskPath, config.DiskCapacity, config.CompressionLevel)
	if err != nil {
		logger.Warn("Audio cache disk level unavailable", "path", config.DiskPath, "error", err)
		metrics.StorageErrors.WithLabelValues("audio_cache", "open").Inc()
		return ac
	}
	ac.l2 = l2
	return ac
}

// Get returns the payload for a session id.
func (ac *ArtifactCache) Get(sessionID string) ([]byte, bool) {
	if data, ok := ac.l1.Get(sessionID); ok {
		metrics.CacheLookups.WithLabelValues(CacheLevelL1.String(), "hit").Inc()
		return data, true
	}

	if ac.l2 == nil {
		metrics.CacheLookups.WithLabelValues(CacheLevelL1.String(), "miss").Inc()
		return nil, false
	}

	data, err := ac.l2.Get(sessionID)
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues(CacheLevelL2.String(), "hit").Inc()
		ac.promoteToL1(sessionID, data)
		return data, true
	case errors.Is(err, ErrCacheMiss):
		metrics.CacheLookups.WithLabelValues(CacheLevelL2.String(), "miss").Inc()
	default:
		ac.logger.Warn("Audio cache read failed, treating as miss", "session", sessionID, "error", err)
		metrics.StorageErrors.WithLabelValues("audio_cache", "get").Inc()
	}
	return nil, false
}

// Put stores a payload in both levels. Failures are logged only.
func (ac *ArtifactCache) Put(sessionID string, payload []byte) {
	if err := ac.l1.Put(sessionID, payload); err != nil {
		ac.logger.Debug("Audio payload skipped memory cache", "session", sessionID, "bytes", len(payload), "error", err)
	}

	if ac.l2 == nil {
		return
	}
	if err := ac.l2.Put(sessionID, payload); err != nil {
		ac.logger.Warn("Audio cache write failed", "session", sessionID, "error", err)
		metrics.StorageErrors.WithLabelValues("audio_cache", "put").Inc()
	}
}

// Delete removes a payload from both levels. Failures are logged only.
func (ac *ArtifactCache) Delete(sessionID string) {
	_ = ac.l1.Delete(sessionID)

	if ac.l2 == nil {
		return
	}
	if err := ac.l2.Delete(sessionID); err != nil {
		ac.logger.Warn("Audio cache delete failed", "session", sessionID, "error", err)
		metrics.StorageErrors.WithLabelValues("audio_cache", "delete").Inc()
	}
}

// Stats returns statistics for each level.
func (ac *ArtifactCache) Stats() map[CacheLevel]CacheStats {
	stats := map[CacheLevel]CacheStats{CacheLevelL1: ac.l1.Stats()}
	if ac.l2 != nil {
		stats[CacheLevelL2] = ac.l2.Stats()
	}
	return stats
}

// Close flushes the disk index.
func (ac *ArtifactCache) Close() error {
	if ac.l2 == nil {
		return nil
	}
	return ac.l2.Close()
}

// promoteToL1 is best-effort.
func (ac *ArtifactCache) promoteToL1(key string, data []byte) {
	_ = ac.l1.Put(key, data)
}
