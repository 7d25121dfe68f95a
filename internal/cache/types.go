package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheMiss is returned when an item is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheCorrupted is returned when cache data is corrupted
	ErrCacheCorrupted = errors.New("cache data corrupted")

	// ErrStorage wraps every failure of the persistent level.
	ErrStorage = errors.New("cache storage failure")
)

// CacheLevel represents the cache tier
type CacheLevel int

const (
	// CacheLevelL1 represents the memory cache (fastest)
	CacheLevelL1 CacheLevel = iota

	// CacheLevelL2 represents the disk cache (persistent)
	CacheLevelL2
)

// String returns the string representation of the cache level
func (l CacheLevel) String() string {
	switch l {
	case CacheLevelL1:
		return "l1"
	case CacheLevelL2:
		return "l2"
	default:
		return "unknown"
	}
}

// CacheStats holds cache performance metrics
type CacheStats struct {
	Capacity int64 // Maximum capacity in bytes

	Size      int64 // Current size in bytes
	ItemCount int64 // Number of items in cache

	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)

	LastAccess time.Time
}

// Config holds configuration for the artifact cache.
type Config struct {
	MemoryCapacity   int64  // L1 bytes
	DiskCapacity     int64  // L2 bytes; writes beyond it fail
	DiskPath         string // Directory for cache files
	CompressionLevel int    // Zstd compression level (1-22, 0 disables)
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,  // 64MB, roughly twenty dialogues
		DiskCapacity:     1024 * 1024 * 1024, // 1GB
		CompressionLevel: 3,
	}
}

// Store is the capability the session orchestrator depends on. Lookups
// never fail: storage problems are reported as misses.
type Store interface {
	Get(sessionID string) ([]byte, bool)
	Put(sessionID string, payload []byte)
	Delete(sessionID string)
}
