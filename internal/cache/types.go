// Package cache stores synthesized audio in a memory tier backed by a
// compressed disk tier.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ErrItemTooLarge is returned when an item exceeds the tier capacity.
var ErrItemTooLarge = errors.New("item too large for cache")

// Stats holds cache performance metrics.
type Stats struct {
	Capacity  int64 // Maximum capacity in bytes
	Size      int64 // Current size in bytes
	Items     int64 // Number of entries
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses), or zero before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Config holds configuration for an AudioCache.
type Config struct {
	MemoryCapacity   int64         // Bytes held in memory
	DiskCapacity     int64         // Bytes held on disk
	DiskPath         string        // Directory for cache files
	CompressionLevel int           // Zstd level (1-22); 0 disables compression
	TTL              time.Duration // Age after which entries expire; 0 keeps them
	CleanupInterval  time.Duration // How often expired entries are removed; 0 disables
}

// DefaultConfig returns the default cache configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		MemoryCapacity:   64 << 20,
		DiskCapacity:     512 << 20,
		DiskPath:         dir,
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Key derives a fixed-length cache key from its parts.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:16])
}
