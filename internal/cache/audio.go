package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// AudioCache layers a MemoryCache over a DiskCache. Disk hits are promoted
// to memory.
type AudioCache struct {
	memory *MemoryCache
	disk   *DiskCache
	cfg    Config
	logger *log.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// New opens an AudioCache and starts TTL cleanup if configured.
func New(cfg Config) (*AudioCache, error) {
	if cfg.DiskPath == "" {
		return nil, errors.New("cache directory is required")
	}

	disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}

	c := &AudioCache{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		disk:   disk,
		cfg:    cfg,
		logger: log.WithPrefix("cache"),
		stop:   make(chan struct{}),
	}

	if cfg.TTL > 0 && cfg.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop()
	}
	return c, nil
}

// Get looks up key in memory, then on disk.
func (c *AudioCache) Get(key string) ([]byte, bool) {
	if data, ok := c.memory.Get(key); ok {
		return data, true
	}
	data, ok := c.disk.Get(key)
	if !ok {
		return nil, false
	}
	_ = c.memory.Put(key, data)
	return data, true
}

// Put stores value in both tiers. Values too large for one tier are kept
// in the other.
func (c *AudioCache) Put(key string, value []byte) error {
	memErr := c.memory.Put(key, value)
	diskErr := c.disk.Put(key, value)

	switch {
	case memErr != nil && diskErr != nil:
		return errors.Join(memErr, diskErr)
	case diskErr != nil && !errors.Is(diskErr, ErrItemTooLarge):
		return diskErr
	default:
		return nil
	}
}

// Clear empties both tiers.
func (c *AudioCache) Clear() error {
	c.memory.Clear()
	return c.disk.Clear()
}

// Stats returns memory and disk metrics.
func (c *AudioCache) Stats() (memory, disk Stats) {
	return c.memory.Stats(), c.disk.Stats()
}

// Cleanup removes expired entries from both tiers.
func (c *AudioCache) Cleanup() int {
	if c.cfg.TTL <= 0 {
		return 0
	}
	removed := c.memory.Prune(c.cfg.TTL)
	removed += c.disk.RemoveOlderThan(time.Now().Add(-c.cfg.TTL))
	if removed > 0 {
		c.logger.Debug("Removed expired audio", "entries", removed)
	}
	return removed
}

func (c *AudioCache) cleanupLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-c.stop:
			return
		}
	}
}

// Close stops cleanup and saves the disk index.
func (c *AudioCache) Close() error {
	close(c.stop)
	c.wg.Wait()
	if err := c.disk.Close(); err != nil {
		return fmt.Errorf("failed to close disk cache: %w", err)
	}
	return nil
}
