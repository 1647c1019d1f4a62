package tts

import (
	"fmt"
	"net/url"
	"time"
)

// Config contains all narration settings.
type Config struct {
	Language     string        `yaml:"language"`
	Rate         float64       `yaml:"rate"`
	AdvanceDelay time.Duration `yaml:"advance_delay"`

	Remote RemoteConfig `yaml:"remote"`
	Local  LocalConfig  `yaml:"local"`
	Cache  CacheConfig  `yaml:"cache"`
}

// RemoteConfig configures the synthesis service client.
type RemoteConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Endpoint          string        `yaml:"endpoint"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	ProgressInterval  time.Duration `yaml:"progress_interval"`
}

// LocalConfig configures the on-device synthesizer.
type LocalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Binary    string        `yaml:"binary"` // autodetected when empty
	VoiceWait time.Duration `yaml:"voice_wait"`
}

// CacheConfig configures the synthesized audio cache.
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Dir              string        `yaml:"dir"` // data dir when empty
	MemoryMB         int           `yaml:"memory_mb"`
	DiskMB           int           `yaml:"disk_mb"`
	CompressionLevel int           `yaml:"compression_level"`
	TTL              time.Duration `yaml:"ttl"`
}

// DefaultConfig returns a Config with the stock settings.
func DefaultConfig() Config {
	return Config{
		Language:     "he-IL",
		Rate:         DefaultRate,
		AdvanceDelay: 500 * time.Millisecond,
		Remote:       DefaultRemoteConfig(),
		Local:        DefaultLocalConfig(),
		Cache:        DefaultCacheConfig(),
	}
}

// DefaultRemoteConfig returns the default synthesis service settings.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Enabled:           true,
		Endpoint:          "http://localhost:8080/api/text-to-speech",
		RequestsPerMinute: 60,
		ProgressInterval:  100 * time.Millisecond,
	}
}

// DefaultLocalConfig returns the default on-device synthesizer settings.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Enabled:   true,
		VoiceWait: 2 * time.Second,
	}
}

// DefaultCacheConfig returns the default audio cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:          true,
		MemoryMB:         64,
		DiskMB:           512,
		CompressionLevel: 3,
		TTL:              30 * 24 * time.Hour,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Language == "" {
		return fmt.Errorf("%w: language is required", ErrInvalidConfig)
	}
	if c.Rate < MinRate || c.Rate > MaxRate {
		return fmt.Errorf("%w: rate must be between %.1f and %.1f, got %.2f", ErrInvalidConfig, MinRate, MaxRate, c.Rate)
	}
	if c.AdvanceDelay < 0 {
		return fmt.Errorf("%w: advance delay must not be negative", ErrInvalidConfig)
	}
	if !c.Remote.Enabled && !c.Local.Enabled {
		return fmt.Errorf("%w: at least one of remote and local must be enabled", ErrInvalidConfig)
	}

	if err := c.Remote.Validate(); err != nil {
		return err
	}
	if err := c.Local.Validate(); err != nil {
		return err
	}
	return c.Cache.Validate()
}

// Validate checks the remote settings. Disabled settings always pass.
func (c *RemoteConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: remote endpoint must be an http(s) URL, got %q", ErrInvalidConfig, c.Endpoint)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: requests per minute must not be negative", ErrInvalidConfig)
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("%w: progress interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the local settings. Disabled settings always pass.
func (c *LocalConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.VoiceWait <= 0 {
		return fmt.Errorf("%w: voice wait must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the cache settings. Disabled settings always pass.
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MemoryMB < 0 || c.DiskMB < 0 {
		return fmt.Errorf("%w: cache sizes must not be negative", ErrInvalidConfig)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		return fmt.Errorf("%w: compression level must be between 0 and 22, got %d", ErrInvalidConfig, c.CompressionLevel)
	}
	return nil
}
