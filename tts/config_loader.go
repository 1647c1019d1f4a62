package tts

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads narration settings from Viper. The top-level
// language key applies to narration; everything else lives under tts.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("language") {
		cfg.Language = viper.GetString("language")
	}
	if viper.IsSet("tts.rate") {
		cfg.Rate = viper.GetFloat64("tts.rate")
	}
	if viper.IsSet("tts.advance_delay") {
		cfg.AdvanceDelay = viper.GetDuration("tts.advance_delay")
	}

	cfg.Remote = loadRemoteConfig(cfg.Remote)
	cfg.Local = loadLocalConfig(cfg.Local)
	cfg.Cache = loadCacheConfig(cfg.Cache)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid TTS configuration: %w", err)
	}
	return cfg, nil
}

func loadRemoteConfig(cfg RemoteConfig) RemoteConfig {
	if viper.IsSet("tts.remote.enabled") {
		cfg.Enabled = viper.GetBool("tts.remote.enabled")
	}
	if viper.IsSet("tts.remote.endpoint") {
		cfg.Endpoint = viper.GetString("tts.remote.endpoint")
	}
	if viper.IsSet("tts.remote.requests_per_minute") {
		cfg.RequestsPerMinute = viper.GetInt("tts.remote.requests_per_minute")
	}
	if viper.IsSet("tts.remote.progress_interval") {
		cfg.ProgressInterval = viper.GetDuration("tts.remote.progress_interval")
	}
	return cfg
}

func loadLocalConfig(cfg LocalConfig) LocalConfig {
	if viper.IsSet("tts.local.enabled") {
		cfg.Enabled = viper.GetBool("tts.local.enabled")
	}
	if viper.IsSet("tts.local.binary") {
		cfg.Binary = viper.GetString("tts.local.binary")
	}
	if viper.IsSet("tts.local.voice_wait") {
		cfg.VoiceWait = viper.GetDuration("tts.local.voice_wait")
	}
	return cfg
}

func loadCacheConfig(cfg CacheConfig) CacheConfig {
	if viper.IsSet("tts.cache.enabled") {
		cfg.Enabled = viper.GetBool("tts.cache.enabled")
	}
	if viper.IsSet("tts.cache.dir") {
		cfg.Dir = viper.GetString("tts.cache.dir")
	}
	if viper.IsSet("tts.cache.memory_mb") {
		cfg.MemoryMB = viper.GetInt("tts.cache.memory_mb")
	}
	if viper.IsSet("tts.cache.disk_mb") {
		cfg.DiskMB = viper.GetInt("tts.cache.disk_mb")
	}
	if viper.IsSet("tts.cache.compression_level") {
		cfg.CompressionLevel = viper.GetInt("tts.cache.compression_level")
	}
	if viper.IsSet("tts.cache.ttl") {
		cfg.TTL = viper.GetDuration("tts.cache.ttl")
	}
	return cfg
}

// SetDefaults sets default values in Viper for narration settings.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("language", defaults.Language)
	viper.SetDefault("tts.rate", defaults.Rate)
	viper.SetDefault("tts.advance_delay", defaults.AdvanceDelay.String())

	viper.SetDefault("tts.remote.enabled", defaults.Remote.Enabled)
	viper.SetDefault("tts.remote.endpoint", defaults.Remote.Endpoint)
	viper.SetDefault("tts.remote.requests_per_minute", defaults.Remote.RequestsPerMinute)
	viper.SetDefault("tts.remote.progress_interval", defaults.Remote.ProgressInterval.String())

	viper.SetDefault("tts.local.enabled", defaults.Local.Enabled)
	viper.SetDefault("tts.local.binary", defaults.Local.Binary)
	viper.SetDefault("tts.local.voice_wait", defaults.Local.VoiceWait.String())

	viper.SetDefault("tts.cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("tts.cache.dir", defaults.Cache.Dir)
	viper.SetDefault("tts.cache.memory_mb", defaults.Cache.MemoryMB)
	viper.SetDefault("tts.cache.disk_mb", defaults.Cache.DiskMB)
	viper.SetDefault("tts.cache.compression_level", defaults.Cache.CompressionLevel)
	viper.SetDefault("tts.cache.ttl", defaults.Cache.TTL.String())
}
