package tts

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// TestDefaultConfig tests that default configuration is valid.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if cfg.Rate != DefaultRate {
		t.Errorf("Expected rate %v, got %v", DefaultRate, cfg.Rate)
	}
	if cfg.AdvanceDelay != 500*time.Millisecond {
		t.Errorf("Expected 500ms advance delay, got %v", cfg.AdvanceDelay)
	}
	if !cfg.Remote.Enabled || !cfg.Local.Enabled {
		t.Error("Both backends should be enabled by default")
	}
}

// TestConfigValidation tests configuration validation.
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			modify: func(*Config) {},
		},
		{
			name:    "missing language",
			modify:  func(c *Config) { c.Language = "" },
			wantErr: true,
			errMsg:  "language is required",
		},
		{
			name:    "rate too high",
			modify:  func(c *Config) { c.Rate = 3.0 },
			wantErr: true,
			errMsg:  "rate must be between",
		},
		{
			name:    "rate too low",
			modify:  func(c *Config) { c.Rate = 0 },
			wantErr: true,
			errMsg:  "rate must be between",
		},
		{
			name:    "negative delay",
			modify:  func(c *Config) { c.AdvanceDelay = -time.Second },
			wantErr: true,
			errMsg:  "advance delay",
		},
		{
			name: "no backend",
			modify: func(c *Config) {
				c.Remote.Enabled = false
				c.Local.Enabled = false
			},
			wantErr: true,
			errMsg:  "at least one",
		},
		{
			name:    "bad endpoint",
			modify:  func(c *Config) { c.Remote.Endpoint = "localhost:8080" },
			wantErr: true,
			errMsg:  "http(s) URL",
		},
		{
			name: "bad endpoint while disabled",
			modify: func(c *Config) {
				c.Remote.Enabled = false
				c.Remote.Endpoint = ""
			},
		},
		{
			name:    "zero voice wait",
			modify:  func(c *Config) { c.Local.VoiceWait = 0 },
			wantErr: true,
			errMsg:  "voice wait",
		},
		{
			name:    "compression level out of range",
			modify:  func(c *Config) { c.Cache.CompressionLevel = 23 },
			wantErr: true,
			errMsg:  "compression level",
		},
		{
			name: "negative cache ignored when disabled",
			modify: func(c *Config) {
				c.Cache.Enabled = false
				c.Cache.DiskMB = -1
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

// TestLoadConfigFromViper tests loading configuration from Viper.
func TestLoadConfigFromViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	SetDefaults()
	viper.Set("language", "en-US")
	viper.Set("tts.rate", 1.25)
	viper.Set("tts.advance_delay", "1s")
	viper.Set("tts.remote.endpoint", "https://lessons.example/api/text-to-speech")
	viper.Set("tts.remote.requests_per_minute", 30)
	viper.Set("tts.local.binary", "/usr/bin/espeak-ng")
	viper.Set("tts.cache.enabled", false)

	cfg, err := LoadConfigFromViper()
	if err != nil {
		t.Fatalf("LoadConfigFromViper() error = %v", err)
	}

	if cfg.Language != "en-US" {
		t.Errorf("Language = %v, want en-US", cfg.Language)
	}
	if cfg.Rate != 1.25 {
		t.Errorf("Rate = %v, want 1.25", cfg.Rate)
	}
	if cfg.AdvanceDelay != time.Second {
		t.Errorf("AdvanceDelay = %v, want 1s", cfg.AdvanceDelay)
	}
	if cfg.Remote.Endpoint != "https://lessons.example/api/text-to-speech" || cfg.Remote.RequestsPerMinute != 30 {
		t.Errorf("Unexpected remote config: %+v", cfg.Remote)
	}
	if cfg.Remote.ProgressInterval != 100*time.Millisecond {
		t.Errorf("ProgressInterval = %v, want default 100ms", cfg.Remote.ProgressInterval)
	}
	if cfg.Local.Binary != "/usr/bin/espeak-ng" || cfg.Local.VoiceWait != 2*time.Second {
		t.Errorf("Unexpected local config: %+v", cfg.Local)
	}
	if cfg.Cache.Enabled {
		t.Error("Cache should be disabled")
	}
}

func TestLoadConfigFromViperInvalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("tts.rate", 5.0)
	if _, err := LoadConfigFromViper(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}
