package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/lessonshelf/lectern/internal/bookmark"
	"github.com/lessonshelf/lectern/internal/cache"
	"github.com/lessonshelf/lectern/internal/queue"
	"github.com/lessonshelf/lectern/tts"
	"github.com/lessonshelf/lectern/tts/audio"
	"github.com/lessonshelf/lectern/tts/engines/espeak"
	"github.com/lessonshelf/lectern/tts/engines/local"
	"github.com/lessonshelf/lectern/tts/engines/remote"
	"github.com/lessonshelf/lectern/utils"
)

const cleanupInterval = time.Hour

// narrator owns the engine and everything it was built from.
type narrator struct {
	engine    *tts.Engine
	cache     *cache.AudioCache     // nil when disabled
	lookahead *queue.LookaheadQueue // nil without a cache or remote backend
}

// newNarrator builds the hybrid engine from cfg. A backend that cannot be
// set up is skipped with a warning; having neither is an error.
func newNarrator(ctx context.Context, cfg tts.Config, opts ...tts.Option) (*narrator, error) {
	n := &narrator{}

	if cfg.Cache.Enabled {
		c, err := openCache(cfg.Cache)
		if err != nil {
			log.Warn("Audio cache disabled", "error", err)
		} else {
			n.cache = c
		}
	}

	var remoteBackend, localBackend tts.Backend

	if cfg.Remote.Enabled {
		clientCfg := remote.ClientConfig{
			Endpoint:          cfg.Remote.Endpoint,
			RequestsPerMinute: cfg.Remote.RequestsPerMinute,
		}
		if n.cache != nil {
			clientCfg.Cache = n.cache
		}
		client, err := remote.NewClient(clientCfg)
		if err != nil {
			log.Warn("Remote synthesis disabled", "error", err)
		} else {
			remoteBackend = remote.NewBackend(client, audio.NewPlayer(),
				remote.WithProgressInterval(cfg.Remote.ProgressInterval))
			if n.cache != nil {
				n.lookahead = queue.NewLookaheadQueue(client, queue.DefaultSize)
			}
		}
	}

	if cfg.Local.Enabled {
		synth, err := espeak.New(cfg.Local.Binary)
		if err != nil {
			log.Warn("Local synthesis disabled", "error", err)
		} else {
			localBackend = local.NewBackend(synth, local.WithVoiceWait(cfg.Local.VoiceWait))
		}
	}

	if remoteBackend == nil && localBackend == nil {
		n.Close()
		return nil, fmt.Errorf("no narration backend could be started: %w", tts.ErrBackendUnavailable)
	}

	opts = append([]tts.Option{tts.WithRate(cfg.Rate)}, opts...)
	n.engine = tts.NewEngine(remoteBackend, localBackend, opts...)

	// A failed local init leaves the remote backend in service.
	_ = n.engine.Init(ctx, cfg.Language)
	return n, nil
}

// Close stops narration and flushes the cache index.
func (n *narrator) Close() {
	if n.engine != nil {
		n.engine.Close()
	}
	if n.lookahead != nil {
		n.lookahead.Close()
	}
	if n.cache != nil {
		if err := n.cache.Close(); err != nil {
			log.Warn("Could not close audio cache", "error", err)
		}
	}
}

func openCache(cfg tts.CacheConfig) (*cache.AudioCache, error) {
	dir, err := cacheDir(cfg)
	if err != nil {
		return nil, err
	}
	return cache.New(cache.Config{ //nolint:wrapcheck
		MemoryCapacity:   int64(cfg.MemoryMB) << 20,
		DiskCapacity:     int64(cfg.DiskMB) << 20,
		DiskPath:         dir,
		CompressionLevel: cfg.CompressionLevel,
		TTL:              cfg.TTL,
		CleanupInterval:  cleanupInterval,
	})
}

// cacheDir is the configured cache directory or the user cache dir.
func cacheDir(cfg tts.CacheConfig) (string, error) {
	if cfg.Dir != "" {
		return utils.ExpandPath(cfg.Dir), nil
	}
	dir, err := gap.NewScope(gap.User, appName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("could not find cache directory: %w", err)
	}
	return filepath.Join(dir, "audio"), nil
}

// bookmarkPath is the configured bookmark database or one in the user data
// dir.
func bookmarkPath(configured string) (string, error) {
	if configured != "" {
		return utils.ExpandPath(configured), nil
	}
	path, err := gap.NewScope(gap.User, appName).DataPath("bookmarks.db")
	if err != nil {
		return "", fmt.Errorf("could not find data directory: %w", err)
	}
	return path, nil
}

func openBookmarks(configured string) (*bookmark.Store, error) {
	path, err := bookmarkPath(configured)
	if err != nil {
		return nil, err
	}
	return bookmark.Open(path) //nolint:wrapcheck
}
