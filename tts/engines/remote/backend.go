package remote

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lessonshelf/lectern/tts"
)

// DefaultProgressInterval is how often playback progress is reported.
const DefaultProgressInterval = 100 * time.Millisecond

// Synthesizer turns text into encoded audio. *Client implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Backend plays server-synthesized audio. It satisfies tts.Backend.
type Backend struct {
	synth    Synthesizer
	player   tts.AudioPlayer
	interval time.Duration
	logger   *log.Logger

	mu     sync.Mutex
	handle tts.AudioHandle
	quit   chan struct{}
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithProgressInterval sets how often progress is reported.
func WithProgressInterval(d time.Duration) BackendOption {
	return func(b *Backend) {
		if d > 0 {
			b.interval = d
		}
	}
}

// NewBackend creates a remote backend.
func NewBackend(synth Synthesizer, player tts.AudioPlayer, opts ...BackendOption) *Backend {
	b := &Backend{
		synth:    synth,
		player:   player,
		interval: DefaultProgressInterval,
		logger:   log.WithPrefix("remote"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements tts.Backend.
func (b *Backend) Name() string { return "remote" }

// Speak synthesizes text and starts playing it. Any failure before playback
// starts is returned so the caller can fall back.
func (b *Backend) Speak(ctx context.Context, text string, l tts.Listener) error {
	audio, err := b.synth.Synthesize(ctx, text)
	if err != nil {
		return err
	}

	h, err := b.player.Open(audio)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}

	b.mu.Lock()
	if err := ctx.Err(); err != nil {
		b.mu.Unlock()
		_ = h.Close()
		return err
	}
	b.releaseLocked()
	quit := make(chan struct{})
	b.handle = h
	b.quit = quit
	h.Play()
	b.mu.Unlock()

	b.logger.Debug("Playing", "duration", h.Duration(), "bytes", len(audio))
	go b.monitor(h, quit, len([]rune(text)), l)
	return nil
}

// monitor reports progress for h until it finishes or is released.
func (b *Backend) monitor(h tts.AudioHandle, quit chan struct{}, total int, l tts.Listener) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return

		case <-h.Done():
			b.mu.Lock()
			current := b.handle == h
			if current {
				b.handle = nil
				b.quit = nil
			}
			b.mu.Unlock()
			if !current {
				return
			}

			_ = h.Close()
			if err := h.Err(); err != nil {
				l.EmitError(tts.NewSynthesisError(tts.KindSynthesisFailed, b.Name(), err))
				return
			}
			l.EmitProgress(total, total)
			l.EmitEnd()
			return

		case <-ticker.C:
			if h.IsPlaying() {
				l.EmitProgress(ProgressIndex(h.Position(), h.Duration(), total), total)
			}
		}
	}
}

// Pause implements tts.Backend.
func (b *Backend) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle != nil {
		b.handle.Pause()
	}
}

// Resume implements tts.Backend.
func (b *Backend) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle != nil {
		b.handle.Play()
	}
}

// Stop implements tts.Backend. It releases the current audio resource.
func (b *Backend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked()
}

func (b *Backend) releaseLocked() {
	if b.quit != nil {
		close(b.quit)
		b.quit = nil
	}
	if b.handle != nil {
		if err := b.handle.Close(); err != nil {
			b.logger.Debug("Close audio", "err", err)
		}
		b.handle = nil
	}
}

// ProgressIndex approximates a character offset from playback time:
// floor(elapsed/duration*total), bounded to [0, total].
func ProgressIndex(elapsed, duration time.Duration, total int) int {
	if duration <= 0 || total <= 0 || elapsed <= 0 {
		return 0
	}
	idx := int(math.Floor(float64(elapsed) / float64(duration) * float64(total)))
	if idx > total {
		return total
	}
	return idx
}
