// Package local narrates text with an on-device speech synthesizer.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"golang.org/x/text/language"

	"github.com/lessonshelf/lectern/tts"
)

// DefaultVoiceWait bounds how long Init waits for voices to appear.
const DefaultVoiceWait = 2 * time.Second

// Utterance is one request to the synthesizer. Handlers may be called from
// any goroutine.
type Utterance struct {
	Text  string
	Voice tts.Voice // zero value means the synthesizer default
	Rate  float64

	OnBoundary func(charIndex int) // rune offset of the word being spoken
	OnEnd      func()
	OnError    func(err error)
}

// Synthesizer is an on-device speech engine.
//
// Speak may invoke the utterance handlers synchronously. The other methods
// must not.
type Synthesizer interface {
	// Voices returns the voices known so far. The list may be empty until
	// the synthesizer has finished loading.
	Voices() []tts.Voice
	// OnVoicesChanged registers fn to be called when the voice list changes.
	OnVoicesChanged(fn func()) (unsubscribe func())
	Speak(u *Utterance) error
	Pause()
	Resume()
	// Cancel abandons the current utterance without calling its handlers.
	Cancel()
}

// Backend adapts a Synthesizer to tts.Backend.
type Backend struct {
	synth     Synthesizer
	voiceWait time.Duration
	logger    *log.Logger

	speakMu sync.Mutex // serializes Speak

	mu      sync.Mutex
	voice   tts.Voice
	rate    float64
	current *Utterance
	paused  bool
	stops   uint64 // incremented by Stop
}

// Option configures a Backend.
type Option func(*Backend)

// WithVoiceWait sets how long Init waits for the voice list to populate.
func WithVoiceWait(d time.Duration) Option {
	return func(b *Backend) { b.voiceWait = d }
}

// NewBackend creates a local backend over synth.
func NewBackend(synth Synthesizer, opts ...Option) *Backend {
	b := &Backend{
		synth:     synth,
		voiceWait: DefaultVoiceWait,
		rate:      tts.DefaultRate,
		logger:    log.WithPrefix("local"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements tts.Backend.
func (b *Backend) Name() string { return "local" }

// Init selects the voice that best matches languageTag, waiting for the
// synthesizer to publish its voices if none are known yet.
func (b *Backend) Init(ctx context.Context, languageTag string) error {
	voices := b.synth.Voices()
	if len(voices) == 0 {
		var err error
		if voices, err = b.awaitVoices(ctx); err != nil {
			return err
		}
	}
	if len(voices) == 0 {
		return tts.ErrNoVoices
	}

	v := MatchVoice(voices, languageTag)
	b.mu.Lock()
	b.voice = v
	b.mu.Unlock()

	b.logger.Debug("Selected voice", "voice", v.ID, "language", v.Language, "wanted", languageTag)
	return nil
}

func (b *Backend) awaitVoices(ctx context.Context) ([]tts.Voice, error) {
	changed := make(chan struct{}, 1)
	unsubscribe := b.synth.OnVoicesChanged(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	// The list may have filled in before we subscribed.
	if voices := b.synth.Voices(); len(voices) > 0 {
		return voices, nil
	}

	timer := time.NewTimer(b.voiceWait)
	defer timer.Stop()

	select {
	case <-changed:
		return b.synth.Voices(), nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", tts.ErrNoVoices, b.voiceWait)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MatchVoice returns the voice whose language best matches languageTag, or
// the first voice when nothing matches.
func MatchVoice(voices []tts.Voice, languageTag string) tts.Voice {
	want, err := language.Parse(languageTag)
	if err != nil {
		return voices[0]
	}

	var (
		tags       []language.Tag
		candidates []tts.Voice
	)
	for _, v := range voices {
		tag, err := language.Parse(v.Language)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		candidates = append(candidates, v)
	}
	if len(tags) == 0 {
		return voices[0]
	}

	_, index, confidence := language.NewMatcher(tags).Match(want)
	if confidence == language.No {
		return voices[0]
	}
	return candidates[index]
}

// Voice returns the voice chosen by Init.
func (b *Backend) Voice() tts.Voice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voice
}

// SetRate implements tts.RateSetter. The rate applies from the next
// utterance on.
func (b *Backend) SetRate(rate float64) {
	b.mu.Lock()
	b.rate = tts.ClampRate(rate)
	b.mu.Unlock()
}

// Speak implements tts.Backend. Progress is reported at word boundaries as
// rune offsets into text.
func (b *Backend) Speak(ctx context.Context, text string, l tts.Listener) error {
	if text == "" {
		return tts.ErrEmptyText
	}

	b.speakMu.Lock()
	defer b.speakMu.Unlock()

	total := utf8.RuneCountInString(text)
	u := &Utterance{Text: text}
	u.OnBoundary = func(charIndex int) {
		if b.isCurrent(u) {
			l.EmitProgress(min(charIndex, total), total)
		}
	}
	u.OnEnd = func() {
		if b.release(u) {
			l.EmitEnd()
		}
	}
	u.OnError = func(err error) {
		if b.release(u) {
			b.logger.Warn("Utterance failed", "kind", tts.KindOf(err), "err", err)
			l.EmitError(err)
		}
	}

	b.mu.Lock()
	if err := ctx.Err(); err != nil {
		b.mu.Unlock()
		return err
	}
	hadPrevious := b.current != nil
	stops := b.stops
	u.Voice = b.voice
	u.Rate = b.rate
	b.current = u
	b.paused = false
	b.mu.Unlock()

	if hadPrevious {
		b.synth.Cancel()
	}

	if err := b.synth.Speak(u); err != nil {
		b.release(u)
		return tts.NewSynthesisError(tts.KindOf(err), b.Name(), err)
	}

	// A Stop that raced the call above found nothing to cancel yet.
	b.mu.Lock()
	raced := b.stops != stops
	b.mu.Unlock()
	if raced {
		b.synth.Cancel()
		return context.Canceled
	}
	return nil
}

// Pause implements tts.Backend.
func (b *Backend) Pause() {
	b.mu.Lock()
	if b.current == nil || b.paused {
		b.mu.Unlock()
		return
	}
	b.paused = true
	b.mu.Unlock()
	b.synth.Pause()
}

// Resume implements tts.Backend.
func (b *Backend) Resume() {
	b.mu.Lock()
	if b.current == nil || !b.paused {
		b.mu.Unlock()
		return
	}
	b.paused = false
	b.mu.Unlock()
	b.synth.Resume()
}

// Stop implements tts.Backend.
func (b *Backend) Stop() {
	b.mu.Lock()
	active := b.current != nil
	b.current = nil
	b.paused = false
	b.stops++
	b.mu.Unlock()

	if active {
		b.synth.Cancel()
	}
}

func (b *Backend) isCurrent(u *Utterance) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current == u
}

// release clears u if it is still current and reports whether it was.
func (b *Backend) release(u *Utterance) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != u {
		return false
	}
	b.current = nil
	b.paused = false
	return true
}
