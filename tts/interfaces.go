package tts

import (
	"context"
	"time"
)

// Backend turns text into audible speech.
//
// Speak blocks until playback has started or failed. Once it returns nil the
// backend reports the rest of the narration through the Listener, from its own
// goroutines. A backend must never invoke the Listener while holding its own
// lock, and must check ctx under that lock before installing new playback so
// that a superseded request can never replace a newer one.
type Backend interface {
	// Name identifies the backend in logs and status output.
	Name() string
	// Speak starts narrating text.
	Speak(ctx context.Context, text string, l Listener) error
	// Pause suspends the current narration, if any.
	Pause()
	// Resume continues a paused narration, if any.
	Resume()
	// Stop halts playback and releases any playback resources. Safe when idle.
	Stop()
}

// Listener receives playback events for one narration.
type Listener struct {
	OnProgress func(position, total int) // character offset into the narrated text
	OnEnd      func()                    // natural completion
	OnError    func(err error)           // playback failed after it started
}

// EmitProgress fires OnProgress if set.
func (l Listener) EmitProgress(position, total int) {
	if l.OnProgress != nil {
		l.OnProgress(position, total)
	}
}

// EmitEnd fires OnEnd if set.
func (l Listener) EmitEnd() {
	if l.OnEnd != nil {
		l.OnEnd()
	}
}

// EmitError fires OnError if set.
func (l Listener) EmitError(err error) {
	if l.OnError != nil {
		l.OnError(err)
	}
}

// Initializer is implemented by backends that need one-time preparation,
// such as voice enumeration.
type Initializer interface {
	Init(ctx context.Context, languageTag string) error
}

// RateSetter is implemented by backends whose speaking rate can be changed
// at runtime.
type RateSetter interface {
	SetRate(rate float64)
}

// AudioPlayer turns an encoded audio payload into a playable handle.
type AudioPlayer interface {
	Open(data []byte) (AudioHandle, error)
}

// AudioHandle is a single decoded, playable audio resource.
type AudioHandle interface {
	Play()
	Pause()
	IsPlaying() bool
	// Position is the elapsed playback time.
	Position() time.Duration
	// Duration is the total playback time.
	Duration() time.Duration
	// Done is closed when playback reaches the end or the handle is closed.
	Done() <-chan struct{}
	// Err reports a playback failure once Done is closed.
	Err() error
	Close() error
}

// Voice describes a synthesizer voice.
type Voice struct {
	ID       string // Unique identifier passed to the synthesizer
	Name     string // Human-readable name
	Language string // BCP 47 language tag, e.g. "he-IL"
	Default  bool   // Synthesizer's own default voice
}
