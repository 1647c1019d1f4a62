// Package tts provides the hybrid narration engine used by lectern.
//
// The engine hides a remote, server-synthesized backend and an on-device
// synthesizer behind one transport surface. Every Speak supersedes the
// previous narration; events from a superseded narration are dropped.
package tts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Request is a single narration: the text to speak and where to report.
type Request struct {
	Text       string
	OnEnd      func()
	OnProgress func(position, total int)
	// OnError fires instead of OnEnd when the narration stops without
	// completing: playback failed or no backend could start it.
	OnError func(err error)
}

// narration is the engine-owned lifetime of one Request.
type narration struct {
	req     Request
	ctx     context.Context
	cancel  context.CancelFunc
	backend Backend // nil until playback starts
	paused  bool    // may be set before playback starts
}

// Engine coordinates the remote and local backends.
type Engine struct {
	remote Backend
	local  Backend
	logger *log.Logger

	// Callbacks
	onUnavailable func(text string)
	onStateChange func(State)

	mu          sync.Mutex
	current     *narration
	rate        float64
	initialized bool
	wg          sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithUnavailableHandler registers fn to be called when neither backend
// could start a narration.
func WithUnavailableHandler(fn func(text string)) Option {
	return func(e *Engine) { e.onUnavailable = fn }
}

// WithStateChangeHandler registers fn to be called after every transport
// state change. fn runs outside the engine lock.
func WithStateChangeHandler(fn func(State)) Option {
	return func(e *Engine) { e.onStateChange = fn }
}

// WithRate sets the initial local speaking rate.
func WithRate(rate float64) Option {
	return func(e *Engine) { e.rate = ClampRate(rate) }
}

// WithLogger sets the logger used for fallback and playback diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine. Either backend may be nil.
func NewEngine(remote, local Backend, opts ...Option) *Engine {
	e := &Engine{
		remote: remote,
		local:  local,
		rate:   DefaultRate,
		logger: log.WithPrefix("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if rs, ok := e.local.(RateSetter); ok {
		rs.SetRate(e.rate)
	}
	return e
}

// Init prepares the local backend for languageTag. Only the first
// successful call does any work. A failure leaves the engine usable through
// the remote backend; the error is informational.
func (e *Engine) Init(ctx context.Context, languageTag string) error {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	initializer, ok := e.local.(Initializer)
	if !ok {
		e.mu.Lock()
		e.initialized = true
		e.mu.Unlock()
		return nil
	}

	if err := initializer.Init(ctx, languageTag); err != nil {
		e.logger.Warn("Local synthesizer unavailable, remote only", "lang", languageTag, "err", err)
		return err
	}

	e.mu.Lock()
	e.initialized = true
	e.mu.Unlock()
	return nil
}

// Speak narrates text, superseding any narration in progress. It returns
// immediately; onEnd and onProgress fire from backend goroutines. Neither
// fires if both backends fail.
func (e *Engine) Speak(text string, onEnd func(), onProgress func(position, total int)) {
	e.SpeakRequest(Request{Text: text, OnEnd: onEnd, OnProgress: onProgress})
}

// SpeakReporting is Speak with an onError callback for narrations that end
// without completing.
func (e *Engine) SpeakReporting(text string, onEnd func(), onProgress func(position, total int), onError func(error)) {
	e.SpeakRequest(Request{Text: text, OnEnd: onEnd, OnProgress: onProgress, OnError: onError})
}

// SpeakRequest is Speak with a prepared Request.
func (e *Engine) SpeakRequest(req Request) {
	e.mu.Lock()
	changed := e.stopLocked()
	if strings.TrimSpace(req.Text) == "" {
		e.mu.Unlock()
		if changed {
			e.notifyState(StateIdle)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &narration{req: req, ctx: ctx, cancel: cancel}
	e.current = n
	e.wg.Add(1)
	e.mu.Unlock()

	if changed {
		e.notifyState(StateIdle)
	}

	go func() {
		defer e.wg.Done()
		e.run(n)
	}()
}

// run tries the remote backend, then the local one.
func (e *Engine) run(n *narration) {
	text := n.req.Text

	if e.remote != nil {
		err := e.remote.Speak(n.ctx, text, e.listener(n))
		if err == nil {
			e.activate(n, e.remote)
			return
		}
		if n.ctx.Err() != nil {
			return
		}
		e.logger.Warn("Remote synthesis failed, falling back to local", "backend", e.remote.Name(), "err", err)
	}

	if e.local != nil {
		err := e.local.Speak(n.ctx, text, e.listener(n))
		if err == nil {
			e.activate(n, e.local)
			return
		}
		if n.ctx.Err() != nil {
			return
		}
		e.logger.Warn("Local synthesis failed", "backend", e.local.Name(), "err", err)
	}

	e.mu.Lock()
	if e.current != n {
		e.mu.Unlock()
		return
	}
	e.current = nil
	n.cancel()
	handler := e.onUnavailable
	e.mu.Unlock()

	e.logger.Error("No narration backend available", "chars", len([]rune(text)))
	if handler != nil {
		handler(text)
	}
	if n.req.OnError != nil {
		n.req.OnError(fmt.Errorf("narrate %d chars: %w", len([]rune(text)), ErrBackendUnavailable))
	}
}

// activate records b as the backend playing n, unless n was superseded or
// already finished. A pause requested while n was pending is applied here.
func (e *Engine) activate(n *narration, b Backend) {
	e.mu.Lock()
	if e.current != n || n.backend != nil {
		e.mu.Unlock()
		return
	}
	n.backend = b
	if n.paused {
		b.Pause()
	}
	state := e.stateLocked()
	e.mu.Unlock()

	e.logger.Debug("Narration started", "backend", b.Name())
	e.notifyState(state)
}

// listener builds the event sink for n. Every event is checked against the
// current narration before any stored callback runs.
func (e *Engine) listener(n *narration) Listener {
	return Listener{
		OnProgress: func(position, total int) {
			e.mu.Lock()
			live := e.current == n
			e.mu.Unlock()
			if live && n.req.OnProgress != nil {
				n.req.OnProgress(position, total)
			}
		},
		OnEnd: func() {
			if _, ok := e.finish(n); !ok {
				return
			}
			e.notifyState(StateIdle)
			if n.req.OnEnd != nil {
				n.req.OnEnd()
			}
		},
		OnError: func(err error) {
			name, ok := e.finish(n)
			if !ok {
				return
			}
			e.logger.Error("Playback failed", "backend", name, "kind", KindOf(err), "err", err)
			e.notifyState(StateIdle)
			if n.req.OnError != nil {
				n.req.OnError(err)
			}
		},
	}
}

// finish retires n if it is still current and returns the name of the
// backend that was playing it.
func (e *Engine) finish(n *narration) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != n {
		return "", false
	}
	e.current = nil
	n.cancel()
	if n.backend == nil {
		return "unknown", true
	}
	return n.backend.Name(), true
}

// Pause pauses the active backend. A narration still waiting for a backend
// starts paused. No-op when idle or already paused.
func (e *Engine) Pause() {
	e.mu.Lock()
	n := e.current
	if n == nil || n.paused {
		e.mu.Unlock()
		return
	}
	n.paused = true
	if n.backend == nil {
		e.mu.Unlock()
		return
	}
	n.backend.Pause()
	e.mu.Unlock()

	e.notifyState(StatePaused)
}

// Resume resumes the active backend, or withdraws a pause requested before
// playback started. No-op unless paused.
func (e *Engine) Resume() {
	e.mu.Lock()
	n := e.current
	if n == nil || !n.paused {
		e.mu.Unlock()
		return
	}
	n.paused = false
	if n.backend == nil {
		e.mu.Unlock()
		return
	}
	n.backend.Resume()
	state := e.stateLocked()
	e.mu.Unlock()

	e.notifyState(state)
}

// Stop halts both backends and drops all callbacks of the current
// narration. Safe to call at any time, any number of times.
func (e *Engine) Stop() {
	e.mu.Lock()
	changed := e.stopLocked()
	e.mu.Unlock()

	if changed {
		e.notifyState(StateIdle)
	}
}

// stopLocked must be called with e.mu held. It reports whether a narration
// was retired.
func (e *Engine) stopLocked() bool {
	n := e.current
	e.current = nil
	if n != nil {
		n.cancel()
	}
	if e.remote != nil {
		e.remote.Stop()
	}
	if e.local != nil {
		e.local.Stop()
	}
	return n != nil
}

// Close stops playback and waits for in-flight narrations to unwind.
func (e *Engine) Close() {
	e.Stop()
	e.wg.Wait()
}

// SetRate sets the local speaking rate, clamped to [MinRate, MaxRate].
// The remote backend is unaffected.
func (e *Engine) SetRate(rate float64) {
	rate = ClampRate(rate)

	e.mu.Lock()
	e.rate = rate
	e.mu.Unlock()

	if rs, ok := e.local.(RateSetter); ok {
		rs.SetRate(rate)
	}
}

// Rate returns the local speaking rate.
func (e *Engine) Rate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

// IsSpeaking reports whether a backend is producing audio.
func (e *Engine) IsSpeaking() bool {
	return e.State().IsSpeaking()
}

// IsPaused reports whether the active backend is paused.
func (e *Engine) IsPaused() bool {
	return e.State() == StatePaused
}

// State returns the current transport state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// ActiveBackend returns the name of the backend playing the current
// narration, or "" when idle.
func (e *Engine) ActiveBackend() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.backend == nil {
		return ""
	}
	return e.current.backend.Name()
}

func (e *Engine) stateLocked() State {
	n := e.current
	switch {
	case n == nil || n.backend == nil:
		return StateIdle
	case n.paused:
		return StatePaused
	case n.backend == e.remote:
		return StateSpeakingRemote
	default:
		return StateSpeakingLocal
	}
}

func (e *Engine) notifyState(s State) {
	if e.onStateChange != nil {
		e.onStateChange(s)
	}
}
