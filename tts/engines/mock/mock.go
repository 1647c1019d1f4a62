// Package mock provides a scriptable speech synthesizer for testing.
package mock

import (
	"sync"

	"github.com/lessonshelf/lectern/tts"
	"github.com/lessonshelf/lectern/tts/engines/local"
)

// Synthesizer implements local.Synthesizer. Tests drive the current
// utterance with Boundary, Finish and Fail.
type Synthesizer struct {
	mu        sync.Mutex
	voices    []tts.Voice
	listeners map[int]func()
	nextID    int

	speakErr   error
	current    *local.Utterance
	paused     bool
	utterances []*local.Utterance
	cancels    int
}

// New creates a synthesizer that knows the given voices.
func New(voices ...tts.Voice) *Synthesizer {
	return &Synthesizer{
		voices:    voices,
		listeners: make(map[int]func()),
	}
}

// SetVoices replaces the voice list and notifies subscribers.
func (s *Synthesizer) SetVoices(voices ...tts.Voice) {
	s.mu.Lock()
	s.voices = voices
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// SetSpeakError makes every following Speak fail with err.
func (s *Synthesizer) SetSpeakError(err error) {
	s.mu.Lock()
	s.speakErr = err
	s.mu.Unlock()
}

// Voices implements local.Synthesizer.
func (s *Synthesizer) Voices() []tts.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tts.Voice(nil), s.voices...)
}

// OnVoicesChanged implements local.Synthesizer.
func (s *Synthesizer) OnVoicesChanged(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Speak implements local.Synthesizer.
func (s *Synthesizer) Speak(u *local.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speakErr != nil {
		return s.speakErr
	}
	s.current = u
	s.paused = false
	s.utterances = append(s.utterances, u)
	return nil
}

// Pause implements local.Synthesizer.
func (s *Synthesizer) Pause() {
	s.mu.Lock()
	s.paused = s.current != nil
	s.mu.Unlock()
}

// Resume implements local.Synthesizer.
func (s *Synthesizer) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

// Cancel implements local.Synthesizer.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	s.current = nil
	s.paused = false
	s.cancels++
	s.mu.Unlock()
}

// Boundary reports a word boundary at charIndex on the current utterance.
func (s *Synthesizer) Boundary(charIndex int) {
	if u := s.Current(); u != nil && u.OnBoundary != nil {
		u.OnBoundary(charIndex)
	}
}

// Finish ends the current utterance normally.
func (s *Synthesizer) Finish() {
	if u := s.take(); u != nil && u.OnEnd != nil {
		u.OnEnd()
	}
}

// Fail ends the current utterance with err.
func (s *Synthesizer) Fail(err error) {
	if u := s.take(); u != nil && u.OnError != nil {
		u.OnError(err)
	}
}

// Current returns the utterance being spoken, or nil.
func (s *Synthesizer) Current() *local.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Utterances returns every utterance accepted so far.
func (s *Synthesizer) Utterances() []*local.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*local.Utterance(nil), s.utterances...)
}

// Paused reports whether the synthesizer is paused.
func (s *Synthesizer) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Cancels returns how many times Cancel was called.
func (s *Synthesizer) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

func (s *Synthesizer) take() *local.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.current
	s.current = nil
	s.paused = false
	return u
}
