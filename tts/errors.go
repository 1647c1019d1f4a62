package tts

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for the narration engine and its backends.
var (
	// ErrEmptyText is returned when there is nothing to narrate.
	ErrEmptyText = errors.New("empty text provided")
	// ErrInvalidText is returned when text is not valid UTF-8.
	ErrInvalidText = errors.New("text is not valid UTF-8")
	// ErrNotInitialized is returned by a backend that has not been prepared.
	ErrNotInitialized = errors.New("backend is not initialized")
	// ErrNoVoices is returned when the synthesizer never reported any voice.
	ErrNoVoices = errors.New("no synthesizer voices available")
	// ErrBackendUnavailable is returned when a backend is disabled or missing.
	ErrBackendUnavailable = errors.New("backend is not available")
	// ErrInvalidConfig is returned when narration settings fail validation.
	ErrInvalidConfig = errors.New("invalid narration configuration")
)

// SynthesisErrorKind classifies playback failures reported by a synthesizer.
type SynthesisErrorKind int

const (
	// KindSynthesisFailed is a generic synthesis failure.
	KindSynthesisFailed SynthesisErrorKind = iota
	// KindNotAllowed means playback was blocked by the platform's policy.
	KindNotAllowed
	// KindNetwork means a network-backed voice could not be reached.
	KindNetwork
	// KindServiceUnavailable means no synthesis service could be started.
	KindServiceUnavailable
	// KindBusy means the synthesizer is in use by another client.
	KindBusy
	// KindCanceled means the utterance was canceled before it finished.
	KindCanceled
)

// String returns the string representation of the kind.
func (k SynthesisErrorKind) String() string {
	switch k {
	case KindSynthesisFailed:
		return "synthesis-failed"
	case KindNotAllowed:
		return "not-allowed"
	case KindNetwork:
		return "network"
	case KindServiceUnavailable:
		return "synthesis-unavailable"
	case KindBusy:
		return "audio-busy"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// SynthesisError is a classified playback failure.
type SynthesisError struct {
	Kind    SynthesisErrorKind
	Backend string // Backend that reported the error
	Err     error  // The underlying error, may be nil
}

// NewSynthesisError creates a classified error for backend.
func NewSynthesisError(kind SynthesisErrorKind, backend string, err error) *SynthesisError {
	return &SynthesisError{Kind: kind, Backend: backend, Err: err}
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Backend, e.Kind)
}

// Unwrap returns the underlying error.
func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Unclassified errors are reported as
// KindSynthesisFailed, context cancellation as KindCanceled.
func KindOf(err error) SynthesisErrorKind {
	var se *SynthesisError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindSynthesisFailed
}
