package tts

// State represents the transport state of the narration engine.
type State int

const (
	// StateIdle indicates no backend is active.
	StateIdle State = iota
	// StateSpeakingRemote indicates server-synthesized audio is playing.
	StateSpeakingRemote
	// StateSpeakingLocal indicates the on-device synthesizer is speaking.
	StateSpeakingLocal
	// StatePaused indicates the active backend is paused.
	StatePaused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeakingRemote:
		return "speaking (remote)"
	case StateSpeakingLocal:
		return "speaking (local)"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// IsActive returns true if a backend is speaking or paused.
func (s State) IsActive() bool {
	return s != StateIdle
}

// IsSpeaking returns true if a backend is producing audio.
func (s State) IsSpeaking() bool {
	return s == StateSpeakingRemote || s == StateSpeakingLocal
}
