package audio

import (
	"sync"
	"time"

	"github.com/lessonshelf/lectern/tts"
)

// MockPlayer implements tts.AudioPlayer without an audio device.
// Tests drive playback through the handles it returns.
type MockPlayer struct {
	mu       sync.Mutex
	duration time.Duration
	openErr  error
	handles  []*MockHandle
	history  []PlaybackEvent
}

// PlaybackEvent records a player or handle call for test verification.
type PlaybackEvent struct {
	Type   string
	Handle int // Index into Handles, -1 for player-level events
}

// NewMockPlayer creates a mock whose handles report duration.
func NewMockPlayer(duration time.Duration) *MockPlayer {
	return &MockPlayer{duration: duration}
}

// SetOpenError makes subsequent Open calls fail with err.
func (mp *MockPlayer) SetOpenError(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.openErr = err
}

// Open implements tts.AudioPlayer.
func (mp *MockPlayer) Open(data []byte) (tts.AudioHandle, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.openErr != nil {
		mp.history = append(mp.history, PlaybackEvent{Type: "open-failed", Handle: -1})
		return nil, mp.openErr
	}

	h := &MockHandle{
		owner:    mp,
		index:    len(mp.handles),
		data:     data,
		duration: mp.duration,
		done:     make(chan struct{}),
	}
	mp.handles = append(mp.handles, h)
	mp.history = append(mp.history, PlaybackEvent{Type: "open", Handle: h.index})
	return h, nil
}

// Handles returns every handle opened so far.
func (mp *MockPlayer) Handles() []*MockHandle {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([]*MockHandle, len(mp.handles))
	copy(out, mp.handles)
	return out
}

// History returns the recorded events.
func (mp *MockPlayer) History() []PlaybackEvent {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([]PlaybackEvent, len(mp.history))
	copy(out, mp.history)
	return out
}

func (mp *MockPlayer) record(kind string, index int) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.history = append(mp.history, PlaybackEvent{Type: kind, Handle: index})
}

// MockHandle is a tts.AudioHandle whose clock is set by the test.
type MockHandle struct {
	owner *MockPlayer
	index int
	data  []byte

	mu       sync.Mutex
	playing  bool
	closed   bool
	position time.Duration
	duration time.Duration
	err      error
	done     chan struct{}
	once     sync.Once
}

// Data returns the payload the handle was opened with.
func (h *MockHandle) Data() []byte { return h.data }

// SetPosition moves the playback clock.
func (h *MockHandle) SetPosition(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.position = d
}

// Finish ends playback, with err as the playback failure if non-nil.
func (h *MockHandle) Finish(err error) {
	h.mu.Lock()
	h.playing = false
	h.position = h.duration
	h.err = err
	h.mu.Unlock()
	h.once.Do(func() { close(h.done) })
}

// IsClosed reports whether Close was called.
func (h *MockHandle) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *MockHandle) Play() {
	h.mu.Lock()
	h.playing = !h.closed
	h.mu.Unlock()
	h.owner.record("play", h.index)
}

func (h *MockHandle) Pause() {
	h.mu.Lock()
	h.playing = false
	h.mu.Unlock()
	h.owner.record("pause", h.index)
}

func (h *MockHandle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *MockHandle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position
}

func (h *MockHandle) Duration() time.Duration { return h.duration }

func (h *MockHandle) Done() <-chan struct{} { return h.done }

func (h *MockHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *MockHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.playing = false
	h.mu.Unlock()

	h.owner.record("close", h.index)
	h.once.Do(func() { close(h.done) })
	return nil
}
