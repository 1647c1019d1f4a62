package audio

import (
	"errors"
	"testing"
	"time"
)

func TestMockPlayerOpenAndClose(t *testing.T) {
	mp := NewMockPlayer(3 * time.Second)

	h, err := mp.Open([]byte("mp3"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	h.Play()
	if !h.IsPlaying() {
		t.Error("Expected handle to be playing")
	}
	if h.Duration() != 3*time.Second {
		t.Errorf("Expected duration 3s, got %v", h.Duration())
	}

	if err := h.Close(); err != nil {
		t.Errorf("Expected no error on close, got %v", err)
	}
	_ = h.Close()

	select {
	case <-h.Done():
	default:
		t.Error("Expected Done to be closed after Close")
	}

	want := []string{"open", "play", "close"}
	history := mp.History()
	if len(history) != len(want) {
		t.Fatalf("Expected %d events, got %d: %v", len(want), len(history), history)
	}
	for i, ev := range history {
		if ev.Type != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], ev.Type)
		}
	}
}

func TestMockPlayerOpenError(t *testing.T) {
	mp := NewMockPlayer(time.Second)
	mp.SetOpenError(ErrEmptyAudio)

	if _, err := mp.Open(nil); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("Expected ErrEmptyAudio, got %v", err)
	}
	if len(mp.Handles()) != 0 {
		t.Error("Expected no handles after failed open")
	}
}

func TestMockHandleFinish(t *testing.T) {
	mp := NewMockPlayer(2 * time.Second)
	h, _ := mp.Open([]byte("x"))
	handle := mp.Handles()[0]

	h.Play()
	handle.SetPosition(time.Second)
	if h.Position() != time.Second {
		t.Errorf("Expected position 1s, got %v", h.Position())
	}

	failure := errors.New("device lost")
	handle.Finish(failure)

	<-h.Done()
	if !errors.Is(h.Err(), failure) {
		t.Errorf("Expected device error, got %v", h.Err())
	}
	if h.IsPlaying() {
		t.Error("Expected playback to stop")
	}
	if h.Position() != h.Duration() {
		t.Errorf("Expected position at end, got %v", h.Position())
	}
}
