package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lessonshelf/lectern/tts"
	"github.com/lessonshelf/lectern/tts/audio"
)

type fakeSynth struct {
	audio []byte
	err   error
}

func (f fakeSynth) Synthesize(ctx context.Context, _ string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.audio, f.err
}

type events struct {
	mu       sync.Mutex
	progress [][2]int
	ends     int
	errs     []error
	ended    chan struct{}
}

func newEvents() *events { return &events{ended: make(chan struct{}, 4)} }

func (e *events) listener() tts.Listener {
	return tts.Listener{
		OnProgress: func(pos, total int) {
			e.mu.Lock()
			e.progress = append(e.progress, [2]int{pos, total})
			e.mu.Unlock()
		},
		OnEnd: func() {
			e.mu.Lock()
			e.ends++
			e.mu.Unlock()
			e.ended <- struct{}{}
		},
		OnError: func(err error) {
			e.mu.Lock()
			e.errs = append(e.errs, err)
			e.mu.Unlock()
			e.ended <- struct{}{}
		},
	}
}

func (e *events) lastProgress() [2]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.progress) == 0 {
		return [2]int{-1, -1}
	}
	return e.progress[len(e.progress)-1]
}

func TestProgressIndex(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  time.Duration
		duration time.Duration
		total    int
		want     int
	}{
		{"halfway", 5 * time.Second, 10 * time.Second, 200, 100},
		{"floors", 1 * time.Second, 3 * time.Second, 10, 3},
		{"start", 0, 10 * time.Second, 200, 0},
		{"end", 10 * time.Second, 10 * time.Second, 200, 200},
		{"overrun", 11 * time.Second, 10 * time.Second, 200, 200},
		{"unknown duration", 5 * time.Second, 0, 200, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProgressIndex(tt.elapsed, tt.duration, tt.total); got != tt.want {
				t.Errorf("ProgressIndex(%v, %v, %d) = %d, want %d", tt.elapsed, tt.duration, tt.total, got, tt.want)
			}
		})
	}
}

func TestBackendPlaysAndReportsProgress(t *testing.T) {
	player := audio.NewMockPlayer(10 * time.Second)
	b := NewBackend(fakeSynth{audio: []byte("mp3")}, player, WithProgressInterval(5*time.Millisecond))
	ev := newEvents()

	text := make([]rune, 200)
	for i := range text {
		text[i] = 'א'
	}

	if err := b.Speak(context.Background(), string(text), ev.listener()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	h := player.Handles()[0]
	h.SetPosition(5 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for ev.lastProgress() != [2]int{100, 200} && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := ev.lastProgress(); got != [2]int{100, 200} {
		t.Errorf("Expected progress (100, 200), got %v", got)
	}

	h.Finish(nil)
	select {
	case <-ev.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected OnEnd")
	}
	if ev.ends != 1 {
		t.Errorf("Expected one end, got %d", ev.ends)
	}
	if !h.IsClosed() {
		t.Error("Expected audio released after completion")
	}
}

func TestBackendFailures(t *testing.T) {
	t.Run("SynthesisError", func(t *testing.T) {
		b := NewBackend(fakeSynth{err: &StatusError{Code: 503}}, audio.NewMockPlayer(time.Second))
		err := b.Speak(context.Background(), "text", tts.Listener{})
		var se *StatusError
		if !errors.As(err, &se) {
			t.Errorf("Expected StatusError, got %v", err)
		}
	})

	t.Run("UndecodableAudio", func(t *testing.T) {
		player := audio.NewMockPlayer(time.Second)
		player.SetOpenError(audio.ErrEmptyAudio)
		b := NewBackend(fakeSynth{audio: []byte("junk")}, player)
		if err := b.Speak(context.Background(), "text", tts.Listener{}); !errors.Is(err, audio.ErrEmptyAudio) {
			t.Errorf("Expected ErrEmptyAudio, got %v", err)
		}
	})

	t.Run("PlaybackError", func(t *testing.T) {
		player := audio.NewMockPlayer(time.Second)
		b := NewBackend(fakeSynth{audio: []byte("mp3")}, player)
		ev := newEvents()
		if err := b.Speak(context.Background(), "text", ev.listener()); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		player.Handles()[0].Finish(errors.New("device lost"))
		<-ev.ended
		if ev.ends != 0 || len(ev.errs) != 1 {
			t.Errorf("Expected one error and no end, got ends=%d errs=%v", ev.ends, ev.errs)
		}
	})
}

func TestBackendCancelledBeforeInstall(t *testing.T) {
	player := audio.NewMockPlayer(time.Second)
	b := NewBackend(fakeSynth{audio: []byte("mp3")}, player)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Speak(ctx, "text", tts.Listener{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(player.Handles()) != 0 {
		t.Error("Expected no audio opened for a cancelled request")
	}
}

func TestBackendStopReleasesAudio(t *testing.T) {
	player := audio.NewMockPlayer(time.Second)
	b := NewBackend(fakeSynth{audio: []byte("mp3")}, player)
	ev := newEvents()

	if err := b.Speak(context.Background(), "text", ev.listener()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	h := player.Handles()[0]

	b.Pause()
	if h.IsPlaying() {
		t.Error("Expected paused audio")
	}
	b.Resume()
	if !h.IsPlaying() {
		t.Error("Expected resumed audio")
	}

	b.Stop()
	b.Stop()
	if !h.IsClosed() {
		t.Error("Expected audio released on stop")
	}

	select {
	case <-ev.ended:
		t.Error("Expected no end or error after stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBackendNewSpeakReplacesHandle(t *testing.T) {
	player := audio.NewMockPlayer(time.Second)
	b := NewBackend(fakeSynth{audio: []byte("mp3")}, player)

	first, second := newEvents(), newEvents()
	_ = b.Speak(context.Background(), "one", first.listener())
	_ = b.Speak(context.Background(), "two", second.listener())

	handles := player.Handles()
	if len(handles) != 2 {
		t.Fatalf("Expected 2 handles, got %d", len(handles))
	}
	if !handles[0].IsClosed() {
		t.Error("Expected the first handle to be released")
	}

	handles[1].Finish(nil)
	<-second.ended

	select {
	case <-first.ended:
		t.Error("Expected the replaced narration to stay silent")
	case <-time.After(50 * time.Millisecond):
	}
}
