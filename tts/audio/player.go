// Package audio decodes synthesized MP3 audio and plays it through the
// system audio device.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
	"github.com/lessonshelf/lectern/tts"
)

const (
	// Channels is fixed by the MP3 decoder, which always emits stereo.
	Channels = 2
	// BytesPerFrame is one 16-bit sample per channel.
	BytesPerFrame = Channels * 2

	pollInterval = 20 * time.Millisecond
)

var (
	// ErrEmptyAudio is returned for payloads that decode to no samples.
	ErrEmptyAudio = errors.New("audio contains no samples")
	// ErrSampleRateMismatch is returned when a payload's sample rate differs
	// from the rate the audio device was opened with.
	ErrSampleRateMismatch = errors.New("audio sample rate differs from device rate")
)

// Player opens MP3 payloads as playable streams. The audio device is
// opened on first use and shared by every stream.
type Player struct {
	mu         sync.Mutex
	context    *oto.Context
	sampleRate int
	bufferSize time.Duration
}

// NewPlayer creates a player. Nothing touches the audio device until the
// first Open.
func NewPlayer() *Player {
	p := &Player{}

	// Platform-specific buffer size adjustments
	switch runtime.GOOS {
	case "darwin":
		p.bufferSize = 100 * time.Millisecond
	default:
		p.bufferSize = 50 * time.Millisecond
	}
	return p
}

// Open decodes data and returns a stream ready to Play.
func (p *Player) Open(data []byte) (tts.AudioHandle, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	if len(pcm) < BytesPerFrame {
		return nil, ErrEmptyAudio
	}

	ctx, err := p.device(dec.SampleRate())
	if err != nil {
		return nil, err
	}
	return newStream(ctx, pcm, dec.SampleRate()), nil
}

// device returns the shared audio context, creating it for sampleRate.
func (p *Player) device(sampleRate int) (*oto.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.context != nil {
		if sampleRate != p.sampleRate {
			return nil, fmt.Errorf("%w: got %d Hz, device runs at %d Hz", ErrSampleRateMismatch, sampleRate, p.sampleRate)
		}
		return p.context, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   p.bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}
	<-ready

	log.Debug("Audio device ready", "sample_rate", sampleRate)
	p.context = ctx
	p.sampleRate = sampleRate
	return ctx, nil
}

// positionTrackingReader wraps a reader and tracks position atomically.
type positionTrackingReader struct {
	reader   *bytes.Reader
	position int64 // atomic
}

func (r *positionTrackingReader) Read(b []byte) (int, error) {
	n, err := r.reader.Read(b)
	if n > 0 {
		atomic.AddInt64(&r.position, int64(n))
	}
	return n, err
}

func (r *positionTrackingReader) pos() int64 {
	return atomic.LoadInt64(&r.position)
}

// stream is one decoded payload bound to an oto player.
type stream struct {
	player         *oto.Player
	reader         *positionTrackingReader
	bytesPerSecond int64
	duration       time.Duration

	mu      sync.Mutex
	started bool
	paused  bool
	closed  bool
	err     error

	done     chan struct{}
	doneOnce sync.Once
	quit     chan struct{}
}

func newStream(ctx *oto.Context, pcm []byte, sampleRate int) *stream {
	reader := &positionTrackingReader{reader: bytes.NewReader(pcm)}
	bps := int64(sampleRate * BytesPerFrame)
	s := &stream{
		player:         ctx.NewPlayer(reader),
		reader:         reader,
		bytesPerSecond: bps,
		duration:       time.Duration(int64(len(pcm)) * int64(time.Second) / bps),
		done:           make(chan struct{}),
		quit:           make(chan struct{}),
	}
	go s.watch()
	return s
}

// watch closes done once the player drains its reader.
func (s *stream) watch() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.mu.Lock()
			finished := s.started && !s.paused && !s.player.IsPlaying()
			if finished {
				s.err = s.player.Err()
			}
			s.mu.Unlock()
			if finished {
				s.doneOnce.Do(func() { close(s.done) })
				return
			}
		}
	}
}

func (s *stream) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.started = true
	s.paused = false
	s.player.Play()
}

func (s *stream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.started {
		return
	}
	s.paused = true
	s.player.Pause()
}

func (s *stream) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.player.IsPlaying()
}

// Position subtracts what is still queued in the device buffer from what
// has been read.
func (s *stream) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.duration
	}
	played := s.reader.pos() - int64(s.player.BufferedSize())
	if played < 0 {
		played = 0
	}
	return time.Duration(played * int64(time.Second) / s.bytesPerSecond)
}

func (s *stream) Duration() time.Duration { return s.duration }

func (s *stream) Done() <-chan struct{} { return s.done }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.quit)
	err := s.player.Close()
	s.mu.Unlock()

	s.doneOnce.Do(func() { close(s.done) })
	return err
}
