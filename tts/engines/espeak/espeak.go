// Package espeak drives the espeak-ng (or espeak) command line synthesizer.
package espeak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/lessonshelf/lectern/tts"
	"github.com/lessonshelf/lectern/tts/engines/local"
)

// BaseWordsPerMinute is espeak's speed at rate 1.0.
const BaseWordsPerMinute = 175

// ErrNotFound is returned when no espeak binary is on PATH.
var ErrNotFound = errors.New("espeak executable not found in PATH")

// FindExecutable returns the first espeak binary found on PATH.
func FindExecutable() (string, error) {
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}

// Synthesizer implements local.Synthesizer with one espeak process per
// utterance. Word boundaries are estimated from the speaking rate.
type Synthesizer struct {
	binary string
	logger *log.Logger

	mu        sync.Mutex
	voices    []tts.Voice
	listeners map[int]func()
	nextID    int
	speech    *speech
}

// speech is one running espeak process.
type speech struct {
	u      *local.Utterance
	cmd    *exec.Cmd
	paused bool
	quit   chan struct{} // closed on Cancel
}

// New creates a synthesizer for binary, or the first espeak found on PATH
// when binary is empty. Voices load in the background; subscribe with
// OnVoicesChanged.
func New(binary string) (*Synthesizer, error) {
	if binary == "" {
		var err error
		if binary, err = FindExecutable(); err != nil {
			return nil, err
		}
	} else if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("espeak binary %q: %w", binary, err)
	}

	s := &Synthesizer{
		binary:    binary,
		logger:    log.WithPrefix("espeak"),
		listeners: make(map[int]func()),
	}
	go s.loadVoices(context.Background())
	return s, nil
}

func (s *Synthesizer) loadVoices(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, s.binary, "--voices").Output()
	if err != nil {
		s.logger.Warn("Failed to list voices", "err", err)
		return
	}
	voices := ParseVoices(string(out))
	s.logger.Debug("Loaded voices", "count", len(voices))

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

// ParseVoices parses the table printed by `espeak --voices`:
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  he              --/M      Hebrew             sem/he
func ParseVoices(output string) []tts.Voice {
	var voices []tts.Voice
	for i, line := range strings.Split(output, "\n") {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		voices = append(voices, tts.Voice{
			ID:       fields[1],
			Name:     fields[3],
			Language: fields[1],
		})
	}
	return voices
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

// Args returns the espeak arguments for u. Text is passed on stdin.
func Args(u *local.Utterance) []string {
	var args []string
	if u.Voice.ID != "" {
		args = append(args, "-v", u.Voice.ID)
	}
	args = append(args, "-s", strconv.Itoa(WordsPerMinute(u.Rate)), "--stdin")
	return args
}

// WordsPerMinute converts a rate multiplier to espeak's speed.
func WordsPerMinute(rate float64) int {
	if rate <= 0 {
		rate = 1
	}
	return max(int(BaseWordsPerMinute*rate), 1)
}

// Speak implements local.Synthesizer. Any previous utterance is cancelled.
func (s *Synthesizer) Speak(u *local.Utterance) error {
	s.Cancel()

	cmd := exec.Command(s.binary, Args(u)...)
	cmd.Stdin = strings.NewReader(u.Text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return tts.NewSynthesisError(tts.KindServiceUnavailable, "espeak", err)
	}

	sp := &speech{
		u:    u,
		cmd:  cmd,
		quit: make(chan struct{}),
	}
	s.mu.Lock()
	s.speech = sp
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	go s.track(sp, done, &stderr)
	return nil
}

// track estimates word boundaries until the process exits, then reports the
// outcome unless the utterance was cancelled.
func (s *Synthesizer) track(sp *speech, done <-chan error, stderr *bytes.Buffer) {
	starts := WordStarts(sp.u.Text)
	interval := time.Minute / time.Duration(WordsPerMinute(sp.u.Rate))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	next := 0
	emit := func() {
		if next < len(starts) && sp.u.OnBoundary != nil {
			sp.u.OnBoundary(starts[next])
		}
		next++
	}
	emit()

	for {
		select {
		case err := <-done:
			if !s.finish(sp) {
				return
			}
			if err != nil {
				msg := strings.TrimSpace(stderr.String())
				if sp.u.OnError != nil {
					sp.u.OnError(tts.NewSynthesisError(tts.KindSynthesisFailed, "espeak", fmt.Errorf("%w: %s", err, msg)))
				}
				return
			}
			if sp.u.OnEnd != nil {
				sp.u.OnEnd()
			}
			return
		case <-sp.quit:
			return
		case <-ticker.C:
			if s.isPaused(sp) {
				continue
			}
			emit()
		}
	}
}

// WordStarts returns the rune offsets at which words begin.
func WordStarts(text string) []int {
	var starts []int
	inWord := false
	i := 0
	for _, r := range text {
		space := unicode.IsSpace(r)
		if !space && !inWord {
			starts = append(starts, i)
		}
		inWord = !space
		i++
	}
	return starts
}

// Pause implements local.Synthesizer by suspending the process.
func (s *Synthesizer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.speech
	if sp == nil || sp.paused {
		return
	}
	if err := suspend(sp.cmd.Process); err != nil {
		s.logger.Warn("Failed to pause", "err", err)
		return
	}
	sp.paused = true
}

// Resume implements local.Synthesizer.
func (s *Synthesizer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := s.speech
	if sp == nil || !sp.paused {
		return
	}
	if err := resume(sp.cmd.Process); err != nil {
		s.logger.Warn("Failed to resume", "err", err)
		return
	}
	sp.paused = false
}

// Cancel implements local.Synthesizer.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	sp := s.speech
	s.speech = nil
	s.mu.Unlock()

	if sp == nil {
		return
	}
	close(sp.quit)
	if sp.cmd.Process != nil {
		_ = sp.cmd.Process.Kill()
	}
}

func (s *Synthesizer) isPaused(sp *speech) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sp.paused
}

// finish clears sp if it is still current and reports whether it was.
func (s *Synthesizer) finish(sp *speech) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speech != sp {
		return false
	}
	s.speech = nil
	return true
}
