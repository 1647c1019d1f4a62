package paragraph

import (
	"sync"
	"testing"
	"time"
)

type speakCall struct {
	text       string
	onEnd      func()
	onProgress func(position, total int)
}

// fakeSpeaker records narration requests instead of speaking.
type fakeSpeaker struct {
	mu      sync.Mutex
	calls   []speakCall
	pauses  int
	resumes int
	stops   int
}

func (f *fakeSpeaker) Speak(text string, onEnd func(), onProgress func(position, total int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, speakCall{text, onEnd, onProgress})
}

func (f *fakeSpeaker) Pause()  { f.mu.Lock(); f.pauses++; f.mu.Unlock() }
func (f *fakeSpeaker) Resume() { f.mu.Lock(); f.resumes++; f.mu.Unlock() }
func (f *fakeSpeaker) Stop()   { f.mu.Lock(); f.stops++; f.mu.Unlock() }

func (f *fakeSpeaker) call(i int) speakCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeSpeaker) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.text
	}
	return out
}

// manualScheduler holds scheduled functions until the test fires them.
type manualScheduler struct {
	mu      sync.Mutex
	pending []*scheduled
}

type scheduled struct {
	delay     time.Duration
	fn        func()
	cancelled bool
}

func (m *manualScheduler) schedule(d time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &scheduled{delay: d, fn: fn}
	m.pending = append(m.pending, s)
	return func() {
		m.mu.Lock()
		s.cancelled = true
		m.mu.Unlock()
	}
}

// fire runs every live scheduled function and reports how many ran.
func (m *manualScheduler) fire() int {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	ran := 0
	for _, s := range pending {
		m.mu.Lock()
		cancelled := s.cancelled
		m.mu.Unlock()
		if !cancelled {
			s.fn()
			ran++
		}
	}
	return ran
}

func (m *manualScheduler) lastDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return 0
	}
	return m.pending[len(m.pending)-1].delay
}

func newTestSequencer(text string) (*Sequencer, *fakeSpeaker, *manualScheduler, *int) {
	speaker := &fakeSpeaker{}
	sched := &manualScheduler{}
	finished := new(int)
	seq := NewSequencer(speaker, text, Config{
		Scheduler:  sched.schedule,
		OnFinished: func() { *finished++ },
	})
	return seq, speaker, sched, finished
}

func TestSequencerAutoAdvance(t *testing.T) {
	seq, speaker, sched, finished := newTestSequencer("one\n\ntwo\n\nthree")

	seq.Play()
	if got := speaker.texts(); len(got) != 1 || got[0] != "one" {
		t.Fatalf("Expected [one], got %q", got)
	}

	speaker.call(0).onEnd()
	if seq.State() != StateScheduled {
		t.Errorf("Expected scheduled, got %v", seq.State())
	}
	if sched.lastDelay() != DefaultDelay {
		t.Errorf("Expected delay %v, got %v", DefaultDelay, sched.lastDelay())
	}
	if len(speaker.texts()) != 1 {
		t.Error("Expected no new narration before the delay elapses")
	}

	if sched.fire() != 1 {
		t.Fatal("Expected one scheduled advance")
	}
	if got := speaker.texts(); len(got) != 2 || got[1] != "two" {
		t.Fatalf("Expected unit two to start, got %q", got)
	}

	speaker.call(1).onEnd()
	sched.fire()
	speaker.call(2).onEnd()

	if *finished != 1 {
		t.Errorf("Expected lesson finished once, got %d", *finished)
	}
	if sched.fire() != 0 {
		t.Error("Expected no advance after the last unit")
	}
	if len(speaker.texts()) != 3 {
		t.Errorf("Expected 3 narrations, got %d", len(speaker.texts()))
	}
	if seq.State() != StateIdle {
		t.Errorf("Expected idle, got %v", seq.State())
	}
}

func TestSequencerStopCancelsScheduledAdvance(t *testing.T) {
	seq, speaker, sched, finished := newTestSequencer("one\n\ntwo")

	seq.Play()
	speaker.call(0).onEnd()
	seq.Stop()

	if sched.fire() != 0 {
		t.Error("Expected scheduled advance to be cancelled")
	}
	if len(speaker.texts()) != 1 {
		t.Errorf("Expected no further narration, got %q", speaker.texts())
	}
	if *finished != 0 {
		t.Error("Expected no lesson-level end after stop")
	}
	if seq.State() != StateIdle {
		t.Errorf("Expected idle, got %v", seq.State())
	}
}

func TestSequencerIgnoresStaleEnd(t *testing.T) {
	seq, speaker, sched, _ := newTestSequencer("one\n\ntwo")

	seq.Play()
	stale := speaker.call(0)
	seq.Play()

	stale.onEnd()
	if seq.State() != StateSpeaking {
		t.Errorf("Expected stale end to be ignored, got %v", seq.State())
	}
	if sched.fire() != 0 {
		t.Error("Expected nothing scheduled from a stale end")
	}
}

func TestSequencerPauseResume(t *testing.T) {
	seq, speaker, _, _ := newTestSequencer("one\n\ntwo")

	seq.Pause()
	if speaker.pauses != 0 {
		t.Error("Expected pause while idle to be a no-op")
	}

	seq.Play()
	seq.Pause()
	if seq.State() != StatePaused || speaker.pauses != 1 {
		t.Errorf("Expected paused with one backend pause, got %v/%d", seq.State(), speaker.pauses)
	}

	seq.Resume()
	if seq.State() != StateSpeaking || speaker.resumes != 1 {
		t.Errorf("Expected speaking with one backend resume, got %v/%d", seq.State(), speaker.resumes)
	}
	if len(speaker.texts()) != 1 {
		t.Error("Expected resume not to re-synthesize")
	}
}

func TestSequencerPauseBetweenUnits(t *testing.T) {
	seq, speaker, sched, _ := newTestSequencer("one\n\ntwo")

	seq.Play()
	speaker.call(0).onEnd()
	seq.Pause()

	if sched.fire() != 0 {
		t.Error("Expected the advance to be held while paused")
	}

	seq.Resume()
	if got := speaker.texts(); len(got) != 2 || got[1] != "two" {
		t.Errorf("Expected resume to start unit two, got %q", got)
	}
}

func TestSequencerNavigationDoesNotAutoplay(t *testing.T) {
	seq, speaker, _, _ := newTestSequencer("one\n\ntwo\n\nthree")

	seq.Play()
	if !seq.Next() {
		t.Error("Expected next to move")
	}
	if seq.State() != StateIdle {
		t.Errorf("Expected idle after next, got %v", seq.State())
	}
	if seq.Current() != "two" {
		t.Errorf("Expected current two, got %q", seq.Current())
	}
	if speaker.stops == 0 {
		t.Error("Expected next to stop narration")
	}

	seq.Next()
	if seq.Next() {
		t.Error("Expected next at the last unit to fail")
	}
	if !seq.Previous() || seq.Current() != "two" {
		t.Errorf("Expected previous to two, got %q", seq.Current())
	}
	if !seq.JumpTo(0) || seq.Current() != "one" {
		t.Errorf("Expected jump to one, got %q", seq.Current())
	}
	if len(speaker.texts()) != 1 {
		t.Errorf("Expected navigation not to start narration, got %q", speaker.texts())
	}
}

func TestSequencerProgress(t *testing.T) {
	speaker := &fakeSpeaker{}
	var gotIndex, gotPos, gotTotal int
	seq := NewSequencer(speaker, "one\n\ntwo", Config{
		Scheduler: (&manualScheduler{}).schedule,
		OnProgress: func(index, position, total int) {
			gotIndex, gotPos, gotTotal = index, position, total
		},
	})

	seq.Play()
	speaker.call(0).onProgress(50, 200)

	if gotIndex != 0 || gotPos != 50 || gotTotal != 200 {
		t.Errorf("Expected progress (0, 50, 200), got (%d, %d, %d)", gotIndex, gotPos, gotTotal)
	}
	if snap := seq.Snapshot(); snap.Percent != 25 || snap.Len != 2 {
		t.Errorf("Expected 25%% of 2 units, got %v%% of %d", snap.Percent, snap.Len)
	}

	speaker.call(0).onEnd()
	if snap := seq.Snapshot(); snap.Percent != 100 {
		t.Errorf("Expected 100%% on end, got %v", snap.Percent)
	}
}

func TestSequencerSetTextKeepsCursor(t *testing.T) {
	seq, _, _, _ := newTestSequencer("a\n\nb\n\nc")
	seq.JumpTo(2)

	seq.SetText("a\n\nb\n\nc\n\nd")
	if seq.Current() != "c" {
		t.Errorf("Expected cursor kept on c, got %q", seq.Current())
	}

	seq.SetText("x")
	if seq.Current() != "x" {
		t.Errorf("Expected cursor clamped to x, got %q", seq.Current())
	}
}

func TestSequencerEndWhilePaused(t *testing.T) {
	seq, speaker, sched, finished := newTestSequencer("one\n\ntwo")

	seq.Play()
	seq.Pause()
	speaker.call(0).onEnd()

	if seq.State() != StatePaused {
		t.Errorf("Expected to stay paused, got %v", seq.State())
	}
	if sched.fire() != 0 {
		t.Error("Expected no advance while paused")
	}

	seq.Resume()
	if got := speaker.texts(); len(got) != 2 || got[1] != "two" {
		t.Fatalf("Expected resume to start unit two, got %q", got)
	}

	seq.Pause()
	speaker.call(1).onEnd()
	if *finished != 1 || seq.State() != StateIdle {
		t.Errorf("Expected the lesson to finish, got finished=%d state=%v", *finished, seq.State())
	}
}
