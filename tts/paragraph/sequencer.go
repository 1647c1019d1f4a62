package paragraph

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultDelay is the pause between one paragraph ending and the next one
// starting.
const DefaultDelay = 500 * time.Millisecond

// Speaker is the narration surface the sequencer drives. *tts.Engine
// implements it.
type Speaker interface {
	Speak(text string, onEnd func(), onProgress func(position, total int))
	Pause()
	Resume()
	Stop()
}

// FailureReporter is implemented by speakers that report a unit which stopped
// without completing. *tts.Engine implements it.
type FailureReporter interface {
	SpeakReporting(text string, onEnd func(), onProgress func(position, total int), onError func(error))
}

// Scheduler runs fn after d and returns a function that cancels it.
type Scheduler func(d time.Duration, fn func()) (cancel func())

// AfterFunc is the default Scheduler, backed by time.AfterFunc.
func AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// State is the sequencer's position in its playback cycle.
type State int

const (
	// StateIdle means nothing is playing or scheduled.
	StateIdle State = iota
	// StateSpeaking means the current unit is being narrated.
	StateSpeaking
	// StateScheduled means the next unit starts after the delay.
	StateScheduled
	// StatePaused means narration is paused mid-unit or between units.
	StatePaused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StateScheduled:
		return "scheduled"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Config holds sequencer settings and event callbacks. Callbacks run
// outside the sequencer lock and may call back into it.
type Config struct {
	Delay     time.Duration // Pause between units, DefaultDelay when zero
	Scheduler Scheduler     // AfterFunc when nil

	OnUnitStart func(index int)
	OnProgress  func(index, position, total int)
	OnFinished  func()
	// OnError fires when a unit stops without completing. The sequencer is
	// idle by then and the cursor stays on the failed unit.
	OnError func(index int, err error)
}

// Snapshot is a point-in-time view of the sequencer.
type Snapshot struct {
	State   State
	Index   int
	Len     int
	Percent float64 // Progress through the current unit, 0-100
}

// Sequencer narrates a Set unit by unit with auto-advance.
type Sequencer struct {
	speaker Speaker
	cfg     Config
	logger  *log.Logger

	mu            sync.Mutex
	set           *Set
	state         State
	epoch         uint64
	cancelAdvance func()
	betweenUnits  bool // paused while an advance was scheduled
	percent       float64
}

// NewSequencer creates a sequencer for text.
func NewSequencer(speaker Speaker, text string, cfg Config) *Sequencer {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = AfterFunc
	}
	return &Sequencer{
		speaker: speaker,
		cfg:     cfg,
		logger:  log.WithPrefix("sequencer"),
		set:     NewSet(text),
	}
}

// Play narrates the current unit from its start.
func (s *Sequencer) Play() {
	s.mu.Lock()
	start := s.startLocked()
	s.mu.Unlock()
	start()
}

// startLocked moves to StateSpeaking for the current unit and returns the
// function that issues the narration. It must run with s.mu held; the
// returned function must run without it.
func (s *Sequencer) startLocked() func() {
	s.epoch++
	s.clearAdvanceLocked()
	s.betweenUnits = false
	s.state = StateSpeaking
	s.percent = 0

	epoch := s.epoch
	index := s.set.Index()
	text := s.set.Current()

	return func() {
		s.logger.Debug("Starting unit", "index", index, "chars", len([]rune(text)))
		if s.cfg.OnUnitStart != nil {
			s.cfg.OnUnitStart(index)
		}
		onEnd := func() { s.unitEnded(epoch) }
		onProgress := func(position, total int) { s.unitProgress(epoch, index, position, total) }
		if r, ok := s.speaker.(FailureReporter); ok {
			r.SpeakReporting(text, onEnd, onProgress, func(err error) { s.unitFailed(epoch, index, err) })
			return
		}
		s.speaker.Speak(text, onEnd, onProgress)
	}
}

func (s *Sequencer) unitProgress(epoch uint64, index, position, total int) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	if total > 0 {
		s.percent = float64(position) / float64(total) * 100
	}
	s.mu.Unlock()

	if s.cfg.OnProgress != nil {
		s.cfg.OnProgress(index, position, total)
	}
}

func (s *Sequencer) unitEnded(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || (s.state != StateSpeaking && !s.pausedInUnitLocked()) {
		s.mu.Unlock()
		return
	}
	s.percent = 100

	// A unit that ends while paused leaves the sequencer paused between
	// units; Resume moves on.
	if s.state == StatePaused && !s.set.IsLast() {
		s.betweenUnits = true
		s.mu.Unlock()
		return
	}

	if s.set.IsLast() {
		s.state = StateIdle
		s.epoch++
		s.mu.Unlock()

		s.logger.Debug("Lesson finished")
		if s.cfg.OnFinished != nil {
			s.cfg.OnFinished()
		}
		return
	}

	s.state = StateScheduled
	s.mu.Unlock()

	cancel := s.cfg.Scheduler(s.cfg.Delay, func() { s.advance(epoch) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state != StateScheduled {
		cancel()
		return
	}
	s.cancelAdvance = cancel
}

// unitFailed drops the sequencer to idle when the current unit cannot
// complete.
func (s *Sequencer) unitFailed(epoch uint64, index int, err error) {
	s.mu.Lock()
	if epoch != s.epoch || (s.state != StateSpeaking && !s.pausedInUnitLocked()) {
		s.mu.Unlock()
		return
	}
	s.stopLocked()
	s.mu.Unlock()

	s.logger.Warn("Unit failed", "index", index, "err", err)
	if s.cfg.OnError != nil {
		s.cfg.OnError(index, err)
	}
}

func (s *Sequencer) pausedInUnitLocked() bool {
	return s.state == StatePaused && !s.betweenUnits
}

// advance fires when the inter-unit delay elapses.
func (s *Sequencer) advance(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || s.state != StateScheduled {
		s.mu.Unlock()
		return
	}
	s.cancelAdvance = nil
	s.set.Advance()
	start := s.startLocked()
	s.mu.Unlock()
	start()
}

// Pause pauses narration. Pausing during the inter-unit delay holds the
// advance until Resume.
func (s *Sequencer) Pause() {
	s.mu.Lock()
	switch s.state {
	case StateSpeaking:
		s.state = StatePaused
		s.mu.Unlock()
		s.speaker.Pause()
	case StateScheduled:
		s.clearAdvanceLocked()
		s.betweenUnits = true
		s.state = StatePaused
		s.mu.Unlock()
	default:
		s.mu.Unlock()
	}
}

// Resume continues a paused narration without re-synthesizing it.
func (s *Sequencer) Resume() {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return
	}
	if s.betweenUnits {
		s.set.Advance()
		start := s.startLocked()
		s.mu.Unlock()
		start()
		return
	}
	s.state = StateSpeaking
	s.mu.Unlock()
	s.speaker.Resume()
}

// Toggle plays when idle, pauses when speaking and resumes when paused.
func (s *Sequencer) Toggle() {
	switch s.State() {
	case StateIdle:
		s.Play()
	case StatePaused:
		s.Resume()
	default:
		s.Pause()
	}
}

// Stop halts narration and cancels any scheduled advance.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
	s.speaker.Stop()
}

func (s *Sequencer) stopLocked() {
	s.epoch++
	s.clearAdvanceLocked()
	s.betweenUnits = false
	s.state = StateIdle
	s.percent = 0
}

func (s *Sequencer) clearAdvanceLocked() {
	if s.cancelAdvance != nil {
		s.cancelAdvance()
		s.cancelAdvance = nil
	}
}

// Next stops narration and moves to the next unit without playing it.
func (s *Sequencer) Next() bool {
	return s.move(func(set *Set) bool { return set.Advance() })
}

// Previous stops narration and moves to the previous unit without playing it.
func (s *Sequencer) Previous() bool {
	return s.move(func(set *Set) bool { return set.Retreat() })
}

// JumpTo stops narration and moves to unit i without playing it.
func (s *Sequencer) JumpTo(i int) bool {
	return s.move(func(set *Set) bool { return set.Seek(i) })
}

// JumpToFraction stops narration and moves to the unit nearest to fraction
// f of the lesson.
func (s *Sequencer) JumpToFraction(f float64) {
	s.move(func(set *Set) bool {
		set.SeekFraction(f)
		return true
	})
}

func (s *Sequencer) move(fn func(*Set) bool) bool {
	s.mu.Lock()
	s.stopLocked()
	moved := fn(s.set)
	s.mu.Unlock()
	s.speaker.Stop()
	return moved
}

// SetText replaces the lesson text, stopping narration. The cursor keeps
// its index when the new text still has that many units.
func (s *Sequencer) SetText(text string) {
	s.mu.Lock()
	s.stopLocked()
	index := s.set.Index()
	s.set = NewSet(text)
	if !s.set.Seek(index) && s.set.Len() > 0 {
		s.set.Seek(s.set.Len() - 1)
	}
	s.mu.Unlock()
	s.speaker.Stop()
}

// State returns the sequencer state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current state, position and unit progress.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:   s.state,
		Index:   s.set.Index(),
		Len:     s.set.Len(),
		Percent: s.percent,
	}
}

// Current returns the text of the current unit.
func (s *Sequencer) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Current()
}

// Units returns a copy of all units.
func (s *Sequencer) Units() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Units()
}

// Fraction returns the cursor position as a fraction of the lesson.
func (s *Sequencer) Fraction() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Fraction()
}
