package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lessonshelf/lectern/tts"
	"github.com/lessonshelf/lectern/tts/paragraph"
)

type (
	// unitStartMsg is sent when a paragraph starts narrating.
	unitStartMsg struct{ index int }
	// unitProgressMsg carries character progress through a paragraph.
	unitProgressMsg struct{ index, position, total int }
	// lessonFinishedMsg is sent after the last paragraph ends.
	lessonFinishedMsg struct{}
	// unitFailedMsg is sent when a paragraph stops without finishing.
	unitFailedMsg struct {
		index int
		err   error
	}
	// engineStateMsg is sent on every engine transport change.
	engineStateMsg tts.State
	// unavailableMsg is sent when no backend could narrate.
	unavailableMsg struct{}
)

// Events carries engine and sequencer callbacks into the Bubble Tea loop.
// Callbacks arrive on engine goroutines; the model drains them one at a
// time with waitForEvent.
type Events struct {
	ch   chan tea.Msg
	done chan struct{}
}

// NewEvents creates an event bridge.
func NewEvents() *Events {
	return &Events{
		ch:   make(chan tea.Msg, 64),
		done: make(chan struct{}),
	}
}

// EngineOptions wires the engine's state and failure callbacks to e.
func (e *Events) EngineOptions() []tts.Option {
	return []tts.Option{
		tts.WithStateChangeHandler(func(s tts.State) { e.send(engineStateMsg(s)) }),
		tts.WithUnavailableHandler(func(string) { e.send(unavailableMsg{}) }),
	}
}

// SequencerConfig returns a sequencer config that reports to e.
func (e *Events) SequencerConfig(delay time.Duration) paragraph.Config {
	return paragraph.Config{
		Delay:       delay,
		OnUnitStart: func(i int) { e.send(unitStartMsg{index: i}) },
		OnProgress: func(i, pos, total int) {
			// Progress is lossy; a full channel drops ticks, never events.
			select {
			case e.ch <- unitProgressMsg{index: i, position: pos, total: total}:
			default:
			}
		},
		OnFinished: func() { e.send(lessonFinishedMsg{}) },
		OnError:    func(i int, err error) { e.send(unitFailedMsg{index: i, err: err}) },
	}
}

// Close stops delivery. Pending sends are abandoned.
func (e *Events) Close() {
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}

func (e *Events) send(msg tea.Msg) {
	select {
	case e.ch <- msg:
	case <-e.done:
	}
}

// waitForEvent returns a command that delivers the next event.
func waitForEvent(e *Events) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-e.ch:
			return msg
		case <-e.done:
			return nil
		}
	}
}
