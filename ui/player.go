package ui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/lessonshelf/lectern/internal/bookmark"
	"github.com/lessonshelf/lectern/internal/lesson"
	"github.com/lessonshelf/lectern/tts"
	"github.com/lessonshelf/lectern/tts/paragraph"
)

const statusBarHeight = 1

// Narrator is the engine surface the player drives. *tts.Engine implements
// it.
type Narrator interface {
	paragraph.Speaker
	SetRate(rate float64)
	Rate() float64
	ActiveBackend() string
}

// BookmarkStore persists reading positions, the preferred rate and
// finished lessons. *bookmark.Store implements it.
type BookmarkStore interface {
	Save(ctx context.Context, b bookmark.Bookmark) (string, error)
	Get(ctx context.Context, userID, lessonID string) (*bookmark.Bookmark, error)
	SaveRate(ctx context.Context, userID string, rate float64) error
	MarkComplete(ctx context.Context, userID, courseID, lessonID string) error
}

// Prefetcher synthesizes upcoming text in the background.
// *queue.LookaheadQueue implements it.
type Prefetcher interface {
	Enqueue(text string) error
}

// Options wires a lesson to the narration engine.
type Options struct {
	Lesson *lesson.Lesson
	Engine Narrator
	Events *Events

	// Bookmarks is optional; without it bookmarking is disabled.
	Bookmarks  BookmarkStore
	UserID     string
	CourseID   string
	CourseName string

	// Prefetch is optional; it receives the paragraph after the one
	// starting.
	Prefetch Prefetcher

	AdvanceDelay time.Duration
}

type (
	statusMessageTimeoutMsg struct{ id int }
	bookmarkLoadedMsg       struct{ position float64 }
	bookmarkSavedMsg        struct{ position float64 }
	rateSavedMsg            struct{}
	completionSavedMsg      struct{}
	reloadMsg               struct{}
	lessonLoadedMsg         struct{ lesson *lesson.Lesson }
	errMsg                  struct{ err error }
)

func (e errMsg) Error() string { return e.err.Error() }

type model struct {
	cfg  Config
	opts Options
	seq  *paragraph.Sequencer

	viewport viewport.Model
	spinner  spinner.Model
	watcher  *fsnotify.Watcher

	width   int
	height  int
	ready   bool
	offsets []int // first content line of each paragraph

	engineState tts.State
	progress    unitProgressMsg
	unavailable bool
	restore     float64 // bookmark position waiting for the first layout, -1 when none

	showHelp      bool
	statusMessage string
	statusIsError bool
	statusID      int
}

// NewProgram returns a Tea program that narrates opts.Lesson.
func NewProgram(cfg Config, opts Options) *tea.Program {
	log.Debug("Starting lesson player", "lesson", opts.Lesson.ID, "mouse", cfg.EnableMouse)

	programOpts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		programOpts = append(programOpts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, opts), programOpts...)
}

func newModel(cfg Config, opts Options) model {
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 3 * time.Second
	}

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = sp.Style.Foreground(fuchsia)

	m := model{
		cfg:      cfg,
		opts:     opts,
		seq:      paragraph.NewSequencer(opts.Engine, opts.Lesson.Text, opts.Events.SequencerConfig(opts.AdvanceDelay)),
		viewport: viewport.New(0, 0),
		spinner:  sp,
		restore:  -1,
	}
	if cfg.Watch {
		m.initWatcher()
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForEvent(m.opts.Events), m.spinner.Tick}
	if m.opts.Bookmarks != nil {
		cmds = append(cmds, m.loadBookmark())
	}
	if m.watcher != nil {
		cmds = append(cmds, watchLesson(m.watcher, m.opts.Lesson.Path))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.setSize()
		m.render()
		if !m.ready {
			m.ready = true
			if m.restore >= 0 {
				m.applyBookmark(m.restore)
				m.restore = -1
			}
		}
		return m, nil

	case tea.KeyMsg:
		// Bound keys never reach the viewport, which maps space and the
		// arrows to scrolling.
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case unitStartMsg:
		m.progress = unitProgressMsg{index: msg.index}
		m.render()
		m.follow(msg.index)
		m.prefetch(msg.index + 1)
		return m, waitForEvent(m.opts.Events)

	case unitProgressMsg:
		m.progress = msg
		return m, waitForEvent(m.opts.Events)

	case lessonFinishedMsg:
		m.render()
		cmds = append(cmds, waitForEvent(m.opts.Events), m.showStatusMessage("Lesson finished", false))
		if m.opts.Bookmarks != nil {
			cmds = append(cmds, m.markComplete())
		}
		return m, tea.Batch(cmds...)

	case unitFailedMsg:
		m.render()
		if errors.Is(msg.err, tts.ErrBackendUnavailable) {
			// Reported by unavailableMsg.
			return m, waitForEvent(m.opts.Events)
		}
		log.Error("Paragraph failed", "index", msg.index, "error", msg.err)
		return m, tea.Batch(waitForEvent(m.opts.Events), m.showStatusMessage("Playback failed, press space to retry", true))

	case engineStateMsg:
		m.engineState = tts.State(msg)
		if m.engineState.IsSpeaking() {
			m.unavailable = false
		}
		return m, waitForEvent(m.opts.Events)

	case unavailableMsg:
		m.unavailable = true
		m.seq.Stop()
		m.render()
		return m, tea.Batch(waitForEvent(m.opts.Events), m.showStatusMessage("Speech unavailable", true))

	case bookmarkLoadedMsg:
		if m.ready {
			m.applyBookmark(msg.position)
		} else {
			m.restore = msg.position
		}
		return m, nil

	case bookmarkSavedMsg:
		return m, m.showStatusMessage(fmt.Sprintf("Bookmarked at %.0f%%", msg.position*100), false)

	case rateSavedMsg, completionSavedMsg:
		return m, nil

	case reloadMsg:
		return m, loadLesson(m.opts.Lesson.Path)

	case lessonLoadedMsg:
		m.opts.Lesson = msg.lesson
		m.seq.SetText(msg.lesson.Text)
		m.render()
		cmds = append(cmds, m.showStatusMessage("Lesson reloaded", false))
		if m.watcher != nil {
			cmds = append(cmds, watchLesson(m.watcher, m.opts.Lesson.Path))
		}
		return m, tea.Batch(cmds...)

	case statusMessageTimeoutMsg:
		if msg.id == m.statusID {
			m.statusMessage = ""
			m.statusIsError = false
		}
		return m, nil

	case errMsg:
		log.Error("Player error", "error", msg.err)
		return m, m.showStatusMessage(msg.Error(), true)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// handleKey applies a player key binding. Unhandled keys go to the
// viewport.
func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.shutdown()
		return tea.Quit, true

	case "esc":
		if !m.showHelp {
			return nil, false
		}
		m.toggleHelp()

	case " ":
		m.unavailable = false
		m.seq.Toggle()
		m.render()

	case "s":
		m.seq.Stop()
		m.render()

	case "n", "right":
		if !m.seq.Next() {
			return m.showStatusMessage("Last paragraph", false), true
		}
		m.moved()

	case "p", "left":
		if !m.seq.Previous() {
			return m.showStatusMessage("First paragraph", false), true
		}
		m.moved()

	case "+", "=":
		return m.setRate(tts.NextRate(m.opts.Engine.Rate())), true

	case "-", "_":
		return m.setRate(tts.PrevRate(m.opts.Engine.Rate())), true

	case "m":
		if m.opts.Bookmarks == nil {
			return m.showStatusMessage("Bookmarks are disabled", true), true
		}
		return m.saveBookmark(), true

	case "c":
		if err := clipboard.WriteAll(m.seq.Current()); err != nil {
			return m.showStatusMessage("Copy failed", true), true
		}
		return m.showStatusMessage("Copied paragraph", false), true

	case "r":
		return loadLesson(m.opts.Lesson.Path), true

	case "?":
		m.toggleHelp()

	default:
		return nil, false
	}
	return nil, true
}

func (m *model) shutdown() {
	m.seq.Stop()
	m.opts.Events.Close()
	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			log.Debug("Error closing watcher", "error", err)
		}
	}
}

// moved re-renders after the cursor changed without narration.
func (m *model) moved() {
	m.progress = unitProgressMsg{index: m.seq.Snapshot().Index}
	m.render()
	m.follow(m.progress.index)
}

func (m model) prefetch(i int) {
	if m.opts.Prefetch == nil {
		return
	}
	units := m.seq.Units()
	if i < 0 || i >= len(units) {
		return
	}
	if err := m.opts.Prefetch.Enqueue(units[i]); err != nil {
		log.Debug("Skipping lookahead", "index", i, "error", err)
	}
}

func (m *model) setRate(rate float64) tea.Cmd {
	m.opts.Engine.SetRate(rate)
	cmds := []tea.Cmd{m.showStatusMessage("Speed "+rateLabel(rate), false)}
	if m.opts.Bookmarks != nil {
		store, user := m.opts.Bookmarks, m.opts.UserID
		cmds = append(cmds, func() tea.Msg {
			if err := store.SaveRate(context.Background(), user, rate); err != nil {
				return errMsg{fmt.Errorf("failed to save speed: %w", err)}
			}
			return rateSavedMsg{}
		})
	}
	return tea.Batch(cmds...)
}

func (m *model) setSize() {
	m.viewport.Width = m.width
	m.viewport.Height = m.height - statusBarHeight
	if m.showHelp {
		m.viewport.Height -= strings.Count(m.helpView(), "\n") + 1
	}
	m.viewport.Height = max(m.viewport.Height, 0)
}

func (m *model) toggleHelp() {
	m.showHelp = !m.showHelp
	m.setSize()
	if m.viewport.PastBottom() {
		m.viewport.GotoBottom()
	}
}

func (m *model) showStatusMessage(message string, isError bool) tea.Cmd {
	m.statusID++
	m.statusMessage = message
	m.statusIsError = isError

	id := m.statusID
	return tea.Tick(m.cfg.StatusTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{id: id}
	})
}

// contentWidth is the wrap width for paragraphs.
func (m model) contentWidth() int {
	w := m.width
	if m.cfg.MaxWidth > 0 && w > int(m.cfg.MaxWidth) { //nolint:gosec
		w = int(m.cfg.MaxWidth) //nolint:gosec
	}
	// Border and padding take three columns.
	return max(w-3, 10)
}

// render lays the paragraphs out in the viewport and records the line each
// one starts on.
func (m *model) render() {
	units := m.seq.Units()
	current := m.seq.Snapshot().Index
	width := m.contentWidth()

	var (
		b    strings.Builder
		line int
	)
	m.offsets = m.offsets[:0]
	for i, u := range units {
		if i > 0 {
			b.WriteString("\n\n")
			line++
		}
		m.offsets = append(m.offsets, line)

		wrapped := wordwrap.String(u, width)
		if i == current {
			wrapped = currentParagraphStyle.Render(wrapped)
		} else {
			wrapped = otherParagraphStyle.Render(wrapped)
		}
		b.WriteString(wrapped)
		line += strings.Count(wrapped, "\n") + 1
	}
	m.viewport.SetContent(b.String())
}

// follow scrolls paragraph i into view when following is enabled.
func (m *model) follow(i int) {
	if !m.cfg.Follow || i < 0 || i >= len(m.offsets) {
		return
	}
	top := m.viewport.YOffset
	bottom := top + m.viewport.Height
	if m.offsets[i] < top || m.offsets[i] >= bottom {
		m.viewport.SetYOffset(m.offsets[i])
	}
}

// scrollable is the number of lines the viewport can scroll through.
func (m model) scrollable() int {
	return max(m.viewport.TotalLineCount()-m.viewport.Height, 0)
}

// paragraphAt returns the paragraph shown on content line y.
func (m model) paragraphAt(y int) int {
	idx := 0
	for i, off := range m.offsets {
		if off > y {
			break
		}
		idx = i
	}
	return idx
}

func (m *model) applyBookmark(position float64) {
	offset := bookmark.Restore(position, m.scrollable())
	m.viewport.SetYOffset(offset)
	m.seq.JumpTo(m.paragraphAt(offset))
	m.render()
	log.Debug("Restored bookmark", "position", position, "offset", offset)
}

func (m model) loadBookmark() tea.Cmd {
	store, user, id := m.opts.Bookmarks, m.opts.UserID, m.opts.Lesson.ID
	return func() tea.Msg {
		b, err := store.Get(context.Background(), user, id)
		if errors.Is(err, bookmark.ErrNotFound) {
			return nil
		}
		if err != nil {
			return errMsg{fmt.Errorf("failed to load bookmark: %w", err)}
		}
		return bookmarkLoadedMsg{position: b.Position}
	}
}

func (m model) saveBookmark() tea.Cmd {
	b := bookmark.Bookmark{
		UserID:      m.opts.UserID,
		LessonID:    m.opts.Lesson.ID,
		CourseID:    m.opts.CourseID,
		CourseName:  m.opts.CourseName,
		LessonTitle: m.opts.Lesson.Title,
		Position:    bookmark.Normalize(m.viewport.YOffset, m.scrollable()),
	}
	store := m.opts.Bookmarks
	return func() tea.Msg {
		if _, err := store.Save(context.Background(), b); err != nil {
			return errMsg{fmt.Errorf("failed to save bookmark: %w", err)}
		}
		return bookmarkSavedMsg{position: b.Position}
	}
}

func (m model) markComplete() tea.Cmd {
	store, user, course, id := m.opts.Bookmarks, m.opts.UserID, m.opts.CourseID, m.opts.Lesson.ID
	return func() tea.Msg {
		if err := store.MarkComplete(context.Background(), user, course, id); err != nil {
			return errMsg{fmt.Errorf("failed to record completion: %w", err)}
		}
		return completionSavedMsg{}
	}
}

func loadLesson(path string) tea.Cmd {
	return func() tea.Msg {
		l, err := lesson.Load(path)
		if err != nil {
			return errMsg{err}
		}
		return lessonLoadedMsg{lesson: l}
	}
}

func (m *model) initWatcher() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error("error creating fsnotify watcher", "error", err)
		return
	}
	dir := filepath.Dir(m.opts.Lesson.Path)
	if err := w.Add(dir); err != nil {
		log.Error("error adding dir to fsnotify watcher", "error", err)
		_ = w.Close()
		return
	}
	log.Info("fsnotify watching dir", "dir", dir)
	m.watcher = w
}

// watchLesson waits for the next write to path.
func watchLesson(w *fsnotify.Watcher, path string) tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
				return reloadMsg{}
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				log.Debug("fsnotify error", "error", err)
			}
		}
	}
}

func (m model) View() string {
	if !m.ready {
		return ""
	}

	var b strings.Builder
	fmt.Fprint(&b, m.viewport.View()+"\n")
	m.statusBarView(&b)
	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}
	return b.String()
}

// transportNote describes what the narration is doing.
func (m model) transportNote() string {
	snap := m.seq.Snapshot()
	if snap.Len == 0 {
		return "Empty lesson"
	}

	position := fmt.Sprintf("%d/%d", snap.Index+1, snap.Len)
	switch {
	case m.unavailable:
		return "Speech unavailable " + position
	case snap.State == paragraph.StatePaused:
		return "Paused " + position
	case snap.State == paragraph.StateScheduled:
		return "Next " + position
	case snap.State == paragraph.StateSpeaking && !m.engineState.IsSpeaking():
		return m.spinner.View() + " Loading " + position
	case snap.State == paragraph.StateSpeaking:
		note := fmt.Sprintf("Reading %s %3.f%%", position, snap.Percent)
		if backend := m.opts.Engine.ActiveBackend(); backend != "" {
			note += " (" + backend + ")"
		}
		return note
	default:
		return "Ready " + position
	}
}

func (m model) statusBarView(b *strings.Builder) {
	showStatusMessage := m.statusMessage != ""

	logo := logoStyle(" Lectern ")

	percent := math.Max(0, math.Min(1, m.viewport.ScrollPercent()))
	rate := statusBarPercentStyle(fmt.Sprintf(" %s %3.f%% ", rateLabel(m.opts.Engine.Rate()), percent*100))
	helpNote := statusBarHelpStyle(" ? Help ")

	note := m.opts.Lesson.Title + " | " + m.transportNote()
	if showStatusMessage {
		note = m.statusMessage
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(rate)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)

	style := statusBarNoteStyle
	switch {
	case showStatusMessage && m.statusIsError:
		style = statusBarErrorStyle
	case showStatusMessage:
		style = statusBarMessageStyle
	}
	note = style(note)

	padding := max(0,
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(rate)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := style(strings.Repeat(" ", padding))

	fmt.Fprintf(b, "%s%s%s%s%s", logo, note, emptySpace, rate, helpNote)
}

func (m model) helpView() string {
	s := "\n" +
		"space    play/pause          +/=    faster\n" +
		"s        stop                -      slower\n" +
		"n/→      next paragraph      m      bookmark position\n" +
		"p/←      previous paragraph  c      copy paragraph\n" +
		"k/↑ j/↓  scroll              r      reload lesson\n" +
		"pgup/b   page up             q      quit"
	s = indent(s, 2)

	// Fill empty cells so the background covers the whole row.
	if m.width > 0 {
		lines := strings.Split(s, "\n")
		for i := range lines {
			n := max(m.width-runewidth.StringWidth(lines[i]), 0)
			lines[i] += strings.Repeat(" ", n)
		}
		s = strings.Join(lines, "\n")
	}
	return helpViewStyle(s)
}

func rateLabel(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64) + "x"
}

func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
