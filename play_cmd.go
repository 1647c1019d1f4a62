package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/lessonshelf/lectern/internal/bookmark"
	"github.com/lessonshelf/lectern/internal/lesson"
	"github.com/lessonshelf/lectern/tts"
	narration "github.com/lessonshelf/lectern/tts/paragraph"
	"github.com/lessonshelf/lectern/ui"
)

var (
	headless   bool
	courseID   string
	courseName string
	width      uint
	mouse      bool

	playCmd = &cobra.Command{
		Use:   "play LESSON",
		Short: "Narrate a lesson",
		Long: paragraph(fmt.Sprintf("\n%s a lesson file paragraph by paragraph. "+
			"Without a terminal the lesson is read from start to end.", keyword("Narrate"))),
		Example: paragraph("lectern play lessons/intro.md\nlectern play --headless lessons/intro.md"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, args[0])
		},
	}
)

func init() {
	playCmd.Flags().BoolVar(&headless, "headless", false, "narrate without the player UI")
	playCmd.Flags().StringVar(&courseID, "course", "", "course the lesson belongs to, stored with bookmarks")
	playCmd.Flags().StringVar(&courseName, "course-name", "", "course display name, stored with bookmarks")
	playCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap at width (0 follows LECTERN_WIDTH)")
	playCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel")
	_ = playCmd.Flags().MarkHidden("mouse")
}

func runPlay(cmd *cobra.Command, path string) error {
	l, err := lesson.Load(path)
	if err != nil {
		return err //nolint:wrapcheck
	}

	cfg, err := tts.LoadConfigFromViper()
	if err != nil {
		return err //nolint:wrapcheck
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store ui.BookmarkStore
	bookmarks, err := openBookmarks(viper.GetString("bookmarks.db"))
	if err != nil {
		log.Warn("Bookmarks disabled", "error", err)
	} else {
		defer bookmarks.Close() //nolint:errcheck
		store = bookmarks
		cfg.Rate = preferredRate(ctx, bookmarks, cfg.Rate)
	}

	if headless || !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec
		return runHeadless(ctx, cmd.OutOrStdout(), l, cfg, store)
	}
	return runTUI(ctx, l, cfg, store)
}

// preferredRate returns the user's saved rate, or fallback when none is
// stored.
func preferredRate(ctx context.Context, store *bookmark.Store, fallback float64) float64 {
	rate, err := store.Rate(ctx, currentUser())
	switch {
	case errors.Is(err, bookmark.ErrNotFound):
		return fallback
	case err != nil:
		log.Warn("Could not read preferred rate", "error", err)
		return fallback
	}
	return tts.ClampRate(rate)
}

func runTUI(ctx context.Context, l *lesson.Lesson, cfg tts.Config, store ui.BookmarkStore) error {
	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	if width > 0 {
		uiCfg.MaxWidth = width
	}
	if mouse {
		uiCfg.EnableMouse = true
	}

	events := ui.NewEvents()
	n, err := newNarrator(ctx, cfg, events.EngineOptions()...)
	if err != nil {
		return err
	}
	defer n.Close()

	opts := ui.Options{
		Lesson:       l,
		Engine:       n.engine,
		Events:       events,
		Bookmarks:    store,
		UserID:       currentUser(),
		CourseID:     courseID,
		CourseName:   courseName,
		AdvanceDelay: cfg.AdvanceDelay,
	}
	if n.lookahead != nil {
		opts.Prefetch = n.lookahead
	}

	if _, err := ui.NewProgram(uiCfg, opts).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// completionRecorder stores finished lessons. *bookmark.Store implements it.
type completionRecorder interface {
	MarkComplete(ctx context.Context, userID, courseID, lessonID string) error
}

// runHeadless narrates the whole lesson, printing each paragraph as it
// starts. It returns when the lesson ends, narration fails or ctx is
// cancelled. A finished lesson is recorded when progress is set.
func runHeadless(ctx context.Context, w io.Writer, l *lesson.Lesson, cfg tts.Config, progress completionRecorder) error {
	unavailable := make(chan struct{})
	var once sync.Once

	n, err := newNarrator(ctx, cfg, tts.WithUnavailableHandler(func(string) {
		once.Do(func() { close(unavailable) })
	}))
	if err != nil {
		return err
	}
	defer n.Close()

	completed, err := narrate(ctx, w, n.engine, l, cfg, unavailable)
	if err != nil || !completed {
		return err
	}
	recordCompletion(ctx, progress, l.ID)
	return nil
}

func recordCompletion(ctx context.Context, progress completionRecorder, lessonID string) {
	if progress == nil {
		return
	}
	if err := progress.MarkComplete(ctx, currentUser(), courseID, lessonID); err != nil {
		log.Warn("Could not record lesson completion", "lesson", lessonID, "error", err)
	}
}

// narrate reads l through speaker and reports whether the last paragraph
// finished. Cancelling ctx is not an error.
func narrate(ctx context.Context, w io.Writer, speaker narration.Speaker, l *lesson.Lesson, cfg tts.Config, unavailable <-chan struct{}) (bool, error) {
	out := termenv.NewOutput(w)
	header := func(s string) string {
		return out.String(s).Foreground(out.Color("212")).Bold().String()
	}

	finished := make(chan struct{})
	failed := make(chan error, 1)
	var units []string
	seq := narration.NewSequencer(speaker, l.Text, narration.Config{
		Delay: cfg.AdvanceDelay,
		OnUnitStart: func(i int) {
			_, _ = fmt.Fprintf(w, "%s\n%s\n\n", header(fmt.Sprintf("[%d/%d]", i+1, len(units))), units[i])
		},
		OnFinished: func() { close(finished) },
		OnError: func(i int, err error) {
			select {
			case failed <- fmt.Errorf("paragraph %d: %w", i+1, err):
			default:
			}
		},
	})
	units = seq.Units()
	if len(units) == 0 {
		return false, errors.New("lesson has nothing to narrate")
	}

	_, _ = fmt.Fprintln(w, out.String(l.Title).Bold().String())
	seq.Play()
	defer seq.Stop()

	select {
	case <-finished:
		return true, nil
	case err := <-failed:
		return false, fmt.Errorf("narration stopped at %w", err)
	case <-unavailable:
		return false, fmt.Errorf("narration stopped: %w", tts.ErrBackendUnavailable)
	case <-ctx.Done():
		return false, nil
	}
}
