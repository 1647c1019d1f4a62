package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lessonshelf/lectern/internal/bookmark"
	"github.com/lessonshelf/lectern/internal/lesson"
)

type listOptions struct {
	all    bool
	filter string
}

var (
	listOpts listOptions

	listCmd = &cobra.Command{
		Use:     "list [DIR]",
		Aliases: []string{"ls"},
		Short:   "List lessons in a directory",
		Example: paragraph("lectern list lessons/\nlectern list --filter intro"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runList(cmd.OutOrStdout(), dir, listOpts)
		},
	}
)

func init() {
	listCmd.Flags().BoolVarP(&listOpts.all, "all", "a", false, "include hidden and ignored files")
	listCmd.Flags().StringVarP(&listOpts.filter, "filter", "f", "", "fuzzy filter on lesson paths")
}

// bookmarkGetter looks up a reading position and completion.
// *bookmark.Store implements it.
type bookmarkGetter interface {
	Get(ctx context.Context, userID, lessonID string) (*bookmark.Bookmark, error)
	Completion(ctx context.Context, userID, lessonID string) (*bookmark.Progress, error)
}

func runList(w io.Writer, dir string, opts listOptions) error {
	entries, err := lesson.Find(dir, opts.all)
	if err != nil {
		return err //nolint:wrapcheck
	}
	entries = lesson.Filter(entries, opts.filter)
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, faintStyle("No lessons found."))
		return err //nolint:wrapcheck
	}

	var bookmarks bookmarkGetter
	if store, err := openBookmarks(viper.GetString("bookmarks.db")); err != nil {
		log.Warn("Bookmarks unavailable", "error", err)
	} else {
		defer store.Close() //nolint:errcheck
		bookmarks = store
	}

	_, err = fmt.Fprintln(w, lessonTable(context.Background(), entries, bookmarks, currentUser()))
	return err //nolint:wrapcheck
}

// lessonTable renders entries with their modification time and, when
// bookmarks is set, how far the user got.
func lessonTable(ctx context.Context, entries []lesson.Entry, bookmarks bookmarkGetter, user string) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Path,
			humanize.Time(e.Modtime),
			progressLabel(ctx, bookmarks, user, e.ID),
			completedLabel(ctx, bookmarks, user, e.ID),
		})
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("LESSON", "MODIFIED", "PROGRESS", "DONE").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		String()
}

func progressLabel(ctx context.Context, bookmarks bookmarkGetter, user, lessonID string) string {
	if bookmarks == nil {
		return ""
	}
	b, err := bookmarks.Get(ctx, user, lessonID)
	switch {
	case errors.Is(err, bookmark.ErrNotFound):
		return "-"
	case err != nil:
		log.Debug("Could not read bookmark", "lesson", lessonID, "error", err)
		return "?"
	}
	return fmt.Sprintf("%.0f%%", b.Position*100)
}

func completedLabel(ctx context.Context, bookmarks bookmarkGetter, user, lessonID string) string {
	if bookmarks == nil {
		return ""
	}
	p, err := bookmarks.Completion(ctx, user, lessonID)
	switch {
	case errors.Is(err, bookmark.ErrNotFound):
		return ""
	case err != nil:
		log.Debug("Could not read progress", "lesson", lessonID, "error", err)
		return "?"
	}
	return "✓ " + humanize.Time(p.CompletedAt)
}
