package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lessonshelf/lectern/internal/bookmark"
)

var (
	bookmarksCmd = &cobra.Command{
		Use:     "bookmarks",
		Aliases: []string{"bm"},
		Short:   "Manage saved reading positions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBookmarks(func(s *bookmark.Store) error {
				return listBookmarks(cmd.Context(), cmd.OutOrStdout(), s, currentUser())
			})
		},
	}

	bookmarksListCmd = &cobra.Command{
		Use:   "list",
		Short: "List your bookmarks, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBookmarks(func(s *bookmark.Store) error {
				return listBookmarks(cmd.Context(), cmd.OutOrStdout(), s, currentUser())
			})
		},
	}

	bookmarksDeleteCmd = &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a bookmark",
		Example: paragraph("lectern bookmarks delete dana_intro"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBookmarks(func(s *bookmark.Store) error {
				if err := s.Delete(cmd.Context(), args[0]); err != nil {
					return err //nolint:wrapcheck
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Deleted", keyword(args[0]))
				return err //nolint:wrapcheck
			})
		},
	}
)

func init() {
	bookmarksCmd.AddCommand(bookmarksListCmd, bookmarksDeleteCmd)
}

func withBookmarks(fn func(*bookmark.Store) error) error {
	s, err := openBookmarks(viper.GetString("bookmarks.db"))
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck
	return fn(s)
}

// bookmarkLister lists a user's bookmarks. *bookmark.Store implements it.
type bookmarkLister interface {
	List(ctx context.Context, userID string) ([]bookmark.Bookmark, error)
}

func listBookmarks(ctx context.Context, w io.Writer, s bookmarkLister, user string) error {
	bookmarks, err := s.List(ctx, user)
	if err != nil {
		return err //nolint:wrapcheck
	}
	if len(bookmarks) == 0 {
		_, err := fmt.Fprintln(w, faintStyle("No bookmarks yet. Press m while a lesson plays to save one."))
		return err //nolint:wrapcheck
	}

	rows := make([][]string, 0, len(bookmarks))
	for _, b := range bookmarks {
		rows = append(rows, []string{
			b.ID,
			b.LessonTitle,
			b.CourseName,
			fmt.Sprintf("%.0f%%", b.Position*100),
			humanize.Time(b.UpdatedAt),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("ID", "LESSON", "COURSE", "POSITION", "SAVED").
		Rows(rows...)
	_, err = fmt.Fprintln(w, t.String())
	return err //nolint:wrapcheck
}
