package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lessonshelf/lectern/internal/doctor"
	"github.com/lessonshelf/lectern/tts"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check narration dependencies",
	Long: paragraph(fmt.Sprintf("\n%s that the synthesis service, the local synthesizer "+
		"and the cache and bookmark locations are usable.", keyword("Check"))),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := tts.LoadConfigFromViper()
		if err != nil {
			return err //nolint:wrapcheck
		}
		checkers, err := checkersFor(cfg, viper.GetString("bookmarks.db"))
		if err != nil {
			return err
		}

		results, runErr := doctor.Run(cmd.Context(), checkers...)
		if _, err := fmt.Fprint(cmd.OutOrStdout(), report(results)); err != nil {
			return err //nolint:wrapcheck
		}
		return runErr //nolint:wrapcheck
	},
}

// checkersFor builds the checks for the enabled parts of cfg. A backend is
// only required when it is the sole one enabled.
func checkersFor(cfg tts.Config, bookmarksDB string) ([]doctor.Checker, error) {
	var checkers []doctor.Checker

	if cfg.Remote.Enabled {
		checkers = append(checkers, doctor.Endpoint{URL: cfg.Remote.Endpoint, Required: !cfg.Local.Enabled})
	}
	if cfg.Local.Enabled {
		checkers = append(checkers, doctor.Espeak{Binary: cfg.Local.Binary, Required: !cfg.Remote.Enabled})
	}
	if cfg.Cache.Enabled {
		dir, err := cacheDir(cfg.Cache)
		if err != nil {
			return nil, err
		}
		checkers = append(checkers, doctor.WritableDir{Label: "audio cache", Path: dir})
	}

	path, err := bookmarkPath(bookmarksDB)
	if err != nil {
		return nil, err
	}
	checkers = append(checkers,
		doctor.WritableDir{Label: "bookmark directory", Path: filepath.Dir(path)},
		doctor.Func{Label: "bookmark database", Fn: func(context.Context) (string, error) {
			s, err := openBookmarks(bookmarksDB)
			if err != nil {
				return "", err
			}
			return path, s.Close()
		}},
	)
	return checkers, nil
}

func report(results []doctor.Status) string {
	var b strings.Builder
	b.WriteString(titleStyle("Narration dependency check"))
	b.WriteString("\n\n")
	for _, s := range results {
		writeStatus(&b, s)
	}
	return b.String()
}

func writeStatus(w io.Writer, s doctor.Status) {
	switch {
	case s.OK:
		_, _ = fmt.Fprintf(w, "%s%s\n", okStyle("  ✓ "+s.Name+": "), s.Detail)
		return
	case s.Required:
		_, _ = fmt.Fprintf(w, "%s%v\n", failStyle("  ✗ "+s.Name+": "), s.Err)
	default:
		_, _ = fmt.Fprintf(w, "%s%v (optional)\n", optionalStyle("  ○ "+s.Name+": "), s.Err)
	}
	if s.Instructions != "" {
		_, _ = fmt.Fprintf(w, "    %s\n", s.Instructions)
	}
}
