package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lessonshelf/lectern/internal/cache"
	"github.com/lessonshelf/lectern/tts"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect the synthesized audio cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(c *cache.AudioCache) error {
				return printCacheStats(cmd.OutOrStdout(), c)
			})
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(c *cache.AudioCache) error {
				if err := c.Clear(); err != nil {
					return fmt.Errorf("unable to clear cache: %w", err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
				return err //nolint:wrapcheck
			})
		},
	}

	cacheCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(c *cache.AudioCache) error {
				n := c.Cleanup()
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Removed %s expired %s.\n",
					humanize.Comma(int64(n)), plural(n, "entry", "entries"))
				return err //nolint:wrapcheck
			})
		},
	}
)

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cacheCleanupCmd)
}

func withCache(fn func(*cache.AudioCache) error) error {
	cfg, err := tts.LoadConfigFromViper()
	if err != nil {
		return err //nolint:wrapcheck
	}
	c, err := openCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("unable to open cache: %w", err)
	}
	defer c.Close() //nolint:errcheck
	return fn(c)
}

func printCacheStats(w io.Writer, c *cache.AudioCache) error {
	memory, disk := c.Stats()
	for _, tier := range []struct {
		name  string
		stats cache.Stats
	}{
		{"Memory", memory},
		{"Disk", disk},
	} {
		s := tier.stats
		_, err := fmt.Fprintf(w, "%s  %s of %s, %s %s, %.0f%% hit rate\n",
			titleStyle(fmt.Sprintf("%-6s", tier.name)),
			humanize.Bytes(uint64(max(s.Size, 0))),     //nolint:gosec
			humanize.Bytes(uint64(max(s.Capacity, 0))), //nolint:gosec
			humanize.Comma(s.Items), plural(int(s.Items), "entry", "entries"),
			s.HitRate()*100)
		if err != nil {
			return err //nolint:wrapcheck
		}
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
