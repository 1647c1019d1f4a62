// Package main provides the entry point for the Lectern CLI application.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lessonshelf/lectern/internal/bookmark"
	"github.com/lessonshelf/lectern/internal/synthserver"
	"github.com/lessonshelf/lectern/tts"
	"github.com/lessonshelf/lectern/utils"
)

const appName = "lectern"

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "lectern [LESSON|DIR]",
		Short: "Narrate lessons in the terminal",
		Long: paragraph(
			fmt.Sprintf("\nNarrate lessons paragraph by paragraph, %s.", keyword("online or off")),
		),
		Example: paragraph("lectern lessons/\nlectern lessons/intro.md\nlectern serve"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(utils.ExpandPath(configFile))
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}
	if debug || viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	if err := bookmark.ValidateUserID(viper.GetString("user")); err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}
	return nil
}

// execute lists a directory or plays a lesson file.
func execute(cmd *cobra.Command, args []string) error {
	target := "."
	if len(args) == 1 {
		target = args[0]
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", target, err)
	}
	if info.IsDir() {
		return runList(cmd.OutOrStdout(), target, listOptions{})
	}
	return runPlay(cmd, target)
}

// currentUser is the configured bookmark owner.
func currentUser() string {
	return viper.GetString("user")
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.BoolVar(&debug, "debug", false, "log debug output to the log file")
	flags.Float64("rate", tts.DefaultRate, "narration rate")
	flags.String("language", "", "lesson language tag, such as he-IL")
	flags.String("user", "", "bookmark owner")
	flags.String("endpoint", "", "synthesis service URL")

	// Config bindings
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("tts.rate", flags.Lookup("rate"))
	_ = viper.BindPFlag("language", flags.Lookup("language"))
	_ = viper.BindPFlag("user", flags.Lookup("user"))
	_ = viper.BindPFlag("tts.remote.endpoint", flags.Lookup("endpoint"))

	setDefaults()

	rootCmd.AddCommand(playCmd, listCmd, serveCmd, bookmarksCmd, cacheCmd, checkCmd, configCmd, manCmd)
}

// setDefaults registers every configuration key with its default.
func setDefaults() {
	tts.SetDefaults()
	viper.SetDefault("debug", false)
	viper.SetDefault("user", utils.DefaultUser())
	viper.SetDefault("bookmarks.db", "")

	viper.SetDefault("serve.addr", ":8080")
	viper.SetDefault("serve.language_code", synthserver.DefaultLanguageCode)
	viper.SetDefault("serve.voice_name", synthserver.DefaultVoiceName)
	viper.SetDefault("serve.speaking_rate", synthserver.DefaultSpeakingRate)
	viper.SetDefault("serve.allowed_origins", []string{"*"})
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, appName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, appName)}, dirs...)
	}

	if c := os.Getenv("LECTERN_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(appName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(appName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], appName+".yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
