package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lessonshelf/lectern/tts"
)

const defaultConfig = `# lesson language tag, used to pick the local voice
language: "he-IL"
# bookmark owner (default $USER)
# user: "reader"
# log debug output
debug: false

tts:
  # narration rate, 0.5 to 2.0
  rate: 0.9
  # pause between paragraphs
  advance_delay: "500ms"

  # synthesis service, tried first
  remote:
    enabled: true
    endpoint: "http://localhost:8080/api/text-to-speech"
    # zero disables throttling
    requests_per_minute: 60
    progress_interval: "100ms"

  # on-device synthesizer, used when the service is unreachable
  local:
    enabled: true
    # espeak-ng or espeak, found on PATH when empty
    binary: ""
    voice_wait: "2s"

  # synthesized audio cache
  cache:
    enabled: true
    # user cache directory when empty
    dir: ""
    memory_mb: 64
    disk_mb: 512
    # zstd level, 0 disables compression
    compression_level: 3
    ttl: "720h"

bookmarks:
  # sqlite database, user data directory when empty
  db: ""

# lectern serve
serve:
  addr: ":8080"
  language_code: "he-IL"
  voice_name: "he-IL-Wavenet-B"
  speaking_rate: 0.9
  allowed_origins: ["*"]
`

var (
	printPath  bool
	showConfig bool
)

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the lectern config file",
	Long:    paragraph(fmt.Sprintf("\n%s the lectern config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("lectern config\nlectern config --config path/to/lectern.yml"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if showConfig {
			return writeEffectiveConfig(cmd.OutOrStdout())
		}
		if err := ensureConfigFile(); err != nil {
			return err
		}
		if printPath {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), configFile)
			return err //nolint:wrapcheck
		}

		c, err := editor.Cmd("Lectern", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&printPath, "path", false, "print the config file path instead of editing it")
	configCmd.Flags().BoolVar(&showConfig, "show", false, "print the effective configuration, after flags and environment")
}

// effectiveConfig mirrors the layout of lectern.yml.
type effectiveConfig struct {
	Language  string `yaml:"language"`
	User      string `yaml:"user"`
	TTS       ttsSection `yaml:"tts"`
	Bookmarks struct {
		DB string `yaml:"db"`
	} `yaml:"bookmarks"`
	Serve struct {
		Addr           string   `yaml:"addr"`
		LanguageCode   string   `yaml:"language_code"`
		VoiceName      string   `yaml:"voice_name"`
		SpeakingRate   float64  `yaml:"speaking_rate"`
		AllowedOrigins []string `yaml:"allowed_origins,flow"`
	} `yaml:"serve"`
}

type ttsSection struct {
	Rate         float64          `yaml:"rate"`
	AdvanceDelay time.Duration    `yaml:"advance_delay"`
	Remote       tts.RemoteConfig `yaml:"remote"`
	Local        tts.LocalConfig  `yaml:"local"`
	Cache        tts.CacheConfig  `yaml:"cache"`
}

func writeEffectiveConfig(w io.Writer) error {
	cfg, err := tts.LoadConfigFromViper()
	if err != nil {
		return err //nolint:wrapcheck
	}

	var out effectiveConfig
	out.Language = cfg.Language
	out.User = currentUser()
	out.TTS = ttsSection{
		Rate:         cfg.Rate,
		AdvanceDelay: cfg.AdvanceDelay,
		Remote:       cfg.Remote,
		Local:        cfg.Local,
		Cache:        cfg.Cache,
	}
	out.Bookmarks.DB = viper.GetString("bookmarks.db")
	out.Serve.Addr = viper.GetString("serve.addr")
	out.Serve.LanguageCode = viper.GetString("serve.language_code")
	out.Serve.VoiceName = viper.GetString("serve.voice_name")
	out.Serve.SpeakingRate = viper.GetFloat64("serve.speaking_rate")
	out.Serve.AllowedOrigins = viper.GetStringSlice("serve.allowed_origins")

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("unable to encode config: %w", err)
	}
	return enc.Close() //nolint:wrapcheck
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
