package ui

import "time"

// Config contains TUI-specific configuration, read from the environment.
type Config struct {
	EnableMouse bool `env:"LECTERN_MOUSE"`
	// Maximum wrap width for lesson text; zero follows the terminal.
	MaxWidth uint `env:"LECTERN_WIDTH" envDefault:"100"`
	// Scroll the viewport to the paragraph being narrated.
	Follow bool `env:"LECTERN_FOLLOW" envDefault:"true"`
	// Reload the lesson when its file changes on disk.
	Watch bool `env:"LECTERN_WATCH" envDefault:"true"`

	StatusTimeout time.Duration `env:"LECTERN_STATUS_TIMEOUT" envDefault:"3s"`
}
