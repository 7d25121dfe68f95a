package ui

import "github.com/dgnsrekt/lingoplay/internal/script"

// Config contains TUI-specific configuration.
type Config struct {
	GlamourMaxWidth uint
	GlamourStyle    string `env:"GLAMOUR_STYLE"`

	// Level new dialogues start at. Cycled from the keyboard.
	Level script.Level

	// Engine name shown in the status bar.
	Engine string

	ShowProgress bool

	// For debugging the UI
	GlamourEnabled bool `env:"LINGOPLAY_ENABLE_GLAMOUR" envDefault:"true"`
}
