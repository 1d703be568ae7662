// Package logging configures the process-wide zerolog logger. Components
// derive their own loggers with With().Str("component", ...).
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls log level and output format.
type Config struct {
	Level      string
	JSONFormat bool
}

// New builds the root logger. Unknown levels fall back to info.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.JSONFormat {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
