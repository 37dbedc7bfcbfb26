// Package logger provides the structured logger used across corevisor.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how a Logger is constructed.
type Config struct {
	// Level is one of "trace", "debug", "info", "warn", "error", "fatal", "panic".
	Level string
	// Pretty enables a human-readable console writer instead of JSON lines.
	// The manager runs with Pretty=false in production (PID 1's stdout is
	// usually the kernel console or the journal, not a terminal).
	Pretty bool
	// Component tags every record with a "component" field.
	Component string
}

// New builds a zerolog.Logger from cfg. An unknown Level falls back to info.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w = os.Stderr
	base := zerolog.New(w).Level(level).With().Timestamp()

	if cfg.Component != "" {
		base = base.Str("component", cfg.Component)
	}

	log := base.Logger()

	if cfg.Pretty {
		log = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}

	return log
}

// Nop returns a logger that discards everything, used as a safe zero value
// for components constructed before a real logger is wired in.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
