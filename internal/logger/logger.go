// Package logger configures the application's structured logging.
//
// It uses *zerolog* and installs a writer (console-friendly on a terminal,
// JSON otherwise) on the global logger (`github.com/rs/zerolog/log`) that every other package logs
// through, so a single call here governs output format for the whole CLI.
package logger

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init installs level as the global log level and points the global logger
// at stderr, so commands don't clutter stdout (which may itself be piped,
// e.g. project build's SQL output). An interactive terminal gets
// zerolog's human-readable console writer; anything else (a pipe, a log
// aggregator) gets raw JSON lines.
func Init(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// ParseLevel maps a CLI --log-level flag value to a zerolog.Level, falling
// back to Info for anything unrecognized rather than failing the command.
// zerolog spells its disabled state "disabled", not "off", so "off" is
// mapped by hand before falling through to zerolog.ParseLevel.
func ParseLevel(s string) zerolog.Level {
	if s == "off" {
		return zerolog.Disabled
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
