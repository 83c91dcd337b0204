// Package logging builds the zerolog logger shared by the CLI and the
// pipelines.
//
//	log := logging.New(logging.Config{Level: "debug", Format: "console"})
//	log.Info().Str("entity", "contacts").Msg("stage=start")
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger options. The zero value logs info and above as JSON to
// stderr, or as console text when stderr is a terminal.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error or off.
	Level string `mapstructure:"level" json:"level" yaml:"level"`
	// Format is json, console or auto.
	Format string `mapstructure:"format" json:"format" yaml:"format"`
	// Output is stderr, stdout, discard or a file path opened for append.
	Output string `mapstructure:"output" json:"output" yaml:"output"`
	// NoColor disables color in console mode.
	NoColor bool `mapstructure:"no_color" json:"no_color" yaml:"no_color"`
}

// New returns a logger for cfg. An Output file that cannot be opened falls
// back to stderr and the failure is logged once.
func New(cfg Config) zerolog.Logger {
	out, openErr := output(cfg.Output)

	var w io.Writer = out
	if useConsole(cfg.Format, out) {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    cfg.NoColor || os.Getenv("NO_COLOR") != "",
		}
	}

	level := ParseLevel(cfg.Level)
	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	if openErr != nil {
		logger.Warn().Err(openErr).Str("output", cfg.Output).Msg("log output unavailable; using stderr")
	}
	return logger
}

// Nop returns a logger that discards everything.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// ParseLevel maps a level name to a zerolog level. Unknown names are info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel
	case "warning":
		return zerolog.WarnLevel
	case "off", "none", "disabled":
		return zerolog.Disabled
	}
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// ValidLevel reports whether ParseLevel understands level.
func ValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "warning", "off", "none", "disabled":
		return true
	}
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	return err == nil && l != zerolog.NoLevel
}

func output(dest string) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(dest)) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "discard", "none":
		return io.Discard, nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return os.Stderr, fmt.Errorf("open log output: %w", err)
	}
	return f, nil
}

func useConsole(format string, out io.Writer) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "pretty":
		return true
	case "json":
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
