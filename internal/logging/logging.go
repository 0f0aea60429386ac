// Package logging builds the process-wide slog handler: colorized console output on a
// terminal, JSON lines everywhere else.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Format selects the output encoding.
type Format string

const (
	FormatAuto   Format = "auto"
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Config controls the handler.
type Config struct {
	// Format is auto, json or pretty. Auto picks pretty on a terminal.
	Format Format
	// Level is debug, info, warn or error.
	Level string
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// ParseFormat validates a format name. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatJSON, FormatPretty:
		return f, nil
	case "text", "console":
		return FormatPretty, nil
	default:
		return "", fmt.Errorf("invalid log format %q: expected auto, json or pretty", s)
	}
}

// NewHandler returns the handler for cfg writing to out.
func NewHandler(out io.Writer, cfg Config) (slog.Handler, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := ParseFormat(string(cfg.Format))
	if err != nil {
		return nil, err
	}
	if format == FormatAuto {
		format = FormatJSON
		if isTerminal(out) {
			format = FormatPretty
		}
	}

	if format == FormatPretty {
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		}), nil
	}
	return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}), nil
}

// Setup installs the handler for cfg as the slog default, writing to stdout.
func Setup(cfg Config) (*slog.Logger, error) {
	h, err := NewHandler(os.Stdout, cfg)
	if err != nil {
		return nil, err
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
