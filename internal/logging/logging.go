// Package logging configures zerolog for the CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultLevel keeps one-shot commands quiet.
const DefaultLevel = "warn"

// ParseLevel maps a level name to a zerolog level. Empty means DefaultLevel.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultLevel
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q (valid: trace, debug, info, warn, error, disabled)", name)
	}
	return lvl, nil
}

// New returns a logger writing to w. Terminals get human-readable console
// output; anything else gets JSON lines.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	if isTerminal(w) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Setup builds a stderr logger for the named level and installs it as the
// global logger.
func Setup(levelName string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(levelName)
	if err != nil {
		return zerolog.Nop(), err
	}
	logger := New(os.Stderr, lvl)
	log.Logger = logger
	return logger, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
