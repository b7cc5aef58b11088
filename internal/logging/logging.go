// Package logging sets up the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the root logger and installs it as log.Logger. Development
// output is human readable, production output is JSON.
func New(level string, development bool) (zerolog.Logger, error) {
	return NewWithWriter(os.Stdout, level, development)
}

func NewWithWriter(out io.Writer, level string, development bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	w := out
	if development {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(lvl).With().Timestamp()
	if development {
		ctx = ctx.Caller()
	}
	l := ctx.Logger()

	log.Logger = l
	return l, nil
}
