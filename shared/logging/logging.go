package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the process logger for service and installs it as the global one.
// format "console" gives human-readable output; anything else logs JSON.
func New(service, level, format string) zerolog.Logger {
	return newWithWriter(os.Stdout, service, level, format)
}

func newWithWriter(w io.Writer, service, level, format string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Str("service", service).Logger()
	log.Logger = logger
	return logger
}
