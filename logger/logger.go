package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var zlog = zerolog.New(os.Stdout).With().Timestamp().Str("service", "anniversary-server").Logger()

// Init configures the process-wide structured logger. Development gets a
// human-readable console writer, every other environment gets JSON.
func Init(env, level string) {
	var w io.Writer

	if env == "development" || env == "dev" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	} else {
		w = os.Stdout
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zlog = zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", "anniversary-server").
		Logger()
}

// Get returns the global logger.
func Get() *zerolog.Logger {
	return &zlog
}

// SetOutput redirects the global logger, used by tests to silence or capture output.
func SetOutput(w io.Writer) {
	zlog = zlog.Output(w)
}

// WithRelationship returns a child logger tagged with the relationship id.
func WithRelationship(relationshipID string) *zerolog.Logger {
	l := zlog.With().Str("relationshipId", relationshipID).Logger()
	return &l
}
