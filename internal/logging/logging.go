// Package logging builds the zerolog logger handed to every component.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/younsl/snapshooter/internal/models"
)

// Options configures the logger
type Options struct {
	// Devel renders human readable lines instead of JSON
	Devel bool
	// Verbose raises the level: 0 info, 1 debug, 2 and more trace
	Verbose int
	// Output defaults to stderr
	Output io.Writer
}

// New creates a logger from options
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Devel {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}
	return zerolog.New(out).Level(LevelFor(opts.Verbose)).With().Timestamp().Logger()
}

// LevelFor maps a -v count to a log level
func LevelFor(verbose int) zerolog.Level {
	switch {
	case verbose >= 2:
		return zerolog.TraceLevel
	case verbose == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithScope annotates logger with the tenant scope
func WithScope(logger zerolog.Logger, scope models.Scope) zerolog.Logger {
	c := logger.With().Str("project", scope.ProjectID)
	if scope.IsTrust() {
		c = c.Str("trust", scope.TrustID)
	}
	return c.Logger()
}
