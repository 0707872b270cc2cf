// Package logger builds the zerolog.Logger shared by every component of the
// tracker and defines the field vocabulary used in log lines.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Field keys shared across components.
const (
	KeyComponent     = "component"
	KeyOperation     = "operation"
	KeyParticipantID = "participant_id"
	KeyUsername      = "username"
	KeySweepID       = "sweep_id"
	KeyRequestID     = "request_id"
	KeyLatency       = "latency"
)

// Options configures the logger.
type Options struct {
	// Level is a zerolog level name ("debug", "info", ...). Unknown values
	// fall back to info.
	Level string
	// Format is FormatJSON or FormatConsole.
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
	// Caller adds file:line to every entry.
	Caller bool
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stdout,
		Caller: true,
	}
}

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// New creates a logger from opts.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Format == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	ctx := zerolog.New(out).With().Timestamp()
	if opts.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger().Level(ParseLevel(opts.Level))
}

// Nop returns a disabled logger, handy in tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Component derives a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str(KeyComponent, name).Logger()
}

// WithContext attaches l to ctx.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or fallback when none is set.
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}
