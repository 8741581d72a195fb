// Package logger provides the process-wide zerolog logger.
//
// Call Init once from main, then Get or Component anywhere else. Packages that
// are constructed with an explicit zerolog.Logger should receive one derived
// from Component so every line carries the component that wrote it.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger behaviour at initialisation time.
type Options struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	// Empty or unknown values fall back to info.
	Level string
	// Pretty switches to coloured console output instead of JSON.
	Pretty bool
	// Output defaults to os.Stderr.
	Output io.Writer
	// Service, when set, is attached to every line as "service".
	Service string
}

var (
	mu       sync.RWMutex
	instance *zerolog.Logger
)

// Init builds the process logger. Only the first call has an effect; later
// calls return the existing logger.
func Init(opts Options) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return *instance
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(out).Level(ParseLevel(opts.Level)).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	l := ctx.Logger()
	instance = &l
	return l
}

// Get returns the process logger. Panics if Init has not been called.
func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("logger: Get() called before Init()")
	}
	return *instance
}

// Component returns the process logger tagged with component=name. Before Init
// it returns a disabled logger, so libraries can call it unconditionally.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return zerolog.Nop()
	}
	return Named(*instance, name)
}

// Named returns l tagged with component=name. Use it for loggers passed in by
// constructor; Component is the same for the process logger.
func Named(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Reset drops the process logger so the next Init rebuilds it. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
}

// ParseLevel maps a level name to a zerolog.Level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
