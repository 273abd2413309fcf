// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, encoding and destination of the global logger.
type Config struct {
	Level  string // trace..panic or disabled; unknown names mean info
	Format string // json (default) or console
	Caller bool
	// Timestamp stamps every entry with a "time" field.
	Timestamp bool
	Output    io.Writer // os.Stderr when nil
}

var levels = map[string]zerolog.Level{
	"trace":    zerolog.TraceLevel,
	"debug":    zerolog.DebugLevel,
	"info":     zerolog.InfoLevel,
	"warn":     zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"fatal":    zerolog.FatalLevel,
	"panic":    zerolog.PanicLevel,
	"disabled": zerolog.Disabled,
}

var (
	mu     sync.RWMutex
	global zerolog.Logger
)

//nolint:gochecknoinits // packages log before main calls Init
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	Init(Config{Level: os.Getenv("LOG_LEVEL"), Timestamp: true})
}

func parseLevel(name string) zerolog.Level {
	if lvl, ok := levels[strings.ToLower(name)]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}

// Init replaces the global logger. It may be called again, e.g. by tests
// that capture output.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}

	mu.Lock()
	defer mu.Unlock()
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	global = ctx.Logger()
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func event(level zerolog.Level) *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return global.WithLevel(level)
}

// Trace starts a trace entry. Used for per-pass merge accounting.
func Trace() *zerolog.Event { return event(zerolog.TraceLevel) }

func Debug() *zerolog.Event { return event(zerolog.DebugLevel) }

// Info starts an info entry.
//
//	logging.Info().Int("hosts", n).Msg("Host roster refreshed")
func Info() *zerolog.Event { return event(zerolog.InfoLevel) }

func Warn() *zerolog.Event { return event(zerolog.WarnLevel) }

func Error() *zerolog.Event { return event(zerolog.ErrorLevel) }

// Fatal logs and exits the process with status 1.
func Fatal() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return global.Fatal()
}
