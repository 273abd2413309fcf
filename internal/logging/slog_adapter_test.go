// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newBufferedSlog(level zerolog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf).Level(level)
	return slog.New(NewSlogHandlerWithLogger(zl)), &buf
}

func TestSlogHandler_Levels(t *testing.T) {
	original := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	defer zerolog.SetGlobalLevel(original)

	tests := []struct {
		name  string
		log   func(l *slog.Logger)
		level string
	}{
		{"debug", func(l *slog.Logger) { l.Debug("m") }, `"level":"debug"`},
		{"info", func(l *slog.Logger) { l.Info("m") }, `"level":"info"`},
		{"warn", func(l *slog.Logger) { l.Warn("m") }, `"level":"warn"`},
		{"error", func(l *slog.Logger) { l.Error("m") }, `"level":"error"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBufferedSlog(zerolog.DebugLevel)
			tt.log(l)
			if !strings.Contains(buf.String(), tt.level) {
				t.Errorf("expected %s in %s", tt.level, buf.String())
			}
		})
	}
}

func TestSlogHandler_Enabled(t *testing.T) {
	t.Parallel()

	h := NewSlogHandlerWithLogger(zerolog.New(&bytes.Buffer{}).Level(zerolog.WarnLevel))
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestSlogHandler_AttrsAndGroups(t *testing.T) {
	original := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	defer zerolog.SetGlobalLevel(original)

	l, buf := newBufferedSlog(zerolog.DebugLevel)
	l = l.With("service", "push-transport").WithGroup("supervisor")
	l.Info("restarting",
		"attempt", 3,
		"backoff", 2*time.Second,
		"healthy", false,
		slog.Group("last", "error", "eof"),
	)

	out := buf.String()
	for _, want := range []string{
		`"service":"push-transport"`,
		`"supervisor.attempt":3`,
		`"supervisor.healthy":false`,
		`"supervisor.last.error":"eof"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   slog.Level
		want zerolog.Level
	}{
		{slog.LevelDebug - 4, zerolog.TraceLevel},
		{slog.LevelDebug, zerolog.DebugLevel},
		{slog.LevelInfo, zerolog.InfoLevel},
		{slog.LevelWarn, zerolog.WarnLevel},
		{slog.LevelError, zerolog.ErrorLevel},
		{slog.LevelError + 4, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := slogToZerologLevel(tt.in); got != tt.want {
			t.Errorf("slogToZerologLevel(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewSlogLogger(t *testing.T) {
	if NewSlogLogger() == nil {
		t.Fatal("expected logger")
	}
}
