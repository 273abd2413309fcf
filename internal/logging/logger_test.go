// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package logging

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// capture routes the global logger into w at info level until the test ends.
func capture(t *testing.T, w io.Writer) {
	t.Helper()
	Init(Config{Level: "info", Timestamp: true, Output: w})
	t.Cleanup(func() { Init(Config{Level: "info", Timestamp: true}) })
}

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	capture(t, &buf)

	Info().Str("hostname", "hpc1").Msg("host synced")

	output := buf.String()
	if !strings.Contains(output, "host synced") {
		t.Errorf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, `"hostname":"hpc1"`) {
		t.Errorf("expected hostname field, got: %s", output)
	}
	if !strings.Contains(output, `"level":"info"`) {
		t.Errorf("expected level field, got: %s", output)
	}
	if !strings.Contains(output, `"time":`) {
		t.Errorf("expected time field, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"disabled", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { Init(Config{Level: "info", Timestamp: true}) })

	Trace().Msg("trace line")
	Debug().Msg("debug line")
	Info().Msg("info line")
	Warn().Msg("warn line")
	Error().Err(errors.New("boom")).Msg("error line")

	out := buf.String()
	for _, dropped := range []string{"trace line", "debug line", "info line"} {
		if strings.Contains(out, dropped) {
			t.Errorf("%q should be filtered: %s", dropped, out)
		}
	}
	if !strings.Contains(out, "warn line") || !strings.Contains(out, `"error":"boom"`) {
		t.Errorf("expected warn and error lines: %s", out)
	}
	if strings.Contains(out, `"time":`) {
		t.Errorf("timestamp not requested: %s", out)
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "console", Output: &buf})
	t.Cleanup(func() { Init(Config{Level: "info", Timestamp: true}) })

	Info().Msg("console line")
	if !strings.Contains(buf.String(), "console line") {
		t.Errorf("message missing: %s", buf.String())
	}
	if strings.Contains(buf.String(), `"message"`) {
		t.Errorf("console output should not be JSON: %s", buf.String())
	}
}

func TestCallerField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Caller: true, Output: &buf})
	t.Cleanup(func() { Init(Config{Level: "info", Timestamp: true}) })

	Info().Msg("with caller")
	if !strings.Contains(buf.String(), `"caller":`) {
		t.Errorf("expected caller field: %s", buf.String())
	}
}
