// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	a, b := GenerateCorrelationID(), GenerateCorrelationID()
	if len(a) != 8 {
		t.Errorf("expected 8 chars, got %d", len(a))
	}
	if a == b {
		t.Error("expected distinct correlation IDs")
	}
}

func TestContextWithNewCorrelationID_KeepsExisting(t *testing.T) {
	t.Parallel()

	ctx := ContextWithCorrelationID(context.Background(), "abc12345")
	ctx = ContextWithNewCorrelationID(ctx)
	if got := CorrelationIDFromContext(ctx); got != "abc12345" {
		t.Errorf("expected existing id to be kept, got %q", got)
	}

	fresh := ContextWithNewCorrelationID(context.Background())
	if CorrelationIDFromContext(fresh) == "" {
		t.Error("expected a generated correlation id")
	}
}

func TestRequestIDContext(t *testing.T) {
	t.Parallel()

	if RequestIDFromContext(context.Background()) != "" {
		t.Error("expected empty request id")
	}
	ctx := ContextWithRequestID(context.Background(), "req-1")
	if RequestIDFromContext(ctx) != "req-1" {
		t.Error("request id not stored")
	}
}

func TestCtx(t *testing.T) {
	var buf bytes.Buffer
	capture(t, &buf)

	ctx := ContextWithCorrelationID(context.Background(), "corr0001")
	ctx = ContextWithRequestID(ctx, "req-2")
	Ctx(ctx).Info().Msg("with ids")

	out := buf.String()
	if !strings.Contains(out, `"correlation_id":"corr0001"`) || !strings.Contains(out, `"request_id":"req-2"`) {
		t.Errorf("missing ids in %s", out)
	}
}
