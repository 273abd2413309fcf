// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package models

import (
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestNormalizeState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want JobState
	}{
		{"PD", StatePending},
		{"PENDING", StatePending},
		{"R", StateRunning},
		{"running", StateRunning},
		{"CG", StateRunning},
		{"S", StateSuspended},
		{"CD", StateCompleted},
		{"COMPLETED", StateCompleted},
		{"F", StateFailed},
		{"CA", StateFailed},
		{"CANCELLED by 1000", StateFailed},
		{"TO", StateFailed},
		{"OOM", StateFailed},
		{"NF", StateFailed},
		{"failed", StateFailed},
		{"", StateUnknown},
		{"   ", StateUnknown},
		{"BOGUS", StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := NormalizeState(tt.raw); got != tt.want {
				t.Errorf("NormalizeState(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestJobState_Terminal(t *testing.T) {
	t.Parallel()

	for _, s := range AllStates {
		want := s == StateCompleted || s == StateFailed
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, s.Terminal(), want)
		}
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if JobState("weird").Valid() {
		t.Error("unexpected valid state")
	}
}

func TestJobRecord_UnmarshalJobID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		wantID  string
		wantErr bool
	}{
		{"string id", `{"job_id":"1234","hostname":"h1"}`, "1234", false},
		{"numeric id", `{"job_id":1234,"hostname":"h1"}`, "1234", false},
		{"array job id", `{"job_id":"1234_7","hostname":"h1"}`, "1234_7", false},
		{"camel case alias", `{"jobId":99,"hostname":"h1"}`, "99", false},
		{"missing id", `{"hostname":"h1"}`, "", false},
		{"object id", `{"job_id":{"x":1},"hostname":"h1"}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec JobRecord
			err := json.Unmarshal([]byte(tt.payload), &rec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.JobID != tt.wantID {
				t.Errorf("JobID = %q, want %q", rec.JobID, tt.wantID)
			}
		})
	}
}

func TestJobRecord_PreservesAttributes(t *testing.T) {
	t.Parallel()

	payload := `{
		"job_id": 42,
		"hostname": "hpc1",
		"state": "R",
		"name": "train",
		"runtime": "00:05:00",
		"nodes": ["n1", "n2"],
		"exit_code": null,
		"submit_time": "2026-01-02T03:04:05Z"
	}`

	var rec JobRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.State != StateRunning || rec.RawState != "R" {
		t.Errorf("state = %q raw = %q", rec.State, rec.RawState)
	}
	if rec.SubmitTime == nil || !rec.SubmitTime.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("submit time = %v", rec.SubmitTime)
	}

	keys := rec.AttributeKeys()
	if strings.Join(keys, ",") != "exit_code,nodes,runtime" {
		t.Errorf("attribute keys = %v", keys)
	}

	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(out, &generic); err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if generic["runtime"] != "00:05:00" {
		t.Errorf("runtime lost: %v", generic["runtime"])
	}
	if nodes, ok := generic["nodes"].([]any); !ok || len(nodes) != 2 {
		t.Errorf("nodes lost: %v", generic["nodes"])
	}
	if generic["state"] != "running" || generic["job_id"] != "42" {
		t.Errorf("identity fields = %v / %v", generic["state"], generic["job_id"])
	}
}

func TestJobRecord_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	rec := JobRecord{
		JobID:      "1",
		Hostname:   "h1",
		Attributes: map[string]json.RawMessage{"cpus": json.RawMessage("4")},
	}
	cp := rec.Clone()
	cp.Attributes["cpus"] = json.RawMessage("8")

	if string(rec.Attributes["cpus"]) != "4" {
		t.Error("clone shares attribute map with original")
	}
}

func TestJobRecord_UnixTimestamps(t *testing.T) {
	t.Parallel()

	var rec JobRecord
	if err := json.Unmarshal([]byte(`{"job_id":"1","hostname":"h","start_time":1700000000,"end_time":0}`), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.StartTime == nil || rec.StartTime.Unix() != 1700000000 {
		t.Errorf("start time = %v", rec.StartTime)
	}
	if rec.EndTime != nil {
		t.Errorf("end time should be nil, got %v", rec.EndTime)
	}
}

func TestJobRecord_TimeFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    string
		want     time.Time
		wantAttr bool
	}{
		{"rfc3339", `"2024-01-15T10:30:00Z"`, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), false},
		{"zone-less slurm", `"2024-01-15T10:30:00"`, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), false},
		{"space separated", `"2024-01-15 10:30:00"`, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), false},
		{"unparsable string", `"yesterday afternoon"`, time.Time{}, true},
		{"object", `{"set":true,"number":1705314600}`, time.Time{}, true},
		{"unknown marker", `"Unknown"`, time.Time{}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var rec JobRecord
			payload := `{"job_id":"1","hostname":"h1","state":"R","submit_time":` + tt.value + `}`
			if err := json.Unmarshal([]byte(payload), &rec); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if rec.State != StateRunning || rec.JobID != "1" {
				t.Errorf("identity lost: %+v", rec.Key())
			}

			_, inAttrs := rec.Attributes["submit_time"]
			if inAttrs != tt.wantAttr {
				t.Errorf("submit_time in attributes = %v, want %v", inAttrs, tt.wantAttr)
			}
			switch {
			case tt.want.IsZero() && rec.SubmitTime != nil:
				t.Errorf("submit time = %v, want nil", rec.SubmitTime)
			case !tt.want.IsZero() && (rec.SubmitTime == nil || !rec.SubmitTime.Equal(tt.want)):
				t.Errorf("submit time = %v, want %v", rec.SubmitTime, tt.want)
			}

			if !tt.wantAttr {
				return
			}
			out, err := json.Marshal(rec)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var generic map[string]json.RawMessage
			if err := json.Unmarshal(out, &generic); err != nil {
				t.Fatalf("unmarshal re-encoded: %v", err)
			}
			if string(generic["submit_time"]) != tt.value {
				t.Errorf("re-encoded submit_time = %s, want %s", generic["submit_time"], tt.value)
			}
		})
	}
}

func TestJobKey(t *testing.T) {
	t.Parallel()

	k := JobKey{Hostname: "hpc1", JobID: "7"}
	if k.String() != "hpc1/7" {
		t.Errorf("String() = %q", k.String())
	}
	if !k.Valid() {
		t.Error("expected valid key")
	}
	if (JobKey{Hostname: "hpc1"}).Valid() {
		t.Error("key without job id should be invalid")
	}
}

func TestUpdatePriority_String(t *testing.T) {
	t.Parallel()

	if PriorityRealtime.String() != "realtime" || PriorityLow.String() != "low" {
		t.Error("unexpected priority names")
	}
	if !(PriorityRealtime > PriorityHigh && PriorityHigh > PriorityNormal && PriorityNormal > PriorityLow) {
		t.Error("priority ordering broken")
	}
}
