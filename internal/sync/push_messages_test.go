// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/slurmdeck/internal/models"
)

func TestParsePushMessage_InitialByHost(t *testing.T) {
	t.Parallel()

	msg, err := ParsePushMessage([]byte(`{
		"type": "initial",
		"timestamp": "2026-03-02T12:00:00Z",
		"jobs": {
			"node01": [{"job_id": 101, "state": "R", "name": "train"}, {"job_id": "102", "state": "PD"}],
			"node02": []
		}
	}`))
	checkNoError(t, err)

	checkStringEqual(t, "type", msg.Type, MsgInitial)
	checkTrue(t, "timestamp", msg.Timestamp.Equal(testEpoch))
	checkIntEqual(t, "hosts", len(msg.Snapshot), 2)
	checkIntEqual(t, "node01 jobs", len(msg.Snapshot["node01"]), 2)
	checkIntEqual(t, "node02 jobs", len(msg.Snapshot["node02"]), 0)

	first := msg.Snapshot["node01"][0]
	checkStringEqual(t, "job id", first.JobID, "101")
	checkStringEqual(t, "hostname filled", first.Hostname, "node01")
	checkStringEqual(t, "state", string(first.State), string(models.StateRunning))
}

func TestParsePushMessage_UntypedFlatSnapshot(t *testing.T) {
	t.Parallel()

	msg, err := ParsePushMessage([]byte(`{"hostname": "node03", "jobs": [{"job_id": "7", "state": "CD"}]}`))
	checkNoError(t, err)

	checkStringEqual(t, "type", msg.Type, MsgInitial)
	checkIntEqual(t, "node03 jobs", len(msg.Snapshot["node03"]), 1)
	checkStringEqual(t, "state", string(msg.Snapshot["node03"][0].State), string(models.StateCompleted))
}

func TestParsePushMessage_JobUpdateFillsIdentity(t *testing.T) {
	t.Parallel()

	msg, err := ParsePushMessage([]byte(`{
		"type": "state_change",
		"job_id": "42",
		"hostname": "node01",
		"job": {"state": "FAILED", "exit_code": "1:0"}
	}`))
	checkNoError(t, err)

	checkStringEqual(t, "type", msg.Type, MsgStateChange)
	checkIntEqual(t, "records", len(msg.Records), 1)
	rec := msg.Records[0]
	checkStringEqual(t, "key", rec.Key().String(), "node01/42")
	checkStringEqual(t, "state", string(rec.State), string(models.StateFailed))
	checkStringEqual(t, "preserved attribute", string(rec.Attributes["exit_code"]), `"1:0"`)
	checkTrue(t, "no timestamp", msg.Timestamp.IsZero())
}

func TestParsePushMessage_BatchUpdate(t *testing.T) {
	t.Parallel()

	msg, err := ParsePushMessage([]byte(`{
		"type": "batch_update",
		"updates": [
			{"job_id": "1", "hostname": "node01", "job": {"state": "R"}},
			{"job_id": "2", "hostname": "node02", "job": {"job_id": "2", "hostname": "node02", "state": "S"}}
		]
	}`))
	checkNoError(t, err)

	checkStringEqual(t, "type", msg.Type, MsgBatchUpdate)
	checkIntEqual(t, "records", len(msg.Records), 2)
	checkStringEqual(t, "second state", string(msg.Records[1].State), string(models.StateSuspended))
}

func TestParsePushMessage_OpaqueTimesKeepBatch(t *testing.T) {
	t.Parallel()

	msg, err := ParsePushMessage([]byte(`{
		"type": "batch_update",
		"updates": [
			{"job_id": "1", "hostname": "node01", "job": {"state": "R", "submit_time": "2024-01-15T10:30:00"}},
			{"job_id": "2", "hostname": "node01", "job": {"state": "PD", "submit_time": "sometime"}}
		]
	}`))
	checkNoError(t, err)
	checkIntEqual(t, "records", len(msg.Records), 2)
	checkTrue(t, "zone-less time parsed", msg.Records[0].SubmitTime != nil)
	checkTrue(t, "opaque time not parsed", msg.Records[1].SubmitTime == nil)
	checkStringEqual(t, "opaque time kept", string(msg.Records[1].Attributes["submit_time"]), `"sometime"`)

	msg, err = ParsePushMessage([]byte(`{"type":"initial","jobs":{"node01":[
		{"job_id":"1","state":"R","start_time":"2024-01-15T10:30:00"},
		{"job_id":"2","state":"R","end_time":"n/a yet"}
	]}}`))
	checkNoError(t, err)
	checkIntEqual(t, "snapshot jobs", len(msg.Snapshot["node01"]), 2)
}

func TestParsePushMessage_BareArray(t *testing.T) {
	t.Parallel()

	msg, err := ParsePushMessage([]byte(`[{"job_id": "1", "hostname": "node01", "state": "R"}]`))
	checkNoError(t, err)

	checkStringEqual(t, "type", msg.Type, MsgBatchUpdate)
	checkIntEqual(t, "records", len(msg.Records), 1)
}

func TestParsePushMessage_Pong(t *testing.T) {
	t.Parallel()

	msg, err := ParsePushMessage([]byte(`{"type": "pong", "timestamp": "2026-03-02T12:00:05Z"}`))
	checkNoError(t, err)
	checkStringEqual(t, "type", msg.Type, MsgPong)
	checkTrue(t, "timestamp", msg.Timestamp.Equal(testEpoch.Add(5*time.Second)))
}

func TestParsePushMessage_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"empty", ``, "empty payload"},
		{"not json", `{"type":`, "malformed"},
		{"unknown type", `{"type": "reboot"}`, `unknown type "reboot"`},
		{"untyped without jobs", `{"hostname": "node01"}`, "missing type"},
		{"initial without jobs", `{"type": "initial"}`, "snapshot without jobs"},
		{"update without job", `{"type": "job_update", "job_id": "1", "hostname": "node01"}`, "update without job"},
		{"bad batch element", `{"type": "batch_update", "updates": [{"job": {"job_id": true}}]}`, "update 0"},
		{"bad array", `[1, 2]`, "job array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePushMessage([]byte(tt.payload))
			checkErrorContains(t, err, tt.want)
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("expected ErrMalformedMessage, got %v", err)
			}
		})
	}
}
