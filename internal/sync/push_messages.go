// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/slurmdeck/internal/models"
)

// Push message types.
const (
	MsgInitial     = "initial"
	MsgJobUpdate   = "job_update"
	MsgStateChange = "state_change"
	MsgBatchUpdate = "batch_update"
	MsgPong        = "pong"
	MsgPing        = "ping"
)

// ErrMalformedMessage wraps every push payload parse failure.
var ErrMalformedMessage = errors.New("malformed push message")

// PushMessage is a decoded push payload.
type PushMessage struct {
	Type string

	// Snapshot is set for initial snapshots: every listed host is
	// authoritative, including hosts with an empty job list.
	Snapshot map[string][]models.JobRecord

	// Records holds the jobs of single and batch updates.
	Records []models.JobRecord

	// Timestamp is the producer time when the payload carries one.
	Timestamp time.Time
}

// pingMessage is sent by the heartbeat.
type pingMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type pushEnvelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp,omitempty"`
	Hostname  string          `json:"hostname,omitempty"`
	Jobs      json.RawMessage `json:"jobs,omitempty"`
	Job       json.RawMessage `json:"job,omitempty"`

	// Updates holds {job_id, hostname, job} elements.
	Updates []json.RawMessage `json:"updates,omitempty"`
}

// ParsePushMessage decodes a push payload. Besides the typed messages it
// accepts a bare array of jobs (treated as a batch update) and an untyped
// {jobs, hostname?} object (treated as an initial snapshot).
func ParsePushMessage(data []byte) (*PushMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}

	if trimmed[0] == '[' {
		var records []models.JobRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: job array: %v", ErrMalformedMessage, err)
		}
		return &PushMessage{Type: MsgBatchUpdate, Records: records}, nil
	}

	var env pushEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	msg := &PushMessage{Type: env.Type, Timestamp: parseTimestamp(env.Timestamp)}

	switch env.Type {
	case MsgInitial:
		snapshot, err := decodeSnapshot(env.Jobs, env.Hostname)
		if err != nil {
			return nil, err
		}
		msg.Snapshot = snapshot

	case "":
		if len(env.Jobs) == 0 {
			return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
		}
		snapshot, err := decodeSnapshot(env.Jobs, env.Hostname)
		if err != nil {
			return nil, err
		}
		msg.Type = MsgInitial
		msg.Snapshot = snapshot

	case MsgJobUpdate, MsgStateChange:
		rec, err := decodeJobEnvelope(trimmed, env.Job)
		if err != nil {
			return nil, err
		}
		msg.Records = []models.JobRecord{rec}

	case MsgBatchUpdate:
		for i, u := range env.Updates {
			var inner struct {
				Job json.RawMessage `json:"job"`
			}
			if err := json.Unmarshal(u, &inner); err != nil {
				return nil, fmt.Errorf("%w: update %d: %v", ErrMalformedMessage, i, err)
			}
			rec, err := decodeJobEnvelope(u, inner.Job)
			if err != nil {
				return nil, fmt.Errorf("update %d: %w", i, err)
			}
			msg.Records = append(msg.Records, rec)
		}

	case MsgPong, MsgPing:

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}
	return msg, nil
}

// decodeSnapshot accepts {host: [jobs]} or a flat [jobs] list whose hosts
// come from each record or from fallbackHost.
func decodeSnapshot(raw json.RawMessage, fallbackHost string) (map[string][]models.JobRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: snapshot without jobs", ErrMalformedMessage)
	}

	snapshot := make(map[string][]models.JobRecord)
	if raw[0] == '{' {
		var byHost map[string][]models.JobRecord
		if err := json.Unmarshal(raw, &byHost); err != nil {
			return nil, fmt.Errorf("%w: snapshot: %v", ErrMalformedMessage, err)
		}
		for host, records := range byHost {
			host = strings.TrimSpace(host)
			for i := range records {
				if records[i].Hostname == "" {
					records[i].Hostname = host
				}
			}
			snapshot[host] = append(snapshot[host], records...)
		}
		return snapshot, nil
	}

	var records []models.JobRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", ErrMalformedMessage, err)
	}
	if fallbackHost != "" {
		snapshot[fallbackHost] = nil
	}
	for _, rec := range records {
		if rec.Hostname == "" {
			rec.Hostname = fallbackHost
		}
		snapshot[rec.Hostname] = append(snapshot[rec.Hostname], rec)
	}
	return snapshot, nil
}

// decodeJobEnvelope reads the record in job and fills a missing identity
// from the enclosing {job_id, hostname} object.
func decodeJobEnvelope(envelope []byte, job json.RawMessage) (models.JobRecord, error) {
	var ident models.JobRecord
	if err := json.Unmarshal(envelope, &ident); err != nil {
		return models.JobRecord{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if len(bytes.TrimSpace(job)) == 0 || bytes.Equal(bytes.TrimSpace(job), []byte("null")) {
		return models.JobRecord{}, fmt.Errorf("%w: update without job", ErrMalformedMessage)
	}
	var rec models.JobRecord
	if err := json.Unmarshal(job, &rec); err != nil {
		return models.JobRecord{}, fmt.Errorf("%w: job: %v", ErrMalformedMessage, err)
	}
	if rec.JobID == "" {
		rec.JobID = ident.JobID
	}
	if rec.Hostname == "" {
		rec.Hostname = ident.Hostname
	}
	return rec, nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
