// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package models

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// JobKey identifies a job across all hosts. The (Hostname, JobID) pair is the
// only invariant key: records from different sources with the same key are the
// same job.
type JobKey struct {
	Hostname string `json:"hostname" validate:"required,clusterhost"`
	JobID    string `json:"job_id" validate:"required,jobid"`
}

// String renders the key as "hostname/jobid".
func (k JobKey) String() string {
	return k.Hostname + "/" + k.JobID
}

// Valid reports whether both halves of the key are present.
func (k JobKey) Valid() bool {
	return k.Hostname != "" && k.JobID != ""
}

// JobRecord is a single job as reported by a host.
//
// Only the identity, state and a handful of commonly displayed fields are
// decoded. Every other field in the payload is kept in Attributes and written
// back unchanged by MarshalJSON, so the record passes through the sync core
// without losing data the dashboard may want.
type JobRecord struct {
	JobID      string     `json:"job_id"`
	Hostname   string     `json:"hostname"`
	State      JobState   `json:"state"`
	RawState   string     `json:"raw_state,omitempty"`
	Name       string     `json:"name,omitempty"`
	User       string     `json:"user,omitempty"`
	Partition  string     `json:"partition,omitempty"`
	SubmitTime *time.Time `json:"submit_time,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`

	// Attributes holds every field not decoded above (runtime, nodes, cpus,
	// memory, exit code, ...), verbatim.
	Attributes map[string]json.RawMessage `json:"-"`
}

// Key returns the record's identity.
func (r *JobRecord) Key() JobKey {
	return JobKey{Hostname: r.Hostname, JobID: r.JobID}
}

// Label returns a short human-readable description used in notifications.
func (r *JobRecord) Label() string {
	if r.Name != "" {
		return fmt.Sprintf("%s (%s)", r.Name, r.JobID)
	}
	return r.JobID
}

// Clone returns a copy that shares no mutable state with r.
func (r *JobRecord) Clone() JobRecord {
	out := *r
	if r.Attributes != nil {
		out.Attributes = make(map[string]json.RawMessage, len(r.Attributes))
		for k, v := range r.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// knownJobFields lists the payload keys decoded into named fields. Aliases
// cover the shapes emitted by different host agents.
var knownJobFields = map[string]struct{}{
	"job_id": {}, "jobId": {}, "id": {},
	"hostname": {}, "host": {},
	"state": {}, "job_state": {}, "raw_state": {},
	"name": {}, "job_name": {},
	"user": {}, "user_name": {},
	"partition":   {},
	"submit_time": {}, "start_time": {}, "end_time": {},
}

// UnmarshalJSON decodes a job payload, normalizing the state and accepting
// job IDs encoded as either JSON strings or numbers.
func (r *JobRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode job record: %w", err)
	}

	var err error
	if r.JobID, err = firstID(fields, "job_id", "jobId", "id"); err != nil {
		return err
	}
	r.Hostname = firstString(fields, "hostname", "host")
	r.Name = firstString(fields, "name", "job_name")
	r.User = firstString(fields, "user", "user_name")
	r.Partition = firstString(fields, "partition")

	raw := firstString(fields, "state", "job_state")
	if raw == "" {
		raw = firstString(fields, "raw_state")
	}
	r.RawState = raw
	r.State = NormalizeState(raw)

	// Times that fail to parse stay in Attributes verbatim.
	opaque := make(map[string]struct{})
	r.SubmitTime = optionalTime(fields, "submit_time", opaque)
	r.StartTime = optionalTime(fields, "start_time", opaque)
	r.EndTime = optionalTime(fields, "end_time", opaque)

	r.Attributes = nil
	for k, v := range fields {
		if _, known := knownJobFields[k]; known {
			if _, keep := opaque[k]; !keep {
				continue
			}
		}
		if r.Attributes == nil {
			r.Attributes = make(map[string]json.RawMessage)
		}
		r.Attributes[k] = v
	}
	return nil
}

// MarshalJSON writes the decoded fields followed by the preserved attributes.
func (r JobRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Attributes)+10)
	for k, v := range r.Attributes {
		out[k] = v
	}
	out["job_id"] = r.JobID
	out["hostname"] = r.Hostname
	out["state"] = r.State
	if r.RawState != "" {
		out["raw_state"] = r.RawState
	}
	if r.Name != "" {
		out["name"] = r.Name
	}
	if r.User != "" {
		out["user"] = r.User
	}
	if r.Partition != "" {
		out["partition"] = r.Partition
	}
	if r.SubmitTime != nil {
		out["submit_time"] = r.SubmitTime
	}
	if r.StartTime != nil {
		out["start_time"] = r.StartTime
	}
	if r.EndTime != nil {
		out["end_time"] = r.EndTime
	}
	return json.Marshal(out)
}

// AttributeKeys returns the preserved attribute names in sorted order.
func (r *JobRecord) AttributeKeys() []string {
	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstString(fields map[string]json.RawMessage, names ...string) string {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// firstID accepts "123", 123 and 123.0; array-job suffixes like "123_4" stay
// strings.
func firstID(fields map[string]json.RawMessage, names ...string) (string, error) {
	for _, name := range names {
		raw, ok := fields[name]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s), nil
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if i, err := n.Int64(); err == nil {
				return strconv.FormatInt(i, 10), nil
			}
			if f, err := n.Float64(); err == nil {
				return strconv.FormatFloat(f, 'f', -1, 64), nil
			}
		}
		return "", fmt.Errorf("decode job record: field %q is neither a string nor a number", name)
	}
	return "", nil
}

// timeLayouts are tried in order. Zone-less layouts, as printed by
// Slurm, are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// optionalTime decodes RFC3339, zone-less ISO 8601 and unix-second times.
// A present value in any other encoding returns nil and is recorded in
// opaque.
func optionalTime(fields map[string]json.RawMessage, name string, opaque map[string]struct{}) *time.Time {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" || s == "Unknown" || s == "N/A" || s == "None" {
			return nil
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return &t
			}
		}
		opaque[name] = struct{}{}
		return nil
	}
	var secs int64
	if err := json.Unmarshal(raw, &secs); err == nil {
		if secs <= 0 {
			return nil
		}
		t := time.Unix(secs, 0).UTC()
		return &t
	}
	opaque[name] = struct{}{}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
