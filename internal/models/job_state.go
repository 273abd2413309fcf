// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package models

import "strings"

// JobState is the lifecycle category of a job. Cache expiry is keyed on it.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateSuspended JobState = "suspended"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateUnknown   JobState = "unknown"
)

// AllStates lists every category in display order.
var AllStates = []JobState{
	StateRunning,
	StatePending,
	StateSuspended,
	StateFailed,
	StateCompleted,
	StateUnknown,
}

// slurmStates maps squeue/sacct codes, short and long, to categories.
// COMPLETING is still running from the user's point of view.
var slurmStates = map[string]JobState{
	"PD": StatePending, "PENDING": StatePending,
	"CF": StatePending, "CONFIGURING": StatePending,
	"RQ": StatePending, "REQUEUED": StatePending,
	"RH": StatePending, "REQUEUE_HOLD": StatePending,
	"RF": StatePending, "REQUEUE_FED": StatePending,

	"R": StateRunning, "RUNNING": StateRunning,
	"CG": StateRunning, "COMPLETING": StateRunning,
	"SO": StateRunning, "STAGE_OUT": StateRunning,
	"RS": StateRunning, "RESIZING": StateRunning,
	"SI": StateRunning, "SIGNALING": StateRunning,

	"S": StateSuspended, "SUSPENDED": StateSuspended,
	"ST": StateSuspended, "STOPPED": StateSuspended,
	"RD": StateSuspended, "RESV_DEL_HOLD": StateSuspended,

	"CD": StateCompleted, "COMPLETED": StateCompleted,

	"F": StateFailed, "FAILED": StateFailed,
	"CA": StateFailed, "CANCELLED": StateFailed,
	"TO": StateFailed, "TIMEOUT": StateFailed,
	"NF": StateFailed, "NODE_FAIL": StateFailed,
	"OOM": StateFailed, "OUT_OF_MEMORY": StateFailed,
	"PR": StateFailed, "PREEMPTED": StateFailed,
	"BF": StateFailed, "BOOT_FAIL": StateFailed,
	"DL": StateFailed, "DEADLINE": StateFailed,
	"RV": StateFailed, "REVOKED": StateFailed,
	"SE": StateFailed, "SPECIAL_EXIT": StateFailed,
}

// NormalizeState maps a raw scheduler state (or an already-normalized
// category name) to a JobState. Slurm sometimes appends qualifiers such as
// "CANCELLED by 1000"; only the first word is considered.
func NormalizeState(raw string) JobState {
	s := strings.TrimSpace(raw)
	if s == "" {
		return StateUnknown
	}
	if i := strings.IndexAny(s, " +"); i > 0 {
		s = s[:i]
	}

	switch JobState(strings.ToLower(s)) {
	case StatePending, StateRunning, StateSuspended, StateCompleted, StateFailed, StateUnknown:
		return JobState(strings.ToLower(s))
	}

	if st, ok := slurmStates[strings.ToUpper(s)]; ok {
		return st
	}
	return StateUnknown
}

// Terminal reports whether the job has finished, successfully or not.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Valid reports whether s is one of the known categories.
func (s JobState) Valid() bool {
	switch s {
	case StatePending, StateRunning, StateSuspended, StateCompleted, StateFailed, StateUnknown:
		return true
	}
	return false
}
