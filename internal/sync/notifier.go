// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import (
	"time"

	"github.com/tomtom215/slurmdeck/internal/logging"
	"github.com/tomtom215/slurmdeck/internal/metrics"
	"github.com/tomtom215/slurmdeck/internal/models"
)

// Notifier receives user-facing signals. Calls happen synchronously after a
// merge pass or host sync, never while the Synchronizer holds its lock.
type Notifier interface {
	NotifyNewEntity(key models.JobKey, state models.JobState, label string)
	NotifyStateTransition(key models.JobKey, from, to models.JobState)
	NotifySyncTimeout(hostname string)
}

// Observer receives one ChangeEvent per merge pass or eviction.
type Observer interface {
	OnChange(ChangeEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ChangeEvent)

// OnChange calls f(ev).
func (f ObserverFunc) OnChange(ev ChangeEvent) { f(ev) }

// ChangeEvent describes a batch of cache mutations.
type ChangeEvent struct {
	// Reason is "merge", "evict" or "reset".
	Reason  string          `json:"reason"`
	Changed []models.JobKey `json:"changed,omitempty"`
	Removed []models.JobKey `json:"removed,omitempty"`
	Created int             `json:"created"`
	// Transitions counts changed keys whose state differs from before.
	Transitions int       `json:"transitions"`
	At          time.Time `json:"at"`
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct{}

func (LogNotifier) NotifyNewEntity(key models.JobKey, state models.JobState, label string) {
	logging.Debug().Str("job", key.String()).Str("state", string(state)).Str("label", label).Msg("New job observed")
}

func (LogNotifier) NotifyStateTransition(key models.JobKey, from, to models.JobState) {
	logging.Info().Str("job", key.String()).Str("from", string(from)).Str("to", string(to)).Msg("Job state changed")
}

func (LogNotifier) NotifySyncTimeout(hostname string) {
	logging.Warn().Str("hostname", hostname).Msg("Host sync timed out")
}

// MultiNotifier forwards every call to each member in order.
type MultiNotifier []Notifier

func (m MultiNotifier) NotifyNewEntity(key models.JobKey, state models.JobState, label string) {
	for _, n := range m {
		n.NotifyNewEntity(key, state, label)
	}
}

func (m MultiNotifier) NotifyStateTransition(key models.JobKey, from, to models.JobState) {
	for _, n := range m {
		n.NotifyStateTransition(key, from, to)
	}
}

func (m MultiNotifier) NotifySyncTimeout(hostname string) {
	for _, n := range m {
		n.NotifySyncTimeout(hostname)
	}
}

type notificationKind int

const (
	noteNewEntity notificationKind = iota
	noteTransition
	noteTimeout
)

// notification is queued under the lock and delivered after release.
type notification struct {
	kind     notificationKind
	key      models.JobKey
	from, to models.JobState
	label    string
	hostname string
}

func (n notification) deliver(to Notifier) {
	switch n.kind {
	case noteNewEntity:
		metrics.NotificationsDispatched.WithLabelValues("new_job").Inc()
		to.NotifyNewEntity(n.key, n.to, n.label)
	case noteTransition:
		metrics.NotificationsDispatched.WithLabelValues("state_transition").Inc()
		to.NotifyStateTransition(n.key, n.from, n.to)
	case noteTimeout:
		metrics.NotificationsDispatched.WithLabelValues("sync_timeout").Inc()
		to.NotifySyncTimeout(n.hostname)
	}
}
