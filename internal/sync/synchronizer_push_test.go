// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/slurmdeck/internal/metrics"
	"github.com/tomtom215/slurmdeck/internal/models"
)

func TestSynchronizer_PushSnapshotSkipsInitialPull(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withPush())
	h.api.setHost("h1", job("h1", "1", models.StateRunning))
	h.start(t)

	st := h.s.ConnectionStatus()
	checkStringEqual(t, "transport", string(st.State), string(TransportHealthy))
	checkFalse(t, "polling", st.Polling)

	h.push.last().deliver(`{"type":"initial","jobs":{"h1":[{"job_id":"1","state":"R"}]}}`)
	checkTrue(t, "initial data received", h.s.ConnectionStatus().InitialDataReceived)

	view, ok := h.s.Job(key("h1", "1"))
	checkTrue(t, "snapshot applied immediately", ok)
	checkStringEqual(t, "source", string(view.Source), string(models.SourcePush))

	h.advance(500 * time.Millisecond)
	checkIntEqual(t, "roster fetches", h.api.rosterCount(), 0)
}

func TestSynchronizer_GraceExpiryRunsPull(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withPush())
	h.api.setHost("h1", job("h1", "1", models.StateRunning))
	h.start(t)

	h.advance(499 * time.Millisecond)
	checkIntEqual(t, "roster fetches before grace", h.api.rosterCount(), 0)

	h.advance(time.Millisecond)
	checkIntEqual(t, "roster fetches after grace", h.api.rosterCount(), 1)
	h.flush()

	view, ok := h.s.Job(key("h1", "1"))
	checkTrue(t, "pulled job cached", ok)
	checkStringEqual(t, "source", string(view.Source), string(models.SourcePull))
}

func TestSynchronizer_PushSnapshotSupersedesHost(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withPush())
	h.api.setHost("h1", job("h1", "1", models.StateRunning), job("h1", "2", models.StateRunning))
	h.api.setHost("h2", job("h2", "1", models.StateRunning))
	h.start(t)
	h.advance(500 * time.Millisecond)
	h.flush()
	checkIntEqual(t, "seeded", len(h.s.AllJobs()), 3)
	k := key("h1", "1")
	checkNoError(t, h.s.SetJobOutput(k, models.OutputSnapshot{Content: "tail"}))

	h.push.last().deliver(`{"type":"initial","jobs":{"h1":[{"job_id":"1","state":"R"}]}}`)

	_, ok := h.s.Job(key("h1", "2"))
	checkFalse(t, "job missing from snapshot evicted", ok)
	_, ok = h.s.Job(key("h2", "1"))
	checkTrue(t, "host outside snapshot untouched", ok)

	view, _ := h.s.Job(k)
	checkStringEqual(t, "source", string(view.Source), string(models.SourcePush))
	checkTrue(t, "output kept", view.Output != nil)

	created, _, _ := h.notifier.counts()
	checkIntEqual(t, "no new-job notifications for known jobs", created, 3)

	evictions := h.events.byReason("evict")
	checkIntEqual(t, "evict events", len(evictions), 1)
	checkStringEqual(t, "evicted", evictions[0].Removed[0].String(), "h1/2")
}

func TestSynchronizer_PushSnapshotReplacesNewerEntry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withPush())
	h.start(t)

	live := job("h1", "1", models.StateRunning)
	live.Name = "live"
	h.s.Ingest([]PendingUpdate{update(live, models.SourcePush, h.clock.Now().Add(time.Hour), models.PriorityHigh)}, true)
	checkNoError(t, h.s.SetJobOutput(live.Key(), models.OutputSnapshot{Content: "tail"}))

	h.push.last().deliver(`{"type":"initial","jobs":{"h1":[{"job_id":"1","state":"R","name":"snap"}]}}`)

	view, ok := h.s.Job(live.Key())
	checkTrue(t, "cached", ok)
	checkStringEqual(t, "name", view.Job.Name, "snap")
	checkTrue(t, "output kept", view.Output != nil)
	checkStringEqual(t, "output", view.Output.Content, "tail")
}

func TestSynchronizer_PushSnapshotShortCircuitsHostSync(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withPush())
	h.api.setHost("h2", job("h2", "1", models.StateRunning))
	h.start(t)

	h.push.last().deliver(`{"type":"initial","jobs":{"h2":[{"job_id":"1","state":"R"}]}}`)

	before := testutil.ToFloat64(metrics.HostSyncSkipped.WithLabelValues("push_snapshot"))
	checkNoError(t, h.s.SyncHost(context.Background(), "h2", false))
	checkIntEqual(t, "skipped fetch", h.api.callCount("h2"), 0)
	checkTrue(t, "skip recorded", testutil.ToFloat64(metrics.HostSyncSkipped.WithLabelValues("push_snapshot")) > before)

	checkNoError(t, h.s.SyncHost(context.Background(), "h2", true))
	checkIntEqual(t, "forced fetch", h.api.callCount("h2"), 1)
}

func TestSynchronizer_ViewedJobMergesImmediately(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withPush())
	h.start(t)
	conn := h.push.last()

	viewed := key("h1", "5")
	checkNoError(t, h.s.SetCurrentViewJob(&viewed))

	conn.deliver(`{"type":"job_update","job_id":"5","hostname":"h1","job":{"state":"R"}}`)
	conn.deliver(`{"type":"state_change","job_id":"6","hostname":"h1","job":{"state":"R"}}`)

	_, ok := h.s.Job(viewed)
	checkTrue(t, "viewed job merged without delay", ok)
	_, ok = h.s.Job(key("h1", "6"))
	checkFalse(t, "other job merged without delay", ok)

	h.flush()
	_, ok = h.s.Job(key("h1", "6"))
	checkTrue(t, "other job merged after batch delay", ok)
}

func TestSynchronizer_BatchUpdateMessage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withPush())
	h.start(t)

	h.push.last().deliver(`{"type":"batch_update","timestamp":"2026-03-02T12:00:00Z","updates":[
		{"job_id":"1","hostname":"h1","job":{"state":"PD"}},
		{"job_id":"2","hostname":"h1","job":{"state":"R"}},
		{"job_id":"3","hostname":"h2","job":{"state":"CD"}}
	]}`)
	h.flush()

	checkIntEqual(t, "entries", len(h.s.AllJobs()), 3)
	view, _ := h.s.Job(key("h2", "3"))
	checkTrue(t, "ingestion time recorded", view.LastUpdated.Equal(testEpoch.Add(100*time.Millisecond)))
	checkStringEqual(t, "state", string(view.Job.State), string(models.StateCompleted))
}

func TestSynchronizer_MalformedPushDropped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withPush())
	h.start(t)

	h.push.last().deliver(`{"type":"reboot"}`)
	h.push.last().deliver(`not json`)
	h.push.last().deliver(`{"type":"job_update","job":{"state":"R"}}`)
	h.flush()

	m := h.s.Metrics()
	checkIntEqual(t, "dropped", int(m.UpdatesDropped), 3)
	checkIntEqual(t, "entries", m.CacheEntries, 0)
	checkStringEqual(t, "transport still healthy", string(h.s.ConnectionStatus().State), string(TransportHealthy))
}

func TestSynchronizer_TransportLossFallsBackToPolling(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withPush())
	h.api.setHost("h1", job("h1", "1", models.StateRunning))
	h.start(t)
	h.push.last().deliver(`{"type":"initial","jobs":{"h1":[{"job_id":"1","state":"R"}]}}`)

	h.push.last().drop()
	h.s.Wait()

	st := h.s.ConnectionStatus()
	checkStringEqual(t, "state", string(st.State), string(TransportDisconnected))
	checkTrue(t, "polling", st.Polling)
	checkFalse(t, "snapshot voided", st.InitialDataReceived)
	checkIntEqual(t, "fallback poll ran", h.api.rosterCount(), 1)

	h.advance(5 * time.Second)
	checkStringEqual(t, "reconnected", string(h.s.ConnectionStatus().State), string(TransportHealthy))
}

func TestSynchronizer_ManualDisconnectAndConnect(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withPush())
	h.start(t)

	checkNoError(t, h.s.Disconnect())
	h.s.Wait()
	st := h.s.ConnectionStatus()
	checkTrue(t, "manual", st.ManualDisconnect)
	checkTrue(t, "polling", st.Polling)

	h.advance(time.Minute)
	checkIntEqual(t, "no automatic reconnect", h.push.openCount(), 1)

	checkNoError(t, h.s.Connect())
	checkStringEqual(t, "state", string(h.s.ConnectionStatus().State), string(TransportHealthy))
}

func TestSynchronizer_DisconnectWithoutPush(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)

	checkErrorIs(t, h.s.Disconnect(), ErrPushDisabled)
	checkErrorIs(t, h.s.Connect(), ErrPushDisabled)
}

func TestSynchronizer_HandlePushMessageDirect(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start(t)

	before := h.s.Metrics().UpdatesDropped
	h.s.HandlePushMessage([]byte(`{"type": "job_update", "job": `))
	checkIntEqual(t, "dropped", int(h.s.Metrics().UpdatesDropped-before), 1)
	checkIntEqual(t, "nothing cached", len(h.s.AllJobs()), 0)

	h.s.HandlePushMessage([]byte(`{"type": "batch_update", "updates": [
		{"job_id": "1", "hostname": "node01", "job": {"state": "R"}},
		{"job_id": "2", "hostname": "node02", "job": {"state": "S"}}
	]}`))
	h.flush()

	view, ok := h.s.Job(key("node02", "2"))
	checkTrue(t, "batch job cached", ok)
	checkStringEqual(t, "source", string(view.Source), string(models.SourcePush))
	checkStringEqual(t, "state", string(view.Job.State), string(models.StateSuspended))
	checkIntEqual(t, "cached", len(h.s.AllJobs()), 2)
}
