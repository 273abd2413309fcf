// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/slurmdeck/internal/logging"
	"github.com/tomtom215/slurmdeck/internal/metrics"
	"github.com/tomtom215/slurmdeck/internal/models"
	jobsync "github.com/tomtom215/slurmdeck/internal/sync"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeActivity      = "activity"
	MessageTypeViewJob       = "view_job"
	MessageTypeJobsChanged   = "jobs_changed"
	MessageTypeJobCreated    = "job_created"
	MessageTypeJobTransition = "job_transition"
	MessageTypeSyncTimeout   = "sync_timeout"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of attached dashboard viewers and broadcasts cache
// changes to them. It doubles as the synchronizer's Environment: the
// dashboard is foregrounded while at least one viewer is attached, and every
// inbound viewer message counts as activity.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	cbMu       sync.Mutex
	activity   []func()
	visibility []func(bool)
	viewJob    []func(*models.JobKey)
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until ctx is canceled, then closes every
// attached client and returns ctx.Err(). It is restartable by a supervisor.
//
// Client lifecycle events are drained before broadcasts so the viewer set
// is settled before a message fans out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("dashboard viewer connected")
	if n == 1 {
		h.fireVisibility(true)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	metrics.WSConnections.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("dashboard viewer disconnected")
	if n == 0 {
		h.fireVisibility(false)
	}
}

// logGracefulShutdown closes all clients and logs the shutdown. ctx.Err()
// is not logged as an error since cancellation is the normal path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// sortedClientsLocked returns clients in ID order. Caller holds mu.
func (h *Hub) sortedClientsLocked() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients sends a message to every client in ID order. Clients
// whose send buffer is full are dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	var toRemove []*Client
	for _, client := range h.sortedClientsLocked() {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}
	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
	emptied := len(toRemove) > 0 && len(h.clients) == 0
	n := len(h.clients)
	h.mu.Unlock()

	if len(toRemove) > 0 {
		metrics.WSConnections.Set(float64(n))
		metrics.WSErrors.WithLabelValues("slow_client").Add(float64(len(toRemove)))
		logging.Warn().Int("dropped", len(toRemove)).Msg("dropped slow dashboard viewers")
	}
	if emptied {
		h.fireVisibility(false)
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := h.sortedClientsLocked()
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	metrics.WSConnections.Set(0)
	if len(clients) > 0 {
		h.fireVisibility(false)
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastJSON queues a message for every connected client. The message
// is dropped when the broadcast buffer is full.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_full").Inc()
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// Foreground reports whether any dashboard viewer is attached.
func (h *Hub) Foreground() bool {
	return h.GetClientCount() > 0
}

// OnActivity registers fn to run on every inbound viewer message.
func (h *Hub) OnActivity(fn func()) {
	h.cbMu.Lock()
	defer h.cbMu.Unlock()
	h.activity = append(h.activity, fn)
}

// OnVisibilityChange registers fn to run when the first viewer attaches or
// the last one leaves.
func (h *Hub) OnVisibilityChange(fn func(foreground bool)) {
	h.cbMu.Lock()
	defer h.cbMu.Unlock()
	h.visibility = append(h.visibility, fn)
}

// OnViewJob registers fn to run when a viewer opens or closes a job's
// detail view. A nil key means the view was closed.
func (h *Hub) OnViewJob(fn func(key *models.JobKey)) {
	h.cbMu.Lock()
	defer h.cbMu.Unlock()
	h.viewJob = append(h.viewJob, fn)
}

func (h *Hub) fireActivity() {
	h.cbMu.Lock()
	fns := append([]func(){}, h.activity...)
	h.cbMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *Hub) fireVisibility(foreground bool) {
	h.cbMu.Lock()
	fns := append([]func(bool){}, h.visibility...)
	h.cbMu.Unlock()
	for _, fn := range fns {
		fn(foreground)
	}
}

func (h *Hub) fireViewJob(key *models.JobKey) {
	h.cbMu.Lock()
	fns := append([]func(*models.JobKey){}, h.viewJob...)
	h.cbMu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
}

// OnChange broadcasts a cache change batch.
func (h *Hub) OnChange(ev jobsync.ChangeEvent) {
	h.BroadcastJSON(MessageTypeJobsChanged, ev)
}

// JobCreatedData is sent with job_created messages.
type JobCreatedData struct {
	Hostname string          `json:"hostname"`
	JobID    string          `json:"job_id"`
	State    models.JobState `json:"state"`
	Label    string          `json:"label"`
}

// JobTransitionData is sent with job_transition messages.
type JobTransitionData struct {
	Hostname string          `json:"hostname"`
	JobID    string          `json:"job_id"`
	From     models.JobState `json:"from"`
	To       models.JobState `json:"to"`
}

// SyncTimeoutData is sent with sync_timeout messages.
type SyncTimeoutData struct {
	Hostname  string `json:"hostname"`
	Timestamp string `json:"timestamp"`
}

// NotifyNewEntity broadcasts a newly observed job.
func (h *Hub) NotifyNewEntity(key models.JobKey, state models.JobState, label string) {
	h.BroadcastJSON(MessageTypeJobCreated, JobCreatedData{
		Hostname: key.Hostname,
		JobID:    key.JobID,
		State:    state,
		Label:    label,
	})
}

// NotifyStateTransition broadcasts a job state change.
func (h *Hub) NotifyStateTransition(key models.JobKey, from, to models.JobState) {
	h.BroadcastJSON(MessageTypeJobTransition, JobTransitionData{
		Hostname: key.Hostname,
		JobID:    key.JobID,
		From:     from,
		To:       to,
	})
}

// NotifySyncTimeout broadcasts a host that failed to answer in time.
func (h *Hub) NotifySyncTimeout(hostname string) {
	h.BroadcastJSON(MessageTypeSyncTimeout, SyncTimeoutData{
		Hostname:  hostname,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

var (
	_ jobsync.Environment = (*Hub)(nil)
	_ jobsync.Notifier    = (*Hub)(nil)
	_ jobsync.Observer    = (*Hub)(nil)
)
