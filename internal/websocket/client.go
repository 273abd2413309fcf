// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/slurmdeck/internal/logging"
	"github.com/tomtom215/slurmdeck/internal/metrics"
	"github.com/tomtom215/slurmdeck/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// clientIDCounter hands out monotonically increasing IDs so broadcasts
// iterate clients in a stable order.
var clientIDCounter atomic.Uint64

// Client is a middleman between the websocket connection and the hub
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Message
	// released is closed once the hub has dropped the client.
	released chan struct{}
}

// inboundMessage is a message sent by a viewer. Data is decoded per type.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewClient creates a new Client with a unique ID
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:       clientIDCounter.Add(1),
		hub:      hub,
		conn:     conn,
		send:     make(chan Message, 256),
		released: make(chan struct{}),
	}
}

// ID returns the client's unique identifier
func (c *Client) ID() uint64 {
	return c.id
}

// readPump reads viewer messages until the connection fails, then
// unregisters the client.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.released:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			break
		}

		metrics.WSMessagesReceived.Inc()
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			metrics.WSErrors.WithLabelValues("malformed").Inc()
			logging.Debug().Err(err).Uint64("client_id", c.id).Msg("ignoring malformed viewer message")
			continue
		}
		c.handle(msg)
	}
}

// handle dispatches one viewer message. Every well-formed message counts
// as activity.
func (c *Client) handle(msg inboundMessage) {
	c.hub.fireActivity()

	switch msg.Type {
	case MessageTypePing:
		select {
		case c.send <- Message{Type: MessageTypePong}:
		default:
		}
	case MessageTypeViewJob:
		var key models.JobKey
		if len(msg.Data) > 0 && string(msg.Data) != "null" {
			if err := json.Unmarshal(msg.Data, &key); err != nil {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("ignoring malformed view_job message")
				return
			}
		}
		if key.Hostname == "" && key.JobID == "" {
			c.hub.fireViewJob(nil)
			return
		}
		c.hub.fireViewJob(&key)
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel
				close(c.released)
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Debug().Err(err).Msg("failed to write close message")
				}
				return
			}

			payload, err := MarshalMessage(message)
			if err != nil {
				logging.Error().Err(err).Str("message_type", message.Type).Msg("failed to encode message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				logging.Debug().Err(err).Msg("failed to write message")
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
