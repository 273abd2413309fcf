// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

/*
push_client.go - Push Transport WebSocket Client

Dials the cluster's push endpoint and hands every text frame to the
health arbiter. Reconnects, heartbeats and staleness live in the arbiter;
a connection here is single-use and reports its end through OnClose.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/slurmdeck/internal/config"
	"github.com/tomtom215/slurmdeck/internal/logging"
)

// TransportHandler receives events of one push connection.
type TransportHandler interface {
	OnMessage(data []byte)
	// OnClose is called exactly once when the connection ends for any
	// reason, including a local Close.
	OnClose(err error)
}

// Transport is an open push connection.
type Transport interface {
	Send(msg any) error
	Close() error
}

// TransportFactory opens push connections. Open returns once the
// handshake has completed.
type TransportFactory interface {
	Open(ctx context.Context, h TransportHandler) (Transport, error)
}

const (
	pushWriteWait    = 10 * time.Second
	pushMaxFrameSize = 16 << 20
)

// WebSocketTransportFactory dials a gorilla/websocket connection.
type WebSocketTransportFactory struct {
	url    string
	dialer websocket.Dialer
}

var _ TransportFactory = (*WebSocketTransportFactory)(nil)

// NewWebSocketTransportFactory creates a factory for cfg.PushURL.
func NewWebSocketTransportFactory(cfg config.TransportConfig) *WebSocketTransportFactory {
	return &WebSocketTransportFactory{
		url: cfg.PushURL,
		dialer: websocket.Dialer{
			HandshakeTimeout:  cfg.HandshakeTimeout,
			EnableCompression: true,
		},
	}
}

// Open dials the push endpoint and starts the read loop.
func (f *WebSocketTransportFactory) Open(ctx context.Context, h TransportHandler) (Transport, error) {
	logging.Debug().Str("url", f.url).Msg("[push] Connecting")

	conn, resp, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("[push] Failed to close handshake response body")
		}
	}
	conn.SetReadLimit(pushMaxFrameSize)

	c := &wsTransport{conn: conn, closed: make(chan struct{})}
	go c.readLoop(h)

	logging.Info().Str("url", f.url).Msg("[push] Connected")
	return c, nil
}

type wsTransport struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *wsTransport) readLoop(h TransportHandler) {
	var err error
	defer func() {
		_ = c.Close()
		h.OnClose(err)
	}()

	for {
		var msgType int
		var data []byte
		msgType, data, err = c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				err = nil
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logging.Info().Msg("[push] Connection closed by server")
				} else {
					logging.Warn().Err(err).Msg("[push] Read error")
				}
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.OnMessage(data)
	}
}

// Send writes msg as a JSON text frame.
func (c *wsTransport) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode push message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return errTransportClosed
	default:
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(pushWriteWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and tears the connection down. Safe to call
// more than once.
func (c *wsTransport) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		if werr := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			logging.Debug().Err(werr).Msg("[push] Failed to send close message")
		}
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

var errTransportClosed = errors.New("push transport closed")
