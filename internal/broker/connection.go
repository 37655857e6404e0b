package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxEnvelopeBytes is the Envelope Validator's serialized-size bound
	// (spec 4.F / 5): 64 KiB. Oversized envelopes are dropped in place by
	// ValidateEnvelope, not by the transport.
	maxEnvelopeBytes = 65536

	// transportReadLimit is gorilla/websocket's frame size ceiling. It
	// must sit well above maxEnvelopeBytes: SetReadLimit makes
	// ReadMessage fail (and tear down the connection) the instant a
	// frame exceeds it, before ValidateEnvelope ever sees the bytes. A
	// generous margin lets an oversized-but-not-absurd envelope (e.g. a
	// too-large SDP blob) reach ValidateEnvelope and be dropped silently
	// per spec 4.F/7 instead of disconnecting the sender; it still bounds
	// how much a single frame can force the server to buffer.
	transportReadLimit = 1 << 20 // 1 MiB
)

// Connection is one live socket: transport plumbing plus the identity and
// at-most-one-room/broadcast bookkeeping spec 4.K requires. Generalized
// from the teacher's websocket.Client, minus the post-connect "auth"
// message path: identity is resolved once at handshake time by the
// caller and passed into NewConnection.
type Connection struct {
	ID       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	logger   *slog.Logger

	mu               sync.RWMutex
	authenticated    bool
	userID           *uuid.UUID
	username         string
	currentRoomID    string
	currentBroadcast string
}

func NewConnection(id string, hub *Hub, conn *websocket.Conn, logger *slog.Logger, authenticated bool, userID *uuid.UUID, username string) *Connection {
	return &Connection{
		ID:            id,
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		logger:        logger,
		authenticated: authenticated,
		userID:        userID,
		username:      username,
	}
}

func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Connection) UserID() *uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Connection) CurrentRoom() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentRoomID
}

func (c *Connection) SetCurrentRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentRoomID = roomID
}

func (c *Connection) CurrentBroadcast() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentBroadcast
}

func (c *Connection) SetCurrentBroadcast(broadcastID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentBroadcast = broadcastID
}

// ReadPump pumps frames from the socket to the hub dispatcher.
func (c *Connection) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.HandleDisconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(transportReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("socket read error", "connection_id", c.ID, "error", err)
			}
			return
		}

		if !ValidateEnvelope(message) {
			// Envelope Validator: silent drop, no error to sender.
			continue
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			continue
		}

		c.hub.Dispatch(c, &env)
	}
}

// WritePump pumps queued envelopes to the socket, one envelope per frame,
// interleaving a ping heartbeat.
func (c *Connection) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send enqueues an envelope for delivery, dropping it silently if the
// connection's outbound buffer is full.
func (c *Connection) Send(event string, payload interface{}) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		c.logger.Error("marshal envelope failed", "event", event, "error", err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("connection send buffer full, dropping message", "connection_id", c.ID, "event", event)
	}
}

// SendRaw enqueues an envelope whose payload is already-marshaled JSON,
// used for relaying pubsub-sourced remote events without a re-marshal
// round trip through a typed payload struct.
func (c *Connection) SendRaw(event string, payload json.RawMessage) {
	env := &Envelope{Event: event, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("connection send buffer full, dropping message", "connection_id", c.ID, "event", event)
	}
}

func (c *Connection) SendError(message string) {
	c.Send(EventErrorMessage, ErrorMessagePayload{Message: message})
}

// ValidateEnvelope implements the Envelope Validator (spec 4.F): reject
// (by returning false) anything over 64 KiB or that is not well-formed
// JSON. Any JSON value passes here; a non-object is dropped afterwards
// when it fails to decode as an Envelope. Deeper per-event validation
// lives in the relay handlers that know each payload's shape.
func ValidateEnvelope(raw []byte) bool {
	if len(raw) > maxEnvelopeBytes {
		return false
	}
	return json.Valid(raw)
}
