// Package realtime implements the Realtime Event Fabric: authenticated
// per-user websocket rooms, fed by a cross-instance Redis pub/sub bus so
// a cluster of API processes behaves like one socket server.
package realtime

import (
	"context"
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
	sendBuffer = 32
)

// Conn is one authenticated socket belonging to a user.
type Conn struct {
	userID string
	ws     *websocket.Conn
	send   chan Message
}

// Hub tracks every locally-connected socket, keyed by user, and
// delivers messages at most once per connection: a send that can't keep
// up with its buffer drops the connection rather than blocking the
// publisher or queuing unbounded memory.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{}
	bus   *Bus
}

// NewHub creates a Hub. bus may be nil for a single-instance deployment,
// in which case Emit only reaches locally-connected sockets.
func NewHub(bus *Bus) *Hub {
	return &Hub{
		conns: make(map[string]map[*Conn]struct{}),
		bus:   bus,
	}
}

// Start wires the cross-instance bus into this Hub's local delivery, if
// a bus was configured.
func (h *Hub) Start(ctx context.Context) error {
	if h.bus == nil {
		return nil
	}
	return h.bus.StartForwarder(ctx, h.deliverLocal)
}

// Register upgrades an authenticated connection into the hub and starts
// its read/write pumps. Callers must already have verified userID via
// the bearer-token handshake before calling this.
func (h *Hub) Register(ws *websocket.Conn, userID string) *Conn {
	c := &Conn{userID: userID, ws: ws, send: make(chan Message, sendBuffer)}

	h.mu.Lock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*Conn]struct{})
	}
	wasOffline := len(h.conns[userID]) == 0
	h.conns[userID][c] = struct{}{}
	h.mu.Unlock()

	if wasOffline {
		h.broadcastPresence(EventUserOnline, userID)
	}

	go h.writePump(c)
	go h.readPump(c)

	return c
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	set, ok := h.conns[c.userID]
	stillOnline := true
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.userID)
			stillOnline = false
		}
	}
	h.mu.Unlock()
	close(c.send)
	_ = c.ws.Close()

	if !stillOnline {
		h.broadcastPresence(EventUserOffline, c.userID)
	}
}

func (h *Hub) readPump(c *Conn) {
	defer h.unregister(c)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// Clients never send application messages on this socket; reads
		// only exist to detect disconnect and process control frames.
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliverLocal writes a message (originating locally or forwarded from
// another instance) to every socket this instance holds for its user.
func (h *Hub) deliverLocal(msg Message) {
	h.mu.RLock()
	conns := h.conns[msg.UserID]
	targets := make([]*Conn, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- msg:
		default:
			// Slow consumer: drop the connection rather than block
			// delivery to every other user.
			go h.unregister(c)
		}
	}
}

// Emit publishes msg on the bus, whose forwarder (see Start) delivers it
// to this instance's connections for userID as well as every other
// instance's. Without a bus, or when publishing fails, it delivers to the
// local connections directly.
func (h *Hub) Emit(ctx context.Context, userID string, eventType string, payload interface{}) {
	msg := Message{Type: eventType, UserID: userID, Payload: payload, Timestamp: time.Now()}
	if h.bus == nil {
		h.deliverLocal(msg)
		return
	}
	if err := h.bus.Publish(ctx, msg); err != nil {
		slog.Error("publish realtime event", "error", err, "event_type", eventType)
		h.deliverLocal(msg)
	}
}

func (h *Hub) broadcastPresence(eventType, userID string) {
	h.Emit(context.Background(), userID, eventType, PresencePayload{UserID: userID})
}

// IsOnline reports whether userID has at least one live connection on
// this instance. It does not reflect presence on other instances.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// Disconnect force-closes every local connection for userID.
func (h *Hub) Disconnect(userID string) {
	h.mu.RLock()
	conns := h.conns[userID]
	targets := make([]*Conn, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.unregister(c)
	}
}

// EmitGenerationProgress satisfies worker.ProgressNotifier.
func (h *Hub) EmitGenerationProgress(userID, generationID string, percent int) {
	h.Emit(context.Background(), userID, EventGenerationProgress, GenerationProgressPayload{
		GenerationID: generationID, Percent: percent,
	})
}

// EmitGenerationCompleted satisfies worker.ProgressNotifier.
func (h *Hub) EmitGenerationCompleted(userID, generationID string, outputURLs []string) {
	h.Emit(context.Background(), userID, EventGenerationCompleted, GenerationCompletedPayload{
		GenerationID: generationID, OutputURLs: outputURLs,
	})
}

// EmitGenerationFailed satisfies worker.ProgressNotifier.
func (h *Hub) EmitGenerationFailed(userID, generationID, reason string) {
	h.Emit(context.Background(), userID, EventGenerationFailed, GenerationFailedPayload{
		GenerationID: generationID, Reason: reason,
	})
}

// EmitBalanceUpdated satisfies services.BalanceNotifier.
func (h *Hub) EmitBalanceUpdated(userID uuid.UUID, balance int64) {
	h.Emit(context.Background(), userID.String(), EventTokensBalanceUpdate, BalanceUpdatedPayload{Balance: balance})
}
