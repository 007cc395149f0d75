// Package notify pushes entitlement events (expiry warnings, limit
// warnings and violations) to connected UI clients over WebSocket. The
// sink is optional: the engine functions correctly without it.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/license"
)

// Event types pushed to clients.
const (
	TypeExpiryWarning  = "license:expiry_warning"
	TypeLimitWarning   = "usage:limit_warning"
	TypeLimitViolation = "usage:limit_violation"
)

// Message is the wire format pushed to clients.
type Message struct {
	Type      string      `json:"type"`
	TenantID  string      `json:"tenant_id"`
	ModuleKey string      `json:"module_key"`
	Payload   interface{} `json:"payload"`
	At        time.Time   `json:"at"`
}

// Hub maintains the set of active clients and broadcasts entitlement
// events to them. It implements license.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	logger  *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}

	messagesSent atomic.Int64
	dropped      atomic.Int64
}

// NewHub creates a hub. Run must be called before clients connect.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		logger:     logger.With(slog.String("component", "notify.hub")),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
}

// Run processes register/unregister/broadcast events until Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", slog.Int("clients", h.ClientCount()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case payload := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- payload:
					h.messagesSent.Add(1)
				default:
					// A slow client never blocks the engine.
					h.dropped.Add(1)
				}
			}
			h.mu.RUnlock()

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and disconnects all clients.
func (h *Hub) Stop() {
	close(h.quit)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyExpiryWarning implements license.Notifier.
func (h *Hub) NotifyExpiryWarning(_ context.Context, tenantID, moduleKey string, status license.ExpiryStatus) {
	h.push(Message{Type: TypeExpiryWarning, TenantID: tenantID, ModuleKey: moduleKey, Payload: status, At: time.Now()})
}

// NotifyLimitWarning implements license.Notifier.
func (h *Hub) NotifyLimitWarning(_ context.Context, tenantID, moduleKey string, event license.WarningEvent) {
	h.push(Message{Type: TypeLimitWarning, TenantID: tenantID, ModuleKey: moduleKey, Payload: event, At: time.Now()})
}

// NotifyLimitViolation implements license.Notifier.
func (h *Hub) NotifyLimitViolation(_ context.Context, tenantID, moduleKey string, event license.ViolationEvent) {
	h.push(Message{Type: TypeLimitViolation, TenantID: tenantID, ModuleKey: moduleKey, Payload: event, At: time.Now()})
}

func (h *Hub) push(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("failed to marshal notification", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Fire-and-forget: a full queue drops the event.
		h.dropped.Add(1)
	}
}
