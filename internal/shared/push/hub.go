package push

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event is one server-sent event.
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Subscriber is a connected SSE client.
type Subscriber struct {
	ID     string
	UserID string
	Events chan Event
}

// Hub keeps the connected SSE clients and forwards notifications to those
// whose user is a recipient.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Subscriber
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Subscriber),
		logger:  logger,
	}
}

func (h *Hub) Register(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[s.ID] = s
	h.logger.Debug("sse client registered", zap.String("id", s.ID), zap.String("user_id", s.UserID), zap.Int("total", len(h.clients)))
}

func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.clients[id]; ok {
		close(s.Events)
		delete(h.clients, id)
		h.logger.Debug("sse client unregistered", zap.String("id", id), zap.Int("total", len(h.clients)))
	}
}

// SendToUser delivers an event to every connection of the user. Slow
// clients with a full buffer miss the event.
func (h *Hub) SendToUser(userID string, event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, s := range h.clients {
		if s.UserID != userID {
			continue
		}
		select {
		case s.Events <- event:
			sent++
		default:
			h.logger.Warn("sse client buffer full, skipping event", zap.String("id", s.ID))
		}
	}
	return sent
}

// Notify implements Notifier.
func (h *Hub) Notify(_ context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	ev := Event{EventType: n.Kind, Data: string(data)}
	for _, uid := range n.UserIDs {
		h.SendToUser(uid, ev)
	}
	return nil
}
