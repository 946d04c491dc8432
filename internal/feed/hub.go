package feed

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Envelope is one broadcast frame: a kind tag plus an arbitrary JSON
// payload.
type Envelope struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Hub fans event updates out to dashboard subscribers. Delivery is
// best-effort: a subscriber that cannot keep up is dropped rather than
// allowed to back-pressure the pipeline.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *slog.Logger
}

type subscriber struct {
	send chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		logger: logger.With("component", "feed"),
	}
}

// Broadcast serializes the payload once and queues it to every
// subscriber. Never blocks.
func (h *Hub) Broadcast(kind string, payload any) {
	data, err := json.Marshal(Envelope{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Warn("failed to marshal feed envelope", "kind", kind, "error", err)
		return
	}

	h.mu.RLock()
	stale := make([]*subscriber, 0)
	for sub := range h.subs {
		select {
		case sub.send <- data:
		default:
			stale = append(stale, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range stale {
		h.unsubscribe(sub)
		h.logger.Debug("dropped slow feed subscriber")
	}
}

func (h *Hub) subscribe() *subscriber {
	sub := &subscriber{send: make(chan []byte, 64)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
	h.mu.Unlock()
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
