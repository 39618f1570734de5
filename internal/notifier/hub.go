package notifier

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/metrics"
)

const (
	hubClientBufferSize = 64
	hubRecentEvents     = 20
)

// Hub fans scan events out to connected dashboard clients. Slow clients
// miss events instead of holding up the others.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]chan domain.ScanEvent

	recentMu sync.RWMutex
	recent   []domain.ScanEvent
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]chan domain.ScanEvent),
		recent:  make([]domain.ScanEvent, 0, hubRecentEvents),
	}
}

func (h *Hub) Name() string { return "websocket" }

// Subscribe registers a client and returns its id and event channel
func (h *Hub) Subscribe() (string, <-chan domain.ScanEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan domain.ScanEvent, hubClientBufferSize)
	h.clients[id] = ch
	metrics.WebsocketClients.Inc()
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
		metrics.WebsocketClients.Dec()
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Recent returns the last events, oldest first, for clients that just joined
func (h *Hub) Recent() []domain.ScanEvent {
	h.recentMu.RLock()
	defer h.recentMu.RUnlock()
	return append([]domain.ScanEvent(nil), h.recent...)
}

func (h *Hub) Publish(_ context.Context, event domain.ScanEvent) error {
	h.recentMu.Lock()
	if len(h.recent) >= hubRecentEvents {
		h.recent = h.recent[1:]
	}
	h.recent = append(h.recent, event)
	h.recentMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}
