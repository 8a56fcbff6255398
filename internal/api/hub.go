package api

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/externos/hubd/internal/logger"
	"github.com/google/uuid"
)

// Envelope wraps every message pushed to websocket clients
type Envelope struct {
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload"`
}

func newEnvelope(kind string, payload interface{}) Envelope {
	return Envelope{
		ID:      uuid.NewString(),
		Type:    kind,
		Time:    time.Now().UTC(),
		Payload: payload,
	}
}

// Hub broadcasts encoded envelopes to connected clients. Slow clients
// miss messages instead of blocking publishers.
type Hub struct {
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}
	buffer    int
}

// NewHub creates a hub whose clients buffer up to buffer messages
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		clients: make(map[chan []byte]struct{}),
		buffer:  buffer,
	}
}

// Publish encodes one event and sends it to every client
func (h *Hub) Publish(kind string, payload interface{}) error {
	data, err := json.Marshal(newEnvelope(kind, payload))
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", kind, err)
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			// Client is slow, drop this event
		}
	}
	return nil
}

func (h *Hub) register() chan []byte {
	ch := make(chan []byte, h.buffer)

	h.clientsMu.Lock()
	h.clients[ch] = struct{}{}
	count := len(h.clients)
	h.clientsMu.Unlock()

	logger.WithComponent("api").Debug().Int("clients", count).Msg("Event client connected")
	return ch
}

func (h *Hub) unregister(ch chan []byte) {
	h.clientsMu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	count := len(h.clients)
	h.clientsMu.Unlock()

	logger.WithComponent("api").Debug().Int("clients", count).Msg("Event client disconnected")
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for ch := range h.clients {
		close(ch)
	}
	h.clients = make(map[chan []byte]struct{})
}
