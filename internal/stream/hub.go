// Package stream fans detected anomaly events out to connected websocket
// subscribers.
package stream

import (
	"sync"

	"github.com/wattwise/backend/internal/metrics"
	"github.com/wattwise/backend/internal/storage/models"
)

const subscriberBuffer = 16

type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan *models.AnomalyEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan *models.AnomalyEvent]struct{}),
	}
}

// Subscribe registers a new listener. The returned cancel func must be called
// when the listener goes away.
func (h *Hub) Subscribe() (<-chan *models.AnomalyEvent, func()) {
	ch := make(chan *models.AnomalyEvent, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	metrics.StreamSubscribers.Inc()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
			metrics.StreamSubscribers.Dec()
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// Publish delivers an event to every subscriber. Slow subscribers drop events
// rather than block the detector.
func (h *Hub) Publish(event *models.AnomalyEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
