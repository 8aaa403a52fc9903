package engine

import (
	"sync"

	"github.com/rxtech-lab/nsplit-trading/internal/metrics"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
)

// hub fans committed events out to subscribers without ever blocking the publisher.
type hub struct {
	mu      sync.Mutex
	next    int
	subs    map[int]chan types.Event
	buffer  int
	metrics *metrics.Metrics
}

func newHub(buffer int, m *metrics.Metrics) *hub {
	return &hub{
		mu:      sync.Mutex{},
		next:    0,
		subs:    map[int]chan types.Event{},
		buffer:  buffer,
		metrics: m,
	}
}

func (h *hub) subscribe() (<-chan types.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan types.Event, h.buffer)
	h.subs[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			delete(h.subs, id)
			close(ch)
		})
	}
}

func (h *hub) publish(event types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.metrics.StreamDropped.Inc()
		}
	}
}
