package hub

import (
	"sync"

	"trading-relay/src/logger"
	"trading-relay/src/models"
)

// DefaultClientQueue is the per-client outbound queue size.
const DefaultClientQueue = 256

// BootstrapFunc builds the snapshot replayed to a new subscriber.
type BootstrapFunc func() []models.MEvent

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// Hub fans events out to every subscribed client. Publish never blocks; a
// slow client only loses its own oldest events.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*ClientHandle
	queueSize int
	bootstrap BootstrapFunc
	Logger    *logger.Logger
}

func NewHub(queueSize int, bootstrap BootstrapFunc, log *logger.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultClientQueue
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Hub{
		clients:   make(map[string]*ClientHandle),
		queueSize: queueSize,
		bootstrap: bootstrap,
		Logger:    log,
	}
}

// -----------------------------------------------------------------------------

// Subscribe registers a new client. The bootstrap snapshot is taken while
// publishers are held off so no event falls between snapshot and live feed.
func (h *Hub) Subscribe() *ClientHandle {
	h.mu.Lock()
	defer h.mu.Unlock()

	var boot []models.MEvent
	if h.bootstrap != nil {
		boot = h.bootstrap()
	}
	c := newClientHandle(h.queueSize, boot)
	h.clients[c.ID] = c
	h.Logger.Debug("client %s subscribed (%d bootstrap events, %d clients)", c.ID, len(boot), len(h.clients))
	return c
}

// -----------------------------------------------------------------------------

// Unsubscribe removes c and closes it. Safe to call more than once.
func (h *Hub) Unsubscribe(c *ClientHandle) {
	if c == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	remaining := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		h.Logger.Debug("client %s unsubscribed (%d clients, %d dropped)", c.ID, remaining, c.Dropped())
	}
}

// -----------------------------------------------------------------------------

// Publish delivers evt to every subscribed client independently.
func (h *Hub) Publish(evt models.MEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.enqueue(evt) {
			h.Logger.Debug("client %s queue full, dropped oldest event", c.ID)
		}
	}
}

// PublishAfter runs apply and then publishes evt without letting a Subscribe
// in between. Use it when apply writes the state the bootstrap reads, so a
// new client sees the change either in its snapshot or live, never both.
func (h *Hub) PublishAfter(apply func(), evt models.MEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if apply != nil {
		apply()
	}
	for _, c := range h.clients {
		if c.enqueue(evt) {
			h.Logger.Debug("client %s queue full, dropped oldest event", c.ID)
		}
	}
}

// -----------------------------------------------------------------------------

// Count returns the number of subscribed clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*ClientHandle)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
