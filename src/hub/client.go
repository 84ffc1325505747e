package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"trading-relay/src/models"

	"github.com/google/uuid"
)

// ErrClosed is returned by Receive once the handle has been unsubscribed.
var ErrClosed = errors.New("hub: client handle closed")

// -----------------------------------------------------------------------------

// ClientHandle is one downstream subscriber with its own bounded FIFO queue.
// When the queue is full the oldest queued event is dropped.
type ClientHandle struct {
	ID string

	mu        sync.Mutex
	bootstrap []models.MEvent
	queue     []models.MEvent
	capacity  int
	closed    bool

	dropped atomic.Uint64
	notify  chan struct{}
	done    chan struct{}
}

func newClientHandle(capacity int, bootstrap []models.MEvent) *ClientHandle {
	c := &ClientHandle{
		ID:        uuid.NewString(),
		bootstrap: bootstrap,
		queue:     make([]models.MEvent, 0, capacity),
		capacity:  capacity,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	if len(bootstrap) > 0 {
		c.signal()
	}
	return c
}

// -----------------------------------------------------------------------------

// enqueue never blocks. It reports whether an older event was evicted.
func (c *ClientHandle) enqueue(evt models.MEvent) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	evicted := false
	if len(c.queue) >= c.capacity {
		copy(c.queue, c.queue[1:])
		c.queue = c.queue[:len(c.queue)-1]
		c.dropped.Add(1)
		evicted = true
	}
	c.queue = append(c.queue, evt)
	c.mu.Unlock()

	c.signal()
	return evicted
}

func (c *ClientHandle) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// -----------------------------------------------------------------------------

// Receive blocks until at least one event is queued, then drains the queue.
// The bootstrap snapshot is always returned before any live event.
func (c *ClientHandle) Receive(ctx context.Context) ([]models.MEvent, error) {
	for {
		if batch, ok := c.drain(); ok {
			return batch, nil
		}
		select {
		case <-c.notify:
		case <-c.done:
			if batch, ok := c.drain(); ok {
				return batch, nil
			}
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryReceive drains whatever is queued without waiting.
func (c *ClientHandle) TryReceive() []models.MEvent {
	batch, _ := c.drain()
	return batch
}

func (c *ClientHandle) drain() ([]models.MEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bootstrap) == 0 && len(c.queue) == 0 {
		return nil, false
	}
	batch := make([]models.MEvent, 0, len(c.bootstrap)+len(c.queue))
	batch = append(batch, c.bootstrap...)
	batch = append(batch, c.queue...)
	c.bootstrap = nil
	c.queue = c.queue[:0]
	return batch, true
}

// -----------------------------------------------------------------------------

// Done is closed when the handle is unsubscribed.
func (c *ClientHandle) Done() <-chan struct{} {
	return c.done
}

// Dropped reports how many events were evicted from this client's queue.
func (c *ClientHandle) Dropped() uint64 {
	return c.dropped.Load()
}

// Queued reports the number of live events waiting.
func (c *ClientHandle) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *ClientHandle) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
