package correlator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"trading-relay/src/codec"
	"trading-relay/src/helpers"
)

// Result is what a pending request completes with.
type Result struct {
	Frame codec.Frame
	Err   error
}

// -----------------------------------------------------------------------------

// Pending is one outstanding request awaiting its reply.
type Pending struct {
	ID       uint64
	Created  time.Time
	Deadline time.Time
	done     chan Result
}

// Wait blocks until the request is resolved, failed or ctx ends.
func (p *Pending) Wait(ctx context.Context) (codec.Frame, error) {
	select {
	case res := <-p.done:
		return res.Frame, res.Err
	case <-ctx.Done():
		return codec.Frame{}, ctx.Err()
	}
}

// Done exposes the completion channel. It delivers exactly one Result.
func (p *Pending) Done() <-chan Result {
	return p.done
}

// -----------------------------------------------------------------------------

// Correlator matches upstream replies to outstanding requests by req_id.
type Correlator struct {
	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]*Pending
	timeout time.Duration
	now     func() time.Time
}

func NewCorrelator(timeout time.Duration, now func() time.Time) *Correlator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Correlator{
		pending: make(map[uint64]*Pending),
		timeout: timeout,
		now:     now,
	}
}

// -----------------------------------------------------------------------------

// Issue allocates a fresh correlation id and registers it.
func (c *Correlator) Issue() (uint64, *Pending) {
	id := c.nextID.Add(1)
	now := c.now()
	p := &Pending{
		ID:       id,
		Created:  now,
		Deadline: now.Add(c.timeout),
		done:     make(chan Result, 1),
	}

	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()
	return id, p
}

// -----------------------------------------------------------------------------

// Resolve completes the matching request with frame. A frame carrying an
// upstream error completes it with that error. Returns false when the id is
// unknown or already completed.
func (c *Correlator) Resolve(id uint64, frame codec.Frame) bool {
	var err error
	if frame.Error != nil {
		err = frame.Error.Err()
	}
	return c.complete(id, Result{Frame: frame, Err: err})
}

// Fail completes the matching request with err.
func (c *Correlator) Fail(id uint64, err error) bool {
	return c.complete(id, Result{Err: err})
}

// Cancel drops a request without completing it, e.g. when the send failed
// and the caller already knows.
func (c *Correlator) Cancel(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Correlator) complete(id uint64, res Result) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	p.done <- res
	return true
}

// -----------------------------------------------------------------------------

// FailAll fails every outstanding request with err, returning how many.
func (c *Correlator) FailAll(err error) int {
	c.mu.Lock()
	victims := c.pending
	c.pending = make(map[uint64]*Pending)
	c.mu.Unlock()

	for _, p := range victims {
		p.done <- Result{Err: err}
	}
	return len(victims)
}

// -----------------------------------------------------------------------------

// TimeoutSweep fails every request whose deadline is not after now.
func (c *Correlator) TimeoutSweep(now time.Time) int {
	c.mu.Lock()
	var expired []*Pending
	for id, p := range c.pending {
		if !p.Deadline.After(now) {
			expired = append(expired, p)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, p := range expired {
		p.done <- Result{Err: helpers.Wrap(helpers.ErrRequestTimeout, "req_id %d", p.ID)}
	}
	return len(expired)
}

// -----------------------------------------------------------------------------

// Outstanding returns the number of pending requests.
func (c *Correlator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Timeout returns the configured request lifetime.
func (c *Correlator) Timeout() time.Duration {
	return c.timeout
}
