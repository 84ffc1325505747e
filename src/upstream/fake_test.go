package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var errFakeClosed = errors.New("fake: connection closed")

// fakeConn is the client side of an in-memory upstream connection.
type fakeConn struct {
	toClient   chan []byte
	fromClient chan []byte
	closed     chan struct{}
	once       sync.Once
	dialer     *fakeDialer

	mu       sync.Mutex
	received []map[string]interface{}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.toClient:
		return data, nil
	case <-c.closed:
		return nil, errFakeClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	select {
	case c.fromClient <- append([]byte(nil), data...):
		return nil
	case <-c.closed:
		return errFakeClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.dialer.open.Add(-1)
	})
	return nil
}

// push sends a server frame to the client.
func (c *fakeConn) push(v interface{}) {
	var data []byte
	switch t := v.(type) {
	case string:
		data = []byte(t)
	default:
		data, _ = json.Marshal(t)
	}
	select {
	case c.toClient <- data:
	case <-c.closed:
	}
}

func (c *fakeConn) record(msg map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, msg)
}

// find returns the first received frame that has key (and value, if given).
func (c *fakeConn) find(key string, value interface{}) (map[string]interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.received {
		v, ok := m[key]
		if !ok {
			continue
		}
		if value == nil || fmt.Sprint(v) == fmt.Sprint(value) {
			return m, true
		}
	}
	return nil, false
}

func (c *fakeConn) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.received {
		if _, ok := m[key]; ok {
			n++
		}
	}
	return n
}

// -----------------------------------------------------------------------------

// serve answers authorize and portfolio requests like the brokerage would.
func (c *fakeConn) serve() {
	for {
		var data []byte
		select {
		case data = <-c.fromClient:
		case <-c.closed:
			return
		}
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.record(msg)
		reqID := msg["req_id"]

		switch {
		case msg["authorize"] != nil:
			if c.dialer.rejectAuth.Load() {
				c.push(map[string]interface{}{
					"msg_type": "authorize", "req_id": reqID,
					"error": map[string]string{"code": "InvalidToken", "message": "The token is invalid."},
				})
				continue
			}
			login := "VRTC-" + strings.TrimPrefix(fmt.Sprint(msg["authorize"]), "tok")
			c.push(map[string]interface{}{
				"msg_type": "authorize", "req_id": reqID,
				"authorize": map[string]interface{}{
					"loginid": login, "balance": 10000, "currency": "USD", "fullname": "Demo User", "is_virtual": 1,
					"account_list": []map[string]interface{}{{"loginid": login, "currency": "USD", "is_virtual": 1}},
				},
			})
		case msg["portfolio"] != nil:
			c.push(map[string]interface{}{
				"msg_type": "portfolio", "req_id": reqID,
				"portfolio": map[string]interface{}{"contracts": c.dialer.portfolio()},
			})
		}
	}
}

// -----------------------------------------------------------------------------

type fakeDialer struct {
	dialed     chan *fakeConn
	open       atomic.Int32
	maxOpen    atomic.Int32
	dials      atomic.Int32
	failNext   atomic.Int32
	rejectAuth atomic.Bool

	mu        sync.Mutex
	contracts []map[string]interface{}
	urls      []string
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.dials.Add(1)
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()
	if d.failNext.Load() > 0 {
		d.failNext.Add(-1)
		return nil, errors.New("fake: connection refused")
	}

	n := d.open.Add(1)
	for {
		max := d.maxOpen.Load()
		if n <= max || d.maxOpen.CompareAndSwap(max, n) {
			break
		}
	}
	c := &fakeConn{
		toClient:   make(chan []byte, 64),
		fromClient: make(chan []byte, 256),
		closed:     make(chan struct{}),
		dialer:     d,
	}
	go c.serve()
	d.dialed <- c
	return c, nil
}

func (d *fakeDialer) dialedURLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *fakeDialer) portfolio() []map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.contracts == nil {
		return []map[string]interface{}{}
	}
	return d.contracts
}

func (d *fakeDialer) next(timeout time.Duration) *fakeConn {
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(timeout):
		return nil
	}
}
