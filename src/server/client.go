package server

import (
	"context"
	"sync"
	"time"

	"trading-relay/src/codec"
	"trading-relay/src/hub"
	"trading-relay/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client pumps one hub handle onto one websocket.
type Client struct {
	srv    *RelayServer
	conn   *websocket.Conn
	handle *hub.ClientHandle

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newClient(s *RelayServer, conn *websocket.Conn, handle *hub.ClientHandle) *Client {
	ctx, cancel := context.WithCancel(s.ctx)
	return &Client{srv: s, conn: conn, handle: handle, ctx: ctx, cancel: cancel}
}

// owner is the subscription owner key for this client.
func (c *Client) owner() string {
	return "client:" + c.handle.ID
}

// release drops the hub handle and every symbol this client held.
func (c *Client) release() {
	c.once.Do(func() {
		c.cancel()
		c.srv.hub.Unsubscribe(c.handle)
		c.srv.link.ReleaseOwner(c.owner())
		c.conn.Close()
		c.srv.Logger.Info("Client %s disconnected", c.handle.ID)
	})
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer c.release()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.srv.Logger.Info("WebSocket error: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.srv.HandleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	batches := make(chan []models.MEvent)
	go func() {
		defer close(batches)
		for {
			batch, err := c.handle.Receive(c.ctx)
			if err != nil {
				return
			}
			select {
			case batches <- batch:
			case <-c.ctx.Done():
				return
			}
		}
	}()

	interval := c.srv.Config.PingInterval()
	if interval <= 0 {
		interval = pingPeriod
	}
	ticker := time.NewTicker(pingPeriod)
	keepalive := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		keepalive.Stop()
		c.release()
	}()

	for {
		select {
		case batch, ok := <-batches:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			for _, evt := range batch {
				if err := c.writeEvent(evt); err != nil {
					c.srv.Logger.Info("Write error: %v", err)
					return
				}
			}

		case <-keepalive.C:
			if err := c.writeEvent(models.MEvent{Type: models.EventPing}); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeEvent(evt models.MEvent) error {
	data, err := codec.EncodeEvent(evt)
	if err != nil {
		c.srv.Logger.Debug("skipping event: %v", err)
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
