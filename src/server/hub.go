package server

import (
	"net/http"

	"trading-relay/src/codec"
	"trading-relay/src/helpers"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *RelayServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s, conn, s.hub.Subscribe())
	s.Logger.Info("Client %s connected from %s", client.handle.ID, c.ClientIP())

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage applies a subscribe/unsubscribe command. Malformed
// frames close the connection; unknown commands are ignored.
func (s *RelayServer) HandleClientMessage(client *Client, message []byte) {
	cmd, err := codec.DecodeCommand(message)
	if err != nil {
		if helpers.KindOf(err) == helpers.KindDecode {
			s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
			client.conn.Close()
			return
		}
		s.Logger.Debug("client %s: %v", client.handle.ID, err)
		return
	}

	switch cmd.Command {
	case "subscribe":
		for _, sym := range cmd.Symbols {
			s.link.Subscribe(client.owner(), sym)
		}
		s.Logger.Debug("client %s subscribed to %v", client.handle.ID, cmd.Symbols)
	case "unsubscribe":
		for _, sym := range cmd.Symbols {
			s.link.Unsubscribe(client.owner(), sym)
		}
		s.Logger.Debug("client %s unsubscribed from %v", client.handle.ID, cmd.Symbols)
	}
}
