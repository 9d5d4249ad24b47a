package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Disconnect a client that has not acknowledged a keepalive within this
	pongWait = 60 * time.Second

	// Keepalive interval. Kept short so intermediary proxies never see the
	// stream as idle.
	pingPeriod = 25 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 1024
)

// Client represents one subscribed lobby connection. A connection is
// scoped to a single challenge; clients open one per lobby they watch.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	userID      uint
	challengeID uint
}

// readPump discards inbound frames and enforces the keepalive deadline.
// The lobby stream is server-push only; commands arrive over HTTP.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("lobby stream closed",
					zap.Uint("user_id", c.userID),
					zap.Uint("challenge_id", c.challengeID),
					zap.Error(err))
			}
			break
		}
	}
}

// writePump pumps events from the hub to the websocket connection and
// sends keepalive pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
