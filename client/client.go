package client

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// LobbyClient keeps one lobby stream open and folds its events into a
// LobbyView. Reconnect-and-resync is the caller's loop: on any error,
// dial again and the first snapshot restores full state.
type LobbyClient struct {
	conn *websocket.Conn

	mu   sync.RWMutex
	view LobbyView

	// OnChange, when set before Run, is called after every applied event
	OnChange func(LobbyView)
}

// Dial subscribes to a challenge's lobby stream
func Dial(baseURL string, challengeID uint, token string) (*LobbyClient, error) {
	url := fmt.Sprintf("%s/challenges/%d/lobby-stream?token=%s", baseURL, challengeID, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &LobbyClient{conn: conn, view: NewLobbyView()}, nil
}

// Run reads frames until the stream closes. Ping frames are handled by
// the websocket library; every other frame advances the view.
func (c *LobbyClient) Run() error {
	defer c.conn.Close()
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		c.mu.Lock()
		next, err := ApplyEvent(c.view, frame)
		if err != nil {
			c.mu.Unlock()
			continue // skip malformed frames, the next snapshot heals us
		}
		c.view = next
		c.mu.Unlock()

		if c.OnChange != nil {
			c.OnChange(next)
		}
	}
}

// View returns the current lobby view
func (c *LobbyClient) View() LobbyView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Close shuts the stream down
func (c *LobbyClient) Close() error {
	return c.conn.Close()
}
