package websocket

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ROFL1ST/kuis-imk-sub000/database"
	"github.com/ROFL1ST/kuis-imk-sub000/models"
	"github.com/ROFL1ST/kuis-imk-sub000/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// HandleLobbyStream subscribes the caller to a challenge's lobby stream.
// The browser EventSource/WebSocket API cannot set headers, so the JWT
// arrives as a query parameter.
func HandleLobbyStream(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}
	userID, err := utils.ParseToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	challengeID64, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid challenge ID"})
		return
	}
	challengeID := uint(challengeID64)

	// Only participants may watch a lobby
	var participant models.Participant
	if err := database.DB.Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		First(&participant).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Challenge not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 64),
		userID:      userID,
		challengeID: challengeID,
	}
	hub.addClient(client)

	// A fresh subscriber immediately gets the full state: late joiners and
	// reconnects never depend on replayed events. The snapshot is read
	// after registration so no mutation committed before subscribe can
	// fall between snapshot and stream.
	snapshot, err := BuildPlayerUpdate(challengeID)
	if err != nil {
		hub.logger.Error("failed to build lobby snapshot", zap.Error(err))
		hub.removeClient(client)
		conn.Close()
		return
	}
	frame, _ := json.Marshal(Event{
		Type:        EventPlayerUpdate,
		ChallengeID: challengeID,
		Payload:     snapshot,
	})
	client.send <- frame

	go client.writePump()
	go client.readPump()
}
