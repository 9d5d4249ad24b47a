package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// disconnectGrace is how long every connection a user had to a challenge
// may stay gone before the absence handler runs. Long enough to ride out a
// page refresh or a short network blip.
var disconnectGrace = 30 * time.Second

// Hub maintains the set of active clients per challenge and fans lobby
// events out to them. All access to the client maps happens under
// challengesMux: broadcasts run on command goroutines concurrently with
// subscribes and disconnects.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Challenge lobbies (challengeID -> clients)
	challenges map[uint]map[*Client]bool

	// Mutex for both client maps
	challengesMux sync.RWMutex

	// Unregister requests from clients
	unregister chan *Client

	// Called once a user has had no connection to a challenge for
	// disconnectGrace. Optional.
	onAbsence func(challengeID, userID uint)

	// Optional redis client. When set, publishes travel through redis so
	// every process instance delivers to its own connections.
	rdb *redis.Client

	logger *zap.Logger
}

// NewHub creates a new hub instance
func NewHub(rdb *redis.Client, logger *zap.Logger) *Hub {
	return &Hub{
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		challenges: make(map[uint]map[*Client]bool),
		rdb:        rdb,
		logger:     logger,
	}
}

// Run drains unregister requests from disconnecting pumps
func (h *Hub) Run() {
	for client := range h.unregister {
		h.removeClient(client)
	}
}

// addClient is called synchronously by the subscribe handler: once it
// returns, the next broadcast is guaranteed to reach the client.
func (h *Hub) addClient(client *Client) {
	h.challengesMux.Lock()
	defer h.challengesMux.Unlock()

	h.clients[client] = true
	if _, ok := h.challenges[client.challengeID]; !ok {
		h.challenges[client.challengeID] = make(map[*Client]bool)
	}
	h.challenges[client.challengeID][client] = true
}

// removeClient evicts one connection. The membership check and the close
// of the send channel happen under the same lock as broadcast evictions,
// so a client can never be closed twice.
func (h *Hub) removeClient(client *Client) {
	h.challengesMux.Lock()
	if _, ok := h.clients[client]; !ok {
		h.challengesMux.Unlock()
		return
	}
	h.dropClientLocked(client)
	absent := !h.userPresentLocked(client.challengeID, client.userID)
	h.challengesMux.Unlock()

	if absent {
		h.scheduleAbsence(client.challengeID, client.userID)
	}
}

func (h *Hub) dropClientLocked(client *Client) {
	delete(h.clients, client)
	close(client.send)
	if clients, ok := h.challenges[client.challengeID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.challenges, client.challengeID)
		}
	}
}

func (h *Hub) userPresentLocked(challengeID, userID uint) bool {
	for client := range h.challenges[challengeID] {
		if client.userID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) userPresent(challengeID, userID uint) bool {
	h.challengesMux.RLock()
	defer h.challengesMux.RUnlock()
	return h.userPresentLocked(challengeID, userID)
}

// scheduleAbsence arms the grace timer for a user who just lost their last
// connection to a challenge. If they resubscribe before it fires, nothing
// happens.
func (h *Hub) scheduleAbsence(challengeID, userID uint) {
	if h.onAbsence == nil {
		return
	}
	time.AfterFunc(disconnectGrace, func() {
		if h.userPresent(challengeID, userID) {
			return
		}
		h.onAbsence(challengeID, userID)
	})
}

// broadcastToChallenge sends a frame to every client subscribed to a
// challenge, skipping exceptUserID when non-zero. Delivery is best-effort:
// a client whose send buffer is full is dropped and must resubscribe.
func (h *Hub) broadcastToChallenge(challengeID uint, exceptUserID uint, message []byte) {
	type absence struct{ challengeID, userID uint }
	var absences []absence

	h.challengesMux.Lock()
	for client := range h.challenges[challengeID] {
		if exceptUserID != 0 && client.userID == exceptUserID {
			continue
		}
		select {
		case client.send <- message:
		default:
			h.dropClientLocked(client)
			if !h.userPresentLocked(client.challengeID, client.userID) {
				absences = append(absences, absence{client.challengeID, client.userID})
			}
		}
	}
	h.challengesMux.Unlock()

	for _, a := range absences {
		h.scheduleAbsence(a.challengeID, a.userID)
	}
}

// redisEnvelope is the wire format between process instances. The raw
// event bytes are forwarded to clients untouched so both paths emit
// identical frames.
type redisEnvelope struct {
	ChallengeID  uint            `json:"challenge_id"`
	ExceptUserID uint            `json:"except_user_id,omitempty"`
	Event        json.RawMessage `json:"event"`
}

// Publish delivers a lobby event to every subscriber of a challenge
func Publish(challengeID uint, eventType string, payload interface{}) {
	publishExcept(challengeID, 0, eventType, payload)
}

func publishExcept(challengeID uint, exceptUserID uint, eventType string, payload interface{}) {
	if hub == nil {
		return
	}
	event := Event{Type: eventType, ChallengeID: challengeID, Payload: payload}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("failed to marshal lobby event", zap.Error(err))
		return
	}

	if hub.rdb != nil {
		hub.publishRedis(challengeID, exceptUserID, eventBytes)
		return
	}
	hub.broadcastToChallenge(challengeID, exceptUserID, eventBytes)
}

// PublishProgress relays a realtime progress report to everyone in the
// lobby except the reporter. It deliberately bypasses the challenge
// critical section: a lost report is fine, the next one supersedes it.
func PublishProgress(challengeID uint, userID uint, progress float64) {
	publishExcept(challengeID, userID, EventOpponentProgress, OpponentProgress{
		UserID:   userID,
		Progress: progress,
	})
}

// Global hub instance
var hub *Hub

// InitHub initializes the global hub and starts its loops
func InitHub(rdb *redis.Client, logger *zap.Logger) {
	hub = NewHub(rdb, logger)
	go hub.Run()
	if rdb != nil {
		go hub.subscribeLoop()
	}
}

// SetAbsenceHandler registers the callback invoked after a user has had no
// connection to a challenge for the grace period. Set once at startup,
// before the server accepts connections.
func SetAbsenceHandler(fn func(challengeID, userID uint)) {
	if hub != nil {
		hub.onAbsence = fn
	}
}
