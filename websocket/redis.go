package websocket

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// All instances share one channel. Redis preserves publish order per
// channel, which keeps per-challenge event order intact end to end.
const lobbyEventsChannel = "lobby:events"

func (h *Hub) publishRedis(challengeID uint, exceptUserID uint, eventBytes []byte) {
	envelope := redisEnvelope{
		ChallengeID:  challengeID,
		ExceptUserID: exceptUserID,
		Event:        eventBytes,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Error("failed to marshal redis envelope", zap.Error(err))
		return
	}
	if err := h.rdb.Publish(context.Background(), lobbyEventsChannel, payload).Err(); err != nil {
		h.logger.Error("failed to publish lobby event to redis", zap.Error(err))
	}
}

// subscribeLoop relays events published by any instance to the clients
// connected to this one
func (h *Hub) subscribeLoop() {
	pubsub := h.rdb.Subscribe(context.Background(), lobbyEventsChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var envelope redisEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
			h.logger.Error("bad lobby event from redis", zap.Error(err))
			continue
		}
		h.broadcastToChallenge(envelope.ChallengeID, envelope.ExceptUserID, envelope.Event)
	}
}
