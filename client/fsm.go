// Package client implements the lobby-side view of a challenge: an
// explicit finite-state machine advanced only by deserialized server
// events, never by local guessing.
package client

import (
	"encoding/json"

	"github.com/ROFL1ST/kuis-imk-sub000/websocket"
)

// Phase is the client's lobby phase
type Phase string

const (
	PhasePending  Phase = "pending"
	PhaseCounting Phase = "counting"
	PhaseStarting Phase = "starting"
	PhaseActive   Phase = "active"
	PhaseFinished Phase = "finished"
	PhaseClosed   Phase = "closed" // cancelled or rejected
)

// LobbyView is everything a client knows about its lobby. All fields are
// derived from server events; the countdown tick display is the only
// client-local timer the UI may run.
type LobbyView struct {
	Phase        Phase
	ChallengeID  uint
	Status       string
	CreatorID    uint
	HostID       uint
	Participants []websocket.ParticipantView
	Settings     websocket.SettingsUpdate
	Countdown    int
	QuizID       uint
	Seed         int64
	Mode         string
	Notice       string
	PeerProgress map[uint]float64
}

// NewLobbyView returns the initial view, before the first snapshot arrives
func NewLobbyView() LobbyView {
	return LobbyView{
		Phase:        PhasePending,
		PeerProgress: make(map[uint]float64),
	}
}

// ApplyEvent advances the view with one server frame. Unknown event types
// are ignored so older clients survive newer servers.
func ApplyEvent(view LobbyView, frame []byte) (LobbyView, error) {
	var envelope struct {
		Type        string          `json:"type"`
		ChallengeID uint            `json:"challenge_id"`
		Payload     json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return view, err
	}
	view.ChallengeID = envelope.ChallengeID

	switch envelope.Type {
	case websocket.EventPlayerUpdate:
		var update websocket.PlayerUpdate
		if err := json.Unmarshal(envelope.Payload, &update); err != nil {
			return view, err
		}
		view.Status = update.Status
		view.CreatorID = update.CreatorID
		view.HostID = update.HostID
		view.Participants = update.Participants
		switch update.Status {
		case "pending":
			// A snapshot while counting means the launch was aborted
			view.Phase = PhasePending
			view.Countdown = 0
		case "active":
			view.Phase = PhaseActive
		case "finished":
			view.Phase = PhaseFinished
		case "cancelled", "rejected":
			view.Phase = PhaseClosed
		}

	case websocket.EventSettingsUpdate:
		var settings websocket.SettingsUpdate
		if err := json.Unmarshal(envelope.Payload, &settings); err != nil {
			return view, err
		}
		view.Settings = settings

	case websocket.EventHostMigration:
		var migration websocket.HostMigration
		if err := json.Unmarshal(envelope.Payload, &migration); err != nil {
			return view, err
		}
		view.HostID = migration.NewHostID
		view.Notice = migration.Message

	case websocket.EventStartCountdown:
		var countdown websocket.StartCountdown
		if err := json.Unmarshal(envelope.Payload, &countdown); err != nil {
			return view, err
		}
		view.Phase = PhaseCounting
		view.Countdown = countdown.Seconds

	case websocket.EventGameStart:
		var start websocket.GameStart
		if err := json.Unmarshal(envelope.Payload, &start); err != nil {
			return view, err
		}
		view.Phase = PhaseStarting
		view.QuizID = start.QuizID
		view.Seed = start.Seed
		view.Mode = start.Mode
		view.Notice = start.Message

	case websocket.EventOpponentProgress:
		var progress websocket.OpponentProgress
		if err := json.Unmarshal(envelope.Payload, &progress); err != nil {
			return view, err
		}
		if view.PeerProgress == nil {
			view.PeerProgress = make(map[uint]float64)
		}
		view.PeerProgress[progress.UserID] = progress.Progress
	}
	return view, nil
}
