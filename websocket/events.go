package websocket

// Lobby event types pushed to subscribed clients. Keepalives are websocket
// ping frames and never appear here.
const (
	EventPlayerUpdate     = "player_update"
	EventSettingsUpdate   = "settings_update"
	EventHostMigration    = "host_migration"
	EventStartCountdown   = "start_countdown"
	EventGameStart        = "game_start"
	EventOpponentProgress = "opponent_progress"
)

// Event is the envelope every lobby stream frame is wrapped in
type Event struct {
	Type        string      `json:"type"`
	ChallengeID uint        `json:"challenge_id"`
	Payload     interface{} `json:"payload,omitempty"`
}

// ParticipantView is one participant row as clients see it
type ParticipantView struct {
	UserID        uint   `json:"user_id"`
	Username      string `json:"username"`
	Role          string `json:"role"`
	Status        string `json:"status"`
	Score         int    `json:"score"`
	TimeTaken     int    `json:"time_taken"`
	ProgressIndex int    `json:"progress_index"`
}

// PlayerUpdate is the full lobby snapshot. It is resent in full on every
// subscribe so a reconnecting client needs no event replay.
type PlayerUpdate struct {
	ChallengeID  uint              `json:"challenge_id"`
	Status       string            `json:"status"`
	CreatorID    uint              `json:"creator_id"`
	HostID       uint              `json:"host_id"`
	Participants []ParticipantView `json:"participants"`
}

type SettingsUpdate struct {
	Mode             string `json:"mode"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
	IsRealtime       bool   `json:"is_realtime"`
	QuizID           uint   `json:"quiz_id"`
	WagerAmount      int    `json:"wager_amount"`
}

type HostMigration struct {
	NewHostID uint   `json:"new_host_id"`
	Message   string `json:"message"`
}

type StartCountdown struct {
	Seconds int `json:"seconds"`
}

type GameStart struct {
	QuizID  uint   `json:"quiz_id,omitempty"`
	Seed    int64  `json:"seed,omitempty"`
	Mode    string `json:"mode"`
	Message string `json:"message"`
}

type OpponentProgress struct {
	UserID   uint    `json:"user_id"`
	Progress float64 `json:"progress"`
}
