package services

import (
	"errors"
	"sync"
	"time"

	"github.com/ROFL1ST/kuis-imk-sub000/database"
	"github.com/ROFL1ST/kuis-imk-sub000/duel"
	"github.com/ROFL1ST/kuis-imk-sub000/models"
	"github.com/ROFL1ST/kuis-imk-sub000/utils"
	"github.com/ROFL1ST/kuis-imk-sub000/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Per-challenge locks. Every mutating command for one challenge runs under
// its lock; commands for different challenges proceed in parallel.
var challengeLocks sync.Map

func lockFor(challengeID uint) *sync.Mutex {
	mu, _ := challengeLocks.LoadOrStore(challengeID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// LoadState reads one challenge and its participants into a duel.State
func LoadState(challengeID uint) (duel.State, error) {
	var state duel.State
	if err := database.DB.First(&state.Challenge, challengeID).Error; err != nil {
		return state, err
	}
	if err := database.DB.Preload("User").
		Where("challenge_id = ?", challengeID).
		Order("id asc").
		Find(&state.Participants).Error; err != nil {
		return state, err
	}
	return state, nil
}

// persist writes the successor state in one transaction. Participants
// present in prev but gone from next were removed by a leave command.
func persist(prev, next *duel.State) error {
	return database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(&next.Challenge).Error; err != nil {
			return err
		}
		for i := range next.Participants {
			p := &next.Participants[i]
			if p.ID == 0 {
				if err := tx.Omit(clause.Associations).Create(p).Error; err != nil {
					return err
				}
			} else if err := tx.Omit(clause.Associations).Save(p).Error; err != nil {
				return err
			}
		}
		for i := range prev.Participants {
			old := &prev.Participants[i]
			if next.Participant(old.UserID) == nil {
				if err := tx.Delete(&models.Participant{}, old.ID).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Dispatch runs one state machine command under the challenge's critical
// section: load, apply, persist, publish. Events are published while still
// serialized so subscribers see them in commit order; delivery itself is
// asynchronous through per-connection buffers.
func Dispatch(challengeID uint, cmd duel.Command) (duel.State, []duel.Event, error) {
	mu := lockFor(challengeID)
	mu.Lock()
	defer mu.Unlock()

	state, err := LoadState(challengeID)
	if err != nil {
		return state, nil, err
	}
	if cmd.Now.IsZero() {
		cmd.Now = time.Now()
	}

	events, next, err := duel.Apply(state, cmd)
	if err != nil {
		return state, nil, err
	}
	if err := persist(&state, &next); err != nil {
		return state, nil, err
	}

	for _, event := range events {
		publishEvent(&next, event)
	}
	return next, events, nil
}

func publishEvent(state *duel.State, event duel.Event) {
	switch event.Type {
	case duel.EvtPlayerUpdate:
		websocket.Publish(state.Challenge.ID, websocket.EventPlayerUpdate, playerUpdateFromState(state))
	case duel.EvtSettingsUpdate:
		c := state.Challenge
		websocket.Publish(c.ID, websocket.EventSettingsUpdate, websocket.SettingsUpdate{
			Mode:             c.Mode,
			TimeLimitSeconds: c.TimeLimitSeconds,
			IsRealtime:       c.IsRealtime,
			QuizID:           c.QuizID,
			WagerAmount:      c.WagerAmount,
		})
	case duel.EvtHostMigration:
		name := usernameOf(state, event.NewHostID)
		websocket.Publish(state.Challenge.ID, websocket.EventHostMigration, websocket.HostMigration{
			NewHostID: event.NewHostID,
			Message:   name + " is now the host",
		})
	case duel.EvtStartAccepted:
		// Published here, while the dispatch lock is still held, so the
		// countdown frame keeps its place in the commit order. The launcher
		// only arms the timer.
		websocket.Publish(state.Challenge.ID, websocket.EventStartCountdown, websocket.StartCountdown{
			Seconds: CountdownSeconds,
		})
	}
}

func playerUpdateFromState(state *duel.State) websocket.PlayerUpdate {
	update := websocket.PlayerUpdate{
		ChallengeID: state.Challenge.ID,
		Status:      state.Challenge.Status,
		CreatorID:   state.Challenge.CreatorID,
	}
	for _, p := range state.Participants {
		if p.Role == models.RoleHost {
			update.HostID = p.UserID
		}
		update.Participants = append(update.Participants, websocket.ParticipantView{
			UserID:        p.UserID,
			Username:      p.User.Username,
			Role:          p.Role,
			Status:        p.Status,
			Score:         p.Score,
			TimeTaken:     p.TimeTaken,
			ProgressIndex: p.ProgressIndex,
		})
	}
	return update
}

func usernameOf(state *duel.State, userID uint) string {
	if p := state.Participant(userID); p != nil && p.User.Username != "" {
		return p.User.Username
	}
	return "A player"
}

// HandleLobbyDisconnect runs when a user has had no lobby connection for
// the hub's grace period. A vanished host of a pending challenge is
// treated as having left, so authority migrates (or the lobby is
// cancelled) instead of stranding everyone; any other disconnect touches
// no state, it only pruned the connection set.
func HandleLobbyDisconnect(challengeID, userID uint) {
	mu := lockFor(challengeID)
	mu.Lock()
	defer mu.Unlock()

	state, err := LoadState(challengeID)
	if err != nil {
		return
	}
	if state.Challenge.Status != models.ChallengePending {
		return
	}
	p := state.Participant(userID)
	if p == nil || p.Role != models.RoleHost {
		return
	}

	events, next, err := duel.Apply(state, duel.Command{
		Type:   duel.CmdLeave,
		UserID: userID,
		Now:    time.Now(),
	})
	if err != nil {
		return
	}
	if err := persist(&state, &next); err != nil {
		utils.Logger.Error("failed to evict disconnected host",
			zap.Uint("challenge_id", challengeID), zap.Error(err))
		return
	}
	for _, event := range events {
		publishEvent(&next, event)
	}
	utils.Logger.Info("host disconnected, lobby handed over",
		zap.Uint("challenge_id", challengeID), zap.Uint("user_id", userID))
}

// CreateInput carries the create command's arguments
type CreateInput struct {
	OpponentUsernames []string
	QuizID            uint
	Mode              string
	TimeLimitSeconds  int
	IsRealtime        bool
	WagerAmount       int
}

// CreateChallenge records a new challenge, its host as an accepted
// participant, and every invited opponent as a pending one.
func CreateChallenge(creatorID uint, input CreateInput) (models.Challenge, error) {
	var challenge models.Challenge

	if !models.IsValidMode(input.Mode) {
		return challenge, duel.ErrInvalidMode
	}
	if input.WagerAmount < 0 {
		return challenge, duel.ErrUnsupportedCommand
	}
	quizID := input.QuizID
	if input.Mode == models.ModeSurvival {
		quizID = 0 // survival derives questions from the session seed
	}

	var opponents []models.User
	if len(input.OpponentUsernames) > 0 {
		if err := database.DB.Where("username IN ?", input.OpponentUsernames).
			Find(&opponents).Error; err != nil {
			return challenge, err
		}
		if len(opponents) != len(dedupe(input.OpponentUsernames)) {
			return challenge, gorm.ErrRecordNotFound
		}
	}
	if len(opponents)+1 > duel.Capacity(input.Mode) {
		return challenge, duel.ErrLobbyFull
	}

	// The creator counts as accepted from the start, so a solo-capable
	// async mode (survival) is born active.
	status := models.ChallengePending
	if !input.IsRealtime && duel.QuorumMin(input.Mode) <= 1 {
		status = models.ChallengeActive
	}

	now := time.Now()
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		challenge = models.Challenge{
			CreatorID:        creatorID,
			Mode:             input.Mode,
			QuizID:           quizID,
			IsRealtime:       input.IsRealtime,
			TimeLimitSeconds: input.TimeLimitSeconds,
			WagerAmount:      input.WagerAmount,
			Status:           status,
		}
		if err := tx.Create(&challenge).Error; err != nil {
			return err
		}

		host := models.Participant{
			ChallengeID: challenge.ID,
			UserID:      creatorID,
			Role:        models.RoleHost,
			Status:      models.ParticipantAccepted,
			Score:       models.ScoreNotSubmitted,
			AcceptedAt:  &now,
		}
		if err := tx.Create(&host).Error; err != nil {
			return err
		}

		for _, opponent := range opponents {
			if opponent.ID == creatorID {
				continue
			}
			invitee := models.Participant{
				ChallengeID: challenge.ID,
				UserID:      opponent.ID,
				Role:        models.RoleMember,
				Status:      models.ParticipantPending,
				Score:       models.ScoreNotSubmitted,
			}
			if err := tx.Create(&invitee).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return challenge, err
	}
	return challenge, nil
}

// GenerateRoomCode assigns a fresh unique code to a pending challenge
func GenerateRoomCode(challengeID, userID uint) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := utils.GenerateRoomCode()
		if err != nil {
			return "", err
		}
		var existing models.Challenge
		if err := database.DB.Where("room_code = ?", code).First(&existing).Error; err == nil {
			continue // collision, regenerate
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
		if _, _, err := Dispatch(challengeID, duel.Command{
			Type:     duel.CmdAssignRoomCode,
			UserID:   userID,
			RoomCode: code,
		}); errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race to the code between the pre-check and the insert
			continue
		} else if err != nil {
			return "", err
		}
		return code, nil
	}
	return "", errors.New("could not generate a unique room code")
}

// JoinByCode resolves a room code and joins the caller into the lobby
func JoinByCode(code string, userID uint) (models.Challenge, error) {
	var challenge models.Challenge
	if err := database.DB.Where("room_code = ?", code).First(&challenge).Error; err != nil {
		return challenge, err
	}
	next, _, err := Dispatch(challenge.ID, duel.Command{Type: duel.CmdJoin, UserID: userID})
	if err != nil {
		return challenge, err
	}
	return next.Challenge, nil
}

// ReportProgress persists the reporter's own position and relays the
// percentage to everyone else in the lobby. It takes no challenge lock:
// the relay has no consistency requirement beyond "latest report wins".
func ReportProgress(challengeID, userID uint, currentIndex, totalQuestions int) error {
	if totalQuestions <= 0 || currentIndex < 0 {
		return duel.ErrInvalidState
	}

	var challenge models.Challenge
	if err := database.DB.First(&challenge, challengeID).Error; err != nil {
		return err
	}
	if challenge.Status != models.ChallengeActive || !challenge.IsRealtime {
		return duel.ErrInvalidState
	}

	result := database.DB.Model(&models.Participant{}).
		Where("challenge_id = ? AND user_id = ? AND status = ?",
			challengeID, userID, models.ParticipantAccepted).
		Update("progress_index", currentIndex)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return duel.ErrNotParticipant
	}

	progress := float64(currentIndex) / float64(totalQuestions) * 100
	websocket.PublishProgress(challengeID, userID, progress)
	return nil
}

// ListChallenges returns a page of the user's challenges, newest first
func ListChallenges(userID uint, page, limit int) ([]models.Challenge, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	mine := func(db *gorm.DB) *gorm.DB {
		return db.Joins("JOIN participants ON participants.challenge_id = challenges.id").
			Where("participants.user_id = ?", userID)
	}

	var total int64
	if err := mine(database.DB.Model(&models.Challenge{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var challenges []models.Challenge
	err := mine(database.DB).
		Preload("Quiz").
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("participants.id asc")
		}).
		Preload("Participants.User").
		Order("challenges.created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&challenges).Error
	return challenges, total, err
}

// GetChallenge loads one challenge with participants and quiz metadata,
// visible only to its participants
func GetChallenge(challengeID, userID uint) (models.Challenge, error) {
	var participant models.Participant
	if err := database.DB.Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		First(&participant).Error; err != nil {
		return models.Challenge{}, err
	}

	var challenge models.Challenge
	err := database.DB.
		Preload("Quiz").
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("participants.id asc")
		}).
		Preload("Participants.User").
		First(&challenge, challengeID).Error
	return challenge, err
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
