package websocket

import (
	"github.com/ROFL1ST/kuis-imk-sub000/database"
	"github.com/ROFL1ST/kuis-imk-sub000/models"
)

// BuildPlayerUpdate assembles the canonical lobby snapshot from the store.
// Every subscribe resends it in full, which is the system's only
// reconciliation mechanism after a missed event.
func BuildPlayerUpdate(challengeID uint) (PlayerUpdate, error) {
	var challenge models.Challenge
	if err := database.DB.First(&challenge, challengeID).Error; err != nil {
		return PlayerUpdate{}, err
	}

	var participants []models.Participant
	if err := database.DB.Preload("User").
		Where("challenge_id = ?", challengeID).
		Order("id asc").
		Find(&participants).Error; err != nil {
		return PlayerUpdate{}, err
	}

	update := PlayerUpdate{
		ChallengeID: challenge.ID,
		Status:      challenge.Status,
		CreatorID:   challenge.CreatorID,
	}
	for _, p := range participants {
		if p.Role == models.RoleHost {
			update.HostID = p.UserID
		}
		update.Participants = append(update.Participants, ParticipantView{
			UserID:        p.UserID,
			Username:      p.User.Username,
			Role:          p.Role,
			Status:        p.Status,
			Score:         p.Score,
			TimeTaken:     p.TimeTaken,
			ProgressIndex: p.ProgressIndex,
		})
	}
	return update, nil
}
