package services

import (
	"time"

	"github.com/ROFL1ST/kuis-imk-sub000/database"
	"github.com/ROFL1ST/kuis-imk-sub000/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// staleAfter is how long a pending lobby may sit untouched before the
// cleaner cancels it
const staleAfter = 24 * time.Hour

// StartCleanup schedules the periodic sweep of abandoned lobbies.
// Challenges are never deleted, only marked cancelled, so history queries
// keep working.
func StartCleanup(logger *zap.Logger) {
	c := cron.New()

	c.AddFunc("@hourly", func() {
		result := database.DB.Model(&models.Challenge{}).
			Where("status = ? AND updated_at <= ?", models.ChallengePending, time.Now().Add(-staleAfter)).
			Update("status", models.ChallengeCancelled)
		if result.Error != nil {
			logger.Error("stale lobby sweep failed", zap.Error(result.Error))
		} else if result.RowsAffected > 0 {
			logger.Info("cancelled stale lobbies", zap.Int64("count", result.RowsAffected))
		}
	})

	c.Start()
}
