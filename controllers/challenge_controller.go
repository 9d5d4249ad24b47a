package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ROFL1ST/kuis-imk-sub000/duel"
	"github.com/ROFL1ST/kuis-imk-sub000/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type CreateChallengeInput struct {
	OpponentUsernames []string `json:"opponent_usernames"`
	QuizID            uint     `json:"quiz_id"`
	Mode              string   `json:"mode" binding:"required,oneof=1v1 2v2 survival battleroyale"`
	TimeLimitSeconds  int      `json:"time_limit_seconds" binding:"gte=0"`
	IsRealtime        bool     `json:"is_realtime"`
	WagerAmount       int      `json:"wager_amount" binding:"gte=0"`
}

type UpdateSettingsInput struct {
	Mode             *string `json:"mode" binding:"omitempty,oneof=1v1 2v2 survival battleroyale"`
	TimeLimitSeconds *int    `json:"time_limit_seconds" binding:"omitempty,gte=0"`
	IsRealtime       *bool   `json:"is_realtime"`
	QuizID           *uint   `json:"quiz_id"`
	WagerAmount      *int    `json:"wager_amount" binding:"omitempty,gte=0"`
}

type JoinByCodeInput struct {
	RoomCode string `json:"room_code" binding:"required,len=6"`
}

type SubmitScoreInput struct {
	Score     int `json:"score" binding:"gte=0"`
	TimeTaken int `json:"time_taken" binding:"gte=0"`
}

type ReportProgressInput struct {
	CurrentIndex   int `json:"current_index" binding:"gte=0"`
	TotalQuestions int `json:"total_questions" binding:"required,gt=0"`
}

// errorStatus maps state machine errors to HTTP statuses
func errorStatus(err error) int {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, duel.ErrNotHost), errors.Is(err, duel.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, duel.ErrInvalidState),
		errors.Is(err, duel.ErrAlreadyDecided),
		errors.Is(err, duel.ErrQuorumNotMet),
		errors.Is(err, duel.ErrLobbyFull):
		return http.StatusConflict
	case errors.Is(err, duel.ErrInvalidMode), errors.Is(err, duel.ErrUnsupportedCommand):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func abortWith(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

func challengeIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid challenge ID"})
		return 0, false
	}
	return uint(id), true
}

// CreateChallenge godoc
// @Summary Create a challenge and invite opponents
// @Tags challenges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param challenge body CreateChallengeInput true "Challenge creation"
// @Success 201 {object} map[string]interface{} "Challenge created"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 404 {object} map[string]string "Opponent not found"
// @Router /api/challenges [post]
func CreateChallenge(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input CreateChallengeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	challenge, err := services.CreateChallenge(userID, services.CreateInput{
		OpponentUsernames: input.OpponentUsernames,
		QuizID:            input.QuizID,
		Mode:              input.Mode,
		TimeLimitSeconds:  input.TimeLimitSeconds,
		IsRealtime:        input.IsRealtime,
		WagerAmount:       input.WagerAmount,
	})
	if err != nil {
		abortWith(c, err)
		return
	}

	full, err := services.GetChallenge(challenge.ID, userID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"challenge": full})
}

// ListChallenges godoc
// @Summary List the caller's challenges
// @Tags challenges
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} map[string]interface{} "Paginated challenges"
// @Router /api/challenges [get]
func ListChallenges(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	challenges, total, err := services.ListChallenges(userID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch challenges"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenges": challenges,
		"page":       page,
		"limit":      limit,
		"total":      total,
	})
}

// GetChallenge godoc
// @Summary Fetch one challenge with participants and quiz metadata
// @Tags challenges
// @Produce json
// @Security BearerAuth
// @Param id path int true "Challenge ID"
// @Success 200 {object} map[string]interface{} "Challenge"
// @Failure 404 {object} map[string]string "Not found"
// @Router /api/challenges/{id} [get]
func GetChallenge(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	challengeID, ok := challengeIDParam(c)
	if !ok {
		return
	}

	challenge, err := services.GetChallenge(challengeID, userID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": challenge})
}

// AcceptChallenge godoc
// @Summary Accept a challenge invitation
// @Tags challenges
// @Produce json
// @Security BearerAuth
// @Param id path int true "Challenge ID"
// @Success 200 {object} map[string]string "Accepted"
// @Failure 409 {object} map[string]string "Already decided otherwise"
// @Router /api/challenges/{id}/accept [post]
func AcceptChallenge(c *gin.Context) {
	dispatchSimple(c, duel.CmdAccept, "Challenge accepted")
}

// RefuseChallenge godoc
// @Summary Refuse a challenge invitation
// @Tags challenges
// @Produce json
// @Security BearerAuth
// @Param id path int true "Challenge ID"
// @Success 200 {object} map[string]string "Refused"
// @Router /api/challenges/{id}/refuse [post]
func RefuseChallenge(c *gin.Context) {
	dispatchSimple(c, duel.CmdRefuse, "Challenge refused")
}

// LeaveChallenge godoc
// @Summary Leave a pending lobby
// @Tags challenges
// @Produce json
// @Security BearerAuth
// @Param id path int true "Challenge ID"
// @Success 200 {object} map[string]string "Left"
// @Failure 409 {object} map[string]string "Challenge already started"
// @Router /api/challenges/{id}/leave [post]
func LeaveChallenge(c *gin.Context) {
	dispatchSimple(c, duel.CmdLeave, "Left the challenge")
}

func dispatchSimple(c *gin.Context, cmdType duel.CommandType, message string) {
	userID := c.MustGet("userID").(uint)
	challengeID, ok := challengeIDParam(c)
	if !ok {
		return
	}

	if _, _, err := services.Dispatch(challengeID, duel.Command{Type: cmdType, UserID: userID}); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// UpdateSettings godoc
// @Summary Update a pending challenge's settings (host only)
// @Tags challenges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Challenge ID"
// @Param settings body UpdateSettingsInput true "Settings"
// @Success 200 {object} map[string]interface{} "Updated"
// @Failure 403 {object} map[string]string "Not the host"
// @Failure 409 {object} map[string]string "Challenge already started"
// @Router /api/challenges/{id}/settings [put]
func UpdateSettings(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	challengeID, ok := challengeIDParam(c)
	if !ok {
		return
	}

	var input UpdateSettingsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, _, err := services.Dispatch(challengeID, duel.Command{
		Type:   duel.CmdUpdateSettings,
		UserID: userID,
		Settings: duel.Settings{
			Mode:             input.Mode,
			TimeLimitSeconds: input.TimeLimitSeconds,
			IsRealtime:       input.IsRealtime,
			QuizID:           input.QuizID,
			WagerAmount:      input.WagerAmount,
		},
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": state.Challenge})
}

// StartChallenge godoc
// @Summary Start a realtime session (host only)
// @Tags challenges
// @Produce json
// @Security BearerAuth
// @Param id path int true "Challenge ID"
// @Success 200 {object} map[string]interface{} "Countdown started"
// @Failure 409 {object} map[string]string "Quorum not met"
// @Router /api/challenges/{id}/start [post]
func StartChallenge(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	challengeID, ok := challengeIDParam(c)
	if !ok {
		return
	}

	if err := services.Start(challengeID, userID); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Countdown started",
		"countdown": services.CountdownSeconds,
	})
}

// GenerateRoomCode godoc
// @Summary Generate a room code for out-of-band joining (host only)
// @Tags challenges
// @Produce json
// @Security BearerAuth
// @Param id path int true "Challenge ID"
// @Success 200 {object} map[string]string "Room code"
// @Failure 409 {object} map[string]string "Code already generated"
// @Router /api/challenges/{id}/room-code [post]
func GenerateRoomCode(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	challengeID, ok := challengeIDParam(c)
	if !ok {
		return
	}

	code, err := services.GenerateRoomCode(challengeID, userID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_code": code})
}

// JoinByCode godoc
// @Summary Join a challenge by room code
// @Tags challenges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code body JoinByCodeInput true "Room code"
// @Success 200 {object} map[string]interface{} "Joined challenge"
// @Failure 404 {object} map[string]string "Unknown code"
// @Failure 409 {object} map[string]string "Lobby full"
// @Router /api/challenges/join [post]
func JoinByCode(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input JoinByCodeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	challenge, err := services.JoinByCode(input.RoomCode, userID)
	if err != nil {
		abortWith(c, err)
		return
	}

	full, err := services.GetChallenge(challenge.ID, userID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": full})
}

// SubmitScore godoc
// @Summary Submit the caller's final score for an active challenge
// @Tags challenges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Challenge ID"
// @Param score body SubmitScoreInput true "Score"
// @Success 200 {object} map[string]interface{} "Score recorded"
// @Failure 409 {object} map[string]string "Not active or already submitted"
// @Router /api/challenges/{id}/score [post]
func SubmitScore(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	challengeID, ok := challengeIDParam(c)
	if !ok {
		return
	}

	var input SubmitScoreInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, _, err := services.Dispatch(challengeID, duel.Command{
		Type:      duel.CmdSubmitScore,
		UserID:    userID,
		Score:     input.Score,
		TimeTaken: input.TimeTaken,
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Score recorded",
		"status":  state.Challenge.Status,
	})
}

// ReportProgress godoc
// @Summary Report realtime progress to lobby peers
// @Tags challenges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Challenge ID"
// @Param progress body ReportProgressInput true "Progress"
// @Success 200 {object} map[string]string "Relayed"
// @Failure 409 {object} map[string]string "No realtime session running"
// @Router /api/challenges/{id}/progress [post]
func ReportProgress(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	challengeID, ok := challengeIDParam(c)
	if !ok {
		return
	}

	var input ReportProgressInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := services.ReportProgress(challengeID, userID, input.CurrentIndex, input.TotalQuestions); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Progress relayed"})
}
