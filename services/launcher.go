package services

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ROFL1ST/kuis-imk-sub000/duel"
	"github.com/ROFL1ST/kuis-imk-sub000/models"
	"github.com/ROFL1ST/kuis-imk-sub000/utils"
	"github.com/ROFL1ST/kuis-imk-sub000/websocket"
	"go.uber.org/zap"
)

// CountdownSeconds is how long the lobby counts down between the host's
// start command and game_start. Measured here, not on clients, so clock
// skew cannot desynchronize the launch.
const CountdownSeconds = 3

// countdownDelay is swapped out by tests to avoid real sleeps
var countdownDelay = time.Duration(CountdownSeconds) * time.Second

// One in-flight launch per challenge
var launches sync.Map

// Start validates the host's start command and, if accepted, begins the
// countdown. The challenge stays pending until the countdown completes so
// a lost quorum can abort the launch cleanly.
func Start(challengeID, userID uint) error {
	if _, inFlight := launches.Load(challengeID); inFlight {
		return duel.ErrInvalidState
	}

	_, events, err := Dispatch(challengeID, duel.Command{Type: duel.CmdStart, UserID: userID})
	if err != nil {
		return err
	}
	accepted := false
	for _, event := range events {
		if event.Type == duel.EvtStartAccepted {
			accepted = true
		}
	}
	if !accepted {
		return duel.ErrInvalidState
	}

	if _, inFlight := launches.LoadOrStore(challengeID, true); inFlight {
		return duel.ErrInvalidState
	}

	// The start_countdown frame was already published by the dispatch,
	// in order with the rest of the event stream. Only the timer is armed
	// here.
	time.AfterFunc(countdownDelay, func() {
		completeLaunch(challengeID)
	})
	return nil
}

// completeLaunch runs after the countdown: re-validate quorum under the
// challenge lock, commit pending -> active, and emit the authoritative
// game_start. If quorum was lost meanwhile the launch aborts and the lobby
// gets a fresh snapshot instead.
func completeLaunch(challengeID uint) {
	defer launches.Delete(challengeID)

	mu := lockFor(challengeID)
	mu.Lock()
	defer mu.Unlock()

	state, err := LoadState(challengeID)
	if err != nil {
		utils.Logger.Error("launch aborted: challenge vanished",
			zap.Uint("challenge_id", challengeID), zap.Error(err))
		return
	}

	if state.Challenge.Status != models.ChallengePending || !state.QuorumMet() {
		utils.Logger.Info("launch aborted: quorum lost during countdown",
			zap.Uint("challenge_id", challengeID))
		websocket.Publish(challengeID, websocket.EventPlayerUpdate, playerUpdateFromState(&state))
		return
	}

	next := state
	next.Challenge.Status = models.ChallengeActive
	if err := persist(&state, &next); err != nil {
		utils.Logger.Error("failed to activate challenge",
			zap.Uint("challenge_id", challengeID), zap.Error(err))
		return
	}

	start := websocket.GameStart{
		Mode:    next.Challenge.Mode,
		Message: "Game is starting",
	}
	if next.Challenge.Mode == models.ModeSurvival {
		// Every client feeds this seed into the same generator and plays
		// an identical question sequence.
		start.Seed = rand.Int63()
	} else {
		start.QuizID = next.Challenge.QuizID
	}
	websocket.Publish(challengeID, websocket.EventGameStart, start)
}
