package duel

import (
	"errors"
	"testing"
	"time"

	"github.com/ROFL1ST/kuis-imk-sub000/models"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newState builds a challenge with the creator as accepted host plus one
// pending invitee per extra user id
func newState(mode string, realtime bool, hostID uint, invitees ...uint) State {
	hostAccepted := t0
	s := State{
		Challenge: models.Challenge{
			ID:         1,
			CreatorID:  hostID,
			Mode:       mode,
			QuizID:     7,
			IsRealtime: realtime,
			Status:     models.ChallengePending,
		},
		Participants: []models.Participant{{
			ID:          1,
			ChallengeID: 1,
			UserID:      hostID,
			Role:        models.RoleHost,
			Status:      models.ParticipantAccepted,
			Score:       models.ScoreNotSubmitted,
			AcceptedAt:  &hostAccepted,
		}},
	}
	for i, userID := range invitees {
		s.Participants = append(s.Participants, models.Participant{
			ID:          uint(i + 2),
			ChallengeID: 1,
			UserID:      userID,
			Role:        models.RoleMember,
			Status:      models.ParticipantPending,
			Score:       models.ScoreNotSubmitted,
		})
	}
	return s
}

func mustApply(t *testing.T, s State, cmd Command) State {
	t.Helper()
	_, next, err := Apply(s, cmd)
	if err != nil {
		t.Fatalf("Apply(%s) failed: %v", cmd.Type, err)
	}
	return next
}

func at(offset time.Duration) time.Time { return t0.Add(offset) }

func TestAccept_AsyncQuorumActivates(t *testing.T) {
	s := newState(models.ModeOneVsOne, false, 1, 2)

	events, next, err := Apply(s, Command{Type: CmdAccept, UserID: 2, Now: at(time.Minute)})
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if next.Challenge.Status != models.ChallengeActive {
		t.Fatalf("async 1v1 with both accepted: want active, got %s", next.Challenge.Status)
	}
	if len(events) != 1 || events[0].Type != EvtPlayerUpdate {
		t.Fatalf("want one player_update event, got %+v", events)
	}
	if p := next.Participant(2); p.AcceptedAt == nil || !p.AcceptedAt.Equal(at(time.Minute)) {
		t.Fatalf("acceptance timestamp not recorded: %+v", p)
	}
}

func TestAccept_RealtimeStaysPendingUntilStart(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2)

	next := mustApply(t, s, Command{Type: CmdAccept, UserID: 2, Now: at(time.Minute)})
	if next.Challenge.Status != models.ChallengePending {
		t.Fatalf("realtime challenge must await explicit start, got %s", next.Challenge.Status)
	}
	if !next.QuorumMet() {
		t.Fatalf("quorum should be met with 2 accepted")
	}
}

func TestAccept_Idempotent(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2)
	once := mustApply(t, s, Command{Type: CmdAccept, UserID: 2, Now: at(time.Minute)})

	events, twice, err := Apply(once, Command{Type: CmdAccept, UserID: 2, Now: at(2 * time.Minute)})
	if err != nil {
		t.Fatalf("repeated accept must be a no-op, got error: %v", err)
	}
	if events != nil {
		t.Fatalf("repeated accept must emit no events, got %+v", events)
	}
	if !twice.Participant(2).AcceptedAt.Equal(at(time.Minute)) {
		t.Fatalf("repeated accept must not move the acceptance timestamp")
	}
}

func TestAccept_AfterRefuseFails(t *testing.T) {
	s := newState(models.ModeBattleRoyale, false, 1, 2, 3)
	s = mustApply(t, s, Command{Type: CmdRefuse, UserID: 2, Now: at(time.Minute)})

	_, _, err := Apply(s, Command{Type: CmdAccept, UserID: 2, Now: at(2 * time.Minute)})
	if !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("want ErrAlreadyDecided, got %v", err)
	}
}

func TestAccept_NonParticipant(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2)
	_, _, err := Apply(s, Command{Type: CmdAccept, UserID: 99, Now: t0})
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("want ErrNotParticipant, got %v", err)
	}
}

func TestRefuse_SoleInviteeRejectsChallenge(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2)

	next := mustApply(t, s, Command{Type: CmdRefuse, UserID: 2, Now: at(time.Minute)})
	if next.Challenge.Status != models.ChallengeRejected {
		t.Fatalf("1v1 with the only invitee refusing: want rejected, got %s", next.Challenge.Status)
	}
}

func TestRefuse_Idempotent(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2)
	s = mustApply(t, s, Command{Type: CmdRefuse, UserID: 2, Now: at(time.Minute)})

	events, _, err := Apply(s, Command{Type: CmdRefuse, UserID: 2, Now: at(2 * time.Minute)})
	if err != nil || events != nil {
		t.Fatalf("repeated refuse must be a silent no-op, got events=%+v err=%v", events, err)
	}
}

func TestBattleRoyale_ActivatesRegardlessOfRefusalOrder(t *testing.T) {
	// 5 invitees: 2 refuse, 3 accept. Async mode goes active the moment
	// quorum (2) is reached, however the decisions interleave.
	orders := [][]Command{
		{
			{Type: CmdRefuse, UserID: 2}, {Type: CmdAccept, UserID: 3},
			{Type: CmdAccept, UserID: 4}, {Type: CmdRefuse, UserID: 5},
			{Type: CmdAccept, UserID: 6},
		},
		{
			{Type: CmdAccept, UserID: 3}, {Type: CmdAccept, UserID: 4},
			{Type: CmdRefuse, UserID: 2}, {Type: CmdAccept, UserID: 6},
			{Type: CmdRefuse, UserID: 5},
		},
	}
	for i, order := range orders {
		s := newState(models.ModeBattleRoyale, false, 1, 2, 3, 4, 5, 6)
		for step, cmd := range order {
			cmd.Now = at(time.Duration(step) * time.Minute)
			s = mustApply(t, s, cmd)
		}
		if s.Challenge.Status != models.ChallengeActive {
			t.Fatalf("order %d: want active, got %s", i, s.Challenge.Status)
		}
		if got := s.AcceptedCount(); got != 4 { // host + 3
			t.Fatalf("order %d: want 4 accepted, got %d", i, got)
		}
	}
}

func TestLeave_HostMigratesToEarliestAccepted(t *testing.T) {
	s := newState(models.ModeBattleRoyale, true, 1, 2, 3)
	s = mustApply(t, s, Command{Type: CmdAccept, UserID: 3, Now: at(1 * time.Minute)})
	s = mustApply(t, s, Command{Type: CmdAccept, UserID: 2, Now: at(2 * time.Minute)})

	events, next, err := Apply(s, Command{Type: CmdLeave, UserID: 1, Now: at(3 * time.Minute)})
	if err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if len(events) != 2 || events[0].Type != EvtHostMigration || events[1].Type != EvtPlayerUpdate {
		t.Fatalf("want [host_migration, player_update], got %+v", events)
	}
	// User 3 accepted first, so it inherits the lobby
	if events[0].NewHostID != 3 {
		t.Fatalf("want host migrated to user 3 (earliest accept), got %d", events[0].NewHostID)
	}
	if next.Host() == nil || next.Host().UserID != 3 {
		t.Fatalf("role=host not moved to user 3: %+v", next.Participants)
	}
	if next.Participant(1) != nil {
		t.Fatalf("leaver must be removed from the participant set")
	}
	if next.Challenge.Status != models.ChallengePending {
		t.Fatalf("two accepted remain (quorum met), want pending, got %s", next.Challenge.Status)
	}
}

func TestLeave_HostWithNoAcceptedCancels(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2)

	next := mustApply(t, s, Command{Type: CmdLeave, UserID: 1, Now: at(time.Minute)})
	if next.Challenge.Status != models.ChallengeCancelled {
		t.Fatalf("host left with nobody accepted: want cancelled, got %s", next.Challenge.Status)
	}
}

func TestLeave_BelowQuorumWithNoPendingCancels(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2)
	s = mustApply(t, s, Command{Type: CmdAccept, UserID: 2, Now: at(time.Minute)})

	next := mustApply(t, s, Command{Type: CmdLeave, UserID: 2, Now: at(2 * time.Minute)})
	if next.Challenge.Status != models.ChallengeCancelled {
		t.Fatalf("last opponent left: want cancelled, got %s", next.Challenge.Status)
	}
}

func TestLeave_AfterStartRejected(t *testing.T) {
	s := newState(models.ModeOneVsOne, false, 1, 2)
	s = mustApply(t, s, Command{Type: CmdAccept, UserID: 2, Now: at(time.Minute)}) // async -> active

	_, _, err := Apply(s, Command{Type: CmdLeave, UserID: 2, Now: at(2 * time.Minute)})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("leave is pre-start only, want ErrInvalidState, got %v", err)
	}
}

func TestStart_QuorumNotMet(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2)

	events, _, err := Apply(s, Command{Type: CmdStart, UserID: 1, Now: t0})
	if !errors.Is(err, ErrQuorumNotMet) {
		t.Fatalf("want ErrQuorumNotMet, got %v", err)
	}
	if events != nil {
		t.Fatalf("a refused start must emit nothing, got %+v", events)
	}
}

func TestStart_NonHostForbidden(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2)
	s = mustApply(t, s, Command{Type: CmdAccept, UserID: 2, Now: at(time.Minute)})

	_, _, err := Apply(s, Command{Type: CmdStart, UserID: 2, Now: at(2 * time.Minute)})
	if !errors.Is(err, ErrNotHost) {
		t.Fatalf("want ErrNotHost, got %v", err)
	}
}

func TestStart_AcceptedLeavesStatePending(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2)
	s = mustApply(t, s, Command{Type: CmdAccept, UserID: 2, Now: at(time.Minute)})

	events, next, err := Apply(s, Command{Type: CmdStart, UserID: 1, Now: at(2 * time.Minute)})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != EvtStartAccepted {
		t.Fatalf("want start_accepted, got %+v", events)
	}
	// The launcher owns the pending->active commit
	if next.Challenge.Status != models.ChallengePending {
		t.Fatalf("start must not activate directly, got %s", next.Challenge.Status)
	}
}

func TestUpdateSettings_HostOnlyWhilePending(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2)

	mode := models.ModeBattleRoyale
	limit := 120
	_, _, err := Apply(s, Command{Type: CmdUpdateSettings, UserID: 2, Settings: Settings{Mode: &mode}})
	if !errors.Is(err, ErrNotHost) {
		t.Fatalf("non-host settings change: want ErrNotHost, got %v", err)
	}

	events, next, err := Apply(s, Command{
		Type: CmdUpdateSettings, UserID: 1,
		Settings: Settings{Mode: &mode, TimeLimitSeconds: &limit},
	})
	if err != nil {
		t.Fatalf("settings update failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != EvtSettingsUpdate {
		t.Fatalf("want settings_update event, got %+v", events)
	}
	if next.Challenge.Mode != models.ModeBattleRoyale || next.Challenge.TimeLimitSeconds != 120 {
		t.Fatalf("settings not applied: %+v", next.Challenge)
	}

	// Once the challenge has left pending, settings freeze
	next.Challenge.Status = models.ChallengeActive
	_, _, err = Apply(next, Command{Type: CmdUpdateSettings, UserID: 1, Settings: Settings{TimeLimitSeconds: &limit}})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("want ErrInvalidState after start, got %v", err)
	}
}

func TestUpdateSettings_SurvivalClearsQuiz(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2)
	mode := models.ModeSurvival

	_, next, err := Apply(s, Command{Type: CmdUpdateSettings, UserID: 1, Settings: Settings{Mode: &mode}})
	if err != nil {
		t.Fatalf("settings update failed: %v", err)
	}
	if next.Challenge.QuizID != 0 {
		t.Fatalf("survival mode must not keep a quiz id, got %d", next.Challenge.QuizID)
	}
}

func TestUpdateSettings_ShrinkingBelowHeadcountFails(t *testing.T) {
	s := newState(models.ModeBattleRoyale, true, 1, 2, 3, 4)
	mode := models.ModeOneVsOne

	_, _, err := Apply(s, Command{Type: CmdUpdateSettings, UserID: 1, Settings: Settings{Mode: &mode}})
	if !errors.Is(err, ErrLobbyFull) {
		t.Fatalf("4 players cannot fit 1v1, want ErrLobbyFull, got %v", err)
	}
}

func TestSubmitScore_CompletesWhenAllFinish(t *testing.T) {
	s := newState(models.ModeOneVsOne, false, 1, 2)
	s = mustApply(t, s, Command{Type: CmdAccept, UserID: 2, Now: at(time.Minute)}) // -> active

	s = mustApply(t, s, Command{Type: CmdSubmitScore, UserID: 1, Score: 80, TimeTaken: 45})
	if s.Challenge.Status != models.ChallengeActive {
		t.Fatalf("one of two finished: want still active, got %s", s.Challenge.Status)
	}
	if p := s.Participant(1); p.Status != models.ParticipantFinished || p.Score != 80 {
		t.Fatalf("score not recorded: %+v", p)
	}

	s = mustApply(t, s, Command{Type: CmdSubmitScore, UserID: 2, Score: 95, TimeTaken: 50})
	if s.Challenge.Status != models.ChallengeFinished {
		t.Fatalf("all finished: want finished, got %s", s.Challenge.Status)
	}
}

func TestSubmitScore_GuardRails(t *testing.T) {
	s := newState(models.ModeOneVsOne, false, 1, 2)

	if _, _, err := Apply(s, Command{Type: CmdSubmitScore, UserID: 1, Score: 10}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("submit before active: want ErrInvalidState, got %v", err)
	}

	s = mustApply(t, s, Command{Type: CmdAccept, UserID: 2, Now: at(time.Minute)})
	s = mustApply(t, s, Command{Type: CmdSubmitScore, UserID: 1, Score: 10})

	if _, _, err := Apply(s, Command{Type: CmdSubmitScore, UserID: 1, Score: 99}); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("double submit: want ErrAlreadyDecided, got %v", err)
	}
}

func TestRoomCode_AssignedOnce(t *testing.T) {
	s := newState(models.ModeBattleRoyale, true, 1, 2)

	_, next, err := Apply(s, Command{Type: CmdAssignRoomCode, UserID: 1, RoomCode: "AB12CD"})
	if err != nil {
		t.Fatalf("assign room code failed: %v", err)
	}
	if next.Challenge.RoomCode == nil || *next.Challenge.RoomCode != "AB12CD" {
		t.Fatalf("room code not set: %+v", next.Challenge.RoomCode)
	}

	if _, _, err := Apply(next, Command{Type: CmdAssignRoomCode, UserID: 1, RoomCode: "ZZ99ZZ"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("room code is immutable once generated, want ErrInvalidState, got %v", err)
	}
	if _, _, err := Apply(s, Command{Type: CmdAssignRoomCode, UserID: 2, RoomCode: "AB12CD"}); !errors.Is(err, ErrNotHost) {
		t.Fatalf("want ErrNotHost, got %v", err)
	}
}

func TestJoin_CapacityEnforced(t *testing.T) {
	s := newState(models.ModeOneVsOne, true, 1, 2) // 2 of 2 seats taken

	_, next, err := Apply(s, Command{Type: CmdJoin, UserID: 3, Now: at(time.Minute)})
	if !errors.Is(err, ErrLobbyFull) {
		t.Fatalf("want ErrLobbyFull, got %v", err)
	}
	if len(next.Participants) != 2 {
		t.Fatalf("participant set must be unchanged on LobbyFull, got %d", len(next.Participants))
	}
}

func TestJoin_FillsFreedSeat(t *testing.T) {
	// A refusal frees a 2v2 seat; a code holder can take it
	s := newState(models.ModeTwoVsTwo, true, 1, 2, 3, 4)
	s = mustApply(t, s, Command{Type: CmdRefuse, UserID: 4, Now: at(time.Minute)})

	_, next, err := Apply(s, Command{Type: CmdJoin, UserID: 9, Now: at(2 * time.Minute)})
	if err != nil {
		t.Fatalf("join into freed seat failed: %v", err)
	}
	p := next.Participant(9)
	if p == nil || p.Status != models.ParticipantAccepted {
		t.Fatalf("joiner must come in accepted, got %+v", p)
	}
}

func TestJoin_Idempotent(t *testing.T) {
	s := newState(models.ModeBattleRoyale, true, 1, 2)

	events, next, err := Apply(s, Command{Type: CmdJoin, UserID: 1, Now: at(time.Minute)})
	if err != nil || events != nil {
		t.Fatalf("rejoining as an existing participant must be a no-op, got events=%+v err=%v", events, err)
	}
	if len(next.Participants) != len(s.Participants) {
		t.Fatalf("participant set must be unchanged")
	}
}

func TestHostInvariant_SingleHostThroughMigrations(t *testing.T) {
	s := newState(models.ModeBattleRoyale, true, 1, 2, 3, 4)
	s = mustApply(t, s, Command{Type: CmdAccept, UserID: 2, Now: at(1 * time.Minute)})
	s = mustApply(t, s, Command{Type: CmdAccept, UserID: 3, Now: at(2 * time.Minute)})
	s = mustApply(t, s, Command{Type: CmdLeave, UserID: 1, Now: at(3 * time.Minute)})
	s = mustApply(t, s, Command{Type: CmdLeave, UserID: 2, Now: at(4 * time.Minute)})

	hosts := 0
	for _, p := range s.Participants {
		if p.Role == models.RoleHost {
			hosts++
		}
	}
	if hosts != 1 {
		t.Fatalf("exactly one host expected while non-terminal, got %d", hosts)
	}
	if s.Host().UserID != 3 {
		t.Fatalf("host should have migrated to user 3, got %d", s.Host().UserID)
	}
}

func TestSurvival_SoloQuorum(t *testing.T) {
	if QuorumMin(models.ModeSurvival) != 1 {
		t.Fatalf("survival is solo-capable")
	}
	if QuorumMin(models.ModeTwoVsTwo) != 4 || Capacity(models.ModeTwoVsTwo) != 4 {
		t.Fatalf("2v2 needs exactly four players")
	}
	if Capacity(models.ModeBattleRoyale) != BattleRoyaleCap {
		t.Fatalf("battleroyale capacity mismatch")
	}
}
