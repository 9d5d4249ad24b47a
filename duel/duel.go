package duel

import (
	"time"

	"github.com/ROFL1ST/kuis-imk-sub000/models"
)

// State is the in-memory view of one challenge that commands are applied
// against. It is loaded from the store, transformed, and persisted as a
// whole, so Apply never touches the database.
type State struct {
	Challenge    models.Challenge
	Participants []models.Participant
}

func (s State) clone() State {
	out := State{Challenge: s.Challenge}
	out.Participants = make([]models.Participant, len(s.Participants))
	copy(out.Participants, s.Participants)
	return out
}

// Participant returns the participant row for the given user, or nil.
func (s *State) Participant(userID uint) *models.Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// Host returns the participant currently holding launch authority, or nil.
func (s *State) Host() *models.Participant {
	for i := range s.Participants {
		if s.Participants[i].Role == models.RoleHost {
			return &s.Participants[i]
		}
	}
	return nil
}

// AcceptedCount counts participants that have accepted (or already
// finished, which implies a prior accept).
func (s *State) AcceptedCount() int {
	n := 0
	for i := range s.Participants {
		switch s.Participants[i].Status {
		case models.ParticipantAccepted, models.ParticipantFinished:
			n++
		}
	}
	return n
}

func (s *State) pendingCount() int {
	n := 0
	for i := range s.Participants {
		if s.Participants[i].Status == models.ParticipantPending {
			n++
		}
	}
	return n
}

func (s *State) nonRejectedCount() int {
	n := 0
	for i := range s.Participants {
		if s.Participants[i].Status != models.ParticipantRejected {
			n++
		}
	}
	return n
}

// QuorumMet reports whether enough participants have accepted for the
// challenge's mode.
func (s *State) QuorumMet() bool {
	return s.AcceptedCount() >= QuorumMin(s.Challenge.Mode)
}

type CommandType string

const (
	CmdAccept         CommandType = "Accept"
	CmdRefuse         CommandType = "Refuse"
	CmdLeave          CommandType = "Leave"
	CmdUpdateSettings CommandType = "UpdateSettings"
	CmdStart          CommandType = "Start"
	CmdSubmitScore    CommandType = "SubmitScore"
	CmdAssignRoomCode CommandType = "AssignRoomCode"
	CmdJoin           CommandType = "Join"
)

// Settings carries the optional fields of an update_settings command.
// Nil means "leave unchanged".
type Settings struct {
	Mode             *string
	TimeLimitSeconds *int
	IsRealtime       *bool
	QuizID           *uint
	WagerAmount      *int
}

type Command struct {
	Type      CommandType
	UserID    uint
	Score     int
	TimeTaken int
	RoomCode  string
	Settings  Settings
	Now       time.Time // acceptance timestamps come from here, not the wall clock
}

type EventType string

const (
	EvtPlayerUpdate   EventType = "player_update"
	EvtSettingsUpdate EventType = "settings_update"
	EvtHostMigration  EventType = "host_migration"
	// EvtStartAccepted never reaches clients. It tells the caller that the
	// start command was validated and the countdown should begin.
	EvtStartAccepted EventType = "start_accepted"
)

type Event struct {
	Type      EventType
	NewHostID uint
}

// Apply validates cmd against s and returns the events to publish plus the
// successor state. s itself is never mutated. A nil event slice with a nil
// error means the command was an idempotent repeat and changed nothing.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdAccept:
		return applyAccept(s, cmd)
	case CmdRefuse:
		return applyRefuse(s, cmd)
	case CmdLeave:
		return applyLeave(s, cmd)
	case CmdUpdateSettings:
		return applyUpdateSettings(s, cmd)
	case CmdStart:
		return applyStart(s, cmd)
	case CmdSubmitScore:
		return applySubmitScore(s, cmd)
	case CmdAssignRoomCode:
		return applyAssignRoomCode(s, cmd)
	case CmdJoin:
		return applyJoin(s, cmd)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// decisions (accept/refuse) stay legal while the lobby is open. An async
// challenge keeps admitting late deciders after quorum pushed it active;
// a realtime session is sealed the moment it starts.
func decisionAllowed(s State) error {
	switch s.Challenge.Status {
	case models.ChallengePending:
		return nil
	case models.ChallengeActive:
		if s.Challenge.IsRealtime {
			return ErrInvalidState
		}
		return nil
	}
	return ErrInvalidState
}

func applyAccept(s State, cmd Command) ([]Event, State, error) {
	if err := decisionAllowed(s); err != nil {
		return nil, s, err
	}
	p := s.Participant(cmd.UserID)
	if p == nil {
		return nil, s, ErrNotParticipant
	}
	switch p.Status {
	case models.ParticipantAccepted, models.ParticipantFinished:
		return nil, s, nil // idempotent repeat
	case models.ParticipantRejected:
		return nil, s, ErrAlreadyDecided
	}

	next := s.clone()
	np := next.Participant(cmd.UserID)
	np.Status = models.ParticipantAccepted
	now := cmd.Now
	np.AcceptedAt = &now

	// Async challenges need no explicit start: quorum is the starting gun.
	if !next.Challenge.IsRealtime &&
		next.Challenge.Status == models.ChallengePending &&
		next.QuorumMet() {
		next.Challenge.Status = models.ChallengeActive
	}
	return []Event{{Type: EvtPlayerUpdate}}, next, nil
}

func applyRefuse(s State, cmd Command) ([]Event, State, error) {
	if err := decisionAllowed(s); err != nil {
		return nil, s, err
	}
	p := s.Participant(cmd.UserID)
	if p == nil {
		return nil, s, ErrNotParticipant
	}
	switch p.Status {
	case models.ParticipantRejected:
		return nil, s, nil // idempotent repeat
	case models.ParticipantAccepted, models.ParticipantFinished:
		return nil, s, ErrAlreadyDecided
	}

	next := s.clone()
	next.Participant(cmd.UserID).Status = models.ParticipantRejected

	// With every invitation resolved and quorum unreachable, the whole
	// challenge is dead.
	if next.Challenge.Status == models.ChallengePending &&
		next.pendingCount() == 0 && !next.QuorumMet() {
		next.Challenge.Status = models.ChallengeRejected
	}
	finishIfComplete(&next)
	return []Event{{Type: EvtPlayerUpdate}}, next, nil
}

func applyLeave(s State, cmd Command) ([]Event, State, error) {
	if s.Challenge.Status != models.ChallengePending {
		return nil, s, ErrInvalidState
	}
	p := s.Participant(cmd.UserID)
	if p == nil {
		return nil, s, ErrNotParticipant
	}
	wasHost := p.Role == models.RoleHost

	next := s.clone()
	next.Participants = removeParticipant(next.Participants, cmd.UserID)

	var events []Event
	if wasHost {
		successor := earliestAccepted(next.Participants)
		if successor == nil {
			next.Challenge.Status = models.ChallengeCancelled
			return []Event{{Type: EvtPlayerUpdate}}, next, nil
		}
		successor.Role = models.RoleHost
		events = append(events, Event{Type: EvtHostMigration, NewHostID: successor.UserID})
	}

	// Nobody left to wait for and not enough players to ever run.
	if next.pendingCount() == 0 && !next.QuorumMet() {
		next.Challenge.Status = models.ChallengeCancelled
	}
	events = append(events, Event{Type: EvtPlayerUpdate})
	return events, next, nil
}

func applyUpdateSettings(s State, cmd Command) ([]Event, State, error) {
	if s.Challenge.Status != models.ChallengePending {
		return nil, s, ErrInvalidState
	}
	if err := requireHost(&s, cmd.UserID); err != nil {
		return nil, s, err
	}
	in := cmd.Settings
	if in.Mode != nil {
		if !models.IsValidMode(*in.Mode) {
			return nil, s, ErrInvalidMode
		}
		if s.nonRejectedCount() > Capacity(*in.Mode) {
			return nil, s, ErrLobbyFull
		}
	}

	next := s.clone()
	c := &next.Challenge
	if in.Mode != nil {
		c.Mode = *in.Mode
		if c.Mode == models.ModeSurvival {
			c.QuizID = 0
		}
	}
	if in.TimeLimitSeconds != nil {
		c.TimeLimitSeconds = *in.TimeLimitSeconds
	}
	if in.IsRealtime != nil {
		c.IsRealtime = *in.IsRealtime
	}
	if in.QuizID != nil && c.Mode != models.ModeSurvival {
		c.QuizID = *in.QuizID
	}
	if in.WagerAmount != nil {
		if *in.WagerAmount < 0 {
			return nil, s, ErrUnsupportedCommand
		}
		c.WagerAmount = *in.WagerAmount
	}
	return []Event{{Type: EvtSettingsUpdate}}, next, nil
}

func applyStart(s State, cmd Command) ([]Event, State, error) {
	if err := requireHost(&s, cmd.UserID); err != nil {
		return nil, s, err
	}
	if s.Challenge.Status != models.ChallengePending {
		return nil, s, ErrInvalidState
	}
	if !s.QuorumMet() {
		return nil, s, ErrQuorumNotMet
	}
	// No state change yet: the launcher owns the pending->active commit so
	// the countdown can abort cleanly if quorum is lost meanwhile.
	return []Event{{Type: EvtStartAccepted}}, s, nil
}

func applySubmitScore(s State, cmd Command) ([]Event, State, error) {
	if s.Challenge.Status != models.ChallengeActive {
		return nil, s, ErrInvalidState
	}
	if cmd.Score < 0 {
		return nil, s, ErrInvalidState
	}
	p := s.Participant(cmd.UserID)
	if p == nil {
		return nil, s, ErrNotParticipant
	}
	if p.Status == models.ParticipantFinished {
		return nil, s, ErrAlreadyDecided
	}
	if p.Status != models.ParticipantAccepted {
		return nil, s, ErrInvalidState
	}

	next := s.clone()
	np := next.Participant(cmd.UserID)
	np.Score = cmd.Score
	np.TimeTaken = cmd.TimeTaken
	np.Status = models.ParticipantFinished

	finishIfComplete(&next)
	return []Event{{Type: EvtPlayerUpdate}}, next, nil
}

func applyAssignRoomCode(s State, cmd Command) ([]Event, State, error) {
	if s.Challenge.Status != models.ChallengePending {
		return nil, s, ErrInvalidState
	}
	if err := requireHost(&s, cmd.UserID); err != nil {
		return nil, s, err
	}
	if s.Challenge.RoomCode != nil {
		return nil, s, ErrInvalidState
	}
	next := s.clone()
	code := cmd.RoomCode
	next.Challenge.RoomCode = &code
	return nil, next, nil
}

func applyJoin(s State, cmd Command) ([]Event, State, error) {
	if s.Challenge.Status != models.ChallengePending {
		return nil, s, ErrInvalidState
	}
	if p := s.Participant(cmd.UserID); p != nil {
		// Already in the lobby; joining again by code is a no-op.
		return nil, s, nil
	}
	if s.nonRejectedCount() >= Capacity(s.Challenge.Mode) {
		return nil, s, ErrLobbyFull
	}

	next := s.clone()
	now := cmd.Now
	next.Participants = append(next.Participants, models.Participant{
		ChallengeID: next.Challenge.ID,
		UserID:      cmd.UserID,
		Role:        models.RoleMember,
		Status:      models.ParticipantAccepted, // holding the code is consent
		Score:       models.ScoreNotSubmitted,
		AcceptedAt:  &now,
	})
	if !next.Challenge.IsRealtime && next.QuorumMet() {
		next.Challenge.Status = models.ChallengeActive
	}
	return []Event{{Type: EvtPlayerUpdate}}, next, nil
}

func requireHost(s *State, userID uint) error {
	p := s.Participant(userID)
	if p == nil {
		return ErrNotParticipant
	}
	if p.Role != models.RoleHost {
		return ErrNotHost
	}
	return nil
}

// finishIfComplete marks an active challenge finished once every accepted
// participant has a recorded score.
func finishIfComplete(s *State) {
	if s.Challenge.Status != models.ChallengeActive {
		return
	}
	finished := 0
	for i := range s.Participants {
		switch s.Participants[i].Status {
		case models.ParticipantAccepted:
			return // someone is still playing
		case models.ParticipantFinished:
			finished++
		}
	}
	if finished > 0 {
		s.Challenge.Status = models.ChallengeFinished
	}
}

// earliestAccepted picks the replacement host: the accepted participant
// with the oldest acceptance timestamp, participant id breaking ties.
func earliestAccepted(ps []models.Participant) *models.Participant {
	var best *models.Participant
	for i := range ps {
		p := &ps[i]
		if p.Status != models.ParticipantAccepted {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		switch {
		case p.AcceptedAt == nil:
		case best.AcceptedAt == nil, p.AcceptedAt.Before(*best.AcceptedAt):
			best = p
		case p.AcceptedAt.Equal(*best.AcceptedAt) && p.ID < best.ID:
			best = p
		}
	}
	return best
}

func removeParticipant(ps []models.Participant, userID uint) []models.Participant {
	out := ps[:0]
	for _, p := range ps {
		if p.UserID != userID {
			out = append(out, p)
		}
	}
	return out
}
