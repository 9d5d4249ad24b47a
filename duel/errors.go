package duel

import "errors"

var ErrInvalidState = errors.New("command not allowed in current challenge state")
var ErrNotHost = errors.New("only the host can do this")
var ErrNotParticipant = errors.New("user is not part of this challenge")
var ErrAlreadyDecided = errors.New("participant already decided otherwise")
var ErrQuorumNotMet = errors.New("not enough accepted participants")
var ErrLobbyFull = errors.New("challenge is at capacity for its mode")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrInvalidMode = errors.New("unknown challenge mode")
