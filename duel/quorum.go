package duel

import "github.com/ROFL1ST/kuis-imk-sub000/models"

// BattleRoyaleCap bounds how many players a battleroyale lobby can hold.
const BattleRoyaleCap = 99

// QuorumMin returns the minimum number of accepted participants a mode
// needs before a session can run.
func QuorumMin(mode string) int {
	switch mode {
	case models.ModeOneVsOne:
		return 2
	case models.ModeTwoVsTwo:
		return 4
	case models.ModeBattleRoyale:
		return 2
	case models.ModeSurvival:
		return 1
	}
	return 2
}

// Capacity returns the maximum number of non-rejected participants a mode
// can hold.
func Capacity(mode string) int {
	switch mode {
	case models.ModeOneVsOne:
		return 2
	case models.ModeTwoVsTwo:
		return 4
	}
	return BattleRoyaleCap
}
