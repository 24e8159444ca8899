// Package rating holds the ELO and ladder-rank arithmetic applied at settlement.
package rating

import "math"

const (
	ScoreWin  = 1.0
	ScoreDraw = 0.5
	ScoreLoss = 0.0
)

// KFactor is tiered by the player's own pre-game rating.
func KFactor(self int) float64 {
	switch {
	case self > 2400:
		return 16
	case self >= 2100:
		return 24
	default:
		return 32
	}
}

// Expected is the logistic expected score of self against opp.
func Expected(self, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-self)/400))
}

// EloDelta is the rounded rating change for self given the actual score.
func EloDelta(self, opp int, score float64) int {
	return int(math.Round(KFactor(self) * (score - Expected(self, opp))))
}

// Pair computes both players' deltas independently from their pre-game ratings.
func Pair(r1, r2 int, score1 float64) (d1, d2 int) {
	return EloDelta(r1, r2, score1), EloDelta(r2, r1, 1-score1)
}

// RankStep is the ladder step size at a given rank.
func RankStep(rank int) int {
	return int(math.Round(math.Exp(-0.01*float64(rank)+2.31) + 5))
}

// RankDelta is the change applied to the human's ladder rank. A loss that
// would take the rank to zero or below leaves it unchanged.
func RankDelta(rank int, won bool) int {
	step := RankStep(rank)
	if won {
		return step
	}
	if rank-step <= 0 {
		return 0
	}
	return -step
}
