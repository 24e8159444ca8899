package chess

import (
	"time"

	"github.com/park285/chesscake-server/internal/chess/uci"
)

// Budget bounds one opponent search. Zero fields are omitted.
type Budget struct {
	Depth    int
	MoveTime time.Duration
}

func (b Budget) IsZero() bool { return b.Depth <= 0 && b.MoveTime <= 0 }

func (b Budget) limits() uci.Limits {
	return uci.Limits{Depth: b.Depth, MoveTimeMillis: int(b.MoveTime / time.Millisecond)}
}

// Timeout is the wall-clock allowance for a search with this budget.
func (b Budget) Timeout() time.Duration {
	const buffer = 2 * time.Second
	if b.MoveTime > 0 {
		return 2*b.MoveTime + buffer
	}
	if b.Depth > 0 {
		return min(max(time.Duration(b.Depth)*200*time.Millisecond, 3*time.Second), 15*time.Second) + buffer
	}
	return 3*time.Second + buffer
}
