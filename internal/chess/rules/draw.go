package rules

import "strings"

// FiftyMoveWindow is the number of half-moves scanned for the fifty-move rule.
const FiftyMoveWindow = 50

// RepetitionKey reduces a FEN to piece placement, side to move and castling rights.
func RepetitionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 3 {
		return strings.TrimSpace(fen)
	}
	return fields[0] + " " + fields[1] + " " + fields[2]
}

// Threefold reports whether any (placement, side, castling) tuple has occurred
// three times across the positions before each recorded move plus current.
func Threefold(history []Record, current string) bool {
	counts := make(map[string]int, len(history)+1)
	for _, r := range history {
		k := RepetitionKey(r.Before)
		counts[k]++
		if counts[k] >= 3 {
			return true
		}
	}
	k := RepetitionKey(current)
	counts[k]++
	return counts[k] >= 3
}

// FiftyMoveRule reports whether the most recent 50 half-moves contain no pawn move and no capture.
func FiftyMoveRule(history []Record) bool {
	if len(history) < FiftyMoveWindow {
		return false
	}
	for _, r := range history[len(history)-FiftyMoveWindow:] {
		if r.PawnMove() || r.Flags.Has(FlagCapture) {
			return false
		}
	}
	return true
}

// Threefold on the board's own history.
func (b Board) Threefold() bool { return Threefold(b.history, b.FEN()) }

func (b Board) FiftyMoveRule() bool { return FiftyMoveRule(b.history) }
