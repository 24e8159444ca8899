package chesspresenter

import (
	"github.com/park285/chesscake-server/internal/domain"
	"github.com/park285/chesscake-server/internal/msgcat"
	"github.com/park285/chesscake-server/internal/service/session"
)

// Formatter turns outcomes and error codes into catalog text.
type Formatter struct {
	cat *msgcat.Catalog
}

func NewFormatter(cat *msgcat.Catalog) *Formatter {
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	return &Formatter{cat: cat}
}

// Outcome describes a finished game, or returns "" while it is running.
func (f *Formatter) Outcome(snap session.Snapshot) string {
	if !snap.Outcome.IsOver {
		return ""
	}
	winner := ""
	switch snap.Outcome.Winner {
	case domain.SlotPlayer1:
		winner = snap.Players[0].Username
	case domain.SlotPlayer2:
		winner = snap.Players[1].Username
	}
	return f.cat.Text("results."+string(snap.Outcome.Reason), map[string]any{"Winner": winner}, string(snap.Outcome.Reason))
}

// Error renders errors.<code>, falling back to the generic message.
func (f *Formatter) Error(code string, data map[string]any) string {
	fallback := f.cat.Text("errors.internal", nil, "internal error")
	return f.cat.Text("errors."+code, data, fallback)
}

// MatchResult is win, loss or draw from username's point of view.
func MatchResult(rec domain.MatchRecord, username string) string {
	switch {
	case rec.Winner == domain.SlotNone:
		return "draw"
	case rec.Winner == domain.SlotPlayer1 && rec.Player1.Username == username,
		rec.Winner == domain.SlotPlayer2 && rec.Player2.Username == username:
		return "win"
	}
	return "loss"
}
