package chesspresenter

import (
	"strings"
	"time"

	"github.com/park285/chesscake-server/internal/domain"
	"github.com/park285/chesscake-server/internal/service/session"
	"github.com/park285/chesscake-server/pkg/chessdto"
)

const hiddenMove = "?"

// ToDTOState converts a snapshot for viewer. A live kriegspiel game shows a
// participant only their own pieces and moves; spectators see neither side.
func (f *Formatter) ToDTOState(snap session.Snapshot, viewer string) *chessdto.GameState {
	out := &chessdto.GameState{
		ID:              snap.ID,
		Mode:            string(snap.Settings.Mode),
		DifficultyRank:  snap.Settings.Rank,
		DurationMinutes: snap.Settings.DurationMinutes,
		Players:         make([]chessdto.PlayerState, 0, len(snap.Players)),
		FEN:             snap.FEN,
		StartFEN:        snap.StartFEN,
		Turn:            string(snap.Turn),
		TurnSlot:        string(snap.TurnSlot),
		MovesUCI:        append([]string{}, snap.MovesUCI...),
		MovesSAN:        append([]string{}, snap.MovesSAN...),
		UndoAvailable:   snap.UndoAvailable,
		Seed:            snap.Meta.Seed,
		CreatedAt:       snap.Meta.CreatedAt,
		StartedAt:       timePtr(snap.Meta.StartedAt),
		EndedAt:         timePtr(snap.Meta.EndedAt),
		Version:         snap.Version,
	}
	for _, p := range snap.Players {
		out.Players = append(out.Players, chessdto.PlayerState{
			Username:         p.Username,
			Side:             string(p.Side),
			RemainingSeconds: p.RemainingSeconds,
			Rating:           p.Rating,
		})
	}
	if snap.DrawOffer != domain.SlotNone {
		out.DrawOffer = string(snap.DrawOffer)
	}
	if snap.ActiveClock != domain.SlotNone {
		out.ActiveClock = string(snap.ActiveClock)
	}
	if lm := snap.LastMove; lm != nil {
		out.LastMove = &chessdto.LastMove{Square: lm.Square, Piece: lm.Piece, UCI: lm.UCI, SAN: lm.SAN}
	}
	if snap.Outcome.IsOver {
		out.Outcome = &chessdto.Outcome{
			Winner:  string(snap.Outcome.Winner),
			Reason:  string(snap.Outcome.Reason),
			Message: f.Outcome(snap),
		}
	}

	if snap.Settings.Mode == domain.ModeKriegspiel && !snap.Outcome.IsOver {
		redact(out, snap, viewer)
	}
	return out
}

func redact(out *chessdto.GameState, snap session.Snapshot, viewer string) {
	out.Hidden = true
	var keep domain.Side
	if slot := snap.SlotOf(viewer); slot != domain.SlotNone {
		keep = snap.Players[slotIdx(slot)].Side
	}
	out.FEN = RedactFEN(snap.FEN, keep)
	out.StartFEN = RedactFEN(snap.StartFEN, keep)

	first := sideToMove(snap.StartFEN)
	for i := range out.MovesUCI {
		mover := first
		if i%2 == 1 {
			mover = first.Opposite()
		}
		if mover != keep {
			out.MovesUCI[i] = hiddenMove
			if i < len(out.MovesSAN) {
				out.MovesSAN[i] = hiddenMove
			}
		}
	}
	// the last mover is the side not on turn
	if out.LastMove != nil && snap.Turn.Opposite() != keep {
		out.LastMove = nil
	}
}

// RedactFEN blanks every piece not belonging to keep in the placement
// field. An empty keep blanks the whole board. Castling keeps only keep's
// rights; the en-passant square and halfmove clock are always cleared.
func RedactFEN(fen string, keep domain.Side) string {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return fen
	}
	var b strings.Builder
	empty := 0
	flush := func() {
		if empty > 0 {
			b.WriteByte(byte('0' + empty))
			empty = 0
		}
	}
	for _, c := range fields[0] {
		switch {
		case c == '/':
			flush()
			b.WriteRune(c)
		case c >= '1' && c <= '8':
			empty += int(c - '0')
		case keep == domain.White && c >= 'A' && c <= 'Z',
			keep == domain.Black && c >= 'a' && c <= 'z':
			flush()
			b.WriteRune(c)
		default:
			empty++
		}
	}
	flush()
	fields[0] = b.String()
	if len(fields) > 2 {
		fields[2] = ownCastling(fields[2], keep)
	}
	if len(fields) > 3 {
		fields[3] = "-"
	}
	if len(fields) > 4 {
		fields[4] = "0"
	}
	return strings.Join(fields, " ")
}

func ownCastling(rights string, keep domain.Side) string {
	var b strings.Builder
	for _, c := range rights {
		if (keep == domain.White && c >= 'A' && c <= 'Z') || (keep == domain.Black && c >= 'a' && c <= 'z') {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

func sideToMove(fen string) domain.Side {
	if fields := strings.Fields(fen); len(fields) > 1 && fields[1] == "b" {
		return domain.Black
	}
	return domain.White
}

func slotIdx(s domain.Slot) int {
	if s == domain.SlotPlayer2 {
		return 1
	}
	return 0
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func ToDTOSummary(snap session.Snapshot) chessdto.GameSummary {
	host := snap.Players[0]
	return chessdto.GameSummary{
		ID:              snap.ID,
		Mode:            string(snap.Settings.Mode),
		Host:            host.Username,
		HostRating:      host.Rating,
		DurationMinutes: snap.Settings.DurationMinutes,
		CreatedAt:       snap.Meta.CreatedAt,
	}
}

func ToDTOProfile(u *domain.UserRatings) *chessdto.Profile {
	if u == nil {
		return nil
	}
	return &chessdto.Profile{
		Username:    u.Username,
		Elo:         u.Elo,
		KriegElo:    u.KriegElo,
		CurrentRank: u.CurrentRank,
		UpdatedAt:   timePtr(u.UpdatedAt),
	}
}

func ToDTOStandings(st *domain.Standings) *chessdto.LeaderboardResponse {
	if st == nil {
		return nil
	}
	out := &chessdto.LeaderboardResponse{Track: string(st.Track), Top: make([]chessdto.LeaderboardEntry, 0, len(st.Top))}
	for _, e := range st.Top {
		out.Top = append(out.Top, chessdto.LeaderboardEntry{Place: e.Place, Username: e.Username, Value: e.Value})
	}
	if st.Me != nil {
		out.Me = &chessdto.LeaderboardEntry{Place: st.Me.Place, Username: st.Me.Username, Value: st.Me.Value}
	}
	return out
}

// ToDTOMatch summarises rec from username's side.
func ToDTOMatch(rec *domain.MatchRecord, username string) chessdto.MatchSummary {
	out := chessdto.MatchSummary{
		ID:        rec.ID,
		Mode:      string(rec.Mode),
		Reason:    string(rec.Reason),
		Result:    MatchResult(*rec, username),
		HalfMoves: len(rec.MovesUCI),
		PGN:       rec.PGN,
		EndedAt:   rec.EndedAt,
	}
	for _, p := range []domain.MatchPlayer{rec.Player1, rec.Player2} {
		if p.Side == domain.White {
			out.White = p.Username
		} else {
			out.Black = p.Username
		}
		if p.Username == username {
			out.RatingDelta = p.RatingDelta
		}
	}
	switch rec.Winner {
	case domain.SlotPlayer1:
		out.Winner = rec.Player1.Username
	case domain.SlotPlayer2:
		out.Winner = rec.Player2.Username
	}
	return out
}
