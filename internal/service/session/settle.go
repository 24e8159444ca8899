package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chesscake-server/internal/chess/rules"
	"github.com/park285/chesscake-server/internal/domain"
	"github.com/park285/chesscake-server/internal/rating"
	"go.uber.org/zap"
)

// handoff is the persistence work produced by a settlement.
type handoff struct {
	record  domain.MatchRecord
	updates map[string]domain.RatingUpdate
}

// settleLocked records the outcome once. Later calls return nil.
func (r *Registry) settleLocked(s *GameSession, winner domain.Slot, reason domain.Reason) *handoff {
	if s.persisted || s.outcome.IsOver {
		return nil
	}
	r.stopClockLocked(s)
	r.cancelOpponentLocked(s)

	now := r.now()
	s.outcome = Outcome{IsOver: true, Winner: winner, Reason: reason}
	s.meta.EndedAt = now
	s.drawOffer = domain.SlotNone
	s.undo.enabled = false

	h := &handoff{updates: make(map[string]domain.RatingUpdate)}
	p1 := s.matchPlayer(0)
	p2 := s.matchPlayer(1)
	rankUsed, rankAfter := 0, 0

	switch s.settings.Mode {
	case domain.ModePlayerVsPlayer, domain.ModeKriegspiel:
		d1, d2 := rating.Pair(p1.RatingBefore, p2.RatingBefore, scoreFor(winner))
		p1.RatingAfter, p1.RatingDelta = p1.RatingBefore+d1, d1
		p2.RatingAfter, p2.RatingDelta = p2.RatingBefore+d2, d2
		h.updates[p1.Username] = eloUpdate(s.settings.Mode, p1.RatingAfter)
		h.updates[p2.Username] = eloUpdate(s.settings.Mode, p2.RatingAfter)
		s.players[0].Rating = p1.RatingAfter
		s.players[1].Rating = p2.RatingAfter

	case domain.ModePlayerVsComputer:
		rankUsed = s.settings.Rank
		rankAfter = rankUsed
		if winner != domain.SlotNone {
			rankAfter += rating.RankDelta(rankUsed, winner == domain.SlotPlayer1)
		}
		p1.RatingBefore, p1.RatingAfter, p1.RatingDelta = rankUsed, rankAfter, rankAfter-rankUsed
		if rankAfter != rankUsed {
			v := rankAfter
			h.updates[p1.Username] = domain.RatingUpdate{CurrentRank: &v}
		}
		s.players[0].Rating = rankAfter

	case domain.ModeDailyChallenge:
		rankUsed, rankAfter = s.settings.Rank, s.settings.Rank
	}

	h.record = domain.MatchRecord{
		ID:          uuid.NewString(),
		SessionID:   s.id,
		Mode:        s.settings.Mode,
		Player1:     p1,
		Player2:     p2,
		RankUsed:    rankUsed,
		RankAfter:   rankAfter,
		Seed:        s.meta.Seed,
		InitialFEN:  s.board.StartFEN(),
		FinalFEN:    s.board.FEN(),
		MovesUCI:    s.board.MovesUCI(),
		MovesSAN:    s.board.MovesSAN(),
		Winner:      winner,
		Reason:      reason,
		StartedAt:   s.meta.StartedAt,
		EndedAt:     now,
		DurationMin: elapsedMinutes(s.meta.StartedAt, now),
	}
	for _, rec := range s.board.History() {
		if rec.Side == domain.White {
			h.record.WhiteTurns++
		} else {
			h.record.BlackTurns++
		}
	}
	h.record.PGN = s.pgn(winner, reason, now)

	s.persisted = true
	s.touch()

	id := s.id
	s.evictTimer = time.AfterFunc(r.opts.EvictAfter, func() { r.Evict(id) })

	r.logger.Info("session_settle",
		zap.String("session_id", s.id),
		zap.String("mode", string(s.settings.Mode)),
		zap.String("winner", string(winner)),
		zap.String("reason", string(reason)),
		zap.Int("half_moves", s.board.Len()),
	)
	return h
}

func (s *GameSession) matchPlayer(i int) domain.MatchPlayer {
	p := s.players[i]
	return domain.MatchPlayer{
		Username:         p.Username,
		Side:             p.Side,
		RatingBefore:     p.Rating,
		RatingAfter:      p.Rating,
		RemainingSeconds: p.RemainingSeconds,
	}
}

func (s *GameSession) pgn(winner domain.Slot, reason domain.Reason, at time.Time) string {
	h := rules.PGNHeader{
		Event:       "ChessCake " + string(s.settings.Mode),
		Date:        at,
		StartFEN:    s.board.StartFEN(),
		Termination: string(reason),
	}
	for _, p := range s.players {
		if p.Side == domain.White {
			h.White = p.Username
		} else {
			h.Black = p.Username
		}
	}
	winSide := ""
	if winner != domain.SlotNone {
		winSide = string(s.player(winner).Side)
	}
	return rules.BuildPGN(h, s.board.MovesSAN(), rules.PGNResult(winSide))
}

func scoreFor(winner domain.Slot) float64 {
	switch winner {
	case domain.SlotPlayer1:
		return rating.ScoreWin
	case domain.SlotPlayer2:
		return rating.ScoreLoss
	default:
		return rating.ScoreDraw
	}
}

func eloUpdate(mode domain.Mode, value int) domain.RatingUpdate {
	v := value
	if mode == domain.ModeKriegspiel {
		return domain.RatingUpdate{KriegElo: &v}
	}
	return domain.RatingUpdate{Elo: &v}
}

// dispatch writes ratings and the match record in the background. Failures
// are logged and never reopen the game.
func (r *Registry) dispatch(h *handoff) {
	r.handoffs.Add(1)
	go func() {
		defer r.handoffs.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.HandoffTimeout)
		defer cancel()

		log := r.logger.With(zap.String("session_id", h.record.SessionID))
		if r.ratings != nil {
			for username, upd := range h.updates {
				if username == "" || username == domain.ComputerUsername || upd.Empty() {
					continue
				}
				if err := r.ratings.UpdateRatings(ctx, username, upd); err != nil {
					log.Error("rating_update_failed", zap.String("username", username), zap.Error(err))
				}
			}
		}
		if r.matches != nil {
			rec := h.record
			if err := r.matches.SaveMatch(ctx, &rec); err != nil {
				log.Error("match_save_failed", zap.Error(err))
			}
		}

		r.mu.RLock()
		obs := r.observers
		r.mu.RUnlock()
		for _, o := range obs {
			o.SessionSettled(h.record)
		}
	}()
}

// Resign ends the game in the opponent's favour. Resigning a session that
// never got an opponent simply removes it.
func (r *Registry) Resign(ctx context.Context, id, username string) (*Snapshot, error) {
	s, err := r.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	slot := s.slotOf(username)
	switch {
	case slot == domain.SlotNone || username == domain.ComputerUsername:
		s.mu.Unlock()
		return nil, ErrNotParticipant
	case s.outcome.IsOver:
		s.mu.Unlock()
		return nil, ErrGameOver
	case s.awaitingOpponent():
		snap := s.snapshot()
		s.mu.Unlock()
		r.Evict(id)
		return &snap, nil
	}
	h := r.settleLocked(s, slot.Other(), domain.ReasonResignation)
	snap := s.snapshot()
	s.mu.Unlock()

	r.finish(snap, h, true)
	return &snap, nil
}

// OfferDraw records a standing offer from username. Only human-vs-human modes accept offers.
func (r *Registry) OfferDraw(ctx context.Context, id, username string) (*Snapshot, error) {
	s, err := r.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if err := s.checkDrawParticipant(username); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.drawOffer = s.slotOf(username)
	s.touch()
	snap := s.snapshot()
	s.mu.Unlock()

	r.notify(snap)
	return &snap, nil
}

// AcceptDraw settles a draw by agreement if the opponent has an offer standing.
func (r *Registry) AcceptDraw(ctx context.Context, id, username string) (*Snapshot, error) {
	s, err := r.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if err := s.checkDrawParticipant(username); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.drawOffer != s.slotOf(username).Other() {
		s.mu.Unlock()
		return nil, ErrNoDrawOffer
	}
	h := r.settleLocked(s, domain.SlotNone, domain.ReasonAgreement)
	snap := s.snapshot()
	s.mu.Unlock()

	r.finish(snap, h, true)
	return &snap, nil
}

func (s *GameSession) checkDrawParticipant(username string) error {
	switch {
	case s.slotOf(username) == domain.SlotNone || username == domain.ComputerUsername:
		return ErrNotParticipant
	case s.outcome.IsOver:
		return ErrGameOver
	case s.settings.Mode.Automated():
		return ErrDrawNotAvailable
	case s.awaitingOpponent():
		return ErrAwaitingOpponent
	}
	return nil
}

// Settle ends a session with the given result. It reports false when the
// session had already been settled.
func (r *Registry) Settle(ctx context.Context, id string, winner domain.Slot, reason domain.Reason) (bool, error) {
	s, err := r.get(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	h := r.settleLocked(s, winner, reason)
	snap := s.snapshot()
	s.mu.Unlock()

	r.finish(snap, h, false)
	return h != nil, nil
}
