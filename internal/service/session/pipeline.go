package session

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/park285/chesscake-server/internal/chess/rules"
	"github.com/park285/chesscake-server/internal/domain"
	"go.uber.org/zap"
)

// MoveIntent is a move in square-pair form.
type MoveIntent = rules.Move

// Apply feeds one move through the pipeline. Rejections (unknown game aside)
// are reported as false with the session untouched.
func (r *Registry) Apply(ctx context.Context, id string, intent MoveIntent) (bool, error) {
	s, err := r.get(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	ok, h := r.applyLocked(s, intent)
	snap := s.snapshot()
	s.mu.Unlock()

	r.finish(snap, h, ok)
	return ok, nil
}

// ApplyAs checks that username owns the side to move before applying.
func (r *Registry) ApplyAs(ctx context.Context, id, username string, intent MoveIntent) (bool, error) {
	s, err := r.get(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	if err := s.checkTurnOwner(username); err != nil {
		s.mu.Unlock()
		return false, err
	}
	ok, h := r.applyLocked(s, intent)
	snap := s.snapshot()
	s.mu.Unlock()

	r.finish(snap, h, ok)
	return ok, nil
}

func (s *GameSession) checkTurnOwner(username string) error {
	slot := s.slotOf(username)
	switch {
	case slot == domain.SlotNone || username == domain.ComputerUsername:
		return ErrNotParticipant
	case s.outcome.IsOver:
		return ErrGameOver
	case s.awaitingOpponent():
		return ErrAwaitingOpponent
	case s.player(slot).Side != s.turn:
		return ErrNotYourTurn
	}
	return nil
}

// applyLocked runs validate, commit, terminal detection and rescheduling.
// A non-nil handoff must be dispatched after the lock is released.
func (r *Registry) applyLocked(s *GameSession, intent MoveIntent) (bool, *handoff) {
	if s.outcome.IsOver || s.awaitingOpponent() {
		return false, nil
	}
	intent = intent.Normalize()
	if err := intent.Validate(); err != nil {
		return false, nil
	}

	next, rec, err := s.board.Apply(intent)
	if err != nil && errors.Is(err, rules.ErrIllegalMove) && intent.Promotion == "" {
		promoted := intent
		promoted.Promotion = "q"
		next, rec, err = s.board.Apply(promoted)
	}
	if err != nil {
		r.logger.Debug("session_move_rejected",
			zap.String("session_id", s.id),
			zap.String("move", intent.UCI()),
			zap.Error(err),
		)
		return false, nil
	}

	mover := s.slotForSide(s.turn)
	s.board = next
	s.turn = next.Turn()
	s.lastMove = &LastMove{Square: rec.To, Piece: rec.Piece, UCI: rec.UCI, SAN: rec.SAN}
	if s.meta.StartedAt.IsZero() {
		s.meta.StartedAt = r.now()
	}
	if next.Len() >= s.undo.floor {
		s.undo.enabled = true
	}
	if s.drawOffer != domain.SlotNone && s.drawOffer != mover {
		s.drawOffer = domain.SlotNone
	}
	s.touch()

	r.logger.Debug("session_move",
		zap.String("session_id", s.id),
		zap.String("player", s.player(mover).Username),
		zap.String("uci", rec.UCI),
		zap.String("san", rec.SAN),
	)

	if reason, winner, over := terminal(next, mover); over {
		return true, r.settleLocked(s, winner, reason)
	}

	r.cancelOpponentLocked(s)
	if s.computerToMove() {
		r.scheduleOpponentLocked(s)
	}
	r.startClockLocked(s, s.slotForSide(s.turn))
	return true, nil
}

// terminal evaluates end conditions in fixed priority order.
func terminal(b rules.Board, mover domain.Slot) (domain.Reason, domain.Slot, bool) {
	switch b.Status() {
	case rules.StatusCheckmate:
		return domain.ReasonCheckmate, mover, true
	case rules.StatusStalemate:
		return domain.ReasonStalemate, domain.SlotNone, true
	case rules.StatusInsufficientMaterial:
		return domain.ReasonInsufficientMaterial, domain.SlotNone, true
	}
	if b.Threefold() {
		return domain.ReasonThreefoldRepetition, domain.SlotNone, true
	}
	if b.FiftyMoveRule() {
		return domain.ReasonFiftyMoveRule, domain.SlotNone, true
	}
	return "", domain.SlotNone, false
}

// finish publishes a state change and dispatches any settlement handoff.
func (r *Registry) finish(snap Snapshot, h *handoff, changed bool) {
	if h != nil {
		r.dispatch(h)
	}
	if changed || h != nil {
		r.notify(snap)
	}
}

// LegalMoves lists the moves available to the side to move, sorted.
func (r *Registry) LegalMoves(id string) ([]string, error) {
	s, err := r.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome.IsOver {
		return nil, nil
	}
	return sortedUCI(s.board.LegalMoves()), nil
}

func sortedUCI(moves []rules.Move) []string {
	out := make([]string, 0, len(moves))
	for _, m := range moves {
		out = append(out, m.UCI())
	}
	slices.Sort(out)
	return out
}

func elapsedMinutes(start, end time.Time) float64 {
	if start.IsZero() || end.Before(start) {
		return 0
	}
	return end.Sub(start).Minutes()
}
