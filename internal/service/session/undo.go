package session

import (
	"context"

	"github.com/park285/chesscake-server/internal/domain"
	"go.uber.org/zap"
)

func (s *GameSession) undoAllowed() bool {
	return s.settings.Mode != domain.ModeKriegspiel &&
		!s.outcome.IsOver &&
		s.undo.enabled &&
		s.board.Len() >= s.undo.floor
}

// Undo retracts the last two half-moves. Clocks keep their remaining time.
func (r *Registry) Undo(ctx context.Context, id string) (bool, error) {
	s, err := r.get(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	ok := r.undoLocked(s)
	snap := s.snapshot()
	s.mu.Unlock()

	r.finish(snap, nil, ok)
	return ok, nil
}

// UndoAs lets the side to move take back its own last move and the reply.
func (r *Registry) UndoAs(ctx context.Context, id, username string) (bool, error) {
	s, err := r.get(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	if err := s.checkTurnOwner(username); err != nil {
		s.mu.Unlock()
		return false, err
	}
	if s.settings.Mode == domain.ModeKriegspiel {
		s.mu.Unlock()
		return false, ErrUndoNotAllowed
	}
	ok := r.undoLocked(s)
	snap := s.snapshot()
	s.mu.Unlock()

	r.finish(snap, nil, ok)
	return ok, nil
}

func (r *Registry) undoLocked(s *GameSession) bool {
	if !s.undoAllowed() {
		return false
	}
	before := s.board.Len()
	prev, err := s.board.Retract(2)
	if err != nil {
		r.logger.Warn("session_undo_failed", zap.String("session_id", s.id), zap.Error(err))
		return false
	}

	s.board = prev
	s.turn = prev.Turn()
	s.undo.enabled = false
	s.undo.floor = before + 1
	s.drawOffer = domain.SlotNone
	s.lastMove = nil
	if hist := prev.History(); len(hist) > 0 {
		last := hist[len(hist)-1]
		s.lastMove = &LastMove{Square: last.To, Piece: last.Piece, UCI: last.UCI, SAN: last.SAN}
	}
	s.touch()

	r.cancelOpponentLocked(s)
	if s.computerToMove() {
		r.scheduleOpponentLocked(s)
	}
	if turnSlot := s.slotForSide(s.turn); s.clockSlot != domain.SlotNone && s.clockSlot != turnSlot {
		r.startClockLocked(s, turnSlot)
	}

	r.logger.Debug("session_undo",
		zap.String("session_id", s.id),
		zap.Int("half_moves", prev.Len()),
		zap.Int("next_floor", s.undo.floor),
	)
	return true
}
