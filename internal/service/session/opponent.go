package session

import (
	"context"
	"time"

	"github.com/park285/chesscake-server/internal/chess/rules"
	"github.com/park285/chesscake-server/internal/domain"
	"go.uber.org/zap"
)

func (r *Registry) scheduleOpponentLocked(s *GameSession) {
	r.cancelOpponentLocked(s)
	gen := s.opponentGen
	id := s.id
	s.opponentTimer = time.AfterFunc(r.opts.OpponentDelay, func() {
		r.opponentMove(id, gen)
	})
}

// cancelOpponentLocked stops a pending reply and invalidates any in flight.
func (r *Registry) cancelOpponentLocked(s *GameSession) {
	if s.opponentTimer != nil {
		s.opponentTimer.Stop()
		s.opponentTimer = nil
	}
	s.opponentGen++
}

// opponentMove plays the automated reply. The search runs without the
// session lock; the chosen move re-enters the ordinary pipeline.
func (r *Registry) opponentMove(id string, gen int) {
	s, err := r.get(id)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.opponentGen != gen || !s.computerToMove() {
		s.mu.Unlock()
		return
	}
	fen := s.board.FEN()
	useSearch := s.settings.Mode == domain.ModePlayerVsComputer && r.search != nil
	s.mu.Unlock()

	var searched *rules.Move
	if useSearch {
		searched = r.searchMove(id, fen)
	}

	s.mu.Lock()
	if s.opponentGen != gen || !s.computerToMove() {
		s.mu.Unlock()
		return
	}
	s.opponentTimer = nil

	ok := false
	var h *handoff
	if searched != nil {
		ok, h = r.applyLocked(s, *searched)
		if !ok {
			r.logger.Warn("opponent_search_move_rejected",
				zap.String("session_id", id),
				zap.String("move", searched.UCI()),
			)
		}
	}
	if !ok {
		if mv, found := seededMove(s); found {
			if useSearch {
				r.logger.Info("opponent_fallback", zap.String("session_id", id), zap.String("move", mv.UCI()))
			}
			ok, h = r.applyLocked(s, mv)
		}
	}
	snap := s.snapshot()
	s.mu.Unlock()

	if !ok {
		r.logger.Error("opponent_no_move", zap.String("session_id", id), zap.String("fen", fen))
		return
	}
	r.finish(snap, h, true)
}

func (r *Registry) searchMove(id, fen string) *rules.Move {
	ctx, cancel := context.WithTimeout(r.ctx, r.opts.Budget.Timeout())
	defer cancel()

	raw, err := r.search.BestMove(ctx, fen, r.opts.Budget)
	if err != nil {
		r.logger.Warn("opponent_search_failed", zap.String("session_id", id), zap.Error(err))
		return nil
	}
	mv, err := rules.ParseUCI(raw)
	if err != nil {
		r.logger.Warn("opponent_search_malformed", zap.String("session_id", id), zap.String("move", raw))
		return nil
	}
	return &mv
}

// seededMove draws uniformly from the sorted fallback candidates with the
// session's seeded generator, so a given seed always replays the same choices.
func seededMove(s *GameSession) (rules.Move, bool) {
	legal := fallbackCandidates(s.board.LegalMoves())
	if len(legal) == 0 {
		return rules.Move{}, false
	}
	mv, err := rules.ParseUCI(legal[s.rng.Intn(len(legal))])
	if err != nil {
		return rules.Move{}, false
	}
	return mv, true
}

// fallbackCandidates lists legal moves in UCI order with each promotion
// collapsed to its queen variant.
func fallbackCandidates(moves []rules.Move) []string {
	kept := moves[:0:0]
	for _, m := range moves {
		if m.Promotion != "" && m.Promotion != "q" {
			continue
		}
		kept = append(kept, m)
	}
	return sortedUCI(kept)
}
