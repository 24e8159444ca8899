package session

import (
	"context"
	"time"

	"github.com/park285/chesscake-server/internal/domain"
	"go.uber.org/zap"
)

// startClockLocked stops whatever clock is running and starts slot's.
// The generation counter makes a tick from a superseded clock a no-op.
func (r *Registry) startClockLocked(s *GameSession, slot domain.Slot) {
	r.stopClockLocked(s)
	if s.outcome.IsOver || slot == domain.SlotNone {
		return
	}
	ctx, cancel := context.WithCancel(r.ctx)
	s.clockGen++
	s.clockSlot = slot
	s.clockCancel = cancel
	go r.runClock(ctx, s, slot, s.clockGen)
}

func (r *Registry) stopClockLocked(s *GameSession) {
	if s.clockCancel != nil {
		s.clockCancel()
		s.clockCancel = nil
	}
	s.clockGen++
	s.clockSlot = domain.SlotNone
}

func (r *Registry) runClock(ctx context.Context, s *GameSession, slot domain.Slot, gen int) {
	t := time.NewTicker(r.opts.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if stop := r.tick(s, slot, gen); stop {
				return
			}
		}
	}
}

// tick charges one second to slot. It reports whether the clock should stop.
func (r *Registry) tick(s *GameSession, slot domain.Slot, gen int) bool {
	s.mu.Lock()
	if s.outcome.IsOver || s.clockGen != gen {
		s.mu.Unlock()
		return true
	}
	p := s.player(slot)
	p.RemainingSeconds--
	s.touch()

	if p.RemainingSeconds <= 0 {
		p.RemainingSeconds = 0
		r.logger.Info("session_timeout",
			zap.String("session_id", s.id),
			zap.String("player", p.Username),
		)
		h := r.settleLocked(s, slot.Other(), domain.ReasonTimeout)
		snap := s.snapshot()
		s.mu.Unlock()
		r.finish(snap, h, true)
		return true
	}

	push := p.RemainingSeconds%r.opts.TickNotifyEvery == 0
	var snap Snapshot
	if push {
		snap = s.snapshot()
	}
	s.mu.Unlock()
	if push {
		r.notify(snap)
	}
	return false
}
