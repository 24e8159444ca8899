package session

import (
	"context"
	"errors"
	"testing"

	"github.com/park285/chesscake-server/internal/chess/rules"
	"github.com/park285/chesscake-server/internal/domain"
)

func TestApplyTracksRulesEngine(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.create(t, "alice", "bob", domain.ModePlayerVsPlayer)
	moves := []string{"e2e4", "c7c5", "g1f3", "d7d6", "d2d4", "c5d4", "f3d4", "g8f6"}
	h.play(t, id, moves...)

	want, err := rules.FromMoves(rules.StartFEN, moves)
	if err != nil {
		t.Fatalf("FromMoves: %v", err)
	}
	s := h.snap(t, id)
	if s.FEN != want.FEN() {
		t.Fatalf("FEN = %s, want %s", s.FEN, want.FEN())
	}
	if s.Turn != want.Turn() || s.Turn != domain.White {
		t.Fatalf("turn = %s", s.Turn)
	}
	if s.LastMove == nil || s.LastMove.Square != "f6" || s.LastMove.Piece != "n" {
		t.Fatalf("last move = %+v", s.LastMove)
	}
	if s.Meta.StartedAt.IsZero() {
		t.Fatalf("start time not recorded")
	}
}

func TestRejectedMovesLeaveSessionUntouched(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.create(t, "alice", "bob", domain.ModePlayerVsPlayer)
	h.play(t, id, "e2e4")
	before := h.snap(t, id)

	for _, mv := range []rules.Move{
		{From: "e7", To: "e4"},
		{From: "z9", To: "e5"},
		{From: "e2", To: "e2"},
		{From: "d7", To: "d5", Promotion: "k"},
	} {
		ok, err := h.reg.Apply(context.Background(), id, mv)
		if err != nil || ok {
			t.Fatalf("Apply(%v) = %v, %v", mv, ok, err)
		}
	}
	after := h.snap(t, id)
	if after.FEN != before.FEN || after.Version != before.Version || len(after.MovesUCI) != 1 {
		t.Fatalf("rejected move mutated session: %+v", after)
	}
	if _, err := h.reg.Apply(context.Background(), "missing", rules.Move{From: "e7", To: "e5"}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session err = %v", err)
	}
}

func TestMovesWaitForSecondPlayer(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.create(t, "alice", "", domain.ModePlayerVsPlayer)
	ok, _ := h.reg.Apply(context.Background(), id, rules.Move{From: "e2", To: "e4"})
	if ok {
		t.Fatalf("move accepted before opponent joined")
	}
}

func TestApplyAsChecksTurnOwnership(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.create(t, "alice", "bob", domain.ModePlayerVsPlayer)
	s := h.snap(t, id)
	white := s.Players[slotIndex(slotOfSide(s, domain.White))].Username
	black := s.Players[slotIndex(slotOfSide(s, domain.Black))].Username
	ctx := context.Background()

	if _, err := h.reg.ApplyAs(ctx, id, black, rules.Move{From: "e2", To: "e4"}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("black moving first err = %v", err)
	}
	if _, err := h.reg.ApplyAs(ctx, id, "mallory", rules.Move{From: "e2", To: "e4"}); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("outsider err = %v", err)
	}
	ok, err := h.reg.ApplyAs(ctx, id, white, rules.Move{From: "e2", To: "e4"})
	if err != nil || !ok {
		t.Fatalf("white move = %v, %v", ok, err)
	}
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.create(t, "alice", "bob", domain.ModePlayerVsPlayer)
	h.play(t, id, "a2a4", "b7b5", "a4b5", "a7a6", "b5a6", "c8b7", "a6b7", "g8f6", "b7a8")

	s := h.snap(t, id)
	if s.LastMove == nil || s.LastMove.UCI != "b7a8q" {
		t.Fatalf("last move = %+v", s.LastMove)
	}
}

func TestFoolsMateEndsGame(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.create(t, "alice", "bob", domain.ModePlayerVsPlayer)
	h.play(t, id, "f2f3", "e7e5", "g2g4", "d8h4")

	s := h.snap(t, id)
	if !s.Outcome.IsOver || s.Outcome.Reason != domain.ReasonCheckmate {
		t.Fatalf("outcome = %+v", s.Outcome)
	}
	if s.Outcome.Winner != slotOfSide(s, domain.Black) {
		t.Fatalf("winner = %s, black is %s", s.Outcome.Winner, slotOfSide(s, domain.Black))
	}
	if s.ActiveClock != domain.SlotNone {
		t.Fatalf("clock still running after mate: %s", s.ActiveClock)
	}
	ok, _ := h.reg.Apply(context.Background(), id, rules.Move{From: "a2", To: "a3"})
	if ok {
		t.Fatalf("move accepted after game over")
	}
}

func TestThreefoldRepetitionOnThirdOccurrence(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.create(t, "alice", "bob", domain.ModePlayerVsPlayer)
	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8", "g1f3", "g8f6", "f3g1"}
	h.play(t, id, shuffle...)
	if s := h.snap(t, id); s.Outcome.IsOver {
		t.Fatalf("game ended early: %+v", s.Outcome)
	}

	h.play(t, id, "f6g8")
	s := h.snap(t, id)
	if !s.Outcome.IsOver || s.Outcome.Reason != domain.ReasonThreefoldRepetition {
		t.Fatalf("outcome = %+v", s.Outcome)
	}
	if s.Outcome.Winner != domain.SlotNone {
		t.Fatalf("repetition draw has winner %s", s.Outcome.Winner)
	}
}

func TestFiftyMoveRuleThroughPipeline(t *testing.T) {
	h := newHarness(t, Options{})
	h.reg.gen = fenGen{fen: "7k/8/8/8/8/8/8/R3K3 w - - 0 1"}
	id := h.create(t, "alice", "bob", domain.ModePlayerVsPlayer)

	// The rook never revisits a square, so no position repeats.
	rook := []string{
		"a1a2", "a2b2", "b2c2", "c2d2", "d2e2", "e2f2", "f2f3", "f3e3", "e3d3", "d3c3",
		"c3b3", "b3a3", "a3a4", "a4b4", "b4c4", "c4d4", "d4e4", "e4f4", "f4f5", "f5e5",
		"e5d5", "d5c5", "c5b5", "b5a5", "a5a6",
	}
	var moves []string
	for i, w := range rook {
		king := "h8g8"
		if i%2 == 1 {
			king = "g8h8"
		}
		moves = append(moves, w, king)
	}

	h.play(t, id, moves[:49]...)
	if s := h.snap(t, id); s.Outcome.IsOver {
		t.Fatalf("game ended before fifty quiet half-moves: %+v", s.Outcome)
	}
	h.play(t, id, moves[49])
	s := h.snap(t, id)
	if !s.Outcome.IsOver || s.Outcome.Reason != domain.ReasonFiftyMoveRule {
		t.Fatalf("outcome = %+v", s.Outcome)
	}
}
