package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/chesscake-server/internal/domain"
)

func TestCreateFindAndNotFound(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.create(t, "alice", "", domain.ModePlayerVsPlayer)
	if len(id) != 26 {
		t.Fatalf("id length = %d", len(id))
	}
	s := h.snap(t, id)
	if s.Players[0].Username != "alice" || s.Players[1].Username != "" {
		t.Fatalf("players = %+v", s.Players)
	}
	if s.Players[0].Side == s.Players[1].Side {
		t.Fatalf("both players on %s", s.Players[0].Side)
	}
	if s.Players[0].RemainingSeconds != 600 || s.ActiveClock != domain.SlotNone {
		t.Fatalf("clock state = %d active=%s", s.Players[0].RemainingSeconds, s.ActiveClock)
	}
	if _, err := h.reg.Find("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Find(missing) err = %v", err)
	}
}

func TestAutomatedModesSeatComputerAsBlack(t *testing.T) {
	h := newHarness(t, Options{})
	for _, mode := range []domain.Mode{domain.ModePlayerVsComputer, domain.ModeDailyChallenge} {
		id := h.create(t, "alice", "bob", mode)
		s := h.snap(t, id)
		if s.Players[1].Username != domain.ComputerUsername {
			t.Fatalf("%s: player2 = %q", mode, s.Players[1].Username)
		}
		if s.Players[0].Side != domain.White || s.TurnSlot != domain.SlotPlayer1 {
			t.Fatalf("%s: human should move first, got side %s", mode, s.Players[0].Side)
		}
	}
}

func TestListJoinableFiltersByMode(t *testing.T) {
	h := newHarness(t, Options{})
	pvp := h.create(t, "alice", "", domain.ModePlayerVsPlayer)
	krieg := h.create(t, "bob", "", domain.ModeKriegspiel)
	h.create(t, "carol", "", domain.ModePlayerVsComputer)

	got := h.reg.ListJoinable(domain.ModePlayerVsPlayer)
	if len(got) != 1 || got[0].ID != pvp {
		t.Fatalf("pvp joinable = %+v", got)
	}
	got = h.reg.ListJoinable(domain.ModeKriegspiel)
	if len(got) != 1 || got[0].ID != krieg {
		t.Fatalf("kriegspiel joinable = %+v", got)
	}
	if got := h.reg.ListJoinable(domain.ModePlayerVsComputer); len(got) != 0 {
		t.Fatalf("computer games must never be joinable: %+v", got)
	}

	if _, err := h.reg.Join(context.Background(), pvp, "dave"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got := h.reg.ListJoinable(domain.ModePlayerVsPlayer); len(got) != 0 {
		t.Fatalf("joined session still listed: %+v", got)
	}
}

func TestJoinErrors(t *testing.T) {
	h := newHarness(t, Options{}, &domain.UserRatings{Username: "bob", Elo: 900, KriegElo: 700, CurrentRank: 50})
	id := h.create(t, "alice", "", domain.ModeKriegspiel)
	ctx := context.Background()

	if _, err := h.reg.Join(ctx, id, "alice"); !errors.Is(err, ErrSelfJoin) {
		t.Fatalf("self join err = %v", err)
	}
	snap, err := h.reg.Join(ctx, id, "bob")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if snap.Players[1].Rating != 700 {
		t.Fatalf("kriegspiel rating should come from kriELO, got %d", snap.Players[1].Rating)
	}
	if _, err := h.reg.Join(ctx, id, "carol"); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("full join err = %v", err)
	}
	if _, err := h.reg.Join(ctx, "nope", "carol"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing join err = %v", err)
	}
}

func TestEachPlayerUsesOwnRatingRecord(t *testing.T) {
	h := newHarness(t, Options{},
		&domain.UserRatings{Username: "alice", Elo: 1500},
		&domain.UserRatings{Username: "bob", Elo: 900},
	)
	id := h.create(t, "alice", "bob", domain.ModePlayerVsPlayer)
	s := h.snap(t, id)
	if s.Players[0].Rating != 1500 || s.Players[1].Rating != 900 {
		t.Fatalf("ratings = %d / %d", s.Players[0].Rating, s.Players[1].Rating)
	}

	id = h.create(t, "alice", "newcomer", domain.ModePlayerVsPlayer)
	if got := h.snap(t, id).Players[1].Rating; got != domain.DefaultElo {
		t.Fatalf("unknown player rating = %d, want %d", got, domain.DefaultElo)
	}
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	if _, err := h.reg.Create(ctx, "alice", "", Settings{Mode: "chess960", DurationMinutes: 5}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("bad mode err = %v", err)
	}
	if _, err := h.reg.Create(ctx, "alice", "", Settings{Mode: domain.ModePlayerVsPlayer}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("zero duration err = %v", err)
	}
	for _, d := range []float64{0.01, MaxDurationMinutes + 1, 1e300} {
		if _, err := h.reg.Create(ctx, "alice", "", Settings{Mode: domain.ModePlayerVsPlayer, DurationMinutes: d}); !errors.Is(err, ErrInvalidSettings) {
			t.Fatalf("duration %g err = %v", d, err)
		}
	}
	id, err := h.reg.Create(ctx, "alice", "", Settings{Mode: domain.ModePlayerVsPlayer, DurationMinutes: MaxDurationMinutes})
	if err != nil {
		t.Fatalf("max duration: %v", err)
	}
	if got := h.snap(t, id).Players[0].RemainingSeconds; got != MaxDurationMinutes*60 {
		t.Fatalf("clock = %d, want %d", got, MaxDurationMinutes*60)
	}
	if _, err := h.reg.Create(ctx, "alice", "alice", Settings{Mode: domain.ModePlayerVsPlayer, DurationMinutes: 5}); !errors.Is(err, ErrSelfJoin) {
		t.Fatalf("self pairing err = %v", err)
	}
}

func TestSweepAbandonedAndShutdown(t *testing.T) {
	h := newHarness(t, Options{})
	waiting := h.create(t, "alice", "", domain.ModePlayerVsPlayer)
	full := h.create(t, "bob", "carol", domain.ModePlayerVsPlayer)

	if n := h.reg.SweepAbandoned(-time.Minute); n != 1 {
		t.Fatalf("swept %d sessions, want 1", n)
	}
	if _, err := h.reg.Find(waiting); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("abandoned session still present")
	}
	if _, err := h.reg.Find(full); err != nil {
		t.Fatalf("full session swept: %v", err)
	}
	if got := h.obs.evictedIDs(); len(got) != 1 || got[0] != waiting {
		t.Fatalf("evicted notifications = %v, want [%s]", got, waiting)
	}

	if err := h.reg.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if h.reg.Len() != 0 {
		t.Fatalf("sessions left after shutdown: %d", h.reg.Len())
	}
	if _, err := h.reg.Create(context.Background(), "dave", "", Settings{Mode: domain.ModePlayerVsPlayer, DurationMinutes: 5}); !errors.Is(err, ErrRegistryClosed) {
		t.Fatalf("create after shutdown err = %v", err)
	}
}
