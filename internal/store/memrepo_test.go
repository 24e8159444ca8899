package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/chesscake-server/internal/domain"
)

func intp(v int) *int { return &v }

func seed(t *testing.T, s Store, users map[string]int) {
	t.Helper()
	for name, elo := range users {
		if err := s.UpdateRatings(context.Background(), name, domain.RatingUpdate{Elo: intp(elo)}); err != nil {
			t.Fatalf("UpdateRatings(%s): %v", name, err)
		}
	}
}

func TestUpdateRatingsCreatesWithDefaults(t *testing.T) {
	s := NewMemoryRepository()
	ctx := context.Background()

	got, err := s.GetRatings(ctx, "alice")
	if err != nil || got != nil {
		t.Fatalf("unknown user = %+v, %v", got, err)
	}
	if err := s.UpdateRatings(ctx, "alice", domain.RatingUpdate{KriegElo: intp(420)}); err != nil {
		t.Fatalf("UpdateRatings: %v", err)
	}
	got, err = s.GetRatings(ctx, "alice")
	if err != nil || got == nil {
		t.Fatalf("GetRatings: %v", err)
	}
	if got.Elo != domain.DefaultElo || got.KriegElo != 420 || got.CurrentRank != domain.DefaultRank {
		t.Fatalf("unexpected ratings %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("updatedAt not stamped")
	}
}

func TestSaveMatchRejectsDuplicates(t *testing.T) {
	s := NewMemoryRepository()
	ctx := context.Background()
	rec := &domain.MatchRecord{
		ID:      "m1",
		Player1: domain.MatchPlayer{Username: "alice"},
		Player2: domain.MatchPlayer{Username: domain.ComputerUsername},
		EndedAt: time.Unix(100, 0),
	}
	if err := s.SaveMatch(ctx, rec); err != nil {
		t.Fatalf("SaveMatch: %v", err)
	}
	if err := s.SaveMatch(ctx, rec); !errors.Is(err, ErrDuplicateMatch) {
		t.Fatalf("second save err = %v", err)
	}
	later := *rec
	later.ID = "m2"
	later.EndedAt = time.Unix(200, 0)
	if err := s.SaveMatch(ctx, &later); err != nil {
		t.Fatalf("SaveMatch m2: %v", err)
	}

	recent, err := s.RecentMatches(ctx, "alice", 5)
	if err != nil {
		t.Fatalf("RecentMatches: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "m2" {
		t.Fatalf("recent order wrong: %+v", recent)
	}
	if got, _ := s.RecentMatches(ctx, domain.ComputerUsername, 5); len(got) != 0 {
		t.Fatalf("computer has match history: %d", len(got))
	}
}

func TestLeaderboardOrderAndPlace(t *testing.T) {
	s := NewMemoryRepository()
	ctx := context.Background()
	seed(t, s, map[string]int{"alice": 500, "bob": 450, "carol": 450, "dave": 300, domain.ComputerUsername: 900})

	top, err := s.TopRatings(ctx, domain.TrackElo, 3)
	if err != nil {
		t.Fatalf("TopRatings: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(top) != len(want) {
		t.Fatalf("top = %+v", top)
	}
	for i, name := range want {
		if top[i].Username != name || top[i].Place != i+1 {
			t.Fatalf("top[%d] = %+v, want %s", i, top[i], name)
		}
	}

	me, ok, err := s.Place(ctx, domain.TrackElo, "dave")
	if err != nil || !ok {
		t.Fatalf("Place: %v %v", ok, err)
	}
	if me.Place != 4 || me.Value != 300 {
		t.Fatalf("dave = %+v", me)
	}
	if _, ok, _ := s.Place(ctx, domain.TrackElo, domain.ComputerUsername); ok {
		t.Fatalf("computer is ranked")
	}
}

func TestStandings(t *testing.T) {
	s := NewMemoryRepository()
	ctx := context.Background()
	seed(t, s, map[string]int{"alice": 500, "bob": 450})

	st, err := Standings(ctx, s, domain.TrackElo, "bob", 1)
	if err != nil {
		t.Fatalf("Standings: %v", err)
	}
	if len(st.Top) != 1 || st.Top[0].Username != "alice" {
		t.Fatalf("top = %+v", st.Top)
	}
	if st.Me == nil || st.Me.Place != 2 {
		t.Fatalf("me = %+v", st.Me)
	}

	st, err = Standings(ctx, s, domain.TrackRank, "nobody", 0)
	if err != nil || st.Me != nil || len(st.Top) != 2 {
		t.Fatalf("unranked standings = %+v, %v", st, err)
	}
	if _, err := Standings(ctx, s, domain.Track("bogus"), "bob", 0); !errors.Is(err, ErrUnknownTrack) {
		t.Fatalf("bogus track err = %v", err)
	}
}

func TestColumnWhitelist(t *testing.T) {
	for track, want := range map[domain.Track]string{
		domain.TrackElo:      "elo",
		domain.TrackKriegElo: "krieg_elo",
		domain.TrackRank:     "current_rank",
	} {
		if got, err := columnFor(track); err != nil || got != want {
			t.Fatalf("columnFor(%s) = %q, %v", track, got, err)
		}
	}
	if _, err := columnFor("elo; DROP TABLE chess_users"); !errors.Is(err, ErrUnknownTrack) {
		t.Fatalf("injection accepted")
	}
}
