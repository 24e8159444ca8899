package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/chesscake-server/internal/domain"
	"github.com/park285/chesscake-server/internal/store"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	inner := store.NewMemoryRepository()
	return New(inner, rdb, nil), inner, mr
}

func intp(v int) *int { return &v }

func TestRatingsReadThrough(t *testing.T) {
	s, inner, mr := newTestStore(t)
	ctx := context.Background()
	if err := inner.UpdateRatings(ctx, "alice", domain.RatingUpdate{Elo: intp(512)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	u, err := s.GetRatings(ctx, "alice")
	if err != nil || u == nil || u.Elo != 512 {
		t.Fatalf("GetRatings = %+v, %v", u, err)
	}
	if !mr.Exists(ratingsKey("alice")) {
		t.Fatalf("ratings not cached")
	}
	if ttl := mr.TTL(ratingsKey("alice")); ttl <= 0 || ttl > defaultRatingTTL {
		t.Fatalf("ttl = %v", ttl)
	}

	// served from cache even after the store changes underneath
	_ = inner.UpdateRatings(ctx, "alice", domain.RatingUpdate{Elo: intp(600)})
	if u, _ := s.GetRatings(ctx, "alice"); u.Elo != 512 {
		t.Fatalf("expected cached 512, got %d", u.Elo)
	}

	if u, err := s.GetRatings(ctx, "ghost"); err != nil || u != nil {
		t.Fatalf("unknown user = %+v, %v", u, err)
	}
}

func TestUpdateRefreshesCacheAndBoards(t *testing.T) {
	s, _, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.UpdateRatings(ctx, "alice", domain.RatingUpdate{Elo: intp(450)}); err != nil {
		t.Fatalf("UpdateRatings: %v", err)
	}
	if err := s.UpdateRatings(ctx, domain.ComputerUsername, domain.RatingUpdate{Elo: intp(999)}); err != nil {
		t.Fatalf("UpdateRatings computer: %v", err)
	}
	u, _ := s.GetRatings(ctx, "alice")
	if u == nil || u.Elo != 450 {
		t.Fatalf("cached ratings = %+v", u)
	}
	score, err := mr.ZScore(boardKey(domain.TrackElo), "alice")
	if err != nil || score != 450 {
		t.Fatalf("zscore = %v, %v", score, err)
	}
	if rank, _ := mr.ZScore(boardKey(domain.TrackRank), "alice"); rank != domain.DefaultRank {
		t.Fatalf("rank board = %v", rank)
	}
	if members, _ := mr.ZMembers(boardKey(domain.TrackElo)); len(members) != 1 {
		t.Fatalf("computer indexed: %v", members)
	}
}

func TestLeaderboardFromSortedSet(t *testing.T) {
	s, inner, _ := newTestStore(t)
	ctx := context.Background()
	for name, elo := range map[string]int{"alice": 700, "bob": 500, "carol": 600, domain.ComputerUsername: 900} {
		if err := inner.UpdateRatings(ctx, name, domain.RatingUpdate{Elo: intp(elo)}); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	// empty set falls back to the store
	top, err := s.TopRatings(ctx, domain.TrackElo, 2)
	if err != nil || len(top) != 2 || top[0].Username != "alice" {
		t.Fatalf("fallback top = %+v, %v", top, err)
	}

	n, err := s.Warm(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Warm = %d, %v", n, err)
	}
	top, err = s.TopRatings(ctx, domain.TrackElo, 10)
	if err != nil {
		t.Fatalf("TopRatings: %v", err)
	}
	want := []string{"alice", "carol", "bob"}
	if len(top) != len(want) {
		t.Fatalf("top = %+v", top)
	}
	for i, name := range want {
		if top[i].Username != name || top[i].Place != i+1 {
			t.Fatalf("top[%d] = %+v", i, top[i])
		}
	}

	me, ok, err := s.Place(ctx, domain.TrackElo, "bob")
	if err != nil || !ok || me.Place != 3 || me.Value != 500 {
		t.Fatalf("Place = %+v %v %v", me, ok, err)
	}
	if _, ok, _ := s.Place(ctx, domain.TrackElo, domain.ComputerUsername); ok {
		t.Fatalf("computer ranked")
	}
	if _, ok, _ := s.Place(ctx, domain.TrackElo, "ghost"); ok {
		t.Fatalf("ghost ranked")
	}
}

func TestRedisOutageFallsThrough(t *testing.T) {
	s, inner, mr := newTestStore(t)
	ctx := context.Background()
	_ = inner.UpdateRatings(ctx, "alice", domain.RatingUpdate{Elo: intp(480)})
	mr.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	u, err := s.GetRatings(ctx, "alice")
	if err != nil || u == nil || u.Elo != 480 {
		t.Fatalf("GetRatings during outage = %+v, %v", u, err)
	}
	top, err := s.TopRatings(ctx, domain.TrackElo, 5)
	if err != nil || len(top) != 1 {
		t.Fatalf("TopRatings during outage = %+v, %v", top, err)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@cache.local/3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "cache.local:6379" || opts.Password != "secret" || opts.DB != 3 || opts.TLSConfig != nil {
		t.Fatalf("opts = %+v", opts)
	}
	opts, err = parseRedisURL("rediss://u:p@cache.local:6380")
	if err != nil || opts.TLSConfig == nil || opts.Addr != "cache.local:6380" || opts.Username != "u" {
		t.Fatalf("tls opts = %+v, %v", opts, err)
	}
	if _, err := parseRedisURL("http://cache.local"); err == nil {
		t.Fatalf("http scheme accepted")
	}
	if _, err := parseRedisURL("redis://cache.local/x"); err == nil {
		t.Fatalf("bad db accepted")
	}
}
