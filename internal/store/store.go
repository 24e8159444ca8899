// Package store persists user ratings and finished matches.
//
// Three backends share one contract: an in-memory repository for local runs
// and tests, MongoDB (Users and Games collections) and PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/chesscake-server/internal/domain"
)

var (
	ErrDuplicateMatch = errors.New("match already recorded")
	ErrUnknownTrack   = errors.New("unknown rating track")
)

// DefaultLeaderboardSize is the number of rows in a leaderboard page.
const DefaultLeaderboardSize = 10

// Ranker serves ordered views of a rating track. The computer never ranks.
type Ranker interface {
	TopRatings(ctx context.Context, track domain.Track, limit int) ([]domain.LeaderboardEntry, error)
	// Place reports the user's row on track; ok is false when unranked.
	Place(ctx context.Context, track domain.Track, username string) (entry domain.LeaderboardEntry, ok bool, err error)
}

type Store interface {
	Ranker
	// GetRatings returns nil, nil for an unknown user.
	GetRatings(ctx context.Context, username string) (*domain.UserRatings, error)
	// UpdateRatings writes the non-nil fields, creating the user with
	// default ratings if needed.
	UpdateRatings(ctx context.Context, username string, upd domain.RatingUpdate) error
	SaveMatch(ctx context.Context, rec *domain.MatchRecord) error
	RecentMatches(ctx context.Context, username string, limit int) ([]*domain.MatchRecord, error)
	ListRatings(ctx context.Context) ([]domain.UserRatings, error)
	Close() error
}

// Standings combines the top page with the caller's place.
func Standings(ctx context.Context, r Ranker, track domain.Track, username string, limit int) (*domain.Standings, error) {
	if _, ok := domain.ParseTrack(string(track)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrack, track)
	}
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	top, err := r.TopRatings(ctx, track, limit)
	if err != nil {
		return nil, err
	}
	out := &domain.Standings{Track: track, Top: top}
	username = strings.TrimSpace(username)
	if username == "" || username == domain.ComputerUsername {
		return out, nil
	}
	me, ok, err := r.Place(ctx, track, username)
	if err != nil {
		return nil, err
	}
	if ok {
		out.Me = &me
	}
	return out, nil
}

// documentField names the stored field of a track in the Users collection.
func documentField(t domain.Track) (string, error) {
	switch t {
	case domain.TrackElo:
		return "rbcELO", nil
	case domain.TrackKriegElo:
		return "kriELO", nil
	case domain.TrackRank:
		return "rbcCurrentRank", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTrack, t)
}

// columnFor names the SQL column of a track. Only these literals ever reach
// a query string.
func columnFor(t domain.Track) (string, error) {
	switch t {
	case domain.TrackElo:
		return "elo", nil
	case domain.TrackKriegElo:
		return "krieg_elo", nil
	case domain.TrackRank:
		return "current_rank", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTrack, t)
}

func normalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
