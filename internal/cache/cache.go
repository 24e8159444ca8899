// Package cache puts Redis in front of the rating store: a read-through
// cache for user ratings and one sorted set per rating track for
// leaderboards.
package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/chesscake-server/internal/domain"
	"github.com/park285/chesscake-server/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix        = "chesscake:"
	defaultRatingTTL = 10 * time.Minute
)

var tracks = []domain.Track{domain.TrackElo, domain.TrackKriegElo, domain.TrackRank}

// Store decorates a store.Store. Redis failures are logged and the call
// falls through to the wrapped store.
type Store struct {
	store.Store
	rdb       *redis.Client
	ratingTTL time.Duration
	logger    *zap.Logger
}

type Option func(*Store)

func WithRatingTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ratingTTL = d
		}
	}
}

func New(inner store.Store, rdb *redis.Client, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{Store: inner, rdb: rdb, ratingTTL: defaultRatingTTL, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewClient dials REDIS_URL (redis:// or rediss://) and pings it.
func NewClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	opts, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "6379"
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("bad port %q", port)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{Addr: host + ":" + port, Username: u.User.Username(), Password: pass, DB: db}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}
	return opts, nil
}

func ratingsKey(username string) string { return keyPrefix + "ratings:" + username }
func boardKey(t domain.Track) string    { return keyPrefix + "lb:" + string(t) }

func (s *Store) GetRatings(ctx context.Context, username string) (*domain.UserRatings, error) {
	username = strings.TrimSpace(username)
	raw, err := s.rdb.Get(ctx, ratingsKey(username)).Bytes()
	switch {
	case err == nil:
		var u domain.UserRatings
		if jerr := json.Unmarshal(raw, &u); jerr == nil {
			return &u, nil
		}
		s.logger.Warn("ratings_cache_corrupt", zap.String("username", username))
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("ratings_cache_get_failed", zap.String("username", username), zap.Error(err))
	}

	u, err := s.Store.GetRatings(ctx, username)
	if err != nil || u == nil {
		return u, err
	}
	s.putRatings(ctx, u)
	return u, nil
}

// UpdateRatings writes through and refreshes both the cached document and
// the leaderboard sets.
func (s *Store) UpdateRatings(ctx context.Context, username string, upd domain.RatingUpdate) error {
	if err := s.Store.UpdateRatings(ctx, username, upd); err != nil {
		return err
	}
	fresh, err := s.Store.GetRatings(ctx, username)
	if err != nil || fresh == nil {
		s.logger.Warn("ratings_cache_refresh_failed", zap.String("username", username), zap.Error(err))
		_ = s.rdb.Del(ctx, ratingsKey(strings.TrimSpace(username))).Err()
		return nil
	}
	s.putRatings(ctx, fresh)
	if fresh.Username != domain.ComputerUsername {
		if err := s.index(ctx, *fresh); err != nil {
			s.logger.Warn("leaderboard_update_failed", zap.String("username", fresh.Username), zap.Error(err))
		}
	}
	return nil
}

func (s *Store) putRatings(ctx context.Context, u *domain.UserRatings) {
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, ratingsKey(u.Username), raw, s.ratingTTL).Err(); err != nil {
		s.logger.Warn("ratings_cache_set_failed", zap.String("username", u.Username), zap.Error(err))
	}
}

func (s *Store) index(ctx context.Context, users ...domain.UserRatings) error {
	pipe := s.rdb.Pipeline()
	for _, t := range tracks {
		for _, u := range users {
			pipe.ZAdd(ctx, boardKey(t), redis.Z{Score: float64(u.Value(t)), Member: u.Username})
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Warm loads every stored user into the leaderboard sets.
func (s *Store) Warm(ctx context.Context) (int, error) {
	users, err := s.Store.ListRatings(ctx)
	if err != nil {
		return 0, fmt.Errorf("list ratings: %w", err)
	}
	ranked := users[:0]
	for _, u := range users {
		if u.Username != domain.ComputerUsername {
			ranked = append(ranked, u)
		}
	}
	if len(ranked) == 0 {
		return 0, nil
	}
	if err := s.index(ctx, ranked...); err != nil {
		return 0, fmt.Errorf("index leaderboards: %w", err)
	}
	return len(ranked), nil
}

// populated reports whether the track's set can answer queries.
func (s *Store) populated(ctx context.Context, t domain.Track) bool {
	n, err := s.rdb.ZCard(ctx, boardKey(t)).Result()
	if err != nil {
		s.logger.Warn("leaderboard_card_failed", zap.String("track", string(t)), zap.Error(err))
		return false
	}
	return n > 0
}

func (s *Store) TopRatings(ctx context.Context, track domain.Track, limit int) ([]domain.LeaderboardEntry, error) {
	if _, ok := domain.ParseTrack(string(track)); !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownTrack, track)
	}
	if limit <= 0 {
		limit = store.DefaultLeaderboardSize
	}
	if !s.populated(ctx, track) {
		return s.Store.TopRatings(ctx, track, limit)
	}
	results, err := s.rdb.ZRevRangeWithScores(ctx, boardKey(track), 0, int64(limit-1)).Result()
	if err != nil {
		s.logger.Warn("leaderboard_range_failed", zap.String("track", string(track)), zap.Error(err))
		return s.Store.TopRatings(ctx, track, limit)
	}
	out := make([]domain.LeaderboardEntry, 0, len(results))
	for i, z := range results {
		name, _ := z.Member.(string)
		out = append(out, domain.LeaderboardEntry{Username: name, Value: int(z.Score), Place: i + 1})
	}
	return out, nil
}

func (s *Store) Place(ctx context.Context, track domain.Track, username string) (domain.LeaderboardEntry, bool, error) {
	if _, ok := domain.ParseTrack(string(track)); !ok {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("%w: %q", store.ErrUnknownTrack, track)
	}
	username = strings.TrimSpace(username)
	if username == domain.ComputerUsername {
		return domain.LeaderboardEntry{}, false, nil
	}
	key := boardKey(track)
	rank, err := s.rdb.ZRevRank(ctx, key, username).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("leaderboard_rank_failed", zap.String("track", string(track)), zap.Error(err))
		}
		return s.Store.Place(ctx, track, username)
	}
	score, err := s.rdb.ZScore(ctx, key, username).Result()
	if err != nil {
		return s.Store.Place(ctx, track, username)
	}
	return domain.LeaderboardEntry{Username: username, Value: int(score), Place: int(rank) + 1}, true, nil
}
