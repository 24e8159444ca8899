package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/chesscake-server/internal/domain"
)

// memrepo keeps everything in process. Used when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	users       map[string]*domain.UserRatings
	matchesByID map[string]*domain.MatchRecord
	byUser      map[string][]*domain.MatchRecord // username -> matches, latest last
	now         func() time.Time
}

func NewMemoryRepository() Store {
	return &memrepo{
		users:       make(map[string]*domain.UserRatings),
		matchesByID: make(map[string]*domain.MatchRecord),
		byUser:      make(map[string][]*domain.MatchRecord),
		now:         time.Now,
	}
}

func (m *memrepo) GetRatings(ctx context.Context, username string) (*domain.UserRatings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[strings.TrimSpace(username)]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memrepo) UpdateRatings(ctx context.Context, username string, upd domain.RatingUpdate) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		u = domain.NewUserRatings(username)
		m.users[username] = u
	}
	upd.ApplyTo(u)
	u.UpdatedAt = m.now()
	return nil
}

func (m *memrepo) SaveMatch(ctx context.Context, rec *domain.MatchRecord) error {
	if rec == nil || rec.ID == "" {
		return ErrDuplicateMatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.matchesByID[rec.ID]; exists {
		return ErrDuplicateMatch
	}
	cp := *rec
	m.matchesByID[cp.ID] = &cp
	for _, name := range []string{cp.Player1.Username, cp.Player2.Username} {
		if name == "" || name == domain.ComputerUsername {
			continue
		}
		m.byUser[name] = append(m.byUser[name], &cp)
	}
	return nil
}

func (m *memrepo) RecentMatches(ctx context.Context, username string, limit int) ([]*domain.MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.byUser[strings.TrimSpace(username)]
	items := append([]*domain.MatchRecord(nil), list...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].EndedAt.After(items[j].EndedAt)
	})
	if limit = normalizeLimit(limit, DefaultLeaderboardSize); len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) ListRatings(ctx context.Context) ([]domain.UserRatings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.UserRatings, 0, len(m.users))
	for name, u := range m.users {
		if name == domain.ComputerUsername {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// ranked orders users by value desc, then username asc.
func (m *memrepo) ranked(track domain.Track) ([]domain.LeaderboardEntry, error) {
	if _, err := columnFor(track); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]domain.LeaderboardEntry, 0, len(m.users))
	for name, u := range m.users {
		if name == domain.ComputerUsername {
			continue
		}
		out = append(out, domain.LeaderboardEntry{Username: name, Value: u.Value(track)})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Username < out[j].Username
	})
	for i := range out {
		out[i].Place = i + 1
	}
	return out, nil
}

func (m *memrepo) TopRatings(ctx context.Context, track domain.Track, limit int) ([]domain.LeaderboardEntry, error) {
	all, err := m.ranked(track)
	if err != nil {
		return nil, err
	}
	if limit = normalizeLimit(limit, DefaultLeaderboardSize); len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memrepo) Place(ctx context.Context, track domain.Track, username string) (domain.LeaderboardEntry, bool, error) {
	all, err := m.ranked(track)
	if err != nil {
		return domain.LeaderboardEntry{}, false, err
	}
	username = strings.TrimSpace(username)
	for _, e := range all {
		if e.Username == username {
			return e, true, nil
		}
	}
	return domain.LeaderboardEntry{}, false, nil
}

func (m *memrepo) Close() error { return nil }
