package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/chesscake-server/internal/chess"
	"github.com/park285/chesscake-server/internal/chess/boardgen"
	"github.com/park285/chesscake-server/internal/chess/rules"
	"github.com/park285/chesscake-server/internal/domain"
	"go.uber.org/zap"
)

type fixedGen struct{ seed string }

func (g fixedGen) Generate(domain.Mode, int) (boardgen.Result, error) {
	return boardgen.Result{FEN: rules.StartFEN, Seed: g.seed}, nil
}

type fakeSearcher struct {
	mu    sync.Mutex
	move  string
	err   error
	calls int
}

func (f *fakeSearcher) BestMove(ctx context.Context, fen string, b chess.Budget) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.move, f.err
}

func (f *fakeSearcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu      sync.Mutex
	users   map[string]*domain.UserRatings
	updates []string
	matches []domain.MatchRecord
	failGet bool
}

func newFakeStore(users ...*domain.UserRatings) *fakeStore {
	st := &fakeStore{users: make(map[string]*domain.UserRatings)}
	for _, u := range users {
		st.users[u.Username] = u
	}
	return st
}

func (f *fakeStore) GetRatings(ctx context.Context, username string) (*domain.UserRatings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, errors.New("store down")
	}
	u, ok := f.users[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) UpdateRatings(ctx context.Context, username string, upd domain.RatingUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		u = domain.NewUserRatings(username)
		f.users[username] = u
	}
	upd.ApplyTo(u)
	f.updates = append(f.updates, username)
	return nil
}

func (f *fakeStore) SaveMatch(ctx context.Context, rec *domain.MatchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches = append(f.matches, *rec)
	return nil
}

func (f *fakeStore) user(name string) domain.UserRatings {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[name]; ok {
		return *u
	}
	return domain.UserRatings{}
}

func (f *fakeStore) matchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matches)
}

type recordingObserver struct {
	mu      sync.Mutex
	updates int
	settled []domain.MatchRecord
	evicted []string
}

func (o *recordingObserver) SessionUpdated(Snapshot) {
	o.mu.Lock()
	o.updates++
	o.mu.Unlock()
}

func (o *recordingObserver) SessionSettled(rec domain.MatchRecord) {
	o.mu.Lock()
	o.settled = append(o.settled, rec)
	o.mu.Unlock()
}

func (o *recordingObserver) SessionEvicted(id string) {
	o.mu.Lock()
	o.evicted = append(o.evicted, id)
	o.mu.Unlock()
}

func (o *recordingObserver) evictedIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.evicted...)
}

type harness struct {
	reg    *Registry
	store  *fakeStore
	search *fakeSearcher
	obs    *recordingObserver
}

func newHarness(t *testing.T, opts Options, users ...*domain.UserRatings) *harness {
	t.Helper()
	h := &harness{
		store:  newFakeStore(users...),
		search: &fakeSearcher{err: errors.New("no engine")},
		obs:    &recordingObserver{},
	}
	if opts.OpponentDelay == 0 {
		opts.OpponentDelay = time.Hour
	}
	if opts.TickInterval == 0 {
		opts.TickInterval = time.Hour
	}
	h.reg = NewRegistry(Deps{
		Generator: fixedGen{seed: "test-seed"},
		Searcher:  h.search,
		Ratings:   h.store,
		Matches:   h.store,
		Observers: []Observer{h.obs},
		Logger:    zap.NewNop(),
	}, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.reg.Shutdown(ctx)
	})
	return h
}

func (h *harness) create(t *testing.T, p1, p2 string, mode domain.Mode) string {
	t.Helper()
	id, err := h.reg.Create(context.Background(), p1, p2, Settings{Mode: mode, DurationMinutes: 10})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func (h *harness) snap(t *testing.T, id string) Snapshot {
	t.Helper()
	s, err := h.reg.Find(id)
	if err != nil {
		t.Fatalf("Find(%s): %v", id, err)
	}
	return *s
}

func (h *harness) play(t *testing.T, id string, moves ...string) {
	t.Helper()
	for _, raw := range moves {
		mv, err := rules.ParseUCI(raw)
		if err != nil {
			t.Fatalf("ParseUCI(%s): %v", raw, err)
		}
		ok, err := h.reg.Apply(context.Background(), id, mv)
		if err != nil || !ok {
			t.Fatalf("Apply(%s) = %v, %v", raw, ok, err)
		}
	}
}

func (h *harness) waitHandoffs() { h.reg.handoffs.Wait() }

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func slotOfSide(s Snapshot, side domain.Side) domain.Slot {
	for i, p := range s.Players {
		if p.Side == side {
			return slotAt(i)
		}
	}
	return domain.SlotNone
}

type fenGen struct{ fen string }

func (g fenGen) Generate(domain.Mode, int) (boardgen.Result, error) {
	return boardgen.Result{FEN: g.fen, Seed: "fen-seed"}, nil
}
