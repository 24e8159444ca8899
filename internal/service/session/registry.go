package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/park285/chesscake-server/internal/chess"
	"github.com/park285/chesscake-server/internal/chess/boardgen"
	"github.com/park285/chesscake-server/internal/chess/rules"
	"github.com/park285/chesscake-server/internal/domain"
	"github.com/park285/chesscake-server/internal/obslog"
	"go.uber.org/zap"
)

// Searcher finds a move for the automated opponent.
type Searcher interface {
	BestMove(ctx context.Context, fen string, budget chess.Budget) (string, error)
}

// RatingStore reads and writes per-user rating fields. GetRatings returns
// nil, nil for an unknown user.
type RatingStore interface {
	GetRatings(ctx context.Context, username string) (*domain.UserRatings, error)
	UpdateRatings(ctx context.Context, username string, upd domain.RatingUpdate) error
}

type MatchStore interface {
	SaveMatch(ctx context.Context, rec *domain.MatchRecord) error
}

// Observer is notified after state changes. Implementations must not block.
type Observer interface {
	SessionUpdated(snap Snapshot)
	SessionSettled(rec domain.MatchRecord)
	SessionEvicted(id string)
}

// MaxDurationMinutes caps the per-player clock.
const MaxDurationMinutes = 24 * 60

type Options struct {
	TickInterval   time.Duration
	OpponentDelay  time.Duration
	EvictAfter     time.Duration
	Budget         chess.Budget
	HandoffTimeout time.Duration
	// Push a clock snapshot to observers every N ticks.
	TickNotifyEvery int
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.OpponentDelay < 0 {
		o.OpponentDelay = 0
	}
	if o.EvictAfter <= 0 {
		o.EvictAfter = 10 * time.Minute
	}
	if o.Budget.IsZero() {
		o.Budget = chess.Budget{Depth: 1}
	}
	if o.HandoffTimeout <= 0 {
		o.HandoffTimeout = 15 * time.Second
	}
	if o.TickNotifyEvery <= 0 {
		o.TickNotifyEvery = 5
	}
	return o
}

// DefaultOptions mirrors production timings.
func DefaultOptions() Options {
	o := Options{OpponentDelay: 3 * time.Second}
	return o.withDefaults()
}

type Deps struct {
	Generator boardgen.Generator
	Searcher  Searcher
	Ratings   RatingStore
	Matches   MatchStore
	Observers []Observer
	Logger    *zap.Logger
	Now       func() time.Time
}

// Registry owns every live session of the process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*GameSession
	closed   bool

	gen       boardgen.Generator
	search    Searcher
	ratings   RatingStore
	matches   MatchStore
	observers []Observer
	logger    *zap.Logger
	now       func() time.Time
	opts      Options

	ctx      context.Context
	cancel   context.CancelFunc
	handoffs sync.WaitGroup
}

func NewRegistry(deps Deps, opts Options) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = obslog.L()
	}
	gen := deps.Generator
	if gen == nil {
		gen = boardgen.NewSeeded()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		sessions:  make(map[string]*GameSession),
		gen:       gen,
		search:    deps.Searcher,
		ratings:   deps.Ratings,
		matches:   deps.Matches,
		observers: deps.Observers,
		logger:    logger.Named("session"),
		now:       now,
		opts:      opts.withDefaults(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// AddObserver registers o for future notifications.
func (r *Registry) AddObserver(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// Create starts a session. For automated modes player2 is always the
// computer; for the others player2 may be empty until Join.
func (r *Registry) Create(ctx context.Context, player1, player2 string, settings Settings) (string, error) {
	player1 = strings.TrimSpace(player1)
	player2 = strings.TrimSpace(player2)
	if player1 == "" || player1 == domain.ComputerUsername {
		return "", fmt.Errorf("%w: player1 %q", ErrInvalidSettings, player1)
	}
	if _, ok := domain.ParseMode(string(settings.Mode)); !ok {
		return "", fmt.Errorf("%w: mode %q", ErrInvalidSettings, settings.Mode)
	}
	if secs := settings.DurationMinutes * 60; !(secs >= 1 && settings.DurationMinutes <= MaxDurationMinutes) {
		return "", fmt.Errorf("%w: duration %.2f", ErrInvalidSettings, settings.DurationMinutes)
	}
	if settings.Mode.Automated() {
		player2 = domain.ComputerUsername
	} else if player2 == player1 {
		return "", ErrSelfJoin
	}
	if r.isClosed() {
		return "", ErrRegistryClosed
	}

	r1, err := r.loadRatings(ctx, player1)
	if err != nil {
		return "", err
	}
	var r2 *domain.UserRatings
	if player2 != "" && player2 != domain.ComputerUsername {
		if r2, err = r.loadRatings(ctx, player2); err != nil {
			return "", err
		}
	}
	if settings.Mode == domain.ModePlayerVsComputer && settings.Rank <= 0 {
		settings.Rank = r1.CurrentRank
	}
	if settings.Mode == domain.ModeDailyChallenge {
		settings.Rank = domain.DefaultRank
	}

	start, err := r.gen.Generate(settings.Mode, settings.Rank)
	if err != nil {
		return "", fmt.Errorf("generate board: %w", err)
	}
	board, err := rules.New(start.FEN)
	if err != nil {
		return "", fmt.Errorf("generated board: %w", err)
	}

	id, err := newSessionID()
	if err != nil {
		return "", err
	}

	side1 := domain.White
	if !settings.Mode.Automated() && mrand.Intn(2) == 1 {
		side1 = domain.Black
	}
	clock := int(settings.DurationMinutes * 60)
	track := domain.TrackFor(settings.Mode)

	s := &GameSession{
		id:       id,
		settings: settings,
		players: [2]Player{
			{Username: player1, Side: side1, RemainingSeconds: clock, Rating: ratingFor(settings.Mode, r1, track)},
			{Username: player2, Side: side1.Opposite(), RemainingSeconds: clock, Rating: ratingFor(settings.Mode, r2, track)},
		},
		board:     board,
		turn:      board.Turn(),
		undo:      undoState{floor: initialUndoFloor},
		meta:      Meta{Seed: start.Seed, CreatedAt: r.now()},
		outcome:   Outcome{Winner: domain.SlotNone},
		drawOffer: domain.SlotNone,
		ratings:   [2]*domain.UserRatings{r1, r2},
		rng:       mrand.New(mrand.NewSource(boardgen.SeedValue(start.Seed))),
		clockSlot: domain.SlotNone,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrRegistryClosed
	}
	r.sessions[id] = s
	r.mu.Unlock()

	s.mu.Lock()
	if s.computerToMove() {
		r.scheduleOpponentLocked(s)
	}
	snap := s.snapshot()
	s.mu.Unlock()

	r.logger.Info("session_create",
		zap.String("session_id", id),
		zap.String("mode", string(settings.Mode)),
		zap.String("player1", player1),
		zap.String("player2", player2),
		zap.String("seed", start.Seed),
	)
	r.notify(snap)
	return id, nil
}

// Join fills the second slot of a session awaiting an opponent.
func (r *Registry) Join(ctx context.Context, id, username string) (*Snapshot, error) {
	username = strings.TrimSpace(username)
	s, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if username == "" || username == domain.ComputerUsername {
		return nil, ErrNotParticipant
	}
	ratings, err := r.loadRatings(ctx, username)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	switch {
	case s.outcome.IsOver:
		s.mu.Unlock()
		return nil, ErrGameOver
	case !s.awaitingOpponent():
		s.mu.Unlock()
		return nil, ErrSessionFull
	case s.players[0].Username == username:
		s.mu.Unlock()
		return nil, ErrSelfJoin
	}
	s.players[1].Username = username
	s.players[1].Rating = ratingFor(s.settings.Mode, ratings, domain.TrackFor(s.settings.Mode))
	s.ratings[1] = ratings
	s.touch()
	snap := s.snapshot()
	s.mu.Unlock()

	r.logger.Info("session_join", zap.String("session_id", id), zap.String("player2", username))
	r.notify(snap)
	return &snap, nil
}

func (r *Registry) Find(id string) (*Snapshot, error) {
	s, err := r.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()
	return &snap, nil
}

// ListJoinable returns sessions of mode that still wait for player2, oldest first.
func (r *Registry) ListJoinable(mode domain.Mode) []Snapshot {
	r.mu.RLock()
	candidates := make([]*GameSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		candidates = append(candidates, s)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0)
	for _, s := range candidates {
		s.mu.Lock()
		if s.settings.Mode == mode && s.awaitingOpponent() && !s.outcome.IsOver {
			out = append(out, s.snapshot())
		}
		s.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		if c := a.Meta.CreatedAt.Compare(b.Meta.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Evict removes a session and cancels its pending work.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	r.stopTimersLocked(s)
	s.mu.Unlock()
	r.logger.Debug("session_evict", zap.String("session_id", id))

	r.mu.RLock()
	obs := r.observers
	r.mu.RUnlock()
	for _, o := range obs {
		o.SessionEvicted(id)
	}
}

// SweepAbandoned evicts sessions that never got a second player within maxAge.
func (r *Registry) SweepAbandoned(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)
	r.mu.RLock()
	var stale []string
	for id, s := range r.sessions {
		s.mu.Lock()
		if s.awaitingOpponent() && !s.outcome.IsOver && s.meta.CreatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
		s.mu.Unlock()
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.Evict(id)
	}
	if len(stale) > 0 {
		r.logger.Info("session_sweep", zap.Int("evicted", len(stale)))
	}
	return len(stale)
}

// RunSweeper calls SweepAbandoned every interval until ctx ends.
func (r *Registry) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.SweepAbandoned(maxAge)
		}
	}
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown refuses new sessions, stops every timer and waits for pending
// persistence handoffs. Unfinished games are dropped.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	all := make([]*GameSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*GameSession)
	r.mu.Unlock()

	lost := 0
	for _, s := range all {
		s.mu.Lock()
		r.stopTimersLocked(s)
		if !s.outcome.IsOver {
			lost++
			r.logger.Warn("session_lost_on_shutdown",
				zap.String("session_id", s.id),
				zap.String("mode", string(s.settings.Mode)),
				zap.Int("half_moves", s.board.Len()),
			)
		}
		s.mu.Unlock()
	}
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.handoffs.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("session_registry_shutdown", zap.Int("sessions", len(all)), zap.Int("lost", lost))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) get(id string) (*GameSession, error) {
	r.mu.RLock()
	s, ok := r.sessions[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *Registry) loadRatings(ctx context.Context, username string) (*domain.UserRatings, error) {
	if r.ratings == nil {
		return domain.NewUserRatings(username), nil
	}
	got, err := r.ratings.GetRatings(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load ratings for %s: %w", username, err)
	}
	if got == nil {
		return domain.NewUserRatings(username), nil
	}
	return got, nil
}

func ratingFor(mode domain.Mode, ur *domain.UserRatings, track domain.Track) int {
	if ur == nil {
		return 0
	}
	if mode.Automated() {
		return ur.CurrentRank
	}
	return ur.Value(track)
}

func (r *Registry) stopTimersLocked(s *GameSession) {
	r.stopClockLocked(s)
	r.cancelOpponentLocked(s)
	if s.evictTimer != nil {
		s.evictTimer.Stop()
		s.evictTimer = nil
	}
}

func (r *Registry) notify(snap Snapshot) {
	r.mu.RLock()
	obs := r.observers
	r.mu.RUnlock()
	for _, o := range obs {
		o.SessionUpdated(snap)
	}
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func newSessionID() (string, error) {
	const length = 26
	b := make([]byte, length)
	base := big.NewInt(int64(len(idAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("session id: %w", err)
		}
		b[i] = idAlphabet[n.Int64()]
	}
	return string(b), nil
}
