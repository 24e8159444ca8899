package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/chesscake-server/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chess_users (
	username     TEXT PRIMARY KEY,
	elo          INTEGER NOT NULL DEFAULT 400,
	krieg_elo    INTEGER NOT NULL DEFAULT 400,
	current_rank INTEGER NOT NULL DEFAULT 50,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS chess_matches (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL,
	mode             TEXT NOT NULL,
	player1_username TEXT NOT NULL,
	player2_username TEXT NOT NULL,
	winner           TEXT NOT NULL,
	reason           TEXT NOT NULL,
	pgn              TEXT NOT NULL,
	started_at       TIMESTAMPTZ,
	ended_at         TIMESTAMPTZ NOT NULL,
	record           JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS chess_matches_p1_idx ON chess_matches (player1_username, ended_at DESC);
CREATE INDEX IF NOT EXISTS chess_matches_p2_idx ON chess_matches (player2_username, ended_at DESC);`

var _ Store = (*Postgres)(nil)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) GetRatings(ctx context.Context, username string) (*domain.UserRatings, error) {
	const query = `
		SELECT username, elo, krieg_elo, current_rank, updated_at
		FROM chess_users
		WHERE username = $1`

	var u domain.UserRatings
	err := p.db.QueryRowContext(ctx, query, strings.TrimSpace(username)).Scan(
		&u.Username, &u.Elo, &u.KriegElo, &u.CurrentRank, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select ratings: %w", err)
	}
	return &u, nil
}

func (p *Postgres) UpdateRatings(ctx context.Context, username string, upd domain.RatingUpdate) error {
	username = strings.TrimSpace(username)
	if username == "" || upd.Empty() {
		return nil
	}
	const query = `
		INSERT INTO chess_users (username, elo, krieg_elo, current_rank, updated_at)
		VALUES ($1, COALESCE($2::int, 400), COALESCE($3::int, 400), COALESCE($4::int, 50), now())
		ON CONFLICT (username) DO UPDATE SET
			elo          = COALESCE($2::int, chess_users.elo),
			krieg_elo    = COALESCE($3::int, chess_users.krieg_elo),
			current_rank = COALESCE($4::int, chess_users.current_rank),
			updated_at   = now()`

	_, err := p.db.ExecContext(ctx, query, username,
		nullInt(upd.Elo), nullInt(upd.KriegElo), nullInt(upd.CurrentRank))
	if err != nil {
		return fmt.Errorf("upsert ratings: %w", err)
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func (p *Postgres) SaveMatch(ctx context.Context, rec *domain.MatchRecord) error {
	if rec == nil {
		return fmt.Errorf("nil match record")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal match: %w", err)
	}
	var started sql.NullTime
	if !rec.StartedAt.IsZero() {
		started = sql.NullTime{Time: rec.StartedAt, Valid: true}
	}

	const query = `
		INSERT INTO chess_matches (
			id, session_id, mode, player1_username, player2_username,
			winner, reason, pgn, started_at, ended_at, record
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
		ON CONFLICT (id) DO NOTHING
		RETURNING id`

	var id sql.NullString
	err = p.db.QueryRowContext(ctx, query,
		rec.ID, rec.SessionID, string(rec.Mode), rec.Player1.Username, rec.Player2.Username,
		string(rec.Winner), string(rec.Reason), rec.PGN, started, rec.EndedAt, raw,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return ErrDuplicateMatch
	}
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (p *Postgres) RecentMatches(ctx context.Context, username string, limit int) ([]*domain.MatchRecord, error) {
	const query = `
		SELECT record
		FROM chess_matches
		WHERE player1_username = $1 OR player2_username = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	limit = normalizeLimit(limit, DefaultLeaderboardSize)
	rows, err := p.db.QueryContext(ctx, query, strings.TrimSpace(username), limit)
	if err != nil {
		return nil, fmt.Errorf("select matches: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.MatchRecord, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		var rec domain.MatchRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal match: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (p *Postgres) ListRatings(ctx context.Context) ([]domain.UserRatings, error) {
	const query = `
		SELECT username, elo, krieg_elo, current_rank, updated_at
		FROM chess_users
		WHERE username <> $1
		ORDER BY username`

	rows, err := p.db.QueryContext(ctx, query, domain.ComputerUsername)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var out []domain.UserRatings
	for rows.Next() {
		var u domain.UserRatings
		if err := rows.Scan(&u.Username, &u.Elo, &u.KriegElo, &u.CurrentRank, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *Postgres) TopRatings(ctx context.Context, track domain.Track, limit int) ([]domain.LeaderboardEntry, error) {
	col, err := columnFor(track)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT username, %[1]s
		FROM chess_users
		WHERE username <> $1
		ORDER BY %[1]s DESC, username ASC
		LIMIT $2`, col)

	limit = normalizeLimit(limit, DefaultLeaderboardSize)
	rows, err := p.db.QueryContext(ctx, query, domain.ComputerUsername, limit)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LeaderboardEntry, 0, limit)
	for rows.Next() {
		e := domain.LeaderboardEntry{Place: len(out) + 1}
		if err := rows.Scan(&e.Username, &e.Value); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) Place(ctx context.Context, track domain.Track, username string) (domain.LeaderboardEntry, bool, error) {
	col, err := columnFor(track)
	if err != nil {
		return domain.LeaderboardEntry{}, false, err
	}
	username = strings.TrimSpace(username)
	if username == domain.ComputerUsername {
		return domain.LeaderboardEntry{}, false, nil
	}
	query := fmt.Sprintf(`
		SELECT me.username, me.%[1]s,
			1 + (SELECT COUNT(*) FROM chess_users u
				WHERE u.username <> $2
				AND (u.%[1]s > me.%[1]s OR (u.%[1]s = me.%[1]s AND u.username < me.username)))
		FROM chess_users me
		WHERE me.username = $1`, col)

	var e domain.LeaderboardEntry
	err = p.db.QueryRowContext(ctx, query, username, domain.ComputerUsername).Scan(&e.Username, &e.Value, &e.Place)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("select place: %w", err)
	}
	return e, true, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
