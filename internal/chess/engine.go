// Package chess adapts external move searchers for the automated opponent.
package chess

import (
	"context"
	"errors"
	"strings"

	"github.com/park285/chesscake-server/internal/chess/uci"
	"github.com/park285/chesscake-server/internal/obslog"
	"go.uber.org/zap"
)

var (
	ErrEngineUnavailable = errors.New("chess engine unavailable")
	ErrEngineTimeout     = errors.New("chess engine timeout")
)

type EngineConfig struct {
	BinaryPath string
	PoolSize   int
	Threads    int
	HashMB     int
}

// Engine searches positions with a pool of local UCI processes.
type Engine struct {
	pool *uci.Pool
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.BinaryPath,
		Capacity:   cfg.PoolSize,
		Options:    uci.Options{Threads: cfg.Threads, HashMB: cfg.HashMB},
	})
	if err != nil {
		return nil, err
	}
	return &Engine{pool: pool}, nil
}

// BestMove returns the engine's preferred move in UCI notation.
func (e *Engine) BestMove(ctx context.Context, fen string, b Budget) (string, error) {
	if b.IsZero() {
		b = Budget{Depth: 1}
	}
	ctx, cancel := context.WithTimeout(ctx, b.Timeout())
	defer cancel()

	session, err := e.pool.Acquire(ctx)
	if err != nil {
		return "", mapEngineError(err)
	}
	var releaseErr error
	defer func() { e.pool.Release(session, releaseErr) }()

	if err := session.NewGame(ctx); err != nil {
		releaseErr = err
		return "", mapEngineError(err)
	}
	resp, err := session.Search(ctx, uci.SearchRequest{FEN: fen, Limits: b.limits()})
	if err != nil {
		releaseErr = err
		obslog.L().Warn("engine_search_failed", zap.String("fen", fen), zap.Error(err))
		return "", mapEngineError(err)
	}
	return resp.BestMove, nil
}

func (e *Engine) Close() error {
	if e == nil || e.pool == nil {
		return nil
	}
	return e.pool.Close()
}

func mapEngineError(err error) error {
	if err == nil {
		return ErrEngineUnavailable
	}
	if errors.Is(err, ErrEngineTimeout) || errors.Is(err, ErrEngineUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return ErrEngineTimeout
	}
	return ErrEngineUnavailable
}
