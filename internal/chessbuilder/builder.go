// Package chessbuilder assembles the server from configuration.
package chessbuilder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/park285/chesscake-server/internal/adapter/chesspresenter"
	"github.com/park285/chesscake-server/internal/auth"
	"github.com/park285/chesscake-server/internal/cache"
	corechess "github.com/park285/chesscake-server/internal/chess"
	"github.com/park285/chesscake-server/internal/config"
	"github.com/park285/chesscake-server/internal/msgcat"
	"github.com/park285/chesscake-server/internal/render"
	"github.com/park285/chesscake-server/internal/service/session"
	"github.com/park285/chesscake-server/internal/store"
	"github.com/park285/chesscake-server/internal/transport/rest"
	"github.com/park285/chesscake-server/internal/transport/ws"
	"go.uber.org/zap"
)

type Deps struct {
	Registry *session.Registry
	Store    store.Store
	Cache    *cache.Store
	Searcher session.Searcher
	Hub      *ws.Hub
	Handler  http.Handler

	closers []io.Closer
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}
	ok := false
	defer func() {
		if !ok {
			d.closeAll(logger)
		}
	}()

	validator, err := auth.NewValidator(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}
	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	// Repository
	base, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.Store = base
	d.closers = append(d.closers, base)

	// Cache (Redis optional)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		d.closers = append(d.closers, rdb)
		d.Cache = cache.New(base, rdb, logger.Named("cache"), cache.WithRatingTTL(cfg.CacheTTL()))
		d.Store = d.Cache
	}

	// Engine
	searcher, closer, err := openSearcher(cfg)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		d.closers = append(d.closers, closer)
	}
	d.Searcher = searcher

	formatter := chesspresenter.NewFormatter(cat)
	d.Hub = ws.NewHub(logger.Named("ws"), cfg.CORSOrigins)

	opts := session.DefaultOptions()
	opts.OpponentDelay = cfg.OpponentDelay()
	opts.EvictAfter = cfg.EvictAfter()
	opts.Budget = corechess.Budget{Depth: cfg.SearchDepth, MoveTime: cfg.SearchMoveTime()}

	d.Registry = session.NewRegistry(session.Deps{
		Searcher:  searcher,
		Ratings:   d.Store,
		Matches:   d.Store,
		Observers: []session.Observer{chesspresenter.NewPresenter(formatter, d.Hub)},
		Logger:    logger,
	}, opts)

	d.Handler = rest.NewRouter(&rest.Container{
		Registry:    d.Registry,
		Store:       d.Store,
		Renderer:    render.New(),
		Auth:        validator,
		Formatter:   formatter,
		Hub:         d.Hub,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
	})

	ok = true
	return d, nil
}

func openStore(ctx context.Context, cfg *config.AppConfig) (store.Store, error) {
	switch cfg.StoreBackend {
	case "mongo":
		m, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		if err := m.EnsureIndexes(ctx); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return m, nil
	case "postgres":
		p, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := p.Migrate(ctx); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return p, nil
	case "", "memory":
		return store.NewMemoryRepository(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// openSearcher returns nil when the opponent should play seeded moves only.
func openSearcher(cfg *config.AppConfig) (session.Searcher, io.Closer, error) {
	switch cfg.SearchBackend {
	case "uci":
		engine, err := corechess.NewEngine(corechess.EngineConfig{
			BinaryPath: cfg.StockfishPath,
			PoolSize:   cfg.SearchPoolSize,
			Threads:    cfg.EngineThreads,
			HashMB:     cfg.EngineHashMB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init engine: %w", err)
		}
		return engine, engine, nil
	case "http":
		return corechess.NewRemoteEngine(cfg.EngineURL), nil, nil
	case "", "none":
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown search backend %q", cfg.SearchBackend)
}

// Start warms the leaderboard cache and runs the abandoned-session sweeper
// until ctx ends.
func (d *Deps) Start(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) {
	if d.Cache != nil {
		wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		n, err := d.Cache.Warm(wctx)
		cancel()
		if err != nil {
			logger.Warn("cache_warm_failed", zap.Error(err))
		} else {
			logger.Info("cache_warm", zap.Int("users", n))
		}
	}
	go d.Registry.RunSweeper(ctx, cfg.SweepInterval(), cfg.AbandonedAfter())
}

// Close stops the registry, waiting for pending writes, then releases
// connections in reverse order of creation.
func (d *Deps) Close(ctx context.Context, logger *zap.Logger) error {
	var errs []error
	if d.Hub != nil {
		d.Hub.Close()
	}
	if d.Registry != nil {
		if err := d.Registry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("registry shutdown: %w", err))
		}
	}
	if err := d.closeAll(logger); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Deps) closeAll(logger *zap.Logger) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			logger.Warn("close_failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
