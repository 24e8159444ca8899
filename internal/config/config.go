package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	HTTPAddr    string   `yaml:"http_addr"`
	JWTSecret   string   `yaml:"jwt_secret"`
	JWTIssuer   string   `yaml:"jwt_issuer"`
	CORSOrigins []string `yaml:"cors_origins"`

	StoreBackend  string `yaml:"store_backend"` // memory | mongo | postgres
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	DatabaseURL   string `yaml:"database_url"`
	RedisURL      string `yaml:"redis_url"`
	CacheTTLSec   int    `yaml:"cache_ttl_sec"`

	SearchBackend    string `yaml:"search_backend"` // none | uci | http
	StockfishPath    string `yaml:"stockfish_path"`
	EngineURL        string `yaml:"engine_url"`
	SearchDepth      int    `yaml:"search_depth"`
	SearchMoveTimeMS int    `yaml:"search_movetime_ms"`
	SearchPoolSize   int    `yaml:"search_pool_size"`
	EngineThreads    int    `yaml:"engine_threads"`
	EngineHashMB     int    `yaml:"engine_hash_mb"`

	OpponentDelayMS   int `yaml:"opponent_delay_ms"`
	EvictAfterSec     int `yaml:"evict_after_sec"`
	AbandonedAfterSec int `yaml:"abandoned_after_sec"`
	SweepIntervalSec  int `yaml:"sweep_interval_sec"`

	MessagesDir string `yaml:"messages_dir"`
}

func defaults() *AppConfig {
	return &AppConfig{
		HTTPAddr:          ":8080",
		StoreBackend:      "memory",
		MongoDatabase:     "ChessCake",
		SearchBackend:     "none",
		SearchDepth:       1,
		OpponentDelayMS:   3000,
		EvictAfterSec:     600,
		AbandonedAfterSec: 3600,
		SweepIntervalSec:  60,
		CacheTTLSec:       600,
	}
}

// Load applies defaults, then the YAML file named by CHESSCAKE_CONFIG, then env vars.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CHESSCAKE_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.JWTIssuer, "JWT_ISSUER")
	if v := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	setString(&cfg.StoreBackend, "STORE_BACKEND")
	setString(&cfg.MongoURI, "MONGO_URI")
	setString(&cfg.MongoDatabase, "MONGO_DATABASE")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.SearchBackend, "SEARCH_BACKEND")
	setString(&cfg.StockfishPath, "STOCKFISH_PATH")
	setString(&cfg.EngineURL, "ENGINE_URL")
	setString(&cfg.MessagesDir, "MESSAGES_DIR")

	if err := setInt(&cfg.SearchDepth, "SEARCH_DEPTH"); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.SearchMoveTimeMS, "SEARCH_MOVETIME_MS"); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.SearchPoolSize, "SEARCH_POOL_SIZE"); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.OpponentDelayMS, "OPPONENT_DELAY_MS"); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.EvictAfterSec, "EVICT_AFTER_SEC"); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.AbandonedAfterSec, "ABANDONED_AFTER_SEC"); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.SweepIntervalSec, "SWEEP_INTERVAL_SEC"); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.CacheTTLSec, "CACHE_TTL_SEC"); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.EngineThreads, "ENGINE_THREADS"); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.EngineHashMB, "ENGINE_HASH_MB"); err != nil {
		return nil, err
	}

	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)
	cfg.SearchBackend = strings.ToLower(cfg.SearchBackend)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreBackend {
	case "memory":
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo store")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.SearchBackend {
	case "none":
	case "uci":
		if c.StockfishPath == "" {
			return errors.New("STOCKFISH_PATH is required for the uci search backend")
		}
	case "http":
		if c.EngineURL == "" {
			return errors.New("ENGINE_URL is required for the http search backend")
		}
	default:
		return fmt.Errorf("unknown SEARCH_BACKEND %q", c.SearchBackend)
	}
	if c.SearchDepth <= 0 && c.SearchMoveTimeMS <= 0 {
		return errors.New("SEARCH_DEPTH or SEARCH_MOVETIME_MS must be positive")
	}
	return nil
}

func (c *AppConfig) OpponentDelay() time.Duration {
	return time.Duration(c.OpponentDelayMS) * time.Millisecond
}

func (c *AppConfig) EvictAfter() time.Duration {
	return time.Duration(c.EvictAfterSec) * time.Second
}

func (c *AppConfig) AbandonedAfter() time.Duration {
	return time.Duration(c.AbandonedAfterSec) * time.Second
}

func (c *AppConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

func (c *AppConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

// SearchMoveTime is zero when only a depth limit is configured.
func (c *AppConfig) SearchMoveTime() time.Duration {
	return time.Duration(c.SearchMoveTimeMS) * time.Millisecond
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("%s must be a non-negative integer: %q", key, v)
	}
	*dst = n
	return nil
}
