package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	corechess "github.com/park285/chesscake-server/internal/chess"
	"github.com/park285/chesscake-server/internal/chess/rules"
)

func main() {
	backend := flag.String("backend", os.Getenv("SEARCH_BACKEND"), "uci or http")
	binary := flag.String("stockfish", os.Getenv("STOCKFISH_PATH"), "engine binary for the uci backend")
	baseURL := flag.String("url", os.Getenv("ENGINE_URL"), "search service base URL for the http backend")
	fen := flag.String("fen", rules.StartFEN, "position to search")
	depth := flag.Int("depth", 8, "search depth")
	flag.Parse()

	var (
		searcher interface {
			BestMove(ctx context.Context, fen string, b corechess.Budget) (string, error)
		}
		closeFn = func() error { return nil }
	)
	switch *backend {
	case "uci":
		if *binary == "" {
			log.Fatal("STOCKFISH_PATH is required")
		}
		engine, err := corechess.NewEngine(corechess.EngineConfig{BinaryPath: *binary, PoolSize: 1})
		if err != nil {
			log.Fatalf("engine init error: %v", err)
		}
		searcher, closeFn = engine, engine.Close
	case "http":
		if *baseURL == "" {
			log.Fatal("ENGINE_URL is required")
		}
		searcher = corechess.NewRemoteEngine(*baseURL, corechess.WithRemoteRetry(0))
	default:
		log.Fatalf("unknown backend %q; use -backend uci|http", *backend)
	}
	defer func() { _ = closeFn() }()

	if _, err := rules.New(*fen); err != nil {
		log.Fatalf("bad fen: %v", err)
	}

	budget := corechess.Budget{Depth: *depth}
	ctx, cancel := context.WithTimeout(context.Background(), budget.Timeout())
	defer cancel()

	start := time.Now()
	move, err := searcher.BestMove(ctx, *fen, budget)
	if err != nil {
		log.Printf("search error after %s: %v", time.Since(start).Round(time.Millisecond), err)
		return
	}
	if _, err := rules.ParseUCI(move); err != nil {
		log.Printf("engine answered malformed move %q", move)
		return
	}
	log.Printf("bestmove %s in %s", move, time.Since(start).Round(time.Millisecond))
}
