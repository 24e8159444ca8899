// Package boardgen produces starting positions for new sessions.
package boardgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	mrand "math/rand"
	"strings"
	"time"

	"github.com/park285/chesscake-server/internal/chess/rules"
	"github.com/park285/chesscake-server/internal/domain"
)

// NonRandomSeed marks the standard starting position.
const NonRandomSeed = "nonrandom"

type Result struct {
	FEN  string
	Seed string
}

type Generator interface {
	Generate(mode domain.Mode, rank int) (Result, error)
}

// Seeded draws each side's back rank from a generator keyed by the seed.
// Daily challenges take their seed from the UTC date.
type Seeded struct {
	Now func() time.Time
}

func NewSeeded() *Seeded { return &Seeded{Now: time.Now} }

func (g *Seeded) Generate(mode domain.Mode, rank int) (Result, error) {
	switch mode {
	case domain.ModeKriegspiel:
		return Result{FEN: rules.StartFEN, Seed: NonRandomSeed}, nil
	case domain.ModeDailyChallenge:
		return FromSeed(DailySeed(g.now()), domain.DefaultRank, true)
	case domain.ModePlayerVsPlayer:
		seed, err := randomSeed()
		if err != nil {
			return Result{}, err
		}
		return FromSeed(seed, domain.DefaultRank, true)
	default:
		seed, err := randomSeed()
		if err != nil {
			return Result{}, err
		}
		return FromSeed(seed, rank, false)
	}
}

func (g *Seeded) now() time.Time {
	if g == nil || g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// DailySeed is shared by every daily challenge started on the same UTC day.
func DailySeed(t time.Time) string {
	return "daily-" + t.UTC().Format("2006-01-02")
}

// FromSeed is deterministic in (seed, rank, mirrored). When mirrored, black gets
// the same back rank as white; otherwise black is drawn at the opposite strength.
func FromSeed(seed string, rank int, mirrored bool) (Result, error) {
	if seed == NonRandomSeed {
		return Result{FEN: rules.StartFEN, Seed: seed}, nil
	}
	r := mrand.New(mrand.NewSource(SeedValue(seed)))
	strength := strengthFor(rank)

	white := backRank(r, strength)
	black := white
	if !mirrored {
		black = backRank(r, 1-strength)
	}

	fen := fmt.Sprintf("%s/pppppppp/8/8/8/8/PPPPPPPP/%s w - - 0 1",
		strings.ToLower(string(black[:])),
		strings.ToUpper(string(white[:])),
	)
	if _, err := rules.New(fen); err != nil {
		return Result{}, fmt.Errorf("generated invalid position %q: %w", fen, err)
	}
	return Result{FEN: fen, Seed: seed}, nil
}

// SeedValue hashes a seed string into a math/rand source value.
func SeedValue(seed string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return int64(h.Sum64())
}

// strengthFor maps a ladder rank to the human side's piece quality in [0.1, 0.9].
// Higher ranks get weaker pieces.
func strengthFor(rank int) float64 {
	s := 1 - float64(rank)/100
	if s < 0.1 {
		return 0.1
	}
	if s > 0.9 {
		return 0.9
	}
	return s
}

func backRank(r *mrand.Rand, strength float64) [8]byte {
	type weighted struct {
		piece  byte
		weight float64
	}
	pool := []weighted{
		{'q', 2 * strength},
		{'r', 3 * strength},
		{'b', 3},
		{'n', 3*(1-strength) + 1},
	}
	total := 0.0
	for _, w := range pool {
		total += w.weight
	}

	var out [8]byte
	for file := 0; file < 8; file++ {
		if file == 4 {
			out[file] = 'k'
			continue
		}
		pick := r.Float64() * total
		out[file] = pool[len(pool)-1].piece
		for _, w := range pool {
			if pick < w.weight {
				out[file] = w.piece
				break
			}
			pick -= w.weight
		}
	}
	return out
}

func randomSeed() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("seed entropy: %w", err)
	}
	return hex.EncodeToString(b), nil
}
