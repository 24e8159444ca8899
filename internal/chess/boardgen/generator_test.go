package boardgen

import (
	"strings"
	"testing"
	"time"

	"github.com/park285/chesscake-server/internal/chess/rules"
	"github.com/park285/chesscake-server/internal/domain"
)

func TestKriegspielUsesStandardBoard(t *testing.T) {
	res, err := NewSeeded().Generate(domain.ModeKriegspiel, 10)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.FEN != rules.StartFEN || res.Seed != NonRandomSeed {
		t.Fatalf("unexpected kriegspiel board: %+v", res)
	}
}

func TestDailyChallengeIsStableWithinADay(t *testing.T) {
	morning := time.Date(2026, 10, 18, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)
	nextDay := time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC)

	gen := &Seeded{Now: func() time.Time { return morning }}
	a, err := gen.Generate(domain.ModeDailyChallenge, 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	gen.Now = func() time.Time { return evening }
	b, _ := gen.Generate(domain.ModeDailyChallenge, 99)
	if a != b {
		t.Fatalf("same day differs: %+v vs %+v", a, b)
	}
	gen.Now = func() time.Time { return nextDay }
	c, _ := gen.Generate(domain.ModeDailyChallenge, 0)
	if c.Seed == a.Seed {
		t.Fatalf("seed did not roll over: %s", c.Seed)
	}
}

func TestFromSeedIsDeterministicAndPlayable(t *testing.T) {
	a, err := FromSeed("abc123", 30, false)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	b, _ := FromSeed("abc123", 30, false)
	if a.FEN != b.FEN {
		t.Fatalf("non-deterministic: %s vs %s", a.FEN, b.FEN)
	}
	board, err := rules.New(a.FEN)
	if err != nil {
		t.Fatalf("rules.New: %v", err)
	}
	if len(board.LegalMoves()) == 0 {
		t.Fatalf("generated position has no legal moves: %s", a.FEN)
	}
	ranks := strings.Split(strings.Fields(a.FEN)[0], "/")
	if ranks[0][4] != 'k' || ranks[7][4] != 'K' {
		t.Fatalf("kings not on the e-file: %s", a.FEN)
	}
}

func TestMirroredBoardIsSymmetric(t *testing.T) {
	res, err := FromSeed("mirror", domain.DefaultRank, true)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	ranks := strings.Split(strings.Fields(res.FEN)[0], "/")
	if strings.ToUpper(ranks[0]) != ranks[7] {
		t.Fatalf("mirrored ranks differ: %s / %s", ranks[0], ranks[7])
	}
}
