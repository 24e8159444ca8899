package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/park285/chesscake-server/internal/chess/rules"
	"github.com/park285/chesscake-server/internal/domain"
)

// Settings are fixed at creation.
type Settings struct {
	Mode            domain.Mode `json:"mode"`
	Rank            int         `json:"difficultyRank"`
	DurationMinutes float64     `json:"durationMinutes"`
}

type Player struct {
	Username         string      `json:"username"`
	Side             domain.Side `json:"side"`
	RemainingSeconds int         `json:"remainingSeconds"`
	Rating           int         `json:"rating"`
}

// LastMove is for display only.
type LastMove struct {
	Square string `json:"square"`
	Piece  string `json:"piece"`
	UCI    string `json:"uci"`
	SAN    string `json:"san"`
}

type Meta struct {
	Seed      string    `json:"seed"`
	CreatedAt time.Time `json:"createdAt"`
	StartedAt time.Time `json:"startedAt,omitzero"`
	EndedAt   time.Time `json:"endedAt,omitzero"`
}

type Outcome struct {
	IsOver bool          `json:"isOver"`
	Winner domain.Slot   `json:"winner"`
	Reason domain.Reason `json:"reason,omitempty"`
}

type undoState struct {
	enabled bool
	floor   int
}

const initialUndoFloor = 2

// GameSession is the live state of one game. Every field is guarded by mu.
type GameSession struct {
	mu sync.Mutex

	id        string
	settings  Settings
	players   [2]Player
	board     rules.Board
	turn      domain.Side
	lastMove  *LastMove
	undo      undoState
	meta      Meta
	outcome   Outcome
	persisted bool
	drawOffer domain.Slot
	ratings   [2]*domain.UserRatings
	version   int

	rng *rand.Rand

	clockSlot   domain.Slot
	clockGen    int
	clockCancel context.CancelFunc

	opponentGen   int
	opponentTimer *time.Timer
	evictTimer    *time.Timer
}

func slotIndex(s domain.Slot) int {
	if s == domain.SlotPlayer2 {
		return 1
	}
	return 0
}

func slotAt(i int) domain.Slot {
	if i == 1 {
		return domain.SlotPlayer2
	}
	return domain.SlotPlayer1
}

func (s *GameSession) slotOf(username string) domain.Slot {
	for i, p := range s.players {
		if p.Username != "" && p.Username == username {
			return slotAt(i)
		}
	}
	return domain.SlotNone
}

func (s *GameSession) slotForSide(side domain.Side) domain.Slot {
	for i, p := range s.players {
		if p.Side == side {
			return slotAt(i)
		}
	}
	return domain.SlotNone
}

func (s *GameSession) player(slot domain.Slot) *Player {
	return &s.players[slotIndex(slot)]
}

func (s *GameSession) awaitingOpponent() bool {
	return s.players[1].Username == ""
}

// computerToMove reports whether the automated identity owns the current turn.
func (s *GameSession) computerToMove() bool {
	if !s.settings.Mode.Automated() || s.outcome.IsOver {
		return false
	}
	return s.player(s.slotForSide(s.turn)).Username == domain.ComputerUsername
}

func (s *GameSession) touch() { s.version++ }

// Snapshot is a detached copy of a session's state.
type Snapshot struct {
	ID            string      `json:"id"`
	Settings      Settings    `json:"settings"`
	Players       [2]Player   `json:"players"`
	FEN           string      `json:"fen"`
	StartFEN      string      `json:"startFen"`
	Turn          domain.Side `json:"turn"`
	TurnSlot      domain.Slot `json:"turnSlot"`
	LastMove      *LastMove   `json:"lastMove,omitempty"`
	MovesUCI      []string    `json:"movesUci"`
	MovesSAN      []string    `json:"movesSan"`
	UndoAvailable bool        `json:"undoAvailable"`
	DrawOffer     domain.Slot `json:"drawOffer"`
	ActiveClock   domain.Slot `json:"activeClock"`
	Meta          Meta        `json:"meta"`
	Outcome       Outcome     `json:"outcome"`
	Version       int         `json:"version"`
}

// Joinable reports whether the session still waits for a second player.
func (s Snapshot) Joinable() bool {
	return s.Players[1].Username == "" && !s.Outcome.IsOver
}

// SlotOf returns the slot held by username, or SlotNone.
func (s Snapshot) SlotOf(username string) domain.Slot {
	for i, p := range s.Players {
		if p.Username != "" && p.Username == username {
			return slotAt(i)
		}
	}
	return domain.SlotNone
}

func (s *GameSession) snapshot() Snapshot {
	snap := Snapshot{
		ID:            s.id,
		Settings:      s.settings,
		Players:       s.players,
		FEN:           s.board.FEN(),
		StartFEN:      s.board.StartFEN(),
		Turn:          s.turn,
		TurnSlot:      s.slotForSide(s.turn),
		MovesUCI:      s.board.MovesUCI(),
		MovesSAN:      s.board.MovesSAN(),
		UndoAvailable: s.undoAllowed(),
		DrawOffer:     s.drawOffer,
		ActiveClock:   s.clockSlot,
		Meta:          s.meta,
		Outcome:       s.outcome,
		Version:       s.version,
	}
	if s.lastMove != nil {
		lm := *s.lastMove
		snap.LastMove = &lm
	}
	return snap
}
