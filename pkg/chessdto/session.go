// Package chessdto holds the wire types of the HTTP and websocket surface.
package chessdto

import "time"

type PlayerState struct {
	Username         string `json:"username"`
	Side             string `json:"side"`
	RemainingSeconds int    `json:"remainingSeconds"`
	Rating           int    `json:"rating"`
}

type LastMove struct {
	Square string `json:"square"`
	Piece  string `json:"piece"`
	UCI    string `json:"uci,omitempty"`
	SAN    string `json:"san,omitempty"`
}

type Outcome struct {
	Winner  string `json:"winner"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// GameState is a session as one viewer may see it. In a live kriegspiel game
// the opponent's pieces and moves are withheld.
type GameState struct {
	ID              string        `json:"id"`
	Mode            string        `json:"mode"`
	DifficultyRank  int           `json:"difficultyRank"`
	DurationMinutes float64       `json:"durationMinutes"`
	Players         []PlayerState `json:"players"`
	FEN             string        `json:"fen"`
	StartFEN        string        `json:"startFen"`
	Turn            string        `json:"turn"`
	TurnSlot        string        `json:"turnSlot"`
	LastMove        *LastMove     `json:"lastMove,omitempty"`
	MovesUCI        []string      `json:"movesUci"`
	MovesSAN        []string      `json:"movesSan"`
	UndoAvailable   bool          `json:"undoAvailable"`
	DrawOffer       string        `json:"drawOffer,omitempty"`
	ActiveClock     string        `json:"activeClock,omitempty"`
	Seed            string        `json:"seed"`
	CreatedAt       time.Time     `json:"createdAt"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`
	Outcome         *Outcome      `json:"outcome,omitempty"`
	Hidden          bool          `json:"hidden,omitempty"`
	Version         int           `json:"version"`
}

// GameSummary is a lobby row.
type GameSummary struct {
	ID              string    `json:"id"`
	Mode            string    `json:"mode"`
	Host            string    `json:"host"`
	HostRating      int       `json:"hostRating"`
	DurationMinutes float64   `json:"durationMinutes"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Event is one websocket frame.
type Event struct {
	Type  string        `json:"type"`
	Game  *GameState    `json:"game,omitempty"`
	Match *MatchSummary `json:"match,omitempty"`
}

const (
	EventState   = "state"
	EventSettled = "settled"
)
