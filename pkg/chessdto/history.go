package chessdto

import "time"

// MatchSummary is one finished game in a player's history.
type MatchSummary struct {
	ID          string    `json:"id"`
	Mode        string    `json:"mode"`
	White       string    `json:"white"`
	Black       string    `json:"black"`
	Winner      string    `json:"winner,omitempty"`
	Reason      string    `json:"reason"`
	Result      string    `json:"result"`
	RatingDelta int       `json:"ratingDelta"`
	HalfMoves   int       `json:"halfMoves"`
	PGN         string    `json:"pgn"`
	EndedAt     time.Time `json:"endedAt"`
}

type MatchHistoryResponse struct {
	Username string         `json:"username"`
	Matches  []MatchSummary `json:"matches"`
}
