package chessdto

// MoveRequest accepts either a UCI string or the square pair.
type MoveRequest struct {
	Move      string `json:"move,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
}

type MoveResponse struct {
	Accepted bool       `json:"accepted"`
	Game     *GameState `json:"game"`
}

type LegalMovesResponse struct {
	Moves []string `json:"moves"`
}
