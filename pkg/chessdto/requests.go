package chessdto

type CreateGameRequest struct {
	Mode            string  `json:"mode"`
	Opponent        string  `json:"opponent,omitempty"`
	DifficultyRank  int     `json:"difficultyRank,omitempty"`
	DurationMinutes float64 `json:"durationMinutes"`
}

type CreateGameResponse struct {
	ID   string     `json:"id"`
	Game *GameState `json:"game"`
}

type ListGamesResponse struct {
	Games []GameSummary `json:"games"`
}

// DrawRequest Action is "offer" or "accept".
type DrawRequest struct {
	Action string `json:"action"`
}

type UndoResponse struct {
	Undone bool       `json:"undone"`
	Game   *GameState `json:"game"`
}
