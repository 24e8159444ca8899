package chessdto

import "time"

type Profile struct {
	Username    string     `json:"username"`
	Elo         int        `json:"elo"`
	KriegElo    int        `json:"eloKriegspiel"`
	CurrentRank int        `json:"rank"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

type LeaderboardEntry struct {
	Place    int    `json:"place"`
	Username string `json:"username"`
	Value    int    `json:"value"`
}

type LeaderboardResponse struct {
	Track string             `json:"track"`
	Top   []LeaderboardEntry `json:"top"`
	Me    *LeaderboardEntry  `json:"me,omitempty"`
}
