package domain

import (
	"strings"
	"time"
)

// Mode selects the game variant and which rating track a session settles on.
type Mode string

const (
	ModePlayerVsComputer Mode = "playerVsComputer"
	ModePlayerVsPlayer   Mode = "playerVsPlayerOnline"
	ModeKriegspiel       Mode = "kriegspiel"
	ModeDailyChallenge   Mode = "dailyChallenge"
)

func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.TrimSpace(raw)) {
	case ModePlayerVsComputer:
		return ModePlayerVsComputer, true
	case ModePlayerVsPlayer:
		return ModePlayerVsPlayer, true
	case ModeKriegspiel:
		return ModeKriegspiel, true
	case ModeDailyChallenge:
		return ModeDailyChallenge, true
	}
	return "", false
}

// Automated reports whether player2 is the computer.
func (m Mode) Automated() bool {
	return m == ModePlayerVsComputer || m == ModeDailyChallenge
}

type Side string

const (
	White Side = "white"
	Black Side = "black"
)

func (s Side) Opposite() Side {
	if s == White {
		return Black
	}
	return White
}

type Slot string

const (
	SlotPlayer1 Slot = "player1"
	SlotPlayer2 Slot = "player2"
	SlotNone    Slot = "none"
)

func (s Slot) Other() Slot {
	switch s {
	case SlotPlayer1:
		return SlotPlayer2
	case SlotPlayer2:
		return SlotPlayer1
	}
	return SlotNone
}

type Reason string

const (
	ReasonCheckmate            Reason = "checkmate"
	ReasonStalemate            Reason = "stalemate"
	ReasonInsufficientMaterial Reason = "insufficient_material"
	ReasonThreefoldRepetition  Reason = "threefold_repetition"
	ReasonFiftyMoveRule        Reason = "fifty_move_rule"
	ReasonTimeout              Reason = "timeout"
	ReasonResignation          Reason = "resignation"
	ReasonAgreement            Reason = "agreement"
)

// ComputerUsername is the identity of the automated opponent.
const ComputerUsername = "Computer"

const (
	DefaultElo  = 400
	DefaultRank = 50
)

// UserRatings mirrors the rating fields kept on a user document.
type UserRatings struct {
	Username    string    `bson:"username" json:"username"`
	Elo         int       `bson:"rbcELO" json:"rbcELO"`
	KriegElo    int       `bson:"kriELO" json:"kriELO"`
	CurrentRank int       `bson:"rbcCurrentRank" json:"rbcCurrentRank"`
	UpdatedAt   time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

func NewUserRatings(username string) *UserRatings {
	return &UserRatings{
		Username:    username,
		Elo:         DefaultElo,
		KriegElo:    DefaultElo,
		CurrentRank: DefaultRank,
	}
}

// Track names a rating field.
type Track string

const (
	TrackElo      Track = "elo"
	TrackKriegElo Track = "eloKriegspiel"
	TrackRank     Track = "rank"
)

func ParseTrack(raw string) (Track, bool) {
	switch Track(strings.TrimSpace(raw)) {
	case TrackElo:
		return TrackElo, true
	case TrackKriegElo:
		return TrackKriegElo, true
	case TrackRank:
		return TrackRank, true
	}
	return "", false
}

// TrackFor returns the ELO track a mode settles on.
func TrackFor(mode Mode) Track {
	if mode == ModeKriegspiel {
		return TrackKriegElo
	}
	return TrackElo
}

func (r *UserRatings) Value(t Track) int {
	if r == nil {
		return 0
	}
	switch t {
	case TrackKriegElo:
		return r.KriegElo
	case TrackRank:
		return r.CurrentRank
	default:
		return r.Elo
	}
}

// RatingUpdate is a partial write of rating fields; nil fields are left as they are.
type RatingUpdate struct {
	Elo         *int
	KriegElo    *int
	CurrentRank *int
}

func (u RatingUpdate) Empty() bool {
	return u.Elo == nil && u.KriegElo == nil && u.CurrentRank == nil
}

func (u RatingUpdate) ApplyTo(r *UserRatings) {
	if r == nil {
		return
	}
	if u.Elo != nil {
		r.Elo = *u.Elo
	}
	if u.KriegElo != nil {
		r.KriegElo = *u.KriegElo
	}
	if u.CurrentRank != nil {
		r.CurrentRank = *u.CurrentRank
	}
}

type MatchPlayer struct {
	Username         string `bson:"username" json:"username"`
	Side             Side   `bson:"side" json:"side"`
	RatingBefore     int    `bson:"ratingBefore" json:"ratingBefore"`
	RatingAfter      int    `bson:"ratingAfter" json:"ratingAfter"`
	RatingDelta      int    `bson:"ratingDelta" json:"ratingDelta"`
	RemainingSeconds int    `bson:"remainingSeconds" json:"remainingSeconds"`
}

// MatchRecord is the write-once snapshot of a finished session.
type MatchRecord struct {
	ID          string      `bson:"_id" json:"id"`
	SessionID   string      `bson:"sessionId" json:"sessionId"`
	Mode        Mode        `bson:"mode" json:"mode"`
	Player1     MatchPlayer `bson:"player1" json:"player1"`
	Player2     MatchPlayer `bson:"player2" json:"player2"`
	RankUsed    int         `bson:"rankUsed" json:"rankUsed"`
	RankAfter   int         `bson:"rankAfter" json:"rankAfter"`
	Seed        string      `bson:"seed" json:"seed"`
	InitialFEN  string      `bson:"initialFen" json:"initialFen"`
	FinalFEN    string      `bson:"finalFen" json:"finalFen"`
	MovesUCI    []string    `bson:"movesUci" json:"movesUci"`
	MovesSAN    []string    `bson:"movesSan" json:"movesSan"`
	PGN         string      `bson:"pgn" json:"pgn"`
	WhiteTurns  int         `bson:"whiteTurns" json:"whiteTurns"`
	BlackTurns  int         `bson:"blackTurns" json:"blackTurns"`
	Winner      Slot        `bson:"winner" json:"winner"`
	Reason      Reason      `bson:"reason" json:"reason"`
	StartedAt   time.Time   `bson:"startedAt" json:"startedAt"`
	EndedAt     time.Time   `bson:"endedAt" json:"endedAt"`
	DurationMin float64     `bson:"durationMinutes" json:"durationMinutes"`
}

// LeaderboardEntry is one ranked row of a rating track.
type LeaderboardEntry struct {
	Username string `json:"username"`
	Value    int    `json:"value"`
	Place    int    `json:"place"`
}

// Standings is a leaderboard page plus the caller's own row, if ranked.
type Standings struct {
	Track Track              `json:"track"`
	Top   []LeaderboardEntry `json:"top"`
	Me    *LeaderboardEntry  `json:"me,omitempty"`
}
