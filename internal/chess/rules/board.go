// Package rules wraps the chess rules engine behind an immutable board value.
//
// A Board is never mutated after construction. Apply returns a new Board built
// on a cloned game, so a rejected move leaves the receiver exactly as it was
// and callers commit by replacing their Board wholesale.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/chesscake-server/internal/domain"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrMalformedMove = errors.New("malformed move")
	ErrEmptyBoard    = errors.New("board not initialised")
	ErrNothingToUndo = errors.New("not enough moves to retract")
)

type Flags uint8

const (
	FlagCapture Flags = 1 << iota
	FlagEnPassant
	FlagCastle
	FlagPromotion
	FlagCheck
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Status is the rules engine's verdict on the current position.
type Status int

const (
	StatusOngoing Status = iota
	StatusCheckmate
	StatusStalemate
	StatusInsufficientMaterial
)

// Record is one applied half-move with the position it was played from.
type Record struct {
	Before string
	Piece  string
	Side   domain.Side
	Flags  Flags
	From   string
	To     string
	UCI    string
	SAN    string
}

// PawnMove reports whether the moved piece was a pawn.
func (r Record) PawnMove() bool { return r.Piece == "p" }

type Board struct {
	start   string
	game    *nchess.Game
	history []Record
}

// New builds a board from a FEN. An empty string or "startpos" means the standard start.
func New(fen string) (Board, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		fen = StartFEN
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return Board{}, fmt.Errorf("parse fen: %w", err)
	}
	game := nchess.NewGame(opt)
	return Board{start: fen, game: game}, nil
}

// FromMoves rebuilds a board by replaying UCI moves from a starting FEN.
func FromMoves(start string, moves []string) (Board, error) {
	b, err := New(start)
	if err != nil {
		return Board{}, err
	}
	for _, raw := range moves {
		mv, err := ParseUCI(raw)
		if err != nil {
			return Board{}, fmt.Errorf("decode move %s: %w", raw, err)
		}
		next, _, err := b.Apply(mv)
		if err != nil {
			return Board{}, fmt.Errorf("apply move %s: %w", raw, err)
		}
		b = next
	}
	return b, nil
}

// Apply validates mv against the current position and returns the resulting board.
// The receiver is left untouched whatever the outcome.
func (b Board) Apply(mv Move) (Board, Record, error) {
	if b.game == nil {
		return b, Record{}, ErrEmptyBoard
	}
	if err := mv.Validate(); err != nil {
		return b, Record{}, err
	}

	next := b.game.Clone()
	pos := next.Position()
	decoded, err := nchess.UCINotation{}.Decode(pos, mv.UCI())
	if err != nil {
		return b, Record{}, fmt.Errorf("%w: %s", ErrIllegalMove, mv.UCI())
	}
	if !b.isLegal(mv.UCI()) {
		return b, Record{}, fmt.Errorf("%w: %s", ErrIllegalMove, mv.UCI())
	}

	piece := pos.Board().Piece(decoded.S1())
	rec := Record{
		Before: pos.String(),
		Piece:  pieceLetter(piece.Type()),
		Side:   sideFrom(pos.Turn()),
		From:   mv.From,
		To:     mv.To,
		UCI:    mv.UCI(),
		SAN:    nchess.AlgebraicNotation{}.Encode(pos, decoded),
	}
	if decoded.HasTag(nchess.Capture) {
		rec.Flags |= FlagCapture
	}
	if decoded.HasTag(nchess.EnPassant) {
		rec.Flags |= FlagEnPassant | FlagCapture
	}
	if decoded.HasTag(nchess.KingSideCastle) || decoded.HasTag(nchess.QueenSideCastle) {
		rec.Flags |= FlagCastle
	}
	if decoded.Promo() != nchess.NoPieceType {
		rec.Flags |= FlagPromotion
	}
	if decoded.HasTag(nchess.Check) {
		rec.Flags |= FlagCheck
	}

	if err := next.Move(decoded, nil); err != nil {
		return b, Record{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	history := make([]Record, len(b.history), len(b.history)+1)
	copy(history, b.history)
	history = append(history, rec)
	return Board{start: b.start, game: next, history: history}, rec, nil
}

// Retract returns the board as it was n half-moves ago.
func (b Board) Retract(n int) (Board, error) {
	if n <= 0 {
		return b, nil
	}
	if len(b.history) < n {
		return b, ErrNothingToUndo
	}
	moves := b.MovesUCI()
	return FromMoves(b.start, moves[:len(moves)-n])
}

func (b Board) isLegal(uci string) bool {
	for _, m := range b.game.ValidMoves() {
		if m.String() == uci {
			return true
		}
	}
	return false
}

// LegalMoves enumerates the legal moves of the side to move.
func (b Board) LegalMoves() []Move {
	if b.game == nil {
		return nil
	}
	valid := b.game.ValidMoves()
	out := make([]Move, 0, len(valid))
	for _, m := range valid {
		if mv, err := ParseUCI(m.String()); err == nil {
			out = append(out, mv)
		}
	}
	return out
}

func (b Board) Status() Status {
	if b.game == nil {
		return StatusOngoing
	}
	switch b.game.Method() {
	case nchess.Checkmate:
		return StatusCheckmate
	case nchess.Stalemate:
		return StatusStalemate
	case nchess.InsufficientMaterial:
		return StatusInsufficientMaterial
	}
	return StatusOngoing
}

// Turn is the side to move.
func (b Board) Turn() domain.Side {
	if b.game == nil {
		return domain.White
	}
	return sideFrom(b.game.Position().Turn())
}

func (b Board) FEN() string {
	if b.game == nil {
		return ""
	}
	return b.game.Position().String()
}

func (b Board) StartFEN() string { return b.start }

func (b Board) Len() int { return len(b.history) }

// History returns a copy of the applied half-moves, oldest first.
func (b Board) History() []Record {
	out := make([]Record, len(b.history))
	copy(out, b.history)
	return out
}

func (b Board) MovesUCI() []string {
	out := make([]string, 0, len(b.history))
	for _, r := range b.history {
		out = append(out, r.UCI)
	}
	return out
}

func (b Board) MovesSAN() []string {
	out := make([]string, 0, len(b.history))
	for _, r := range b.history {
		out = append(out, r.SAN)
	}
	return out
}

// Position exposes the engine position for read-only consumers such as the renderer.
func (b Board) Position() *nchess.Position {
	if b.game == nil {
		return nil
	}
	return b.game.Position()
}

func sideFrom(c nchess.Color) domain.Side {
	if c == nchess.Black {
		return domain.Black
	}
	return domain.White
}

func pieceLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.King:
		return "k"
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	case nchess.Pawn:
		return "p"
	}
	return ""
}
