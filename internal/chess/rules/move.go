package rules

import (
	"fmt"
	"strings"
)

// Move is a move intent in square-pair form, e.g. {From: "e7", To: "e8", Promotion: "q"}.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

func (m Move) UCI() string {
	return strings.ToLower(m.From + m.To + m.Promotion)
}

func (m Move) String() string { return m.UCI() }

// Validate checks syntax only; legality is the board's concern.
func (m Move) Validate() error {
	if !validSquare(m.From) || !validSquare(m.To) {
		return fmt.Errorf("%w: %q->%q", ErrMalformedMove, m.From, m.To)
	}
	if m.From == m.To {
		return fmt.Errorf("%w: null move %s", ErrMalformedMove, m.From)
	}
	switch m.Promotion {
	case "", "q", "r", "b", "n":
		return nil
	}
	return fmt.Errorf("%w: promotion %q", ErrMalformedMove, m.Promotion)
}

// Normalize lower-cases and trims every field.
func (m Move) Normalize() Move {
	return Move{
		From:      strings.ToLower(strings.TrimSpace(m.From)),
		To:        strings.ToLower(strings.TrimSpace(m.To)),
		Promotion: strings.ToLower(strings.TrimSpace(m.Promotion)),
	}
}

// ParseUCI parses long algebraic notation such as "e2e4" or "e7e8q".
func ParseUCI(raw string) (Move, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrMalformedMove, raw)
	}
	mv := Move{From: s[0:2], To: s[2:4]}
	if len(s) == 5 {
		mv.Promotion = s[4:5]
	}
	if err := mv.Validate(); err != nil {
		return Move{}, err
	}
	return mv, nil
}

func validSquare(sq string) bool {
	if len(sq) != 2 {
		return false
	}
	return sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}
