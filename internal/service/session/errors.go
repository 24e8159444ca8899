package session

import (
	"errors"

	"github.com/park285/chesscake-server/internal/chess"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionFull       = errors.New("session already has two players")
	ErrSelfJoin          = errors.New("cannot join own session")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrNotParticipant    = errors.New("not a participant of this session")
	ErrGameOver          = errors.New("game is over")
	ErrAwaitingOpponent  = errors.New("session is waiting for a second player")
	ErrUndoNotAllowed    = errors.New("undo not allowed")
	ErrDrawNotAvailable  = errors.New("draw offers are not available in this mode")
	ErrNoDrawOffer       = errors.New("no pending draw offer")
	ErrInvalidSettings   = errors.New("invalid session settings")
	ErrRegistryClosed    = errors.New("session registry closed")
	ErrEngineTimeout     = chess.ErrEngineTimeout
	ErrEngineUnavailable = chess.ErrEngineUnavailable
)
