package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/park285/chesscake-server/internal/adapter/chesspresenter"
	"github.com/park285/chesscake-server/internal/auth"
	"github.com/park285/chesscake-server/internal/chess/rules"
	"github.com/park285/chesscake-server/internal/service/session"
	"github.com/park285/chesscake-server/internal/store"
	"github.com/park285/chesscake-server/pkg/chessdto"
	"go.uber.org/zap"
)

// Error codes that do not come from a sentinel.
const (
	codeBadRequest     = "bad_request"
	codeIllegalMove    = "illegal_move"
	codeUnknownMode    = "unknown_mode"
	codeHiddenPosition = "hidden_position"
	codeUnauthorized   = "unauthorized"
	codeInternal       = "internal"
)

type errorMapping struct {
	err       error
	status    int
	code      string
	retryable bool
}

var errorTable = []errorMapping{
	{session.ErrSessionNotFound, http.StatusNotFound, "session_not_found", false},
	{session.ErrSessionFull, http.StatusConflict, "session_full", false},
	{session.ErrSelfJoin, http.StatusConflict, "self_join", false},
	{session.ErrNotYourTurn, http.StatusConflict, "not_your_turn", false},
	{session.ErrNotParticipant, http.StatusForbidden, "not_participant", false},
	{session.ErrGameOver, http.StatusConflict, "game_over", false},
	{session.ErrAwaitingOpponent, http.StatusConflict, "awaiting_opponent", false},
	{session.ErrUndoNotAllowed, http.StatusConflict, "undo_not_allowed", false},
	{session.ErrDrawNotAvailable, http.StatusConflict, "draw_not_available", false},
	{session.ErrNoDrawOffer, http.StatusConflict, "no_draw_offer", false},
	{session.ErrInvalidSettings, http.StatusBadRequest, "invalid_settings", false},
	{session.ErrRegistryClosed, http.StatusServiceUnavailable, "registry_closed", true},
	{session.ErrEngineTimeout, http.StatusGatewayTimeout, "engine_timeout", true},
	{session.ErrEngineUnavailable, http.StatusServiceUnavailable, "engine_unavailable", true},
	{store.ErrUnknownTrack, http.StatusBadRequest, "unknown_track", false},
	{rules.ErrMalformedMove, http.StatusBadRequest, "malformed_move", false},
	{auth.ErrMissingToken, http.StatusUnauthorized, codeUnauthorized, false},
	{auth.ErrInvalidToken, http.StatusUnauthorized, codeUnauthorized, false},
}

// responder writes JSON bodies and catalog-backed error payloads.
type responder struct {
	f      *chesspresenter.Formatter
	logger *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (rs responder) writeCode(w http.ResponseWriter, status int, code string, data map[string]any, retryable bool) {
	writeJSON(w, status, chessdto.DomainError{
		Code:      code,
		Message:   rs.f.Error(code, data),
		Retryable: retryable,
	})
}

// fail maps err onto a status and error code. data fills the message template.
func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error, data map[string]any) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			if m.err == session.ErrInvalidSettings {
				if data == nil {
					data = map[string]any{}
				}
				data["Detail"] = err.Error()
			}
			rs.writeCode(w, m.status, m.code, data, m.retryable)
			return
		}
	}
	rs.logger.Error("http_handler_failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", r.Header.Get("X-Request-ID")),
		zap.Error(err),
	)
	rs.writeCode(w, http.StatusInternalServerError, codeInternal, nil, false)
}

// Unauthorized is the error hook for auth.Validator.Middleware.
func (rs responder) Unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	rs.fail(w, r, err, nil)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func jsonEvent(ev chessdto.Event) ([]byte, error) {
	return json.Marshal(ev)
}
