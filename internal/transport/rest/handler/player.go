package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/park285/chesscake-server/internal/adapter/chesspresenter"
	"github.com/park285/chesscake-server/internal/auth"
	"github.com/park285/chesscake-server/internal/domain"
	"github.com/park285/chesscake-server/internal/store"
	"github.com/park285/chesscake-server/pkg/chessdto"
	"go.uber.org/zap"
)

const (
	defaultHistorySize = 20
	maxPageSize        = 100
	codePlayerNotFound = "player_not_found"
)

// PlayerHandler serves profiles, match history and leaderboards.
type PlayerHandler struct {
	responder
	store store.Store
}

func NewPlayerHandler(st store.Store, f *chesspresenter.Formatter, logger *zap.Logger) *PlayerHandler {
	return &PlayerHandler{responder: responder{f: f, logger: logger}, store: st}
}

func pageSize(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}

// Profile handles GET /v1/players/{username}
func (h *PlayerHandler) Profile(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(mux.Vars(r)["username"])
	data := map[string]any{"Username": username}
	if username == domain.ComputerUsername {
		h.writeCode(w, http.StatusNotFound, codePlayerNotFound, data, false)
		return
	}
	u, err := h.store.GetRatings(r.Context(), username)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	if u == nil {
		h.writeCode(w, http.StatusNotFound, codePlayerNotFound, data, false)
		return
	}
	writeJSON(w, http.StatusOK, chesspresenter.ToDTOProfile(u))
}

// Matches handles GET /v1/players/{username}/matches?limit=
func (h *PlayerHandler) Matches(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(mux.Vars(r)["username"])
	recs, err := h.store.RecentMatches(r.Context(), username, pageSize(r, defaultHistorySize))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	out := chessdto.MatchHistoryResponse{Username: username, Matches: make([]chessdto.MatchSummary, 0, len(recs))}
	for _, rec := range recs {
		out.Matches = append(out.Matches, chesspresenter.ToDTOMatch(rec, username))
	}
	writeJSON(w, http.StatusOK, out)
}

// Leaderboard handles GET /v1/leaderboard/{track}?limit=. An authenticated
// caller also gets their own place.
func (h *PlayerHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["track"]
	track, ok := domain.ParseTrack(raw)
	data := map[string]any{"Track": raw}
	if !ok {
		h.fail(w, r, store.ErrUnknownTrack, data)
		return
	}
	st, err := store.Standings(r.Context(), h.store, track, auth.PlayerFrom(r.Context()), pageSize(r, store.DefaultLeaderboardSize))
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	writeJSON(w, http.StatusOK, chesspresenter.ToDTOStandings(st))
}
