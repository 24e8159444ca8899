package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/park285/chesscake-server/internal/adapter/chesspresenter"
	"github.com/park285/chesscake-server/internal/auth"
	"github.com/park285/chesscake-server/internal/chess/rules"
	"github.com/park285/chesscake-server/internal/domain"
	"github.com/park285/chesscake-server/internal/render"
	"github.com/park285/chesscake-server/internal/service/session"
	"github.com/park285/chesscake-server/internal/transport/ws"
	"github.com/park285/chesscake-server/pkg/chessdto"
	"go.uber.org/zap"
)

// GameHandler serves the live session endpoints.
type GameHandler struct {
	responder
	reg      *session.Registry
	renderer *render.Renderer
	hub      *ws.Hub
}

func NewGameHandler(reg *session.Registry, f *chesspresenter.Formatter, renderer *render.Renderer, hub *ws.Hub, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		responder: responder{f: f, logger: logger},
		reg:       reg,
		renderer:  renderer,
		hub:       hub,
	}
}

func gameID(r *http.Request) (string, map[string]any) {
	id := mux.Vars(r)["id"]
	return id, map[string]any{"ID": id}
}

func (h *GameHandler) state(snap *session.Snapshot, viewer string) *chessdto.GameState {
	return h.f.ToDTOState(*snap, viewer)
}

// Create handles POST /v1/games
func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	player := auth.PlayerFrom(r.Context())

	var req chessdto.CreateGameRequest
	if err := decode(w, r, &req); err != nil {
		h.writeCode(w, http.StatusBadRequest, codeBadRequest, nil, false)
		return
	}
	mode, ok := domain.ParseMode(req.Mode)
	if !ok {
		h.writeCode(w, http.StatusBadRequest, codeUnknownMode, map[string]any{"Mode": req.Mode}, false)
		return
	}
	settings := session.Settings{Mode: mode, Rank: req.DifficultyRank, DurationMinutes: req.DurationMinutes}

	id, err := h.reg.Create(r.Context(), player, req.Opponent, settings)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	snap, err := h.reg.Find(id)
	if err != nil {
		h.fail(w, r, err, map[string]any{"ID": id})
		return
	}
	writeJSON(w, http.StatusCreated, chessdto.CreateGameResponse{ID: id, Game: h.state(snap, player)})
}

// List handles GET /v1/games?mode=
func (h *GameHandler) List(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("mode")
	if raw == "" {
		raw = string(domain.ModePlayerVsPlayer)
	}
	mode, ok := domain.ParseMode(raw)
	if !ok {
		h.writeCode(w, http.StatusBadRequest, codeUnknownMode, map[string]any{"Mode": raw}, false)
		return
	}
	out := chessdto.ListGamesResponse{Games: []chessdto.GameSummary{}}
	for _, snap := range h.reg.ListJoinable(mode) {
		out.Games = append(out.Games, chesspresenter.ToDTOSummary(snap))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /v1/games/{id}
func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, data := gameID(r)
	snap, err := h.reg.Find(id)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	writeJSON(w, http.StatusOK, h.state(snap, auth.PlayerFrom(r.Context())))
}

// Join handles POST /v1/games/{id}/join
func (h *GameHandler) Join(w http.ResponseWriter, r *http.Request) {
	id, data := gameID(r)
	player := auth.PlayerFrom(r.Context())
	snap, err := h.reg.Join(r.Context(), id, player)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	writeJSON(w, http.StatusOK, h.state(snap, player))
}

// Move handles POST /v1/games/{id}/moves
func (h *GameHandler) Move(w http.ResponseWriter, r *http.Request) {
	id, data := gameID(r)
	player := auth.PlayerFrom(r.Context())

	var req chessdto.MoveRequest
	if err := decode(w, r, &req); err != nil {
		h.writeCode(w, http.StatusBadRequest, codeBadRequest, nil, false)
		return
	}
	intent, err := moveIntent(req)
	data["Move"] = req.Move
	if req.Move == "" {
		data["Move"] = req.From + req.To + req.Promotion
	}
	if err != nil {
		h.fail(w, r, err, data)
		return
	}

	ok, err := h.reg.ApplyAs(r.Context(), id, player, intent)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	snap, err := h.reg.Find(id)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, chessdto.DomainError{
			Code:    codeIllegalMove,
			Message: h.f.Error(codeIllegalMove, data),
		})
		return
	}
	writeJSON(w, http.StatusOK, chessdto.MoveResponse{Accepted: true, Game: h.state(snap, player)})
}

func moveIntent(req chessdto.MoveRequest) (session.MoveIntent, error) {
	if req.Move != "" {
		return rules.ParseUCI(req.Move)
	}
	mv := rules.Move{From: req.From, To: req.To, Promotion: req.Promotion}.Normalize()
	if err := mv.Validate(); err != nil {
		return rules.Move{}, err
	}
	return mv, nil
}

// LegalMoves handles GET /v1/games/{id}/legal-moves. A live kriegspiel
// position is refused: its captures would reveal hidden pieces.
func (h *GameHandler) LegalMoves(w http.ResponseWriter, r *http.Request) {
	id, data := gameID(r)
	snap, err := h.reg.Find(id)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	if hidden(snap) {
		h.writeCode(w, http.StatusForbidden, codeHiddenPosition, nil, false)
		return
	}
	moves, err := h.reg.LegalMoves(id)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	if moves == nil {
		moves = []string{}
	}
	writeJSON(w, http.StatusOK, chessdto.LegalMovesResponse{Moves: moves})
}

func hidden(snap *session.Snapshot) bool {
	return snap.Settings.Mode == domain.ModeKriegspiel && !snap.Outcome.IsOver
}

// Undo handles POST /v1/games/{id}/undo
func (h *GameHandler) Undo(w http.ResponseWriter, r *http.Request) {
	id, data := gameID(r)
	player := auth.PlayerFrom(r.Context())
	undone, err := h.reg.UndoAs(r.Context(), id, player)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	if !undone {
		h.fail(w, r, session.ErrUndoNotAllowed, data)
		return
	}
	snap, err := h.reg.Find(id)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	writeJSON(w, http.StatusOK, chessdto.UndoResponse{Undone: true, Game: h.state(snap, player)})
}

// Resign handles POST /v1/games/{id}/resign
func (h *GameHandler) Resign(w http.ResponseWriter, r *http.Request) {
	id, data := gameID(r)
	player := auth.PlayerFrom(r.Context())
	snap, err := h.reg.Resign(r.Context(), id, player)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	writeJSON(w, http.StatusOK, h.state(snap, player))
}

// Draw handles POST /v1/games/{id}/draw
func (h *GameHandler) Draw(w http.ResponseWriter, r *http.Request) {
	id, data := gameID(r)
	player := auth.PlayerFrom(r.Context())

	var req chessdto.DrawRequest
	if err := decode(w, r, &req); err != nil {
		h.writeCode(w, http.StatusBadRequest, codeBadRequest, nil, false)
		return
	}
	var (
		snap *session.Snapshot
		err  error
	)
	switch req.Action {
	case "offer":
		snap, err = h.reg.OfferDraw(r.Context(), id, player)
	case "accept":
		snap, err = h.reg.AcceptDraw(r.Context(), id, player)
	default:
		h.writeCode(w, http.StatusBadRequest, codeBadRequest, nil, false)
		return
	}
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	writeJSON(w, http.StatusOK, h.state(snap, player))
}

// Board handles GET /v1/games/{id}/board.png
func (h *GameHandler) Board(w http.ResponseWriter, r *http.Request) {
	id, data := gameID(r)
	snap, err := h.reg.Find(id)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	if hidden(snap) {
		h.writeCode(w, http.StatusForbidden, codeHiddenPosition, nil, false)
		return
	}

	opts := render.Options{Header: boardHeader(snap)}
	if flip, err := strconv.ParseBool(r.URL.Query().Get("flip")); err == nil {
		opts.Flip = flip
	} else if slot := snap.SlotOf(auth.PlayerFrom(r.Context())); slot != domain.SlotNone {
		opts.Flip = snap.Players[slotIndex(slot)].Side == domain.Black
	}
	if lm := snap.LastMove; lm != nil && len(lm.UCI) >= 4 {
		opts.LastFrom, opts.LastTo = lm.UCI[0:2], lm.UCI[2:4]
	}

	png, err := h.renderer.BoardPNG(r.Context(), snap.FEN, opts)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func boardHeader(snap *session.Snapshot) string {
	white, black := snap.Players[0].Username, snap.Players[1].Username
	if snap.Players[0].Side == domain.Black {
		white, black = black, white
	}
	if black == "" {
		black = "?"
	}
	return white + " vs " + black
}

func slotIndex(s domain.Slot) int {
	if s == domain.SlotPlayer2 {
		return 1
	}
	return 0
}

// Watch handles GET /v1/ws/games/{id}. The token query parameter, when
// valid, identifies the viewer.
func (h *GameHandler) Watch(w http.ResponseWriter, r *http.Request) {
	id, data := gameID(r)
	viewer := auth.PlayerFrom(r.Context())
	snap, err := h.reg.Find(id)
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	initial, err := jsonEvent(chessdto.Event{Type: chessdto.EventState, Game: h.state(snap, viewer)})
	if err != nil {
		h.fail(w, r, err, data)
		return
	}
	h.hub.Serve(w, r, id, viewer, initial)
}
