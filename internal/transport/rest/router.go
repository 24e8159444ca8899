// Package rest exposes the chess sessions over HTTP.
package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/park285/chesscake-server/internal/adapter/chesspresenter"
	"github.com/park285/chesscake-server/internal/auth"
	"github.com/park285/chesscake-server/internal/render"
	"github.com/park285/chesscake-server/internal/service/session"
	"github.com/park285/chesscake-server/internal/store"
	"github.com/park285/chesscake-server/internal/transport/rest/handler"
	"github.com/park285/chesscake-server/internal/transport/rest/middleware"
	"github.com/park285/chesscake-server/internal/transport/ws"
	"go.uber.org/zap"
)

// Container holds all dependencies for the router
type Container struct {
	Registry    *session.Registry
	Store       store.Store
	Renderer    *render.Renderer
	Auth        *auth.Validator
	Formatter   *chesspresenter.Formatter
	Hub         *ws.Hub
	Logger      *zap.Logger
	CORSOrigins []string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	games := handler.NewGameHandler(c.Registry, c.Formatter, c.Renderer, c.Hub, logger)
	players := handler.NewPlayerHandler(c.Store, c.Formatter, logger)
	requirePlayer := c.Auth.Middleware(games.Unauthorized)
	authed := func(h http.HandlerFunc) http.Handler { return requirePlayer(h) }

	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(logger), middleware.Logging(logger), middleware.CORS(c.CORSOrigins))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()
	// Tokens are optional on reads; they only decide what a viewer may see.
	v1.Use(middleware.OptionalPlayer(c.Auth))

	v1.HandleFunc("/games", games.List).Methods("GET", "OPTIONS")
	v1.Handle("/games", authed(games.Create)).Methods("POST", "OPTIONS")
	v1.HandleFunc("/games/{id}", games.Get).Methods("GET", "OPTIONS")
	v1.HandleFunc("/games/{id}/board.png", games.Board).Methods("GET", "OPTIONS")
	v1.HandleFunc("/games/{id}/legal-moves", games.LegalMoves).Methods("GET", "OPTIONS")
	v1.Handle("/games/{id}/join", authed(games.Join)).Methods("POST", "OPTIONS")
	v1.Handle("/games/{id}/moves", authed(games.Move)).Methods("POST", "OPTIONS")
	v1.Handle("/games/{id}/undo", authed(games.Undo)).Methods("POST", "OPTIONS")
	v1.Handle("/games/{id}/resign", authed(games.Resign)).Methods("POST", "OPTIONS")
	v1.Handle("/games/{id}/draw", authed(games.Draw)).Methods("POST", "OPTIONS")

	v1.HandleFunc("/leaderboard/{track}", players.Leaderboard).Methods("GET", "OPTIONS")
	v1.HandleFunc("/players/{username}", players.Profile).Methods("GET", "OPTIONS")
	v1.HandleFunc("/players/{username}/matches", players.Matches).Methods("GET", "OPTIONS")

	// WebSocket route (token in query param)
	v1.HandleFunc("/ws/games/{id}", games.Watch).Methods("GET")

	return r
}
