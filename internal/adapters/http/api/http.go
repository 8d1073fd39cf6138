// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/cosmic-journey/internal/domain/model"
	"github.com/okian/cosmic-journey/pkg/logger"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RunDependencies
	LeaderboardDependencies
	StoreDependencies
	StatsProvider
	Pinger
}

// Server wires HTTP routes for the business API.
type Server struct {
	auth               *Authenticator
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	runsHandler        *RunsHandler
	leaderboardHandler *LeaderboardHandler
	storeHandler       *StoreHandler
	sessionHandler     *SessionHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, auth *Authenticator, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		auth:               auth,
		healthHandler:      NewHealthHandler(deps),
		statsHandler:       NewStatsHandler(deps),
		runsHandler:        NewRunsHandler(deps, log.Named("runs")),
		leaderboardHandler: NewLeaderboardHandler(deps, log.Named("leaderboard")),
		storeHandler:       NewStoreHandler(deps, log.Named("store")),
		sessionHandler:     NewSessionHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	authed := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		return MetricsMiddleware(s.auth.Require(h), endpoint)
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /session", authed(s.sessionHandler.HandleSession, "session"))

	mux.HandleFunc("POST /run/create", authed(s.runsHandler.HandleCreate, "run_create"))
	mux.HandleFunc("PATCH /run/level", authed(s.runsHandler.HandleAdvanceLevel, "run_level"))
	mux.HandleFunc("PATCH /run/progress", authed(s.runsHandler.HandleProgress, "run_progress"))
	mux.HandleFunc("GET /run/latest", authed(s.runsHandler.HandleLatest, "run_latest"))
	mux.HandleFunc("GET /run/user", authed(s.runsHandler.HandleList, "run_user"))
	mux.HandleFunc("GET /run/{runId}", authed(s.runsHandler.HandleGet, "run_get"))

	mux.HandleFunc("GET /store/items", authed(s.storeHandler.HandleListItems, "store_items"))
	mux.HandleFunc("GET /store/items/me", authed(s.storeHandler.HandleItemsForUser, "store_items_me"))
	mux.HandleFunc("POST /store/purchase", authed(s.storeHandler.HandlePurchase, "store_purchase"))
	mux.HandleFunc("POST /store/use-item", authed(s.storeHandler.HandleUseItem, "store_use_item"))
}

type errorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

type messageResponse struct {
	Msg string `json:"msg"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeJSON reads a single JSON object into dst, rejecting unknown
// trailing data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w: %v", ErrBadRequest, model.ErrInvalidInput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: %w: trailing data after JSON body", ErrBadRequest, model.ErrInvalidInput)
	}
	return nil
}
