package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/cosmic-journey/internal/domain/model"
	"github.com/okian/cosmic-journey/pkg/logger"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	GetLeaderboard(ctx context.Context, q model.LeaderboardQuery) (model.LeaderboardPage, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps   LeaderboardDependencies
	logger logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, log logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, logger: log}
}

// HandleGetLeaderboard handles GET /leaderboard?page=&perPage=&timeFrame=
// requests. Unparseable page numbers fall back to defaults; an unknown
// timeFrame is rejected.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	q := r.URL.Query()
	page, err := h.deps.GetLeaderboard(r.Context(), model.LeaderboardQuery{
		Page:     lenientInt(q.Get("page")),
		PageSize: lenientInt(q.Get("perPage")),
		Window:   model.TimeWindow(q.Get("timeFrame")),
	})
	if err != nil {
		writeFailure(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func lenientInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
