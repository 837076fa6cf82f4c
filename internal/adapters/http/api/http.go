// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	repository "github.com/okian/sandscore/internal/adapters/repository"
	service "github.com/okian/sandscore/internal/app"
	"github.com/okian/sandscore/internal/domain/engine"
	"github.com/okian/sandscore/internal/domain/model"
)

// DefaultMaxLimit caps /leaderboard when no limit is configured.
const DefaultMaxLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Read operations expose leaderboard data.
	TopN(ctx context.Context, bracket model.Bracket, n int) ([]Entry, error)
	Rank(ctx context.Context, bracket model.Bracket, playerID string) (Entry, error)
	History(ctx context.Context, bracket model.Bracket, playerID string) ([]model.RatingChange, error)

	// Recalculate recomputes every rating from the stored history.
	Recalculate(ctx context.Context) (engine.Result, error)

	// SubmitMatch queues a match for storage.
	SubmitMatch(ctx context.Context, m model.Match) (duplicate bool, err error)

	GetStats(ctx context.Context) service.Stats
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = repository.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	historyHandler     *HistoryHandler
	recalculateHandler *RecalculateHandler
	matchesHandler     *MatchesHandler
}

// NewServer creates a new API server with all handlers. maxLimit bounds
// the leaderboard page size; values below one select DefaultMaxLimit.
func NewServer(deps Dependencies, maxLimit int) *Server {
	if maxLimit < 1 {
		maxLimit = DefaultMaxLimit
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		rankHandler:        NewRankHandler(deps),
		historyHandler:     NewHistoryHandler(deps),
		recalculateHandler: NewRecalculateHandler(deps),
		matchesHandler:     NewMatchesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/history/", MetricsMiddleware(s.historyHandler.HandleGetHistory, "history"))
	mux.HandleFunc("/recalculate", MetricsMiddleware(s.recalculateHandler.HandleRecalculate, "recalculate"))
	mux.HandleFunc("/matches", MetricsMiddleware(s.matchesHandler.HandlePostMatch, "matches"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
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

// bracketParam reads the required bracket query parameter.
func bracketParam(r *http.Request, op string) (model.Bracket, error) {
	raw := r.URL.Query().Get("bracket")
	if raw == "" {
		return "", NewKind(op, ErrBadRequest)
	}
	b, err := model.ParseBracket(raw)
	if err != nil {
		return "", WrapKind(op, ErrBadRequest, err)
	}
	return b, nil
}
