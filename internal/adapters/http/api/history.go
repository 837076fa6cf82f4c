package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/sandscore/internal/domain/model"
)

// HistoryDependencies defines the interface for rating history lookups.
type HistoryDependencies interface {
	History(ctx context.Context, bracket model.Bracket, playerID string) ([]model.RatingChange, error)
}

// HistoryHandler handles rating history requests.
type HistoryHandler struct {
	deps HistoryDependencies
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps HistoryDependencies) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

// HandleGetHistory handles GET /history/{player_id}?bracket=B requests.
// A player without rated matches gets an empty list.
func (h *HistoryHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/history/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	bracket, err := bracketParam(r, op)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	changes, err := h.deps.History(r.Context(), bracket, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	if changes == nil {
		changes = []model.RatingChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}
