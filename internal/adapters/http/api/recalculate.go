package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	service "github.com/okian/sandscore/internal/app"
	"github.com/okian/sandscore/internal/domain/engine"
)

// Recalculator runs a full rating recalculation.
type Recalculator interface {
	Recalculate(ctx context.Context) (engine.Result, error)
}

// RecalculateHandler handles recalculation requests.
type RecalculateHandler struct {
	deps Recalculator
}

// NewRecalculateHandler creates a new recalculate handler.
func NewRecalculateHandler(deps Recalculator) *RecalculateHandler {
	return &RecalculateHandler{deps: deps}
}

type recalculateResponse struct {
	Status            string    `json:"status"`
	Players           int       `json:"players"`
	Passes            int       `json:"passes"`
	MatchesTotal      int       `json:"matches_total"`
	MatchesValid      int       `json:"matches_valid"`
	MatchesSkipped    int       `json:"matches_skipped"`
	DuplicatesSkipped int       `json:"duplicates_skipped"`
	PassDeltas        []float64 `json:"pass_deltas"`
	ReferenceTime     time.Time `json:"reference_time"`
	DurationMs        float64   `json:"duration_ms"`
}

// HandleRecalculate handles POST /recalculate requests. The run is bound to
// the request context, so a client that disconnects cancels it.
func (h *RecalculateHandler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	const op = "api.recalculate"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	res, err := h.deps.Recalculate(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrRecalculationRunning) {
			writeError(w, http.StatusConflict, "conflict", WrapKind(op, ErrConflict, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, recalculateResponse{
		Status:            "ok",
		Players:           len(res.Profiles),
		Passes:            res.Stats.Passes,
		MatchesTotal:      res.Stats.MatchesTotal,
		MatchesValid:      res.Stats.MatchesValid,
		MatchesSkipped:    res.Stats.MatchesSkipped,
		DuplicatesSkipped: res.Stats.DuplicatesSkipped,
		PassDeltas:        res.Stats.PassDeltas,
		ReferenceTime:     res.Stats.ReferenceTime,
		DurationMs:        float64(res.Stats.Duration.Microseconds()) / 1000,
	})
}
