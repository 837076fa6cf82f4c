package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/sandscore/internal/adapters/mq/queue"
	service "github.com/okian/sandscore/internal/app"
	"github.com/okian/sandscore/internal/domain/model"
)

// maxMatchBody bounds the size of a submitted match document.
const maxMatchBody = 64 << 10

// MatchSubmitter queues matches for storage.
type MatchSubmitter interface {
	SubmitMatch(ctx context.Context, m model.Match) (duplicate bool, err error)
}

// MatchesHandler handles match submissions.
type MatchesHandler struct {
	deps MatchSubmitter
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(deps MatchSubmitter) *MatchesHandler {
	return &MatchesHandler{deps: deps}
}

type matchRequest struct {
	MatchID     string    `json:"match_id"`
	Bracket     string    `json:"bracket"`
	PlayedAt    time.Time `json:"played_at"`
	Team1       []string  `json:"team1"`
	Team2       []string  `json:"team2"`
	WinningTeam int       `json:"winning_team"`
}

func (r *matchRequest) toMatch() (model.Match, error) {
	if len(r.Team1) != 2 || len(r.Team2) != 2 {
		return model.Match{}, fmt.Errorf("%w: each team needs exactly two players", model.ErrInvalidMatch)
	}
	b, err := model.ParseBracket(r.Bracket)
	if err != nil {
		return model.Match{}, err
	}
	m := model.Match{
		ID:          r.MatchID,
		Bracket:     b,
		PlayedAt:    r.PlayedAt.UTC(),
		Team1:       model.Team{Player1: r.Team1[0], Player2: r.Team1[1]},
		Team2:       model.Team{Player1: r.Team2[0], Player2: r.Team2[1]},
		WinningTeam: r.WinningTeam,
	}
	return m, m.Validate()
}

type ackResponse struct {
	Status    string `json:"status"`
	MatchID   string `json:"match_id"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostMatch handles POST /matches requests. Accepted matches are
// stored asynchronously and count from the next recalculation.
func (h *MatchesHandler) HandlePostMatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_match"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req matchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMatchBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	m, err := req.toMatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	dup, err := h.deps.SubmitMatch(r.Context(), m)
	switch {
	case err == nil && dup:
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", MatchID: m.ID, Duplicate: true})
	case err == nil:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", MatchID: m.ID})
	case errors.Is(err, model.ErrInvalidMatch):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, queue.ErrFull):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrIngestStopped):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
