// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidMatch marks a match record that cannot be rated.
var ErrInvalidMatch = errors.New("invalid match")

// Team is a fixed two-person side of a match.
type Team struct {
	Player1 string
	Player2 string
}

// Match is one completed two-versus-two match.
type Match struct {
	ID          string    // unique match id
	Bracket     Bracket   // rating category the match counts towards
	PlayedAt    time.Time // when the match was played
	Team1       Team
	Team2       Team
	WinningTeam int // 1 or 2
}

// Participants returns the four player ids in team order.
func (m Match) Participants() [4]string {
	return [4]string{m.Team1.Player1, m.Team1.Player2, m.Team2.Player1, m.Team2.Player2}
}

// Score returns the raw binary outcome for team 1 or 2.
func (m Match) Score(team int) float64 {
	if team == m.WinningTeam {
		return 1
	}
	return 0
}

// Validate checks the structural invariants of a match.
func (m Match) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidMatch)
	}
	if !m.Bracket.Valid() {
		return fmt.Errorf("%w: match %s: unknown bracket %q", ErrInvalidMatch, m.ID, m.Bracket)
	}
	if m.PlayedAt.IsZero() {
		return fmt.Errorf("%w: match %s: missing played_at", ErrInvalidMatch, m.ID)
	}
	if m.WinningTeam != 1 && m.WinningTeam != 2 {
		return fmt.Errorf("%w: match %s: winning team %d", ErrInvalidMatch, m.ID, m.WinningTeam)
	}
	ids := m.Participants()
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: match %s: empty participant", ErrInvalidMatch, m.ID)
		}
		for _, other := range ids[i+1:] {
			if id == other {
				return fmt.Errorf("%w: match %s: player %s appears twice", ErrInvalidMatch, m.ID, id)
			}
		}
	}
	return nil
}
