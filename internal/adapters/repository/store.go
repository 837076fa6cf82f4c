// Package repository holds the published standings of each bracket.
package repository

import (
	"context"

	"github.com/okian/sandscore/internal/domain/model"
)

// Standing is one player's published rating in a bracket.
type Standing struct {
	PlayerID  string `json:"player_id"`
	Username  string `json:"username,omitempty"`
	Rating    int    `json:"rating"`
	Deviation int    `json:"rating_deviation"`
	Matches   int    `json:"matches"`
	Wins      int    `json:"wins"`
	Losses    int    `json:"losses"`
}

// Entry is a ranked leaderboard row.
type Entry struct {
	Rank int `json:"rank"`
	Standing
}

// Store provides read access to the standings and a way to republish them.
type Store interface {
	// Replace atomically swaps the standings of a bracket.
	Replace(ctx context.Context, bracket model.Bracket, standings []Standing) error

	// Rank returns the current rank and rating of a player.
	// Returns ErrNotFound if the player has no standing in the bracket.
	Rank(ctx context.Context, bracket model.Bracket, playerID string) (Entry, error)

	// TopN returns the top-N entries ordered by rating desc.
	TopN(ctx context.Context, bracket model.Bracket, n int) ([]Entry, error)

	// Count returns the number of ranked players in a bracket.
	Count(ctx context.Context, bracket model.Bracket) (int, error)
}
