package model

import "time"

// RatingChange is a player's rating right after one rated match.
type RatingChange struct {
	MatchID   string    `json:"match_id"`
	PlayerID  string    `json:"player_id"`
	Bracket   Bracket   `json:"bracket"`
	PlayedAt  time.Time `json:"played_at"`
	Won       bool      `json:"won"`
	Rating    int       `json:"rating"`
	Deviation int       `json:"rating_deviation"`
}

// Record counts a player's processed matches in one bracket.
type Record struct {
	Played int `json:"matches"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}
