package model

import (
	"fmt"
	"strings"
)

// Bracket is one of the two disjoint rating categories.
type Bracket string

// Known brackets.
const (
	BracketMens   Bracket = "mens"
	BracketWomens Bracket = "womens"
)

// Nominal values for a player without history.
const (
	DefaultRating    = 1500
	DefaultDeviation = 350
)

// Brackets returns every bracket in a fixed order.
func Brackets() []Bracket {
	return []Bracket{BracketMens, BracketWomens}
}

// Valid reports whether b is a known bracket.
func (b Bracket) Valid() bool {
	return b == BracketMens || b == BracketWomens
}

// ParseBracket maps user input onto a bracket.
func ParseBracket(s string) (Bracket, error) {
	b := Bracket(strings.ToLower(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", fmt.Errorf("unknown bracket %q", s)
	}
	return b, nil
}

// Rating is a persisted rating and rating deviation pair.
type Rating struct {
	Rating    int `json:"rating"`
	Deviation int `json:"rating_deviation"`
}

// DefaultPair is the rating every player starts a pass with.
func DefaultPair() Rating {
	return Rating{Rating: DefaultRating, Deviation: DefaultDeviation}
}

// Profile holds a player's ratings in both brackets.
type Profile struct {
	ID       string `json:"player_id"`
	Username string `json:"username,omitempty"`
	Mens     Rating `json:"mens"`
	Womens   Rating `json:"womens"`
}

// NewProfile returns a profile at default ratings in both brackets.
func NewProfile(id string) Profile {
	return Profile{ID: id, Mens: DefaultPair(), Womens: DefaultPair()}
}

// For returns the rating for bracket b.
func (p Profile) For(b Bracket) Rating {
	if b == BracketWomens {
		return p.Womens
	}
	return p.Mens
}

// With returns a copy of p with the bracket b rating replaced.
func (p Profile) With(b Bracket, r Rating) Profile {
	if b == BracketWomens {
		p.Womens = r
	} else {
		p.Mens = r
	}
	return p
}

// Snapshot maps player id to profile. Players absent from the map are unknown.
type Snapshot map[string]Profile
