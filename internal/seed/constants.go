package seed

import "time"

// Generation defaults.
const (
	DefaultPlayers = 40
	DefaultMatches = 400
	DefaultDays    = 365
	DefaultTopN    = 20
	DefaultTimeout = 30 * time.Second
)

// Hidden skill distribution and the logistic scale that turns a skill gap
// into a win probability.
const (
	skillMean  = 1500.0
	skillSD    = 200.0
	skillScale = 400.0
)

const (
	logFilePermission   = 0600
	directoryPermission = 0750
)
