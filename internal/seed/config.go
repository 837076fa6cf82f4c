package seed

import "time"

// Config holds configuration for a seeding run.
type Config struct {
	DBPath   string        // SQLite database to populate
	Players  int           // Players per bracket
	Matches  int           // Matches per bracket
	Days     int           // Matches are spread over this many days before Now
	Seed     uint64        // PRNG seed; equal seeds give equal seasons
	Inactive int           // Players per bracket marked inactive after seeding
	Orphans  int           // Matches naming a player without a profile
	Now      time.Time     // End of the season; zero means time.Now
	BaseURL  string        // When set, a running service is asked to recalculate
	TopN     int           // Leaderboard entries fetched for verification
	Timeout  time.Duration // HTTP request timeout
	LogFile  string        // Optional log file next to stdout
	Verbose  bool          // Enable debug logging
}

// Player is a generated profile together with the skill that drives its
// results. Skill is never stored.
type Player struct {
	ID       string
	Username string
	Bracket  string
	Skill    float64
}

// Entry represents a leaderboard entry as served by the API.
type Entry struct {
	Rank      int    `json:"rank"`
	PlayerID  string `json:"player_id"`
	Username  string `json:"username"`
	Rating    int    `json:"rating"`
	Deviation int    `json:"rating_deviation"`
	Matches   int    `json:"matches"`
}

// Stats holds seeding statistics.
type Stats struct {
	PlayersCreated     int
	PlayersDeactivated int
	MatchesCreated     int
	OrphanMatches      int
	LeaderboardEntries int
	SkillCorrelation   map[string]float64
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
