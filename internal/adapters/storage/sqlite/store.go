// Package sqlite provides the SQLite-backed profile and match store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/sandscore/internal/adapters/storage/sqlite/migrations"
	"github.com/okian/sandscore/internal/domain/model"
	"github.com/okian/sandscore/pkg/logger"
	"github.com/okian/sandscore/pkg/metrics"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists player profiles and match history in SQLite.
type Store struct {
	sqlDB  *sql.DB
	clock  func() time.Time
	logger logger.Logger
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the source of updated_at and deleted_at timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Stats summarises the stored data.
type Stats struct {
	Profiles       int `json:"profiles"`
	ActiveProfiles int `json:"active_profiles"`
	Matches        int `json:"matches"`
	DeletedMatches int `json:"deleted_matches"`
	HistoryRows    int `json:"history_rows"`
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens a SQLite store at path and applies embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{sqlDB: sqlDB, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("sqlite")
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	return nil
}

// observe records latency and failure of one store operation. It is
// deferred with a pointer to the named error result.
func observe(op string, start time.Time, err *error) {
	metrics.RecordStoreOperation(op, float64(time.Since(start).Microseconds())/1000, *err)
}

// UpsertProfiles inserts or updates profiles as active players.
func (s *Store) UpsertProfiles(ctx context.Context, profiles []model.Profile) (err error) {
	defer observe("upsert_profiles", time.Now(), &err)
	if err = s.ready(ctx); err != nil {
		return err
	}
	now := toMillis(s.clock())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO profiles (
    id, username, is_active,
    mens_rating, mens_rating_deviation,
    womens_rating, womens_rating_deviation,
    updated_at
) VALUES (?, ?, 1, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    username = excluded.username,
    is_active = 1,
    mens_rating = excluded.mens_rating,
    mens_rating_deviation = excluded.mens_rating_deviation,
    womens_rating = excluded.womens_rating,
    womens_rating_deviation = excluded.womens_rating_deviation,
    updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, p := range profiles {
			if strings.TrimSpace(p.ID) == "" {
				return fmt.Errorf("profile id is required")
			}
			if _, err := stmt.ExecContext(ctx, p.ID, p.Username,
				p.Mens.Rating, p.Mens.Deviation, p.Womens.Rating, p.Womens.Deviation, now,
			); err != nil {
				return fmt.Errorf("upsert profile %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// SetActive marks a profile active or inactive. Inactive players are left
// out of the snapshot, so their matches are skipped.
func (s *Store) SetActive(ctx context.Context, id string, active bool) (err error) {
	defer observe("set_active", time.Now(), &err)
	if err = s.ready(ctx); err != nil {
		return err
	}
	flag := 0
	if active {
		flag = 1
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE profiles SET is_active = ?, updated_at = ? WHERE id = ?`,
		flag, toMillis(s.clock()), id)
	if err != nil {
		return fmt.Errorf("set active %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: profile %s", ErrNotFound, id)
	}
	return nil
}

// InsertMatches stores matches. A repeated id fails with ErrAlreadyExists
// and nothing from the batch is written.
func (s *Store) InsertMatches(ctx context.Context, matches []model.Match) (err error) {
	defer observe("insert_matches", time.Now(), &err)
	if err = s.ready(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO matches (
    id, match_type, played_at,
    team1_player1_id, team1_player2_id,
    team2_player1_id, team2_player2_id,
    winning_team
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, m := range matches {
			if _, err := stmt.ExecContext(ctx, m.ID, string(m.Bracket), toMillis(m.PlayedAt),
				m.Team1.Player1, m.Team1.Player2, m.Team2.Player1, m.Team2.Player2,
				m.WinningTeam,
			); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: match %s", ErrAlreadyExists, m.ID)
				}
				return fmt.Errorf("insert match %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

// DeleteMatch soft-deletes a match so it no longer counts.
func (s *Store) DeleteMatch(ctx context.Context, id string) (err error) {
	defer observe("delete_match", time.Now(), &err)
	if err = s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE matches SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		toMillis(s.clock()), id)
	if err != nil {
		return fmt.Errorf("delete match %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: match %s", ErrNotFound, id)
	}
	return nil
}

// ListActiveProfiles returns the snapshot of every active player.
func (s *Store) ListActiveProfiles(ctx context.Context) (snap model.Snapshot, err error) {
	defer observe("list_profiles", time.Now(), &err)
	if err = s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, username, mens_rating, mens_rating_deviation, womens_rating, womens_rating_deviation
FROM profiles
WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap = make(model.Snapshot)
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.Username,
			&p.Mens.Rating, &p.Mens.Deviation, &p.Womens.Rating, &p.Womens.Deviation,
		); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		snap[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return snap, nil
}

// ListMatches returns every non-deleted match ordered by played_at, then id.
func (s *Store) ListMatches(ctx context.Context) (out []model.Match, err error) {
	defer observe("list_matches", time.Now(), &err)
	if err = s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, match_type, played_at,
       team1_player1_id, team1_player2_id, team2_player1_id, team2_player2_id,
       winning_team
FROM matches
WHERE deleted_at IS NULL
ORDER BY played_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			m        model.Match
			bracket  string
			playedAt int64
		)
		if err := rows.Scan(&m.ID, &bracket, &playedAt,
			&m.Team1.Player1, &m.Team1.Player2, &m.Team2.Player1, &m.Team2.Player2,
			&m.WinningTeam,
		); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.Bracket = model.Bracket(bracket)
		m.PlayedAt = fromMillis(playedAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}

// SaveRatings writes the final ratings of every profile in one
// transaction. Either all profiles are updated or none are.
func (s *Store) SaveRatings(ctx context.Context, profiles []model.Profile) (err error) {
	defer observe("save_ratings", time.Now(), &err)
	if err = s.ready(ctx); err != nil {
		return err
	}
	now := toMillis(s.clock())
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
UPDATE profiles SET
    mens_rating = ?, mens_rating_deviation = ?,
    womens_rating = ?, womens_rating_deviation = ?,
    updated_at = ?
WHERE id = ?`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, p := range profiles {
			res, err := stmt.ExecContext(ctx,
				p.Mens.Rating, p.Mens.Deviation, p.Womens.Rating, p.Womens.Deviation, now, p.ID)
			if err != nil {
				return fmt.Errorf("save ratings %s: %w", p.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: profile %s", ErrNotFound, p.ID)
			}
		}
		return nil
	})
	if err == nil {
		s.logger.Info(ctx, "ratings saved", logger.Int("profiles", len(profiles)))
	}
	return err
}

// SaveHistory replaces the whole rating history with changes in one
// transaction, so it always describes a single recalculation.
func (s *Store) SaveHistory(ctx context.Context, changes []model.RatingChange) (err error) {
	defer observe("save_history", time.Now(), &err)
	if err = s.ready(ctx); err != nil {
		return err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rating_history`); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO rating_history (
    match_id, player_id, match_type, played_at, won, rating, rating_deviation
) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, c := range changes {
			won := 0
			if c.Won {
				won = 1
			}
			if _, err := stmt.ExecContext(ctx, c.MatchID, c.PlayerID, string(c.Bracket),
				toMillis(c.PlayedAt), won, c.Rating, c.Deviation,
			); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: history %s/%s", ErrAlreadyExists, c.MatchID, c.PlayerID)
				}
				return fmt.Errorf("insert history %s/%s: %w", c.MatchID, c.PlayerID, err)
			}
		}
		return nil
	})
	if err == nil {
		s.logger.Debug(ctx, "rating history saved", logger.Int("rows", len(changes)))
	}
	return err
}

// ListHistory returns a player's rating after each match in a bracket,
// oldest first.
func (s *Store) ListHistory(ctx context.Context, playerID string, bracket model.Bracket) (out []model.RatingChange, err error) {
	defer observe("list_history", time.Now(), &err)
	if err = s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT match_id, played_at, won, rating, rating_deviation
FROM rating_history
WHERE player_id = ? AND match_type = ?
ORDER BY played_at ASC, match_id ASC`, playerID, string(bracket))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		c := model.RatingChange{PlayerID: playerID, Bracket: bracket}
		var playedAt int64
		if err := rows.Scan(&c.MatchID, &playedAt, &c.Won, &c.Rating, &c.Deviation); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		c.PlayedAt = fromMillis(playedAt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Stats counts stored profiles and matches.
func (s *Store) Stats(ctx context.Context) (st Stats, err error) {
	defer observe("stats", time.Now(), &err)
	if err = s.ready(ctx); err != nil {
		return Stats{}, err
	}
	err = s.sqlDB.QueryRowContext(ctx, `
SELECT
    (SELECT COUNT(*) FROM profiles),
    (SELECT COUNT(*) FROM profiles WHERE is_active = 1),
    (SELECT COUNT(*) FROM matches WHERE deleted_at IS NULL),
    (SELECT COUNT(*) FROM matches WHERE deleted_at IS NOT NULL),
    (SELECT COUNT(*) FROM rating_history)`,
	).Scan(&st.Profiles, &st.ActiveProfiles, &st.Matches, &st.DeletedMatches, &st.HistoryRows)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
