package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/okian/sandscore/internal/domain/model"
	"github.com/okian/sandscore/pkg/logger"
	"github.com/okian/sandscore/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: rating DESC, deviation ASC, then player id ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the
// leaderboard from best to worst. Ranks are dense: players with the same
// rating share a rank and the next rating takes the following one.
//
// Each bracket's board is built once per Replace and never mutated
// afterwards; readers load it through an atomic pointer without locking.

type node struct {
	s     Standing
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(a, b *Standing) bool {
	if a.Rating != b.Rating {
		return a.Rating > b.Rating
	}
	if a.Deviation != b.Deviation {
		return a.Deviation < b.Deviation
	}
	return a.PlayerID < b.PlayerID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

// priority derives a stable pseudo-random heap priority from the id, so
// the same standings always build the same tree.
func priority(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func insert(n *node, s Standing) *node {
	if n == nil {
		return &node{s: s, prio: priority(s.PlayerID), size: 1}
	}
	if less(&s, &n.s) {
		n.left = insert(n.left, s)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, s)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// collect appends up to limit standings in rank order.
func collect(n *node, limit int, out *[]Standing) {
	if n == nil || len(*out) >= limit {
		return
	}
	collect(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.s)
	}
	if len(*out) < limit {
		collect(n.right, limit, out)
	}
}

// board is an immutable published leaderboard.
type board struct {
	root     *node
	byID     map[string]Standing
	rankByID map[string]int
	top      []Entry
	builtAt  time.Time
}

// TreapStore keeps one board per bracket.
type TreapStore struct {
	boards       map[model.Bracket]*atomic.Pointer[board]
	topCacheSize int
	logger       logger.Logger
}

// NewTreapStore constructs an empty store for every known bracket.
func NewTreapStore(_ context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		boards:       make(map[model.Bracket]*atomic.Pointer[board], len(model.Brackets())),
		topCacheSize: 500,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("standings")
	}
	for _, b := range model.Brackets() {
		p := &atomic.Pointer[board]{}
		p.Store(&board{byID: map[string]Standing{}, rankByID: map[string]int{}})
		s.boards[b] = p
	}
	return s
}

func (s *TreapStore) load(bracket model.Bracket) (*board, error) {
	p, ok := s.boards[bracket]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBracket, bracket)
	}
	return p.Load(), nil
}

// Replace builds a new board from standings and publishes it. Standings
// with no processed matches are not ranked.
func (s *TreapStore) Replace(ctx context.Context, bracket model.Bracket, standings []Standing) error {
	p, ok := s.boards[bracket]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBracket, bracket)
	}
	start := time.Now()

	b := &board{
		byID:    make(map[string]Standing, len(standings)),
		builtAt: start,
	}
	for _, st := range standings {
		if st.Matches < 1 {
			continue
		}
		if old, dup := b.byID[st.PlayerID]; dup {
			return fmt.Errorf("duplicate standing for player %s (rating %d)", st.PlayerID, old.Rating)
		}
		b.byID[st.PlayerID] = st
		b.root = insert(b.root, st)
	}

	ordered := make([]Standing, 0, len(b.byID))
	collect(b.root, len(b.byID), &ordered)
	ranked := assignRanks(ordered)
	b.rankByID = make(map[string]int, len(ranked))
	for _, e := range ranked {
		b.rankByID[e.PlayerID] = e.Rank
	}
	if len(ranked) > s.topCacheSize {
		ranked = ranked[:s.topCacheSize]
	}
	b.top = ranked

	p.Store(b)

	metrics.RecordStandingsRebuild(float64(time.Since(start).Microseconds()) / 1000)
	metrics.SetPlayersRated(string(bracket), len(b.byID))
	s.logger.Debug(ctx, "standings published",
		logger.String("bracket", string(bracket)),
		logger.Int("players", len(b.byID)),
	)
	return nil
}

// Rank returns a player's entry.
func (s *TreapStore) Rank(_ context.Context, bracket model.Bracket, playerID string) (Entry, error) {
	start := time.Now()
	defer observeQuery(start)

	b, err := s.load(bracket)
	if err != nil {
		return Entry{}, err
	}
	st, ok := b.byID[playerID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s in %s", ErrNotFound, playerID, bracket)
	}
	return Entry{Rank: b.rankByID[playerID], Standing: st}, nil
}

// TopN returns the top n entries ordered by rating desc.
func (s *TreapStore) TopN(_ context.Context, bracket model.Bracket, n int) ([]Entry, error) {
	start := time.Now()
	defer observeQuery(start)

	if n < 1 {
		return nil, ErrInvalidLimit
	}
	b, err := s.load(bracket)
	if err != nil {
		return nil, err
	}
	if n <= len(b.top) || len(b.top) == len(b.byID) {
		if n > len(b.top) {
			n = len(b.top)
		}
		out := make([]Entry, n)
		copy(out, b.top[:n])
		return out, nil
	}

	ordered := make([]Standing, 0, n)
	collect(b.root, n, &ordered)
	out := make([]Entry, len(ordered))
	for i, st := range ordered {
		out[i] = Entry{Rank: b.rankByID[st.PlayerID], Standing: st}
	}
	return out, nil
}

// Count returns the number of ranked players in a bracket.
func (s *TreapStore) Count(_ context.Context, bracket model.Bracket) (int, error) {
	b, err := s.load(bracket)
	if err != nil {
		return 0, err
	}
	return len(b.byID), nil
}

// UpdatedAt reports when a bracket was last published; zero if never.
func (s *TreapStore) UpdatedAt(bracket model.Bracket) time.Time {
	b, err := s.load(bracket)
	if err != nil {
		return time.Time{}
	}
	return b.builtAt
}

func observeQuery(start time.Time) {
	metrics.RecordStandingsQuery(float64(time.Since(start).Microseconds()) / 1000)
}

// assignRanks assigns dense ranks to standings already in rank order.
func assignRanks(ordered []Standing) []Entry {
	out := make([]Entry, len(ordered))
	rank := 0
	for i, st := range ordered {
		if i == 0 || st.Rating != ordered[i-1].Rating {
			rank++
		}
		out[i] = Entry{Rank: rank, Standing: st}
	}
	return out
}
