package seed

import (
	"fmt"
	"math"
	"sort"
)

// verifyLeaderboard checks that entries are ordered by rating and carry
// dense ranks.
func verifyLeaderboard(entries []Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("empty leaderboard")
	}
	if entries[0].Rank != 1 {
		return fmt.Errorf("top entry %s has rank %d", entries[0].PlayerID, entries[0].Rank)
	}
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if cur.Rating > prev.Rating {
			return fmt.Errorf("leaderboard not sorted: entry %d (%d) above entry %d (%d)",
				i, cur.Rating, i-1, prev.Rating)
		}
		want := prev.Rank
		if cur.Rating < prev.Rating {
			want++
		}
		if cur.Rank != want {
			return fmt.Errorf("entry %d (%s) has rank %d, want %d", i, cur.PlayerID, cur.Rank, want)
		}
		if cur.Matches < 1 {
			return fmt.Errorf("entry %d (%s) ranked without matches", i, cur.PlayerID)
		}
	}
	return nil
}

// skillCorrelation is the Spearman rank correlation between the served
// ratings and the hidden skills of the same players. Entries for unknown
// players are ignored; fewer than two usable entries yield NaN.
func skillCorrelation(entries []Entry, skills map[string]float64) float64 {
	var ratings, hidden []float64
	for _, e := range entries {
		s, ok := skills[e.PlayerID]
		if !ok {
			continue
		}
		ratings = append(ratings, float64(e.Rating))
		hidden = append(hidden, s)
	}
	if len(ratings) < 2 {
		return math.NaN()
	}
	return pearson(ranks(ratings), ranks(hidden))
}

// ranks replaces values with their 1-based average rank.
func ranks(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	out := make([]float64, len(xs))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= n
	my /= n
	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(vx*vy)
}
