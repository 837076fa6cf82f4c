package glicko

import "math"

// Composite combines two partners into the team rating used as the
// opponent of the other side: the mean rating and the root mean square of
// the deviations.
func Composite(a, b Rating) Rating {
	return Rating{
		Rating:    (a.Rating + b.Rating) / 2,
		Deviation: math.Sqrt((a.Deviation*a.Deviation + b.Deviation*b.Deviation) / 2),
	}
}
