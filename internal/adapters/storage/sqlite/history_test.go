package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/sandscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func change(matchID, playerID string, b model.Bracket, at time.Time, won bool, rating int) model.RatingChange {
	return model.RatingChange{
		MatchID:   matchID,
		PlayerID:  playerID,
		Bracket:   b,
		PlayedAt:  at,
		Won:       won,
		Rating:    rating,
		Deviation: 290,
	}
}

func TestRatingHistory(t *testing.T) {
	Convey("Given a store", t, func() {
		ctx := context.Background()
		store := openTempStore(t)
		at := time.Date(2024, time.July, 1, 9, 0, 0, 0, time.UTC)

		Convey("When a recalculation's history is saved", func() {
			err := store.SaveHistory(ctx, []model.RatingChange{
				change("m2", "a", model.BracketMens, at.Add(time.Hour), false, 1590),
				change("m1", "a", model.BracketMens, at, true, 1662),
				change("m1", "c", model.BracketMens, at, false, 1338),
				change("w1", "a", model.BracketWomens, at, true, 1662),
			})
			So(err, ShouldBeNil)

			Convey("Then a player's trail is listed oldest first per bracket", func() {
				trail, err := store.ListHistory(ctx, "a", model.BracketMens)
				So(err, ShouldBeNil)
				So(trail, ShouldHaveLength, 2)
				So(trail[0].MatchID, ShouldEqual, "m1")
				So(trail[0].Won, ShouldBeTrue)
				So(trail[0].Rating, ShouldEqual, 1662)
				So(trail[0].PlayedAt.Equal(at), ShouldBeTrue)
				So(trail[1].MatchID, ShouldEqual, "m2")
				So(trail[1].Won, ShouldBeFalse)
				So(trail[1].Bracket, ShouldEqual, model.BracketMens)
			})

			Convey("Then an unknown player has no trail", func() {
				trail, err := store.ListHistory(ctx, "zz", model.BracketMens)
				So(err, ShouldBeNil)
				So(trail, ShouldBeEmpty)
			})

			Convey("Then the rows are counted", func() {
				st, err := store.Stats(ctx)
				So(err, ShouldBeNil)
				So(st.HistoryRows, ShouldEqual, 4)
			})

			Convey("And a later recalculation saves its own history", func() {
				err := store.SaveHistory(ctx, []model.RatingChange{
					change("m1", "a", model.BracketMens, at, true, 1700),
				})
				So(err, ShouldBeNil)

				Convey("Then the earlier history is replaced", func() {
					trail, err := store.ListHistory(ctx, "a", model.BracketMens)
					So(err, ShouldBeNil)
					So(trail, ShouldHaveLength, 1)
					So(trail[0].Rating, ShouldEqual, 1700)

					womens, err := store.ListHistory(ctx, "a", model.BracketWomens)
					So(err, ShouldBeNil)
					So(womens, ShouldBeEmpty)
				})
			})

			Convey("And a history repeating a row is saved", func() {
				err := store.SaveHistory(ctx, []model.RatingChange{
					change("m9", "b", model.BracketMens, at, true, 1600),
					change("m9", "b", model.BracketMens, at, true, 1600),
				})

				Convey("Then nothing changes", func() {
					So(errors.Is(err, ErrAlreadyExists), ShouldBeTrue)
					st, err := store.Stats(ctx)
					So(err, ShouldBeNil)
					So(st.HistoryRows, ShouldEqual, 4)
				})
			})
		})
	})
}
