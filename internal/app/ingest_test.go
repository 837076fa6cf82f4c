package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/okian/sandscore/internal/app"
	"github.com/okian/sandscore/internal/adapters/storage/sqlite"
	"github.com/okian/sandscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func womensMatch(id string) model.Match {
	return model.Match{
		ID:          id,
		Bracket:     model.BracketWomens,
		PlayedAt:    refTime.Add(-2 * time.Hour),
		Team1:       model.Team{Player1: "a", Player2: "c"},
		Team2:       model.Team{Player1: "b", Player2: "e"},
		WinningTeam: 2,
	}
}

func TestSubmitMatch(t *testing.T) {
	Convey("Given a service whose ingestion is not started", t, func() {
		ctx := context.Background()
		svc := newService(t, seededStore(t))

		Convey("When a match is submitted", func() {
			_, err := svc.SubmitMatch(ctx, womensMatch("w1"))

			Convey("Then it should be refused", func() {
				So(errors.Is(err, service.ErrIngestStopped), ShouldBeTrue)
				So(svc.GetStats(ctx).Ingest.Running, ShouldBeFalse)
			})
		})
	})

	Convey("Given a service with ingestion running", t, func() {
		ctx := context.Background()
		store := seededStore(t)
		svc := newService(t, store, service.WithIngestWorkers(2), service.WithIngestBatchSize(4))
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When an invalid match is submitted", func() {
			m := womensMatch("w1")
			m.Team2.Player1 = "a"
			_, err := svc.SubmitMatch(ctx, m)

			Convey("Then it should be rejected before queueing", func() {
				So(errors.Is(err, model.ErrInvalidMatch), ShouldBeTrue)
				So(svc.GetStats(ctx).Ingest.Seen, ShouldEqual, int64(0))
			})
		})

		Convey("When a match is submitted twice and ingestion stops", func() {
			dup, err := svc.SubmitMatch(ctx, womensMatch("w1"))
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)

			dup, err = svc.SubmitMatch(ctx, womensMatch("w1"))
			So(err, ShouldBeNil)
			So(dup, ShouldBeTrue)

			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			So(svc.Stop(stopCtx), ShouldBeNil)

			Convey("Then the match should be stored once", func() {
				matches, err := store.ListMatches(ctx)
				So(err, ShouldBeNil)
				So(matches, ShouldHaveLength, 2)

				st := svc.GetStats(ctx).Ingest
				So(st.Running, ShouldBeFalse)
				So(st.Workers, ShouldEqual, 2)
				So(st.Written, ShouldEqual, int64(1))
				So(st.Seen, ShouldEqual, int64(1))
			})

			Convey("Then the next recalculation should rate it", func() {
				_, err := svc.Recalculate(ctx)
				So(err, ShouldBeNil)
				entry, err := svc.Rank(ctx, model.BracketWomens, "e")
				So(err, ShouldBeNil)
				So(entry.Rank, ShouldEqual, 1)
			})

			Convey("Then further submissions should be refused", func() {
				_, err := svc.SubmitMatch(ctx, womensMatch("w2"))
				So(errors.Is(err, service.ErrIngestStopped), ShouldBeTrue)
			})
		})

		Convey("When a match already in the store is submitted", func() {
			m := womensMatch("m1")
			dup, err := svc.SubmitMatch(ctx, m)
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)

			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			So(svc.Stop(stopCtx), ShouldBeNil)

			Convey("Then the writer should count it as a duplicate", func() {
				st := svc.GetStats(ctx).Ingest
				So(st.Written, ShouldEqual, int64(0))
				So(st.Duplicates, ShouldEqual, int64(1))
			})
		})

		Reset(func() {
			_ = svc.Stop(context.Background())
		})
	})
}

// flakyStore refuses every match insert while failing is set.
type flakyStore struct {
	*sqlite.Store
	failing atomic.Bool
}

func (s *flakyStore) InsertMatches(ctx context.Context, matches []model.Match) error {
	if s.failing.Load() {
		return errors.New("database is locked")
	}
	return s.Store.InsertMatches(ctx, matches)
}

func TestSubmitMatchAfterFailedWrite(t *testing.T) {
	Convey("Given ingestion over a store that fails writes", t, func() {
		ctx := context.Background()
		store := &flakyStore{Store: seededStore(t)}
		store.failing.Store(true)
		svc := newService(t, store)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(context.Background()) }()

		Convey("When a match cannot be stored", func() {
			dup, err := svc.SubmitMatch(ctx, womensMatch("w9"))
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)

			deadline := time.Now().Add(5 * time.Second)
			for svc.GetStats(ctx).Ingest.Failed == 0 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			So(svc.GetStats(ctx).Ingest.Failed, ShouldEqual, int64(1))

			Convey("Then a retry should be accepted and stored", func() {
				store.failing.Store(false)
				dup, err := svc.SubmitMatch(ctx, womensMatch("w9"))
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)

				stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				So(svc.Stop(stopCtx), ShouldBeNil)

				matches, err := store.ListMatches(ctx)
				So(err, ShouldBeNil)
				ids := make([]string, 0, len(matches))
				for _, m := range matches {
					ids = append(ids, m.ID)
				}
				So(ids, ShouldContain, "w9")
				So(svc.GetStats(ctx).Ingest.Written, ShouldEqual, int64(1))
			})
		})
	})
}
