package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	service "github.com/okian/sandscore/internal/app"
	repository "github.com/okian/sandscore/internal/adapters/repository"
	"github.com/okian/sandscore/internal/adapters/storage/sqlite"
	"github.com/okian/sandscore/internal/domain/engine"
	"github.com/okian/sandscore/internal/domain/model"
	"github.com/okian/sandscore/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var refTime = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

// seededStore opens a temp database holding five players and one mens
// match won by a and b.
func seededStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ratings.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	var profiles []model.Profile
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		p := model.NewProfile(id)
		p.Username = strings.ToUpper(id)
		profiles = append(profiles, p)
	}
	if err := store.UpsertProfiles(ctx, profiles); err != nil {
		t.Fatalf("seed profiles: %v", err)
	}
	err = store.InsertMatches(ctx, []model.Match{{
		ID:          "m1",
		Bracket:     model.BracketMens,
		PlayedAt:    refTime.Add(-time.Hour),
		Team1:       model.Team{Player1: "a", Player2: "b"},
		Team2:       model.Team{Player1: "c", Player2: "d"},
		WinningTeam: 1,
	}})
	if err != nil {
		t.Fatalf("seed matches: %v", err)
	}
	return store
}

func newService(t *testing.T, store service.Store, opts ...service.Option) *service.Service {
	t.Helper()
	opts = append(opts, service.WithEngineOptions(engine.WithReferenceTime(refTime)))
	svc, err := service.New(context.Background(), store, engine.DefaultParams(), opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNew(t *testing.T) {
	Convey("Given no store", t, func() {
		_, err := service.New(context.Background(), nil, engine.DefaultParams())

		Convey("Then construction should fail", func() {
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given invalid engine parameters", t, func() {
		params := engine.DefaultParams()
		params.Passes = 0
		_, err := service.New(context.Background(), &blockingStore{}, params)

		Convey("Then construction should report a config error", func() {
			So(errors.Is(err, engine.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestRecalculate(t *testing.T) {
	Convey("Given a store with one mens match", t, func() {
		ctx := context.Background()
		store := seededStore(t)
		svc := newService(t, store)

		Convey("When ratings are recalculated", func() {
			res, err := svc.Recalculate(ctx)
			So(err, ShouldBeNil)

			Convey("Then the result should carry the new ratings", func() {
				So(res.Profiles, ShouldHaveLength, 5)
				So(res.Profiles[0].Mens, ShouldResemble, model.Rating{Rating: 1662, Deviation: 290})
				So(res.Profiles[2].Mens, ShouldResemble, model.Rating{Rating: 1338, Deviation: 290})
			})

			Convey("Then the ratings should be saved", func() {
				snap, err := store.ListActiveProfiles(ctx)
				So(err, ShouldBeNil)
				So(snap["a"].Mens, ShouldResemble, model.Rating{Rating: 1662, Deviation: 290})
				So(snap["d"].Mens, ShouldResemble, model.Rating{Rating: 1338, Deviation: 290})
				So(snap["e"].Mens, ShouldResemble, model.DefaultPair())
			})

			Convey("Then the mens standings should list the four players", func() {
				top, err := svc.TopN(ctx, model.BracketMens, 10)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 4)

				ids := []string{top[0].PlayerID, top[1].PlayerID, top[2].PlayerID, top[3].PlayerID}
				ranks := []int{top[0].Rank, top[1].Rank, top[2].Rank, top[3].Rank}
				So(ids, ShouldResemble, []string{"a", "b", "c", "d"})
				So(ranks, ShouldResemble, []int{1, 1, 2, 2})
				So(top[0].Username, ShouldEqual, "A")
				So(top[0].Matches, ShouldEqual, 1)
				So(top[0].Wins, ShouldEqual, 1)
				So(top[0].Losses, ShouldEqual, 0)
				So(top[3].Wins, ShouldEqual, 0)
				So(top[3].Losses, ShouldEqual, 1)
			})

			Convey("Then each player's rating history should be saved", func() {
				trail, err := svc.History(ctx, model.BracketMens, "c")
				So(err, ShouldBeNil)
				So(trail, ShouldHaveLength, 1)
				So(trail[0].MatchID, ShouldEqual, "m1")
				So(trail[0].Won, ShouldBeFalse)
				So(trail[0].Rating, ShouldEqual, 1338)
				So(svc.LastRun().HistoryRows, ShouldEqual, 4)

				none, err := svc.History(ctx, model.BracketMens, "e")
				So(err, ShouldBeNil)
				So(none, ShouldBeEmpty)
			})

			Convey("Then players without matches should not be ranked", func() {
				_, err := svc.Rank(ctx, model.BracketMens, "e")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

				_, err = svc.Rank(ctx, model.BracketWomens, "a")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Then the stats should describe the run", func() {
				st := svc.GetStats(ctx)
				So(st.Running, ShouldBeFalse)
				So(st.LastRun, ShouldNotBeNil)
				So(st.LastRun.RunID, ShouldNotBeEmpty)
				So(st.LastRun.MatchesValid, ShouldEqual, 1)
				So(st.LastRun.Saved, ShouldBeTrue)
				So(st.LastRun.ReferenceTime.Equal(refTime), ShouldBeTrue)
				So(st.Store, ShouldNotBeNil)
				So(st.Store.Matches, ShouldEqual, 1)
				So(st.Standings[model.BracketMens], ShouldEqual, 4)
				So(st.Standings[model.BracketWomens], ShouldEqual, 0)
			})

			Convey("Then a second run should be stable", func() {
				again, err := svc.Recalculate(ctx)
				So(err, ShouldBeNil)
				So(again.Profiles, ShouldResemble, res.Profiles)
			})
		})
	})

	Convey("Given a dry-run service with CSV export", t, func() {
		ctx := context.Background()
		store := seededStore(t)
		csvPath := filepath.Join(t.TempDir(), "out", "ratings.csv")
		svc := newService(t, store, service.WithDryRun(true), service.WithCSVPath(csvPath))

		Convey("When ratings are recalculated", func() {
			_, err := svc.Recalculate(ctx)
			So(err, ShouldBeNil)

			Convey("Then the database should be untouched", func() {
				snap, err := store.ListActiveProfiles(ctx)
				So(err, ShouldBeNil)
				So(snap["a"].Mens, ShouldResemble, model.DefaultPair())
				So(svc.LastRun().Saved, ShouldBeFalse)

				trail, err := svc.History(ctx, model.BracketMens, "a")
				So(err, ShouldBeNil)
				So(trail, ShouldBeEmpty)
			})

			Convey("Then the export should hold every player", func() {
				data, err := os.ReadFile(csvPath)
				So(err, ShouldBeNil)
				lines := strings.Split(strings.TrimSpace(string(data)), "\n")
				So(lines, ShouldHaveLength, 6)
				So(lines[0], ShouldStartWith, "username,player_id")
				So(lines[1], ShouldStartWith, "A,a,1662,290")
			})

			Convey("Then the standings should still be published", func() {
				entry, err := svc.Rank(ctx, model.BracketMens, "c")
				So(err, ShouldBeNil)
				So(entry.Rank, ShouldEqual, 2)
			})
		})
	})
}

// blockingStore holds ListMatches until release is closed.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) ListActiveProfiles(context.Context) (model.Snapshot, error) {
	return model.Snapshot{}, nil
}

func (s *blockingStore) ListMatches(ctx context.Context) ([]model.Match, error) {
	close(s.entered)
	select {
	case <-s.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *blockingStore) SaveRatings(context.Context, []model.Profile) error { return nil }

func (s *blockingStore) InsertMatches(context.Context, []model.Match) error { return nil }

func (s *blockingStore) SaveHistory(context.Context, []model.RatingChange) error { return nil }

func (s *blockingStore) ListHistory(context.Context, string, model.Bracket) ([]model.RatingChange, error) {
	return nil, nil
}

func (s *blockingStore) Stats(context.Context) (sqlite.Stats, error) {
	return sqlite.Stats{}, errors.New("unavailable")
}

func TestRecalculateExclusive(t *testing.T) {
	Convey("Given a recalculation in progress", t, func() {
		store := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
		svc := newService(t, store)

		done := make(chan error, 1)
		go func() {
			_, err := svc.Recalculate(context.Background())
			done <- err
		}()
		<-store.entered

		Convey("When a second recalculation is requested", func() {
			_, err := svc.Recalculate(context.Background())

			Convey("Then it should be refused", func() {
				So(errors.Is(err, service.ErrRecalculationRunning), ShouldBeTrue)
				So(svc.Running(), ShouldBeTrue)
				So(svc.GetStats(context.Background()).Store, ShouldBeNil)
			})

			close(store.release)
			So(<-done, ShouldBeNil)
			So(svc.Running(), ShouldBeFalse)
		})
	})
}

func TestRecalculateLoadFailure(t *testing.T) {
	Convey("Given a store whose context is already canceled", t, func() {
		store := seededStore(t)
		svc := newService(t, store)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("When ratings are recalculated", func() {
			_, err := svc.Recalculate(ctx)

			Convey("Then the failure should be returned and no run recorded", func() {
				So(err, ShouldNotBeNil)
				So(svc.LastRun(), ShouldBeNil)
				So(svc.Running(), ShouldBeFalse)
			})
		})
	})
}
