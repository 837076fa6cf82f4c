package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/sandscore/internal/adapters/http/api"
	repository "github.com/okian/sandscore/internal/adapters/repository"
	service "github.com/okian/sandscore/internal/app"
	"github.com/okian/sandscore/internal/domain/engine"
	"github.com/okian/sandscore/internal/domain/model"
	"github.com/okian/sandscore/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// mockDependencies records the last query and returns canned answers.
type mockDependencies struct {
	entries []api.Entry
	topErr  error
	rank    api.Entry
	rankErr error
	result  engine.Result
	recErr  error
	stats   service.Stats
	dup     bool
	subErr  error
	history []model.RatingChange
	histErr error

	gotBracket model.Bracket
	gotMatch   model.Match
	submitted  int
	gotLimit   int
	gotID      string
	recalcs    int
}

func (m *mockDependencies) TopN(_ context.Context, bracket model.Bracket, n int) ([]api.Entry, error) {
	m.gotBracket, m.gotLimit = bracket, n
	if m.topErr != nil {
		return nil, m.topErr
	}
	if n > len(m.entries) {
		return m.entries, nil
	}
	return m.entries[:n], nil
}

func (m *mockDependencies) Rank(_ context.Context, bracket model.Bracket, id string) (api.Entry, error) {
	m.gotBracket, m.gotID = bracket, id
	if m.rankErr != nil {
		return api.Entry{}, m.rankErr
	}
	return m.rank, nil
}

func (m *mockDependencies) History(_ context.Context, bracket model.Bracket, id string) ([]model.RatingChange, error) {
	m.gotBracket, m.gotID = bracket, id
	return m.history, m.histErr
}

func (m *mockDependencies) Recalculate(context.Context) (engine.Result, error) {
	m.recalcs++
	return m.result, m.recErr
}

func (m *mockDependencies) SubmitMatch(_ context.Context, match model.Match) (bool, error) {
	m.submitted++
	m.gotMatch = match
	return m.dup, m.subErr
}

func (m *mockDependencies) GetStats(context.Context) service.Stats {
	return m.stats
}

func entry(rank int, id string, rating int) api.Entry {
	return api.Entry{Rank: rank, Standing: repository.Standing{PlayerID: id, Rating: rating, Deviation: 120, Matches: 4}}
}

func newMux(deps *mockDependencies, maxLimit int) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, maxLimit).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
	return body
}

func TestHealth(t *testing.T) {
	Convey("Given a registered server", t, func() {
		mux := newMux(&mockDependencies{}, 10)

		Convey("When /healthz is scraped", func() {
			w := do(mux, http.MethodGet, "/healthz")

			Convey("Then it should expose the metrics registry", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "sandscore_")
			})
		})

		Convey("When /healthz is posted to", func() {
			w := do(mux, http.MethodPost, "/healthz")

			Convey("Then it should not be found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestLeaderboard(t *testing.T) {
	Convey("Given a leaderboard with three entries", t, func() {
		deps := &mockDependencies{entries: []api.Entry{
			entry(1, "a", 1700),
			entry(2, "b", 1650),
			entry(3, "c", 1600),
		}}
		mux := newMux(deps, 50)

		Convey("When the top two of the mens bracket are requested", func() {
			w := do(mux, http.MethodGet, "/leaderboard?bracket=mens&limit=2")

			Convey("Then they should be returned in order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")

				var got []map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got[0]["player_id"], ShouldEqual, "a")
				So(got[0]["rank"], ShouldEqual, 1.0)
				So(got[0]["rating_deviation"], ShouldEqual, 120.0)
				So(deps.gotBracket, ShouldEqual, model.BracketMens)
				So(deps.gotLimit, ShouldEqual, 2)
			})
		})

		Convey("When the bracket is spelled in upper case", func() {
			w := do(mux, http.MethodGet, "/leaderboard?bracket=WOMENS&limit=1")

			Convey("Then it should be accepted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotBracket, ShouldEqual, model.BracketWomens)
			})
		})

		Convey("When the request is malformed", func() {
			cases := []struct {
				target string
				code   string
			}{
				{"/leaderboard?limit=2", "bad_request"},
				{"/leaderboard?bracket=mixed&limit=2", "bad_request"},
				{"/leaderboard?bracket=mens", "bad_request"},
				{"/leaderboard?bracket=mens&limit=0", "bad_request"},
				{"/leaderboard?bracket=mens&limit=abc", "bad_request"},
				{"/leaderboard?bracket=mens&limit=51", "limit_exceeded"},
			}

			Convey("Then each should be rejected with 400", func() {
				for _, tc := range cases {
					w := do(mux, http.MethodGet, tc.target)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decodeError(w)["code"], ShouldEqual, tc.code)
				}
				So(deps.gotLimit, ShouldEqual, 0)
			})
		})

		Convey("When the store fails", func() {
			deps.topErr = errors.New("boom")
			w := do(mux, http.MethodGet, "/leaderboard?bracket=mens&limit=2")

			Convey("Then it should answer 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decodeError(w)["message"], ShouldContainSubstring, "boom")
			})
		})

		Convey("When the method is not GET", func() {
			w := do(mux, http.MethodPost, "/leaderboard?bracket=mens&limit=2")

			Convey("Then it should not be found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})

	Convey("Given a server without a configured limit", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, 0)

		Convey("Then the default cap should apply", func() {
			w := do(mux, http.MethodGet, fmt.Sprintf("/leaderboard?bracket=mens&limit=%d", api.DefaultMaxLimit))
			So(w.Code, ShouldEqual, http.StatusOK)

			w = do(mux, http.MethodGet, fmt.Sprintf("/leaderboard?bracket=mens&limit=%d", api.DefaultMaxLimit+1))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRank(t *testing.T) {
	Convey("Given a ranked player", t, func() {
		deps := &mockDependencies{rank: entry(3, "p-7", 1610)}
		mux := newMux(deps, 10)

		Convey("When their womens rank is requested", func() {
			w := do(mux, http.MethodGet, "/rank/p-7?bracket=womens")

			Convey("Then the entry should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var got map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got["rank"], ShouldEqual, 3.0)
				So(got["rating"], ShouldEqual, 1610.0)
				So(deps.gotID, ShouldEqual, "p-7")
				So(deps.gotBracket, ShouldEqual, model.BracketWomens)
			})
		})

		Convey("When the player is unknown", func() {
			deps.rankErr = fmt.Errorf("%w: ghost in mens", repository.ErrNotFound)
			w := do(mux, http.MethodGet, "/rank/ghost?bracket=mens")

			Convey("Then it should answer 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeError(w)["code"], ShouldEqual, "not_found")
			})
		})

		Convey("When the lookup fails for another reason", func() {
			deps.rankErr = errors.New("disk on fire")
			w := do(mux, http.MethodGet, "/rank/p-7?bracket=mens")

			Convey("Then it should answer 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When the path or bracket is invalid", func() {
			Convey("Then it should answer 400", func() {
				for _, target := range []string{"/rank/?bracket=mens", "/rank/a/b?bracket=mens", "/rank/p-7", "/rank/p-7?bracket=coed"} {
					w := do(mux, http.MethodGet, target)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				}
				So(deps.gotID, ShouldBeEmpty)
			})
		})
	})
}

func TestStats(t *testing.T) {
	Convey("Given a service with a completed run", t, func() {
		deps := &mockDependencies{stats: service.Stats{
			LastRun:   &service.RunSummary{RunID: "run-1", MatchesValid: 12},
			Standings: map[model.Bracket]int{model.BracketMens: 8},
		}}
		mux := newMux(deps, 10)

		Convey("When /stats is requested", func() {
			w := do(mux, http.MethodGet, "/stats")

			Convey("Then it should report the run", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := w.Body.String()
				So(body, ShouldContainSubstring, `"run_id":"run-1"`)
				So(body, ShouldContainSubstring, `"matches_valid":12`)
				So(body, ShouldContainSubstring, `"mens":8`)
			})
		})
	})
}

func TestRecalculate(t *testing.T) {
	Convey("Given a service ready to recalculate", t, func() {
		ref := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
		deps := &mockDependencies{result: engine.Result{
			Profiles: []model.Profile{model.NewProfile("a"), model.NewProfile("b")},
			Stats: engine.Stats{
				Passes:         3,
				MatchesTotal:   5,
				MatchesValid:   4,
				MatchesSkipped: 1,
				PassDeltas:     []float64{648, 0, 0},
				ReferenceTime:  ref,
			},
		}}
		mux := newMux(deps, 10)

		Convey("When a recalculation is posted", func() {
			w := do(mux, http.MethodPost, "/recalculate")

			Convey("Then it should run once and summarise the result", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.recalcs, ShouldEqual, 1)

				var got map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got["status"], ShouldEqual, "ok")
				So(got["players"], ShouldEqual, 2.0)
				So(got["matches_skipped"], ShouldEqual, 1.0)
				So(got["pass_deltas"], ShouldResemble, []any{648.0, 0.0, 0.0})
				So(got["reference_time"], ShouldEqual, "2024-06-01T12:00:00Z")
			})
		})

		Convey("When a recalculation is already running", func() {
			deps.recErr = service.ErrRecalculationRunning
			w := do(mux, http.MethodPost, "/recalculate")

			Convey("Then it should answer 409", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decodeError(w)["code"], ShouldEqual, "conflict")
			})
		})

		Convey("When the recalculation fails", func() {
			deps.recErr = fmt.Errorf("pass 1: %w", engine.ErrNonFinite)
			w := do(mux, http.MethodPost, "/recalculate")

			Convey("Then it should answer 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decodeError(w)["message"], ShouldContainSubstring, "pass 1")
			})
		})

		Convey("When the method is GET", func() {
			w := do(mux, http.MethodGet, "/recalculate")

			Convey("Then nothing should run", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(deps.recalcs, ShouldEqual, 0)
			})
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("root cause")

		Convey("Then kind and cause should both be matchable", func() {
			err := api.WrapKind("api.op", api.ErrNotFound, cause)
			So(errors.Is(err, api.ErrNotFound), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: not found: root cause")
		})

		Convey("Then a bare kind should format without a cause", func() {
			err := api.NewKind("api.op", api.ErrBadRequest)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(strings.Count(err.Error(), ":"), ShouldEqual, 1)
		})

		Convey("Then Wrap should mark the error internal", func() {
			So(errors.Is(api.Wrap("api.op", cause), api.ErrInternal), ShouldBeTrue)
		})
	})
}
