package api_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/sandscore/internal/adapters/mq/queue"
	service "github.com/okian/sandscore/internal/app"
	"github.com/okian/sandscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const validMatch = `{
	"match_id": "m-1",
	"bracket": "Womens",
	"played_at": "2024-05-30T18:30:00+02:00",
	"team1": ["a", "b"],
	"team2": ["c", "d"],
	"winning_team": 2
}`

func post(mux *http.ServeMux, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestPostMatch(t *testing.T) {
	Convey("Given a server accepting matches", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, 10)

		Convey("When a valid match is posted", func() {
			w := post(mux, "/matches", validMatch)

			Convey("Then it should be accepted and normalised", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"status":"accepted"`)
				So(deps.submitted, ShouldEqual, 1)
				So(deps.gotMatch.ID, ShouldEqual, "m-1")
				So(deps.gotMatch.Bracket, ShouldEqual, model.BracketWomens)
				So(deps.gotMatch.PlayedAt.Equal(time.Date(2024, time.May, 30, 16, 30, 0, 0, time.UTC)), ShouldBeTrue)
				So(deps.gotMatch.PlayedAt.Location(), ShouldEqual, time.UTC)
				So(deps.gotMatch.Team2, ShouldResemble, model.Team{Player1: "c", Player2: "d"})
				So(deps.gotMatch.WinningTeam, ShouldEqual, 2)
			})
		})

		Convey("When the match was seen before", func() {
			deps.dup = true
			w := post(mux, "/matches", validMatch)

			Convey("Then it should be acknowledged as a duplicate", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
			})
		})

		Convey("When the queue is full", func() {
			deps.subErr = fmt.Errorf("enqueue match m-1: %w", queue.ErrFull)
			w := post(mux, "/matches", validMatch)

			Convey("Then the client should be asked to back off", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(w.Header().Get("Retry-After"), ShouldEqual, "1")
				So(decodeError(w)["code"], ShouldEqual, "backpressure")
			})
		})

		Convey("When ingestion is not running", func() {
			deps.subErr = service.ErrIngestStopped
			w := post(mux, "/matches", validMatch)

			Convey("Then it should answer 503", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(decodeError(w)["code"], ShouldEqual, "unavailable")
			})
		})

		Convey("When the store fails unexpectedly", func() {
			deps.subErr = fmt.Errorf("disk on fire")
			w := post(mux, "/matches", validMatch)

			Convey("Then it should answer 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When malformed matches are posted", func() {
			bodies := []string{
				`{"match_id": `,
				`{"match_id": "m-2", "bogus": 1}`,
				strings.Replace(validMatch, `"Womens"`, `"mixed"`, 1),
				strings.Replace(validMatch, `["c", "d"]`, `["c"]`, 1),
				strings.Replace(validMatch, `["c", "d"]`, `["c", "a"]`, 1),
				strings.Replace(validMatch, `"winning_team": 2`, `"winning_team": 0`, 1),
				strings.Replace(validMatch, `"played_at": "2024-05-30T18:30:00+02:00",`, ``, 1),
			}

			Convey("Then each should be rejected without reaching the service", func() {
				for _, body := range bodies {
					w := post(mux, "/matches", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decodeError(w)["code"], ShouldEqual, "bad_request")
				}
				So(deps.submitted, ShouldEqual, 0)
			})
		})

		Convey("When the method is GET", func() {
			w := do(mux, http.MethodGet, "/matches")

			Convey("Then it should not be found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
