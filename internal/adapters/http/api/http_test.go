package api_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hypeedev/gest/internal/adapters/http/api"
	"github.com/hypeedev/gest/internal/domain/model"
	"github.com/hypeedev/gest/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies implements api.Dependencies.
type mockDependencies struct {
	stats    map[string]interface{}
	window   model.Window
	gestures []*model.Gesture
}

func (m *mockDependencies) GetStats() map[string]interface{} { return m.stats }
func (m *mockDependencies) Active() model.Window             { return m.window }
func (m *mockDependencies) Eligible() []*model.Gesture       { return m.gestures }

func newMockDependencies() *mockDependencies {
	return &mockDependencies{
		stats:  map[string]interface{}{"started": true, "completions": 3},
		window: model.Window{Class: "firefox", Title: "Docs"},
		gestures: []*model.Gesture{
			{
				Name:     "workspace next",
				Sequence: []model.Step{{Fingers: 3, Action: model.ActionMove, Direction: model.DirectionLeft}},
				Command:  "swaymsg workspace next",
			},
			{
				Name: "volume",
				Sequence: []model.Step{
					{Fingers: 4, Action: model.ActionTouchDown},
					{Fingers: 4, Action: model.ActionMove, Direction: model.DirectionUp, Edge: model.EdgeRight},
				},
				RepeatMode: model.RepeatSlide,
				Command:    "pamixer -i 2",
			},
		},
	}
}

type gesturesBody struct {
	Window struct {
		Class string `json:"class"`
		Title string `json:"title"`
	} `json:"window"`
	Gestures []struct {
		Name       string   `json:"name"`
		Sequence   []string `json:"sequence"`
		RepeatMode string   `json:"repeat_mode"`
		Command    string   `json:"command"`
	} `json:"gestures"`
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered server", t, func() {
		mux := http.NewServeMux()
		api.NewServer(newMockDependencies()).Register(mux)

		for _, path := range []string{"/healthz", "/stats", "/gestures"} {
			Convey("GET "+path+" is routed", func() {
				req := httptest.NewRequest(http.MethodGet, path, nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		}

		Convey("Unknown paths are not found", func() {
			req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestGesturesHandler_HandleGetGestures(t *testing.T) {
	Convey("Given a gestures handler", t, func() {
		handler := api.NewGesturesHandler(newMockDependencies())

		Convey("When listing every eligible gesture", func() {
			req := httptest.NewRequest(http.MethodGet, "/gestures", nil)
			w := httptest.NewRecorder()
			handler.HandleGetGestures(w, req)

			Convey("Then the window and the gesture table are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body gesturesBody
				So(json.NewDecoder(w.Body).Decode(&body), ShouldBeNil)
				So(body.Window.Class, ShouldEqual, "firefox")
				So(body.Gestures, ShouldHaveLength, 2)
				So(body.Gestures[0].Sequence, ShouldResemble, []string{"move_left(3)"})
				So(body.Gestures[1].Sequence, ShouldResemble, []string{"touch_down(4)", "move_up@right(4)"})
				So(body.Gestures[1].RepeatMode, ShouldEqual, "slide")
			})
		})

		Convey("When filtering by finger count", func() {
			req := httptest.NewRequest(http.MethodGet, "/gestures?fingers=4", nil)
			w := httptest.NewRecorder()
			handler.HandleGetGestures(w, req)

			Convey("Then only matching gestures are returned", func() {
				var body gesturesBody
				So(json.NewDecoder(w.Body).Decode(&body), ShouldBeNil)
				So(body.Gestures, ShouldHaveLength, 1)
				So(body.Gestures[0].Name, ShouldEqual, "volume")
			})
		})

		Convey("When the filter is invalid", func() {
			req := httptest.NewRequest(http.MethodGet, "/gestures?fingers=zero", nil)
			w := httptest.NewRecorder()
			handler.HandleGetGestures(w, req)

			Convey("Then it should return bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "bad_request")
			})
		})

		Convey("When using the wrong method", func() {
			req := httptest.NewRequest(http.MethodPost, "/gestures", nil)
			w := httptest.NewRecorder()
			handler.HandleGetGestures(w, req)

			Convey("Then it should return not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestHealthHandler_HandleHealth(t *testing.T) {
	Convey("Given a health handler", t, func() {
		deps := newMockDependencies()
		handler := api.NewHealthHandler(deps)

		Convey("When scraping metrics", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			w := httptest.NewRecorder()
			handler.HandleHealth(w, req)

			Convey("Then it should return the exposition format", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "gest_")
			})
		})

		Convey("When asking for JSON", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set("Accept", "application/json")

			Convey("Then a running daemon is ok", func() {
				w := httptest.NewRecorder()
				handler.HandleHealth(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"ok"`)
			})

			Convey("Then a stopped daemon is unavailable", func() {
				deps.stats["started"] = false
				w := httptest.NewRecorder()
				handler.HandleHealth(w, req)
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})
}

func TestStatsHandler_HandleStats(t *testing.T) {
	Convey("Given a stats handler", t, func() {
		handler := api.NewStatsHandler(newMockDependencies())

		Convey("When handling stats request", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return stats", func() {
				handler.HandleStats(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response map[string]interface{}
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response["started"], ShouldEqual, true)
				So(response["completions"], ShouldEqual, 3)
			})
		})
	})
}

func TestServe(t *testing.T) {
	Convey("Given a free port", t, func() {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)
		addr := l.Addr().String()
		So(l.Close(), ShouldBeNil)

		mux := http.NewServeMux()
		api.NewServer(newMockDependencies()).Register(mux)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- api.Serve(ctx, addr, mux, logger.Nop()) }()

		Convey("When the server is running", func() {
			var resp *http.Response
			for i := 0; i < 100; i++ {
				resp, err = http.Get("http://" + addr + "/stats")
				if err == nil {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			So(err, ShouldBeNil)
			_ = resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			Convey("Then canceling shuts it down cleanly", func() {
				cancel()
				So(<-done, ShouldBeNil)
			})
		})
		cancel()
	})
}
