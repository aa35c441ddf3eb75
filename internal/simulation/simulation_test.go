package simulation_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/marquee/tierlist/internal/adapters/http/api"
	service "github.com/marquee/tierlist/internal/app"
	"github.com/marquee/tierlist/internal/simulation"
	"github.com/marquee/tierlist/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func newBackend() (*httptest.Server, *service.Service) {
	svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(256))
	So(svc.Start(context.Background()), ShouldBeNil)

	mux := http.NewServeMux()
	api.NewServer(svc).Register(context.Background(), mux)
	return httptest.NewServer(mux), svc
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		_ = logger.Init()
		srv, svc := newBackend()
		defer svc.Stop()
		defer srv.Close()

		Convey("When simulating several users", func() {
			out := filepath.Join(t.TempDir(), "movies.json")
			stats, err := simulation.Run(context.Background(), &simulation.Config{
				BaseURL:      srv.URL,
				Users:        3,
				ItemsPerUser: 40,
				Workers:      2,
				Timeout:      5 * time.Second,
				IdleTimeout:  2 * time.Second,
				OutputFile:   out,
			})

			Convey("Then every movie is stored in hidden order", func() {
				So(err, ShouldBeNil)
				So(stats.Inserted, ShouldEqual, 120)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Inversions, ShouldEqual, 0)
				So(stats.AvgComparisons(), ShouldBeGreaterThan, 0)
			})

			Convey("Then the movies are written out", func() {
				info, statErr := os.Stat(out)
				So(statErr, ShouldBeNil)
				So(info.Size(), ShouldBeGreaterThan, 0)
			})
		})
	})

	Convey("Given no service", t, func() {
		_ = logger.Init()
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		Convey("When simulating", func() {
			_, err := simulation.Run(context.Background(), &simulation.Config{
				BaseURL: srv.URL, Users: 1, ItemsPerUser: 1, Workers: 1, Timeout: time.Second,
			})

			Convey("Then the health check fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "health check")
			})
		})
	})
}

func TestClient(t *testing.T) {
	Convey("Given a client against a running service", t, func() {
		_ = logger.Init()
		srv, svc := newBackend()
		defer svc.Stop()
		defer srv.Close()
		client := simulation.NewClient(srv.URL, time.Second)
		ctx := context.Background()

		Convey("When starting into an empty tier", func() {
			sess, err := client.Start(ctx, simulation.Movie{UserID: "u", ID: "m1", Title: "One", Tier: "A"})

			Convey("Then the session is done at once", func() {
				So(err, ShouldBeNil)
				So(sess.Status, ShouldEqual, "done")
				entries, err := client.Rankings(ctx, "u", 10)
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 1)
			})
		})

		Convey("When the server rejects the request", func() {
			_, err := client.Start(ctx, simulation.Movie{UserID: "u", ID: "m1", Tier: "Q"})

			Convey("Then the status is reported", func() {
				So(errors.Is(err, simulation.ErrStatus), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "400")
			})
		})
	})
}

func TestClientResilience(t *testing.T) {
	Convey("Given a service that always fails", t, func() {
		_ = logger.Init()
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()
		ctx := context.Background()

		Convey("When the breaker allows two failures", func() {
			client := simulation.NewClient(srv.URL, time.Second, simulation.WithBreaker(2, time.Minute))
			_ = client.Health(ctx)
			_ = client.Health(ctx)
			err := client.Health(ctx)

			Convey("Then the third call is refused without reaching the server", func() {
				So(errors.Is(err, gobreaker.ErrOpenState), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, int32(2))
			})
		})
	})

	Convey("Given a service that rejects requests", t, func() {
		_ = logger.Init()
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()
		client := simulation.NewClient(srv.URL, time.Second, simulation.WithBreaker(1, time.Minute))

		Convey("When calling repeatedly", func() {
			var err error
			for i := 0; i < 3; i++ {
				err = client.Health(context.Background())
			}

			Convey("Then client errors never open the breaker", func() {
				So(errors.Is(err, simulation.ErrStatus), ShouldBeTrue)
				So(errors.Is(err, gobreaker.ErrOpenState), ShouldBeFalse)
			})
		})
	})

	Convey("Given a rate limited client", t, func() {
		_ = logger.Init()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		client := simulation.NewClient(srv.URL, time.Second, simulation.WithRateLimit(20, 1))

		Convey("When sending more requests than the burst", func() {
			start := time.Now()
			for i := 0; i < 3; i++ {
				So(client.Health(context.Background()), ShouldBeNil)
			}

			Convey("Then the extra requests wait for tokens", func() {
				So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 80*time.Millisecond)
			})
		})
	})
}
