package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/cosmic-journey/internal/adapters/repository"
	"github.com/okian/cosmic-journey/internal/config"
	"github.com/okian/cosmic-journey/pkg/logger"
)

func TestConfigFromEnv(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		_ = os.Setenv("COSMIC_ADDR", ":8080")
		_ = os.Setenv("COSMIC_STORE__DRIVER", "sqlite")
		_ = os.Setenv("COSMIC_MUTATIONS__SHARDS", "2")
		defer func() {
			_ = os.Unsetenv("COSMIC_ADDR")
			_ = os.Unsetenv("COSMIC_STORE__DRIVER")
			_ = os.Unsetenv("COSMIC_MUTATIONS__SHARDS")
		}()

		convey.Convey("Then they reach the loaded configuration", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.Store.Driver, convey.ShouldEqual, config.DriverSQLite)
			convey.So(cfg.Mutations.Shards, convey.ShouldEqual, 2)
		})
	})

	convey.Convey("Given an empty listen address", t, func() {
		_ = os.Setenv("COSMIC_ADDR", "")
		defer func() { _ = os.Unsetenv("COSMIC_ADDR") }()

		convey.Convey("Then loading fails", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestOpenStore(t *testing.T) {
	convey.Convey("Given each store driver", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("When the memory driver is selected", func() {
			store, err := openStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = store.Close() }()
			convey.So(store.Ping(ctx), convey.ShouldBeNil)
		})

		convey.Convey("When the sqlite driver is selected", func() {
			cfg.Store.Driver = config.DriverSQLite
			cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "nested", "cosmic.db")
			store, err := openStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = store.Close() }()

			rec, err := store.Create(ctx, "runs", map[string]any{"user": "u1", "level": 1})
			convey.So(err, convey.ShouldBeNil)
			got, err := store.GetOne(ctx, "runs", rec.ID)
			convey.So(err, convey.ShouldBeNil)
			convey.So(got.Int("level"), convey.ShouldEqual, 1)
		})

		convey.Convey("When the pocketbase url is malformed", func() {
			cfg.Store.Driver = config.DriverPocketBase
			cfg.Store.PocketBaseURL = "not a url"
			_, err := openStore(ctx, cfg)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the driver is unknown", func() {
			cfg.Store.Driver = "mongo"
			_, err := openStore(ctx, cfg)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestServerWiring(t *testing.T) {
	convey.Convey("Given a wired server over the memory store", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.Mutations.Shards = 2

		store, err := openStore(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		svc := newService(cfg, store, logger.Nop())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		srv := httptest.NewServer(newMux(ctx, cfg, svc, logger.Nop()))
		defer srv.Close()

		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": "pilot-1"}).
			SignedString([]byte(cfg.Auth.JWTSecret))
		convey.So(err, convey.ShouldBeNil)

		call := func(method, path, body string) (*http.Response, map[string]any) {
			req, err := http.NewRequestWithContext(ctx, method, srv.URL+path, strings.NewReader(body))
			convey.So(err, convey.ShouldBeNil)
			req.AddCookie(&http.Cookie{Name: "token", Value: token})
			resp, err := srv.Client().Do(req)
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			var out map[string]any
			_ = json.NewDecoder(resp.Body).Decode(&out)
			return resp, out
		}

		convey.Convey("When a run is created and completed through the API", func() {
			resp, run := call(http.MethodPost, "/run/create", "")
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusCreated)
			id, _ := run["id"].(string)

			resp, updated := call(http.MethodPatch, "/run/progress", `{"runId":"`+id+`","increment":150}`)
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)

			convey.Convey("Then the run is on level 2 and ranked", func() {
				convey.So(updated["level"], convey.ShouldEqual, 2.0)
				convey.So(updated["progress"], convey.ShouldEqual, 0.0)

				resp, board := call(http.MethodGet, "/leaderboard?timeFrame=daily", "")
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				convey.So(board["totalItems"], convey.ShouldEqual, 1.0)
			})
		})

		convey.Convey("When the docs are requested", func() {
			resp, err := srv.Client().Get(srv.URL + "/openapi.yaml")
			convey.So(err, convey.ShouldBeNil)
			_ = resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		})
	})

	convey.Convey("Given the store behind the metrics decorator", t, func() {
		store, err := openStore(context.Background(), config.New())
		convey.So(err, convey.ShouldBeNil)
		_, err = store.GetOne(context.Background(), "runs", "missing")
		convey.So(errors.Is(err, repository.ErrNotFound), convey.ShouldBeTrue)
	})
}

func TestSystemMetricsUpdater(t *testing.T) {
	convey.Convey("Given a short-lived context", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		convey.Convey("Then the updater returns once it is done", func() {
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(ctx.Err(), convey.ShouldNotBeNil)
		})
	})
}
