package config_test

import (
	"context"
	"os"
	"testing"

	"github.com/okian/cosmic-journey/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"COSMIC_CONFIG",
	"COSMIC_ADDR",
	"COSMIC_LOG_LEVEL",
	"COSMIC_STORE__DRIVER",
	"COSMIC_STORE__SQLITE_PATH",
	"COSMIC_STORE__MAX_CONFLICT_RETRIES",
	"COSMIC_LEADERBOARD__DEFAULT_PAGE_SIZE",
	"COSMIC_PROGRESSION__LEGACY_ONE_PERCENT_ROLLOVER",
	"COSMIC_PROGRESSION__MAX_LEVEL",
	"COSMIC_AUTH__TRUST_GATEWAY_HEADER",
	"COSMIC_DEDUPE_SIZE",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "cosmic-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	return f.Name()
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":3000")
				convey.So(cfg.Store.Driver, convey.ShouldEqual, "memory")
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("COSMIC_ADDR", ":8080")
			_ = os.Setenv("COSMIC_STORE__DRIVER", "sqlite")
			_ = os.Setenv("COSMIC_STORE__SQLITE_PATH", "/tmp/cosmic.db")
			_ = os.Setenv("COSMIC_PROGRESSION__LEGACY_ONE_PERCENT_ROLLOVER", "true")
			_ = os.Setenv("COSMIC_PROGRESSION__MAX_LEVEL", "10")
			_ = os.Setenv("COSMIC_DEDUPE_SIZE", "500")

			cfg, err := config.Load(ctx)

			convey.Convey("Then nested keys override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Store.Driver, convey.ShouldEqual, config.DriverSQLite)
				convey.So(cfg.Store.SQLitePath, convey.ShouldEqual, "/tmp/cosmic.db")
				convey.So(cfg.Progression.LegacyOnePercentRollover, convey.ShouldBeTrue)
				convey.So(cfg.Progression.MaxLevel, convey.ShouldEqual, 10)
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 500)
				convey.So(cfg.Store.MaxConflictRetries, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
log_level: debug
store:
  driver: pocketbase
  pocketbase_url: "http://pb:8090"
leaderboard:
  default_page_size: 20
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("COSMIC_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Store.Driver, convey.ShouldEqual, config.DriverPocketBase)
				convey.So(cfg.Store.PocketBaseURL, convey.ShouldEqual, "http://pb:8090")
				convey.So(cfg.Leaderboard.DefaultPageSize, convey.ShouldEqual, 20)
				convey.So(cfg.Leaderboard.MaxPageSize, convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
store:
  max_conflict_retries: 5
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("COSMIC_CONFIG", tmpFile)
			_ = os.Setenv("COSMIC_ADDR", ":7070")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.Store.MaxConflictRetries, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("COSMIC_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("COSMIC_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("COSMIC_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("COSMIC_DEDUPE_SIZE", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}
