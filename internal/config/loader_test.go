package config_test

import (
	"context"
	"errors"
	"os"
	"runtime"
	"testing"

	"github.com/marquee/tierlist/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.SessionTTL().Minutes(), convey.ShouldEqual, 30)
			convey.So(cfg.SessionSweepInterval().Seconds(), convey.ShouldEqual, 60)
			convey.So(cfg.MaxRankingsLimit, convey.ShouldEqual, 500)
			convey.So(cfg.ReclassifyOnChange, convey.ShouldBeTrue)
			convey.So(config.Validate(cfg), convey.ShouldBeNil)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("MARQUEE_ADDR", ":8080")
			_ = os.Setenv("MARQUEE_QUEUE_SIZE", "64")
			_ = os.Setenv("MARQUEE_WORKER_COUNT", "3")
			_ = os.Setenv("MARQUEE_SESSION_TTL_SECONDS", "90")
			_ = os.Setenv("MARQUEE_RECLASSIFY_ON_CHANGE", "false")
			_ = os.Setenv("MARQUEE_LOG_FORMAT", "json")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.SessionTTLSeconds, convey.ShouldEqual, 90)
				convey.So(cfg.ReclassifyOnChange, convey.ShouldBeFalse)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
queue_size: 300
worker_count: 24
max_rankings_limit: 50
`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("MARQUEE_CONFIG", tmpFile)
			_ = os.Setenv("MARQUEE_WORKER_COUNT", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")        // file
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)       // file
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)      // env
				convey.So(cfg.MaxRankingsLimit, convey.ShouldEqual, 50) // file
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)  // default
			})
		})

		convey.Convey("When the YAML file is malformed", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("MARQUEE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the file does not exist", func() {
			_ = os.Setenv("MARQUEE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a number cannot be parsed", func() {
			_ = os.Setenv("MARQUEE_QUEUE_SIZE", "lots")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestConfigValidation(t *testing.T) {
	convey.Convey("Given config values out of range", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		cases := map[string]string{
			"MARQUEE_ADDR":                           "",
			"MARQUEE_QUEUE_SIZE":                     "0",
			"MARQUEE_WORKER_COUNT":                   "-2",
			"MARQUEE_SESSION_TTL_SECONDS":            "0",
			"MARQUEE_SESSION_SWEEP_INTERVAL_SECONDS": "0",
			"MARQUEE_MAX_RANKINGS_LIMIT":             "0",
			"MARQUEE_LOG_LEVEL":                      "chatty",
			"MARQUEE_LOG_FORMAT":                     "xml",
		}

		convey.Convey("Then each one is rejected as invalid config", func() {
			for key, val := range cases {
				_ = os.Setenv(key, val)
				cfg, err := config.Load(ctx)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
				_ = os.Unsetenv(key)
			}
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, key := range []string{
		"MARQUEE_CONFIG",
		"MARQUEE_ADDR",
		"MARQUEE_LOG_LEVEL",
		"MARQUEE_LOG_FORMAT",
		"MARQUEE_QUEUE_SIZE",
		"MARQUEE_WORKER_COUNT",
		"MARQUEE_DEDUPE_SIZE",
		"MARQUEE_SESSION_TTL_SECONDS",
		"MARQUEE_SESSION_SWEEP_INTERVAL_SECONDS",
		"MARQUEE_MAX_RANKINGS_LIMIT",
		"MARQUEE_RECLASSIFY_ON_CHANGE",
	} {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "marquee-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
