package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestLoadDefaults(t *testing.T) {
	convey.Convey("Given no file and no environment overrides", t, func() {
		ctx := context.Background()
		cfg, err := Load(ctx)

		convey.Convey("Then the defaults come through", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.OutcomeQueueSize, convey.ShouldEqual, 50_000)
			convey.So(cfg.MinBaselineSamples, convey.ShouldEqual, 20)
			convey.So(cfg.PatternSignificance, convey.ShouldEqual, 5)
			convey.So(cfg.FairnessTolerance, convey.ShouldAlmostEqual, 2.0, 0.0001)
			convey.So(cfg.LearningScope, convey.ShouldEqual, "global")
			convey.So(cfg.WorkerCount, convey.ShouldBeGreaterThan, 0)
		})
	})
}

func TestLoadEnvOverrides(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		ctx := context.Background()
		t.Setenv("CALIBER_ADDR", ":7070")
		t.Setenv("CALIBER_LOG_LEVEL", "debug")
		t.Setenv("CALIBER_QUEUE_SIZE", "123")
		t.Setenv("CALIBER_LEARNING_SCOPE", "acme")

		cfg, err := Load(ctx)

		convey.Convey("Then env values win over defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
			convey.So(cfg.OutcomeQueueSize, convey.ShouldEqual, 123)
			convey.So(cfg.LearningScope, convey.ShouldEqual, "acme")
		})
	})
}

func TestLoadFile(t *testing.T) {
	convey.Convey("Given a YAML config file", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "caliber.yaml")
		content := []byte("addr: \":6060\"\nlog_level: warn\nworker_count: 2\n")
		convey.So(os.WriteFile(path, content, 0o600), convey.ShouldBeNil)
		t.Setenv("CALIBER_CONFIG", path)

		convey.Convey("Then the file layers over the defaults", func() {
			cfg, err := Load(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "warn")
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
			// untouched keys keep their defaults
			convey.So(cfg.OutcomeQueueSize, convey.ShouldEqual, 50_000)
		})

		convey.Convey("And env still wins over the file", func() {
			t.Setenv("CALIBER_ADDR", ":5050")
			cfg, err := Load(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":5050")
		})
	})

	convey.Convey("Given a missing config file", t, func() {
		t.Setenv("CALIBER_CONFIG", "/nonexistent/caliber.yaml")
		_, err := Load(context.Background())

		convey.Convey("Then loading fails with a load error", func() {
			convey.So(errors.Is(err, ErrLoadConfig), convey.ShouldBeTrue)
		})
	})
}

func TestLoadValidation(t *testing.T) {
	convey.Convey("Given invalid configuration values", t, func() {
		ctx := context.Background()

		convey.Convey("A zero worker count is rejected", func() {
			t.Setenv("CALIBER_WORKER_COUNT", "0")
			_, err := Load(ctx)
			convey.So(errors.Is(err, ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("A zero queue size is rejected", func() {
			t.Setenv("CALIBER_QUEUE_SIZE", "0")
			_, err := Load(ctx)
			convey.So(errors.Is(err, ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("A non-positive fairness tolerance is rejected", func() {
			t.Setenv("CALIBER_FAIRNESS_TOLERANCE", "-1")
			_, err := Load(ctx)
			convey.So(errors.Is(err, ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
