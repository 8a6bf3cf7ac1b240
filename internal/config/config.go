// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath locates the SQLite database file. Empty selects the in-memory
	// store, which loses state on restart.
	DBPath string `koanf:"db_path"`

	// Catalog artifact paths. Empty entries use the embedded defaults.
	RubricPath  string `koanf:"rubric_path"`
	FlagsPath   string `koanf:"flags_path"`
	MatrixPath  string `koanf:"matrix_path"`
	WeightsPath string `koanf:"weights_path"`

	// OutcomeQueueSize bounds the in-memory outcome queue.
	OutcomeQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of outcome-processing workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the request deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MinBaselineSamples gates segment baselines; below it calibration falls
	// back to a broader segment.
	MinBaselineSamples int `koanf:"min_baseline_samples"`

	// PatternSignificance is the occurrence count a learning pattern needs
	// before the batch updater acts on it.
	PatternSignificance int `koanf:"pattern_significance"`

	// FairnessTolerance scales the divergence alert threshold.
	FairnessTolerance float64 `koanf:"fairness_tolerance"`

	// WeightUpdateCron and FairnessCron are robfig/cron specs for the two
	// background jobs. Empty disables the job.
	WeightUpdateCron string `koanf:"weight_update_cron"`
	FairnessCron     string `koanf:"fairness_cron"`

	// LearningScope selects the weight-set scope the learning loop operates on.
	LearningScope string `koanf:"learning_scope"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use and currently
// unused.
func New(_ context.Context) *Config {
	c := &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		DBPath:              "",
		OutcomeQueueSize:    50_000,
		WorkerCount:         runtime.NumCPU() * 4,
		DedupeSize:          50_000,
		MinBaselineSamples:  20,
		PatternSignificance: 5,
		FairnessTolerance:   2.0,
		WeightUpdateCron:    "0 3 * * *",
		FairnessCron:        "30 3 * * *",
		LearningScope:       "global",
	}
	return c
}
