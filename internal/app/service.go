// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	outcomequeue "github.com/hireloop/caliber/internal/adapters/mq/queue"
	workerpool "github.com/hireloop/caliber/internal/adapters/mq/worker"
	"github.com/hireloop/caliber/internal/adapters/repository"
	"github.com/hireloop/caliber/internal/catalog"
	"github.com/hireloop/caliber/internal/domain/calibration"
	"github.com/hireloop/caliber/internal/domain/dedupe"
	"github.com/hireloop/caliber/internal/domain/fairness"
	"github.com/hireloop/caliber/internal/domain/learning"
	"github.com/hireloop/caliber/internal/domain/model"
	"github.com/hireloop/caliber/internal/domain/policy"
	"github.com/hireloop/caliber/internal/domain/redflag"
	"github.com/hireloop/caliber/internal/domain/scoring"
	"github.com/hireloop/caliber/pkg/logger"
	"github.com/hireloop/caliber/pkg/metrics"
)

// Service implements the API dependencies for the decision engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store        repository.Store
	deduper      dedupe.Deduper
	outcomeQueue outcomequeue.Queue
	scorer       scoring.Scorer
	rubric       scoring.Rubric
	detector     redflag.Detector
	calibrator   *calibration.Engine
	policies     *policy.Engine
	loop         *learning.Loop
	batch        *learning.Batch
	reporter     *fairness.Reporter
	workerPool   *workerpool.Pool
	scheduler    *cron.Cron

	// Configuration
	workerCount        int
	queueSize          int
	dedupeSize         int
	dbPath             string
	catalogPaths       catalog.Paths
	minBaselineSamples int64
	significance       int64
	tolerance          float64
	weightCron         string
	fairnessCron       string
	learningScope      string

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of outcome worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the outcome queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDBPath selects the SQLite database file. Empty keeps the in-memory store.
func WithDBPath(path string) Option {
	return func(s *Service) {
		s.dbPath = path
	}
}

// WithCatalogPaths points at the YAML artifact files.
func WithCatalogPaths(paths catalog.Paths) Option {
	return func(s *Service) {
		s.catalogPaths = paths
	}
}

// WithMinBaselineSamples sets the calibration maturity floor.
func WithMinBaselineSamples(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minBaselineSamples = int64(n)
		}
	}
}

// WithPatternSignificance sets the batch updater's occurrence threshold.
func WithPatternSignificance(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.significance = int64(n)
		}
	}
}

// WithFairnessTolerance sets the divergence alert multiple.
func WithFairnessTolerance(t float64) Option {
	return func(s *Service) {
		if t > 0 {
			s.tolerance = t
		}
	}
}

// WithSchedules sets the cron specs for the weight update and fairness jobs.
// An empty spec disables the corresponding job.
func WithSchedules(weightSpec, fairnessSpec string) Option {
	return func(s *Service) {
		s.weightCron = weightSpec
		s.fairnessCron = fairnessSpec
	}
}

// WithLearningScope sets the weight-set scope the engine operates on.
func WithLearningScope(scope string) Option {
	return func(s *Service) {
		if scope != "" {
			s.learningScope = scope
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:        runtime.NumCPU() * 2,
		queueSize:          50000,
		dedupeSize:         50000,
		minBaselineSamples: 20,
		significance:       5,
		tolerance:          2.0,
		learningScope:      learning.ScopeGlobal,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting decision engine...")

	bundle, err := catalog.Load(s.catalogPaths)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}

	if s.dbPath != "" {
		store, err := repository.NewSQLiteStore(s.dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
		s.logger.Info(ctx, "using sqlite store", logger.String("path", s.dbPath))
	} else {
		s.store = repository.NewMemStore()
		s.logger.Info(ctx, "using in-memory store")
	}

	seed := bundle.Weights
	seed.Scope = s.learningScope
	if err := s.store.SeedWeightSet(ctx, seed); err != nil {
		return fmt.Errorf("seed weight set: %w", err)
	}

	s.rubric = bundle.Rubric
	s.scorer, err = scoring.NewRubricScorer(bundle.Rubric)
	if err != nil {
		return fmt.Errorf("build scorer: %w", err)
	}
	s.detector = redflag.NewCatalogDetector(bundle.Flags,
		redflag.WithLogger(s.logger.Named("redflag")),
	)
	s.calibrator = calibration.NewEngine(s.store,
		calibration.WithMinSamples(s.minBaselineSamples),
	)
	s.policies, err = policy.NewEngine(bundle.Matrix)
	if err != nil {
		return fmt.Errorf("build policy engine: %w", err)
	}

	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.outcomeQueue = outcomequeue.NewInMemoryQueue(
		outcomequeue.WithCapacity(s.queueSize),
		outcomequeue.WithBufferSize(s.queueSize),
	)

	s.loop = learning.NewLoop(s.store, s.store, s.store, s.store,
		learning.WithScope(s.learningScope),
		learning.WithLoopLogger(s.logger.Named("learning")),
	)
	s.batch = learning.NewBatch(s.store, s.store,
		learning.WithBatchScope(s.learningScope),
		learning.WithSignificance(s.significance),
		learning.WithBatchLogger(s.logger.Named("batch")),
	)
	s.reporter = fairness.NewReporter(s.store, s.store,
		fairness.WithTolerance(s.tolerance),
	)

	s.workerPool = workerpool.NewPool(s.workerCount, s.outcomeQueue, s.loop)
	s.workerPool.Start(ctx)

	s.startScheduler(ctx)

	s.started = true
	s.logger.Info(ctx, "decision engine started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("rubricVersion", bundle.Rubric.Version),
		logger.String("policyVersion", s.policies.Version()),
	)

	return nil
}

// startScheduler wires the recurring weight update and fairness jobs.
func (s *Service) startScheduler(ctx context.Context) {
	if s.weightCron == "" && s.fairnessCron == "" {
		return
	}
	s.scheduler = cron.New()

	if s.weightCron != "" {
		if _, err := s.scheduler.AddFunc(s.weightCron, func() {
			if _, _, err := s.RunWeightUpdate(ctx); err != nil {
				s.logger.Error(ctx, "scheduled weight update failed", logger.Error(err))
			}
		}); err != nil {
			s.logger.Error(ctx, "invalid weight update schedule",
				logger.String("spec", s.weightCron), logger.Error(err))
		}
	}

	if s.fairnessCron != "" {
		if _, err := s.scheduler.AddFunc(s.fairnessCron, func() {
			if _, err := s.RunFairness(ctx, time.Now().UTC()); err != nil {
				s.logger.Error(ctx, "scheduled fairness report failed", logger.Error(err))
			}
		}); err != nil {
			s.logger.Error(ctx, "invalid fairness schedule",
				logger.String("spec", s.fairnessCron), logger.Error(err))
		}
	}

	s.scheduler.Start()
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping decision engine...")

	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	if s.workerPool != nil {
		_ = s.workerPool.Shutdown(ctx)
	}

	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "decision engine stopped")
}

// Evaluate runs the full pipeline for one candidate: score, detect flags,
// fold in the active weights, calibrate, and decide. The snapshot is durable
// before the call returns. Requests replaying a known request ID get the
// stored snapshot back instead of a second evaluation.
func (s *Service) Evaluate(ctx context.Context, req model.EvaluationRequest) (model.DecisionSnapshot, bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordEvaluationLatency(float64(time.Since(start).Milliseconds()))
	}()

	if !s.isStarted() {
		return model.DecisionSnapshot{}, false, ErrNotStarted
	}

	decisionID := req.RequestID
	if decisionID == "" {
		decisionID = uuid.NewString()
	} else if s.deduper.SeenAndRecord(ctx, "eval:"+decisionID) {
		snap, ok, err := s.store.Decision(ctx, decisionID)
		if err != nil {
			return model.DecisionSnapshot{}, false, err
		}
		if !ok {
			return model.DecisionSnapshot{}, false, ErrDuplicateRequest
		}
		return snap, true, nil
	}

	snap, err := s.evaluate(ctx, decisionID, req)
	if err != nil {
		metrics.RecordEvaluationError()
		if req.RequestID != "" {
			// Allow the caller to retry a failed evaluation.
			s.deduper.Unrecord(ctx, "eval:"+req.RequestID)
		}
		return model.DecisionSnapshot{}, false, err
	}
	return snap, false, nil
}

func (s *Service) evaluate(ctx context.Context, decisionID string, req model.EvaluationRequest) (model.DecisionSnapshot, error) {
	set, err := s.scorer.Score(ctx, req.Evidence)
	if err != nil {
		return model.DecisionSnapshot{}, fmt.Errorf("score competencies: %w", err)
	}

	flags := s.detector.Detect(ctx, req.Evidence)
	for _, f := range flags.Flags {
		metrics.RecordRedFlag(string(f.Severity))
	}
	if flags.AutoReject {
		metrics.RecordAutoReject()
	}

	ws, ok, err := s.store.ActiveWeightSet(ctx, s.learningScope)
	if err != nil {
		return model.DecisionSnapshot{}, fmt.Errorf("load active weight set: %w", err)
	}
	if !ok {
		return model.DecisionSnapshot{}, fmt.Errorf("no active weight set for scope %s: %w", s.learningScope, model.ErrConfiguration)
	}

	raw := s.composite(set, flags, ws, req.Meta)

	key := model.BaselineKey{
		PositionCode: req.Meta.PositionCode,
		IndustryCode: req.Meta.IndustryCode,
		Language:     req.Meta.Language,
	}
	if _, err := s.store.ObserveScore(ctx, key, raw); err != nil {
		return model.DecisionSnapshot{}, fmt.Errorf("update baseline: %w", err)
	}
	metrics.RecordBaselineUpdate()

	calRes, err := s.calibrator.Calibrate(ctx, raw, key, flags.MaxScoreCap)
	if err != nil {
		return model.DecisionSnapshot{}, fmt.Errorf("calibrate: %w", err)
	}
	metrics.RecordCalibrationFallback(calRes.Fallback)

	outcome, err := s.policies.Decide(ctx, policy.Input{
		CalibratedScore: calRes.CalibratedScore,
		Flags:           flags.Flags,
		AutoReject:      flags.AutoReject,
	}, req.Override, time.Now().UTC())
	if err != nil {
		return model.DecisionSnapshot{}, fmt.Errorf("decide: %w", err)
	}

	snap := model.DecisionSnapshot{
		ID:               decisionID,
		CandidateID:      req.Meta.CandidateID,
		Meta:             req.Meta,
		CompetencyScores: make(map[string]int, len(set.Scores)),
		RawScore:         raw,
		ZScore:           calRes.ZScore,
		CalibratedScore:  calRes.CalibratedScore,
		Decision:         outcome.Decision,
		RawDecision:      outcome.RawDecision,
		DecisionReason:   outcome.Reason,
		PolicyCode:       outcome.PolicyCode,
		ConfidencePct:    outcome.ConfidencePct,
		Provenance:       outcome.Provenance,
		RiskFlags:        flags.Flags,
		BaselineSegment:  calRes.Segment,
		BaselineVersion:  calRes.BaselineVersion,
		RubricVersion:    set.RubricVersion,
		WeightVersion:    ws.Version,
		CreatedAt:        time.Now().UTC(),
	}
	for code, cs := range set.Scores {
		snap.CompetencyScores[code] = cs.Score
	}
	snap.Warnings = append(snap.Warnings, set.Warnings...)
	snap.Warnings = append(snap.Warnings, flags.Warnings...)
	snap.Warnings = append(snap.Warnings, calRes.Warnings...)

	if err := s.store.SaveDecision(ctx, snap); err != nil {
		return model.DecisionSnapshot{}, fmt.Errorf("save decision: %w", err)
	}

	metrics.RecordDecision(string(snap.Decision))
	if snap.Provenance == model.ProvenanceOverridden {
		metrics.RecordOverride()
	}

	s.logger.Info(ctx, "decision recorded",
		logger.String("decisionID", snap.ID),
		logger.String("candidateID", snap.CandidateID),
		logger.String("decision", string(snap.Decision)),
		logger.Int("calibratedScore", snap.CalibratedScore),
		logger.Int("flags", len(snap.RiskFlags)),
	)

	return snap, nil
}

// composite folds the rubric composite, weight set, and flag impacts into the
// raw score, clamped to 0-100.
func (s *Service) composite(set model.CompetencyScoreSet, flags redflag.Result, ws model.WeightSet, meta model.CandidateMeta) float64 {
	raw := s.rubric.Composite(set) * ws.BaseWeight
	if boost, ok := ws.BoostFactors[meta.IndustryCode]; ok && boost > 0 {
		raw *= boost
	}
	raw += ws.MetaPenalties[meta.SourceChannel]
	for _, f := range flags.Flags {
		raw += f.ScoreImpact + ws.FlagPenalties[f.Code]
	}
	if raw < 0 {
		raw = 0
	} else if raw > 100 {
		raw = 100
	}
	return raw
}

// SubmitOutcome enqueues an outcome record for asynchronous learning.
// Returns (accepted, duplicate). A full queue rejects the record and unrecords
// its ID so the collaborator can retry.
func (s *Service) SubmitOutcome(ctx context.Context, rec model.OutcomeRecord) (bool, bool) {
	if !s.isStarted() {
		return false, false
	}

	if s.deduper.SeenAndRecord(ctx, "outcome:"+rec.OutcomeID) {
		metrics.RecordOutcomeDuplicate()
		s.logger.Debug(ctx, "duplicate outcome detected, skipping",
			logger.String("outcomeID", rec.OutcomeID),
		)
		return true, true
	}

	if !s.outcomeQueue.Enqueue(ctx, rec) {
		s.deduper.Unrecord(ctx, "outcome:"+rec.OutcomeID)
		return false, false
	}
	return true, false
}

// GetDecision returns a stored decision snapshot by ID.
func (s *Service) GetDecision(ctx context.Context, id string) (model.DecisionSnapshot, bool, error) {
	if !s.isStarted() {
		return model.DecisionSnapshot{}, false, ErrNotStarted
	}
	return s.store.Decision(ctx, id)
}

// RunWeightUpdate triggers one batch weight update immediately.
func (s *Service) RunWeightUpdate(ctx context.Context) (model.WeightSet, bool, error) {
	if !s.isStarted() {
		return model.WeightSet{}, false, ErrNotStarted
	}
	ws, published, err := s.batch.Run(ctx)
	if err != nil {
		if errors.Is(err, model.ErrVersionConflict) {
			metrics.RecordWeightPublishConflict()
		}
		return model.WeightSet{}, false, err
	}
	if published {
		metrics.RecordWeightPublish()
	}
	return ws, published, nil
}

// RunFairness computes and persists fairness snapshots for the window ending
// at reportDate.
func (s *Service) RunFairness(ctx context.Context, reportDate time.Time) ([]model.FairnessSnapshot, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	snaps, err := s.reporter.Run(ctx, reportDate)
	if err != nil {
		return nil, err
	}
	metrics.RecordFairnessRun()
	for _, snap := range snaps {
		if snap.HasAlert {
			metrics.RecordFairnessAlert()
			s.logger.Warn(ctx, "fairness divergence alert",
				logger.String("groupType", snap.GroupType),
				logger.String("groupValue", snap.GroupValue),
				logger.Float64("divergence", snap.Divergence),
			)
		}
	}
	return snaps, nil
}

// FairnessReport returns stored snapshots for a report date; empty selects
// the most recent report.
func (s *Service) FairnessReport(ctx context.Context, reportDate string) ([]model.FairnessSnapshot, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	return s.store.FairnessSnapshots(ctx, reportDate)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.outcomeQueue.Len(context.Background())
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()
		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
