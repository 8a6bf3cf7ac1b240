package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/hireloop/caliber/internal/domain/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS baselines (
	position_code TEXT NOT NULL,
	industry_code TEXT NOT NULL,
	language      TEXT NOT NULL,
	version       INTEGER NOT NULL,
	sample_count  INTEGER NOT NULL,
	mean          REAL NOT NULL,
	stddev        REAL NOT NULL,
	m2            REAL NOT NULL,
	PRIMARY KEY (position_code, industry_code, language)
);

CREATE TABLE IF NOT EXISTS weight_sets (
	version        TEXT PRIMARY KEY,
	parent_version TEXT DEFAULT '',
	scope          TEXT NOT NULL,
	payload        TEXT NOT NULL,
	active         INTEGER NOT NULL DEFAULT 0,
	frozen         INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_weight_sets_scope_active ON weight_sets(scope, active);

CREATE TABLE IF NOT EXISTS decisions (
	id           TEXT PRIMARY KEY,
	candidate_id TEXT NOT NULL,
	payload      TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_candidate ON decisions(candidate_id, created_at);

CREATE TABLE IF NOT EXISTS learning_events (
	id         TEXT PRIMARY KEY,
	outcome_id TEXT NOT NULL UNIQUE,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_learning_events_created ON learning_events(created_at);

CREATE TABLE IF NOT EXISTS learning_patterns (
	pattern_type     TEXT NOT NULL,
	signal           TEXT NOT NULL,
	industry         TEXT NOT NULL,
	occurrence_count INTEGER NOT NULL DEFAULT 0,
	error_sum        REAL NOT NULL DEFAULT 0,
	last_occurred_at DATETIME NOT NULL,
	PRIMARY KEY (pattern_type, signal, industry)
);

CREATE TABLE IF NOT EXISTS fairness_snapshots (
	report_date    TEXT NOT NULL,
	group_type     TEXT NOT NULL,
	group_value    TEXT NOT NULL,
	sample_count   INTEGER NOT NULL,
	avg_predicted  REAL NOT NULL,
	avg_actual     REAL NOT NULL,
	hire_precision REAL NOT NULL,
	divergence     REAL NOT NULL,
	has_alert      INTEGER NOT NULL,
	PRIMARY KEY (report_date, group_type, group_value)
);
`

// SQLiteStore is the durable Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and bootstraps the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Serialized access keeps the single-writer invariants simple.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Baseline returns the current baseline snapshot for a segment.
func (s *SQLiteStore) Baseline(ctx context.Context, key model.BaselineKey) (model.Baseline, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version, sample_count, mean, stddev, m2 FROM baselines
		 WHERE position_code = ? AND industry_code = ? AND language = ?`,
		key.PositionCode, key.IndustryCode, key.Language)

	b := model.Baseline{Key: key}
	err := row.Scan(&b.Version, &b.SampleCount, &b.Mean, &b.StdDev, &b.M2)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Baseline{}, false, nil
	}
	if err != nil {
		return model.Baseline{}, false, fmt.Errorf("load baseline %s: %w", key.Segment(), err)
	}
	return b, true, nil
}

// ObserveScore folds one raw score into the segment baseline inside a
// transaction, serializing concurrent updates for the same segment.
func (s *SQLiteStore) ObserveScore(ctx context.Context, key model.BaselineKey, raw float64) (model.Baseline, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Baseline{}, fmt.Errorf("begin baseline update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	b := model.Baseline{Key: key}
	row := tx.QueryRowContext(ctx,
		`SELECT version, sample_count, mean, stddev, m2 FROM baselines
		 WHERE position_code = ? AND industry_code = ? AND language = ?`,
		key.PositionCode, key.IndustryCode, key.Language)
	if err := row.Scan(&b.Version, &b.SampleCount, &b.Mean, &b.StdDev, &b.M2); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.Baseline{}, fmt.Errorf("load baseline %s: %w", key.Segment(), err)
	}

	next := b.Observe(raw)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO baselines (position_code, industry_code, language, version, sample_count, mean, stddev, m2)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (position_code, industry_code, language) DO UPDATE SET
		   version = excluded.version, sample_count = excluded.sample_count,
		   mean = excluded.mean, stddev = excluded.stddev, m2 = excluded.m2`,
		key.PositionCode, key.IndustryCode, key.Language,
		next.Version, next.SampleCount, next.Mean, next.StdDev, next.M2)
	if err != nil {
		return model.Baseline{}, fmt.Errorf("store baseline %s: %w", key.Segment(), err)
	}
	if err := tx.Commit(); err != nil {
		return model.Baseline{}, fmt.Errorf("commit baseline %s: %w", key.Segment(), err)
	}
	return next, nil
}

func (s *SQLiteStore) scanWeightSet(row *sql.Row) (model.WeightSet, bool, error) {
	var payload string
	var active, frozen int
	var ws model.WeightSet
	err := row.Scan(&payload, &active, &frozen)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WeightSet{}, false, nil
	}
	if err != nil {
		return model.WeightSet{}, false, err
	}
	if err := json.Unmarshal([]byte(payload), &ws); err != nil {
		return model.WeightSet{}, false, fmt.Errorf("decode weight set: %w", err)
	}
	ws.Active = active == 1
	ws.Frozen = frozen == 1
	return ws, true, nil
}

// ActiveWeightSet returns the single active set for a scope.
func (s *SQLiteStore) ActiveWeightSet(ctx context.Context, scope string) (model.WeightSet, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, active, frozen FROM weight_sets WHERE scope = ? AND active = 1`, scope)
	ws, ok, err := s.scanWeightSet(row)
	if err != nil {
		return model.WeightSet{}, false, fmt.Errorf("load active weight set for %s: %w", scope, err)
	}
	return ws, ok, nil
}

// WeightSet returns a set by version.
func (s *SQLiteStore) WeightSet(ctx context.Context, version string) (model.WeightSet, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, active, frozen FROM weight_sets WHERE version = ?`, version)
	ws, ok, err := s.scanWeightSet(row)
	if err != nil {
		return model.WeightSet{}, false, fmt.Errorf("load weight set %s: %w", version, err)
	}
	return ws, ok, nil
}

// SeedWeightSet installs ws only when its scope has no active set.
func (s *SQLiteStore) SeedWeightSet(ctx context.Context, ws model.WeightSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM weight_sets WHERE scope = ? AND active = 1`, ws.Scope).Scan(&n); err != nil {
		return fmt.Errorf("check active weight set: %w", err)
	}
	if n > 0 {
		return nil
	}
	ws.Active = true
	if err := insertWeightSet(ctx, tx, ws); err != nil {
		return err
	}
	return tx.Commit()
}

// PublishWeightSet activates ws with CAS semantics on its parent version.
func (s *SQLiteStore) PublishWeightSet(ctx context.Context, ws model.WeightSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// CAS: deactivate the parent only if it is still the active version.
	res, err := tx.ExecContext(ctx,
		`UPDATE weight_sets SET active = 0 WHERE scope = ? AND active = 1 AND version = ?`,
		ws.Scope, ws.ParentVersion)
	if err != nil {
		return fmt.Errorf("deactivate parent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate parent: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("scope %s parent %q is no longer active: %w", ws.Scope, ws.ParentVersion, model.ErrVersionConflict)
	}

	ws.Active = true
	if err := insertWeightSet(ctx, tx, ws); err != nil {
		return err
	}
	return tx.Commit()
}

func insertWeightSet(ctx context.Context, tx *sql.Tx, ws model.WeightSet) error {
	payload, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("encode weight set: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO weight_sets (version, parent_version, scope, payload, active, frozen, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ws.Version, ws.ParentVersion, ws.Scope, string(payload), boolInt(ws.Active), boolInt(ws.Frozen), ws.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert weight set %s: %w", ws.Version, err)
	}
	return nil
}

// SetFrozen flips the frozen flag on a version.
func (s *SQLiteStore) SetFrozen(ctx context.Context, version string, frozen bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE weight_sets SET frozen = ? WHERE version = ?`, boolInt(frozen), version)
	if err != nil {
		return fmt.Errorf("freeze weight set %s: %w", version, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("freeze weight set %s: %w", version, err)
	}
	if affected == 0 {
		return fmt.Errorf("weight set %s: %w", version, ErrNotFound)
	}
	return nil
}

// SaveDecision stores one immutable decision snapshot.
func (s *SQLiteStore) SaveDecision(ctx context.Context, snap model.DecisionSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode decision %s: %w", snap.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, candidate_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		snap.ID, snap.CandidateID, string(payload), snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", snap.ID, err)
	}
	return nil
}

func decodeDecision(payload string) (model.DecisionSnapshot, error) {
	var snap model.DecisionSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return model.DecisionSnapshot{}, fmt.Errorf("decode decision: %w", err)
	}
	return snap, nil
}

// Decision returns a snapshot by ID.
func (s *SQLiteStore) Decision(ctx context.Context, id string) (model.DecisionSnapshot, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM decisions WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DecisionSnapshot{}, false, nil
	}
	if err != nil {
		return model.DecisionSnapshot{}, false, fmt.Errorf("load decision %s: %w", id, err)
	}
	snap, err := decodeDecision(payload)
	if err != nil {
		return model.DecisionSnapshot{}, false, err
	}
	return snap, true, nil
}

// LatestDecisionForCandidate returns the most recently saved snapshot.
func (s *SQLiteStore) LatestDecisionForCandidate(ctx context.Context, candidateID string) (model.DecisionSnapshot, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM decisions WHERE candidate_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		candidateID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DecisionSnapshot{}, false, nil
	}
	if err != nil {
		return model.DecisionSnapshot{}, false, fmt.Errorf("load decision for candidate %s: %w", candidateID, err)
	}
	snap, err := decodeDecision(payload)
	if err != nil {
		return model.DecisionSnapshot{}, false, err
	}
	return snap, true, nil
}

// AppendEvent records one learning event; the UNIQUE outcome_id constraint
// makes replaying the same outcome a no-op. The bool reports whether the
// event was newly inserted.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev model.LearningEvent) (bool, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("encode learning event %s: %w", ev.ID, err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO learning_events (id, outcome_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		ev.ID, ev.OutcomeID, string(payload), ev.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert learning event %s: %w", ev.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert learning event %s: %w", ev.ID, err)
	}
	return affected > 0, nil
}

// EventsSince lists events created at or after since.
func (s *SQLiteStore) EventsSince(ctx context.Context, since time.Time) ([]model.LearningEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM learning_events WHERE created_at >= ? ORDER BY created_at`, since)
	if err != nil {
		return nil, fmt.Errorf("query learning events: %w", err)
	}
	defer rows.Close()

	var out []model.LearningEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan learning event: %w", err)
		}
		var ev model.LearningEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode learning event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// IncrementPattern bumps the occurrence counter in a single atomic upsert.
func (s *SQLiteStore) IncrementPattern(ctx context.Context, patternType, signal, industry string, errVal float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_patterns (pattern_type, signal, industry, occurrence_count, error_sum, last_occurred_at)
		 VALUES (?, ?, ?, 1, ?, ?)
		 ON CONFLICT (pattern_type, signal, industry) DO UPDATE SET
		   occurrence_count = occurrence_count + 1,
		   error_sum = error_sum + excluded.error_sum,
		   last_occurred_at = excluded.last_occurred_at`,
		patternType, signal, industry, errVal, at)
	if err != nil {
		return fmt.Errorf("increment pattern %s/%s: %w", patternType, signal, err)
	}
	return nil
}

// Patterns lists all accumulated patterns.
func (s *SQLiteStore) Patterns(ctx context.Context) ([]model.LearningPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern_type, signal, industry, occurrence_count, error_sum, last_occurred_at
		 FROM learning_patterns ORDER BY pattern_type, signal, industry`)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var out []model.LearningPattern
	for rows.Next() {
		var p model.LearningPattern
		if err := rows.Scan(&p.PatternType, &p.Signal, &p.Industry, &p.OccurrenceCount, &p.ErrorSum, &p.LastOccurredAt); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePatterns removes consumed patterns.
func (s *SQLiteStore) DeletePatterns(ctx context.Context, patterns []model.LearningPattern) error {
	for _, p := range patterns {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM learning_patterns WHERE pattern_type = ? AND signal = ? AND industry = ?`,
			p.PatternType, p.Signal, p.Industry)
		if err != nil {
			return fmt.Errorf("delete pattern %s/%s: %w", p.PatternType, p.Signal, err)
		}
	}
	return nil
}

// SaveFairnessSnapshots stores snapshots for their report date.
func (s *SQLiteStore) SaveFairnessSnapshots(ctx context.Context, snaps []model.FairnessSnapshot) error {
	for _, snap := range snaps {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO fairness_snapshots
			   (report_date, group_type, group_value, sample_count, avg_predicted, avg_actual, hire_precision, divergence, has_alert)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (report_date, group_type, group_value) DO UPDATE SET
			   sample_count = excluded.sample_count, avg_predicted = excluded.avg_predicted,
			   avg_actual = excluded.avg_actual, hire_precision = excluded.hire_precision,
			   divergence = excluded.divergence, has_alert = excluded.has_alert`,
			snap.ReportDate, snap.GroupType, snap.GroupValue, snap.SampleCount,
			snap.AvgPredicted, snap.AvgActual, snap.HirePrecision, snap.Divergence, boolInt(snap.HasAlert))
		if err != nil {
			return fmt.Errorf("insert fairness snapshot %s/%s: %w", snap.GroupType, snap.GroupValue, err)
		}
	}
	return nil
}

// FairnessSnapshots returns snapshots for a date; empty selects the latest.
func (s *SQLiteStore) FairnessSnapshots(ctx context.Context, reportDate string) ([]model.FairnessSnapshot, error) {
	if reportDate == "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(report_date), '') FROM fairness_snapshots`).Scan(&reportDate)
		if err != nil {
			return nil, fmt.Errorf("latest fairness date: %w", err)
		}
		if reportDate == "" {
			return nil, nil
		}
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report_date, group_type, group_value, sample_count, avg_predicted, avg_actual, hire_precision, divergence, has_alert
		 FROM fairness_snapshots WHERE report_date = ? ORDER BY group_type, group_value`, reportDate)
	if err != nil {
		return nil, fmt.Errorf("query fairness snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.FairnessSnapshot
	for rows.Next() {
		var snap model.FairnessSnapshot
		var alert int
		if err := rows.Scan(&snap.ReportDate, &snap.GroupType, &snap.GroupValue, &snap.SampleCount,
			&snap.AvgPredicted, &snap.AvgActual, &snap.HirePrecision, &snap.Divergence, &alert); err != nil {
			return nil, fmt.Errorf("scan fairness snapshot: %w", err)
		}
		snap.HasAlert = alert == 1
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
