package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hireloop/caliber/internal/domain/model"
)

// patternKey identifies one learning-pattern aggregate.
type patternKey struct {
	patternType string
	signal      string
	industry    string
}

// MemStore is the in-memory reference implementation of Store. It backs tests
// and single-process deployments; durability comes from the SQLite store.
type MemStore struct {
	mu sync.RWMutex

	baselines map[model.BaselineKey]model.Baseline
	weights   map[string]model.WeightSet // version -> set
	active    map[string]string          // scope -> active version
	decisions map[string]model.DecisionSnapshot
	byCand    map[string][]string // candidate -> decision IDs in insert order
	events    []model.LearningEvent
	outcomes  map[string]struct{} // outcome IDs already recorded
	patterns  map[patternKey]model.LearningPattern
	fairness  map[string][]model.FairnessSnapshot // report date -> snapshots
	lastDate  string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		baselines: make(map[model.BaselineKey]model.Baseline),
		weights:   make(map[string]model.WeightSet),
		active:    make(map[string]string),
		decisions: make(map[string]model.DecisionSnapshot),
		byCand:    make(map[string][]string),
		outcomes:  make(map[string]struct{}),
		patterns:  make(map[patternKey]model.LearningPattern),
		fairness:  make(map[string][]model.FairnessSnapshot),
	}
}

// Baseline returns the current baseline snapshot for a segment.
func (s *MemStore) Baseline(_ context.Context, key model.BaselineKey) (model.Baseline, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[key]
	return b, ok, nil
}

// ObserveScore folds one raw score into the segment baseline atomically.
func (s *MemStore) ObserveScore(_ context.Context, key model.BaselineKey, raw float64) (model.Baseline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.baselines[key]
	if !ok {
		b = model.Baseline{Key: key}
	}
	next := b.Observe(raw)
	s.baselines[key] = next
	return next, nil
}

// ActiveWeightSet returns the single active set for a scope.
func (s *MemStore) ActiveWeightSet(_ context.Context, scope string) (model.WeightSet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	version, ok := s.active[scope]
	if !ok {
		return model.WeightSet{}, false, nil
	}
	ws := s.weights[version]
	return ws.Clone(), true, nil
}

// WeightSet returns a set by version.
func (s *MemStore) WeightSet(_ context.Context, version string) (model.WeightSet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.weights[version]
	if !ok {
		return model.WeightSet{}, false, nil
	}
	return ws.Clone(), true, nil
}

// SeedWeightSet installs ws only when its scope has no active set.
func (s *MemStore) SeedWeightSet(_ context.Context, ws model.WeightSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[ws.Scope]; ok {
		return nil
	}
	ws.Active = true
	s.weights[ws.Version] = ws.Clone()
	s.active[ws.Scope] = ws.Version
	return nil
}

// PublishWeightSet activates ws with CAS semantics on its parent version.
func (s *MemStore) PublishWeightSet(_ context.Context, ws model.WeightSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.active[ws.Scope]
	if !ok || current != ws.ParentVersion {
		return fmt.Errorf("scope %s active=%q parent=%q: %w", ws.Scope, current, ws.ParentVersion, model.ErrVersionConflict)
	}
	parent := s.weights[current]
	parent.Active = false
	s.weights[current] = parent

	ws.Active = true
	s.weights[ws.Version] = ws.Clone()
	s.active[ws.Scope] = ws.Version
	return nil
}

// SetFrozen flips the frozen flag on a version.
func (s *MemStore) SetFrozen(_ context.Context, version string, frozen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.weights[version]
	if !ok {
		return fmt.Errorf("weight set %s: %w", version, ErrNotFound)
	}
	ws.Frozen = frozen
	s.weights[version] = ws
	return nil
}

// SaveDecision stores one immutable decision snapshot.
func (s *MemStore) SaveDecision(_ context.Context, snap model.DecisionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[snap.ID] = snap
	s.byCand[snap.CandidateID] = append(s.byCand[snap.CandidateID], snap.ID)
	return nil
}

// Decision returns a snapshot by ID.
func (s *MemStore) Decision(_ context.Context, id string) (model.DecisionSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.decisions[id]
	return snap, ok, nil
}

// LatestDecisionForCandidate returns the most recently saved snapshot.
func (s *MemStore) LatestDecisionForCandidate(_ context.Context, candidateID string) (model.DecisionSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byCand[candidateID]
	if len(ids) == 0 {
		return model.DecisionSnapshot{}, false, nil
	}
	snap := s.decisions[ids[len(ids)-1]]
	return snap, true, nil
}

// AppendEvent records one learning event. It returns false when the outcome
// ID was already recorded, so callers can skip side effects on a replay.
func (s *MemStore) AppendEvent(_ context.Context, ev model.LearningEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.outcomes[ev.OutcomeID]; seen {
		return false, nil
	}
	s.outcomes[ev.OutcomeID] = struct{}{}
	s.events = append(s.events, ev)
	return true, nil
}

// EventsSince lists events created at or after since.
func (s *MemStore) EventsSince(_ context.Context, since time.Time) ([]model.LearningEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LearningEvent
	for _, ev := range s.events {
		if !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// IncrementPattern bumps the occurrence counter atomically.
func (s *MemStore) IncrementPattern(_ context.Context, patternType, signal, industry string, errVal float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := patternKey{patternType: patternType, signal: signal, industry: industry}
	p, ok := s.patterns[key]
	if !ok {
		p = model.LearningPattern{PatternType: patternType, Signal: signal, Industry: industry}
	}
	p.OccurrenceCount++
	p.ErrorSum += errVal
	p.LastOccurredAt = at
	s.patterns[key] = p
	return nil
}

// Patterns lists all accumulated patterns in a stable order.
func (s *MemStore) Patterns(_ context.Context) ([]model.LearningPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.LearningPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PatternType != out[j].PatternType {
			return out[i].PatternType < out[j].PatternType
		}
		if out[i].Signal != out[j].Signal {
			return out[i].Signal < out[j].Signal
		}
		return out[i].Industry < out[j].Industry
	})
	return out, nil
}

// DeletePatterns removes consumed patterns.
func (s *MemStore) DeletePatterns(_ context.Context, patterns []model.LearningPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patterns {
		delete(s.patterns, patternKey{patternType: p.PatternType, signal: p.Signal, industry: p.Industry})
	}
	return nil
}

// SaveFairnessSnapshots stores snapshots for their report date.
func (s *MemStore) SaveFairnessSnapshots(_ context.Context, snaps []model.FairnessSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	date := snaps[0].ReportDate
	s.fairness[date] = append([]model.FairnessSnapshot(nil), snaps...)
	if date > s.lastDate {
		s.lastDate = date
	}
	return nil
}

// FairnessSnapshots returns snapshots for a date; empty selects the latest.
func (s *MemStore) FairnessSnapshots(_ context.Context, reportDate string) ([]model.FairnessSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if reportDate == "" {
		reportDate = s.lastDate
	}
	snaps := s.fairness[reportDate]
	return append([]model.FairnessSnapshot(nil), snaps...), nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error {
	return nil
}
