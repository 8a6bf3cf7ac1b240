package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/hireloop/caliber/internal/adapters/repository"
	"github.com/hireloop/caliber/internal/domain/model"
)

func openTestDB(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "caliber.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreRoundtrip(t *testing.T) {
	convey.Convey("Given a fresh sqlite store", t, func() {
		ctx := context.Background()
		store := openTestDB(t)

		convey.Convey("Baselines persist across observations", func() {
			key := testKey()
			for _, raw := range []float64{60, 70, 80} {
				_, err := store.ObserveScore(ctx, key, raw)
				convey.So(err, convey.ShouldBeNil)
			}

			b, ok, err := store.Baseline(ctx, key)
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(b.SampleCount, convey.ShouldEqual, 3)
			convey.So(b.Mean, convey.ShouldAlmostEqual, 70.0, 0.0001)
			convey.So(b.StdDev, convey.ShouldAlmostEqual, 10.0, 0.0001)
		})

		convey.Convey("Weight-set publishing enforces CAS", func() {
			seed := model.WeightSet{
				Version: "w-1", Scope: "global", BaseWeight: 1.0,
				FlagPenalties: map[string]float64{"hostile_language": -5},
				GoodThreshold: 65, BadThreshold: 40,
				CreatedAt: time.Now().UTC(),
			}
			convey.So(store.SeedWeightSet(ctx, seed), convey.ShouldBeNil)

			next := seed.Clone()
			next.Version = "w-2"
			next.ParentVersion = "w-1"
			convey.So(store.PublishWeightSet(ctx, next), convey.ShouldBeNil)

			stale := seed.Clone()
			stale.Version = "w-3"
			stale.ParentVersion = "w-1"
			convey.So(errors.Is(store.PublishWeightSet(ctx, stale), model.ErrVersionConflict), convey.ShouldBeTrue)

			active, ok, err := store.ActiveWeightSet(ctx, "global")
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(active.Version, convey.ShouldEqual, "w-2")
			convey.So(active.FlagPenalties["hostile_language"], convey.ShouldEqual, -5)
		})

		convey.Convey("Decisions survive a JSON roundtrip", func() {
			snap := model.DecisionSnapshot{
				ID:          "d1",
				CandidateID: "c1",
				Meta:        model.CandidateMeta{CandidateID: "c1", IndustryCode: "fintech"},
				Decision:    model.DecisionHire,
				RiskFlags:   []model.RedFlagInstance{{Code: "hostile_language", Severity: model.SeverityHigh}},
				CreatedAt:   time.Now().UTC().Truncate(time.Second),
			}
			convey.So(store.SaveDecision(ctx, snap), convey.ShouldBeNil)

			got, ok, err := store.Decision(ctx, "d1")
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(got.Decision, convey.ShouldEqual, model.DecisionHire)
			convey.So(got.RiskFlags[0].Code, convey.ShouldEqual, "hostile_language")

			latest, ok, err := store.LatestDecisionForCandidate(ctx, "c1")
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(latest.ID, convey.ShouldEqual, "d1")
		})

		convey.Convey("Replayed outcomes append a single event", func() {
			now := time.Now().UTC().Truncate(time.Second)
			ev := model.LearningEvent{ID: "e1", OutcomeID: "o1", CreatedAt: now}
			inserted, err := store.AppendEvent(ctx, ev)
			convey.So(err, convey.ShouldBeNil)
			convey.So(inserted, convey.ShouldBeTrue)
			ev.ID = "e2"
			inserted, err = store.AppendEvent(ctx, ev)
			convey.So(err, convey.ShouldBeNil)
			convey.So(inserted, convey.ShouldBeFalse)

			events, err := store.EventsSince(ctx, now.Add(-time.Minute))
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(events), convey.ShouldEqual, 1)
		})

		convey.Convey("Pattern upserts aggregate and delete cleanly", func() {
			now := time.Now().UTC()
			_ = store.IncrementPattern(ctx, model.PatternUnderweightedFlag, "hostile_language", "fintech", -40, now)
			_ = store.IncrementPattern(ctx, model.PatternUnderweightedFlag, "hostile_language", "fintech", -30, now)

			patterns, err := store.Patterns(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(patterns), convey.ShouldEqual, 1)
			convey.So(patterns[0].OccurrenceCount, convey.ShouldEqual, 2)
			convey.So(patterns[0].ErrorSum, convey.ShouldAlmostEqual, -70.0, 0.0001)

			convey.So(store.DeletePatterns(ctx, patterns), convey.ShouldBeNil)
			rest, err := store.Patterns(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(rest, convey.ShouldBeEmpty)
		})

		convey.Convey("Fairness snapshots read back by date and by latest", func() {
			older := []model.FairnessSnapshot{{ReportDate: "2026-03-01", GroupType: "country", GroupValue: "US"}}
			newer := []model.FairnessSnapshot{{ReportDate: "2026-04-01", GroupType: "country", GroupValue: "BR"}}
			convey.So(store.SaveFairnessSnapshots(ctx, older), convey.ShouldBeNil)
			convey.So(store.SaveFairnessSnapshots(ctx, newer), convey.ShouldBeNil)

			byDate, err := store.FairnessSnapshots(ctx, "2026-03-01")
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(byDate), convey.ShouldEqual, 1)
			convey.So(byDate[0].GroupValue, convey.ShouldEqual, "US")

			latest, err := store.FairnessSnapshots(ctx, "")
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(latest), convey.ShouldEqual, 1)
			convey.So(latest[0].GroupValue, convey.ShouldEqual, "BR")
		})
	})
}
