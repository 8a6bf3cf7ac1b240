package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/hireloop/caliber/internal/adapters/repository"
	"github.com/hireloop/caliber/internal/domain/model"
)

func testKey() model.BaselineKey {
	return model.BaselineKey{PositionCode: "backend_dev", IndustryCode: "fintech", Language: "en"}
}

func TestMemStoreBaselines(t *testing.T) {
	convey.Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		key := testKey()

		convey.Convey("An unknown segment reads as absent", func() {
			_, ok, err := store.Baseline(ctx, key)
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("When scores are observed one by one", func() {
			for _, raw := range []float64{60, 70, 80} {
				_, err := store.ObserveScore(ctx, key, raw)
				convey.So(err, convey.ShouldBeNil)
			}
			b, ok, err := store.Baseline(ctx, key)

			convey.Convey("Then the running aggregate matches the sample stats", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(b.SampleCount, convey.ShouldEqual, 3)
				convey.So(b.Version, convey.ShouldEqual, 3)
				convey.So(b.Mean, convey.ShouldAlmostEqual, 70.0, 0.0001)
				convey.So(b.StdDev, convey.ShouldAlmostEqual, 10.0, 0.0001)
			})
		})

		convey.Convey("A single observation has no spread yet", func() {
			b, err := store.ObserveScore(ctx, key, 55)
			convey.So(err, convey.ShouldBeNil)
			convey.So(b.SampleCount, convey.ShouldEqual, 1)
			convey.So(b.StdDev, convey.ShouldEqual, 0)
		})
	})
}

func TestMemStoreWeightSets(t *testing.T) {
	convey.Convey("Given a store with a seeded weight set", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		seed := model.WeightSet{Version: "w-1", Scope: "global", BaseWeight: 1.0, CreatedAt: time.Now().UTC()}
		convey.So(store.SeedWeightSet(ctx, seed), convey.ShouldBeNil)

		convey.Convey("The seed becomes the active set", func() {
			ws, ok, err := store.ActiveWeightSet(ctx, "global")
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(ws.Version, convey.ShouldEqual, "w-1")
			convey.So(ws.Active, convey.ShouldBeTrue)
		})

		convey.Convey("Seeding again is a no-op", func() {
			other := seed
			other.Version = "w-other"
			convey.So(store.SeedWeightSet(ctx, other), convey.ShouldBeNil)
			ws, _, _ := store.ActiveWeightSet(ctx, "global")
			convey.So(ws.Version, convey.ShouldEqual, "w-1")
		})

		convey.Convey("A publish with the matching parent swaps the active set", func() {
			next := model.WeightSet{Version: "w-2", ParentVersion: "w-1", Scope: "global", BaseWeight: 1.0}
			convey.So(store.PublishWeightSet(ctx, next), convey.ShouldBeNil)

			active, _, _ := store.ActiveWeightSet(ctx, "global")
			convey.So(active.Version, convey.ShouldEqual, "w-2")
			old, ok, _ := store.WeightSet(ctx, "w-1")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(old.Active, convey.ShouldBeFalse)
		})

		convey.Convey("A publish against a stale parent loses the race", func() {
			stale := model.WeightSet{Version: "w-x", ParentVersion: "w-0", Scope: "global"}
			err := store.PublishWeightSet(ctx, stale)
			convey.So(errors.Is(err, model.ErrVersionConflict), convey.ShouldBeTrue)
		})

		convey.Convey("Freezing an unknown version fails", func() {
			err := store.SetFrozen(ctx, "ghost", true)
			convey.So(errors.Is(err, repository.ErrNotFound), convey.ShouldBeTrue)
		})

		convey.Convey("Freezing the active version sticks", func() {
			convey.So(store.SetFrozen(ctx, "w-1", true), convey.ShouldBeNil)
			ws, _, _ := store.ActiveWeightSet(ctx, "global")
			convey.So(ws.Frozen, convey.ShouldBeTrue)
		})

		convey.Convey("Mutating a returned set does not touch the stored copy", func() {
			ws, _, _ := store.ActiveWeightSet(ctx, "global")
			if ws.FlagPenalties == nil {
				ws.FlagPenalties = map[string]float64{}
			}
			ws.FlagPenalties["hostile_language"] = -99
			again, _, _ := store.ActiveWeightSet(ctx, "global")
			convey.So(again.FlagPenalties["hostile_language"], convey.ShouldEqual, 0)
		})
	})
}

func TestMemStoreDecisionsAndEvents(t *testing.T) {
	convey.Convey("Given a store with decisions and events", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

		convey.Convey("The latest decision per candidate wins", func() {
			_ = store.SaveDecision(ctx, model.DecisionSnapshot{ID: "d1", CandidateID: "c1", CreatedAt: now})
			_ = store.SaveDecision(ctx, model.DecisionSnapshot{ID: "d2", CandidateID: "c1", CreatedAt: now.Add(time.Hour)})

			snap, ok, err := store.LatestDecisionForCandidate(ctx, "c1")
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(snap.ID, convey.ShouldEqual, "d2")
		})

		convey.Convey("Appending the same outcome twice keeps one event", func() {
			ev := model.LearningEvent{ID: "e1", OutcomeID: "o1", CreatedAt: now}
			inserted, err := store.AppendEvent(ctx, ev)
			convey.So(err, convey.ShouldBeNil)
			convey.So(inserted, convey.ShouldBeTrue)
			ev.ID = "e2"
			inserted, err = store.AppendEvent(ctx, ev)
			convey.So(err, convey.ShouldBeNil)
			convey.So(inserted, convey.ShouldBeFalse)

			events, err := store.EventsSince(ctx, now.Add(-time.Hour))
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(events), convey.ShouldEqual, 1)
			convey.So(events[0].ID, convey.ShouldEqual, "e1")
		})

		convey.Convey("EventsSince filters on the window start", func() {
			_, _ = store.AppendEvent(ctx, model.LearningEvent{ID: "old", OutcomeID: "old", CreatedAt: now.Add(-48 * time.Hour)})
			_, _ = store.AppendEvent(ctx, model.LearningEvent{ID: "new", OutcomeID: "new", CreatedAt: now})

			events, err := store.EventsSince(ctx, now.Add(-time.Hour))
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(events), convey.ShouldEqual, 1)
			convey.So(events[0].ID, convey.ShouldEqual, "new")
		})
	})
}

func TestMemStorePatterns(t *testing.T) {
	convey.Convey("Given pattern accumulation", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		now := time.Now().UTC()

		convey.Convey("Increments on the same key aggregate", func() {
			_ = store.IncrementPattern(ctx, model.PatternUnderweightedFlag, "hostile_language", "fintech", -40, now)
			_ = store.IncrementPattern(ctx, model.PatternUnderweightedFlag, "hostile_language", "fintech", -30, now.Add(time.Minute))

			patterns, err := store.Patterns(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(patterns), convey.ShouldEqual, 1)
			convey.So(patterns[0].OccurrenceCount, convey.ShouldEqual, 2)
			convey.So(patterns[0].ErrorSum, convey.ShouldAlmostEqual, -70.0, 0.0001)
		})

		convey.Convey("Listing is stably sorted by type, signal, industry", func() {
			_ = store.IncrementPattern(ctx, model.PatternUnderweightedFlag, "b_flag", "fintech", -1, now)
			_ = store.IncrementPattern(ctx, model.PatternOverweightedBoost, "composite_bias", "retail", 1, now)
			_ = store.IncrementPattern(ctx, model.PatternUnderweightedFlag, "a_flag", "fintech", -1, now)

			patterns, err := store.Patterns(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(patterns), convey.ShouldEqual, 3)
			convey.So(patterns[0].PatternType, convey.ShouldEqual, model.PatternOverweightedBoost)
			convey.So(patterns[1].Signal, convey.ShouldEqual, "a_flag")
			convey.So(patterns[2].Signal, convey.ShouldEqual, "b_flag")
		})

		convey.Convey("Deleting consumed patterns leaves the rest", func() {
			_ = store.IncrementPattern(ctx, model.PatternUnderweightedFlag, "a_flag", "fintech", -1, now)
			_ = store.IncrementPattern(ctx, model.PatternUnderweightedFlag, "b_flag", "fintech", -1, now)

			patterns, _ := store.Patterns(ctx)
			convey.So(store.DeletePatterns(ctx, patterns[:1]), convey.ShouldBeNil)
			rest, err := store.Patterns(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(rest), convey.ShouldEqual, 1)
			convey.So(rest[0].Signal, convey.ShouldEqual, "b_flag")
		})
	})
}

func TestMemStoreFairness(t *testing.T) {
	convey.Convey("Given stored fairness snapshots", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		first := []model.FairnessSnapshot{{ReportDate: "2026-03-01", GroupType: "country", GroupValue: "US"}}
		second := []model.FairnessSnapshot{{ReportDate: "2026-04-01", GroupType: "country", GroupValue: "BR"}}
		convey.So(store.SaveFairnessSnapshots(ctx, first), convey.ShouldBeNil)
		convey.So(store.SaveFairnessSnapshots(ctx, second), convey.ShouldBeNil)

		convey.Convey("An explicit date reads that report", func() {
			snaps, err := store.FairnessSnapshots(ctx, "2026-03-01")
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(snaps), convey.ShouldEqual, 1)
			convey.So(snaps[0].GroupValue, convey.ShouldEqual, "US")
		})

		convey.Convey("An empty date reads the latest report", func() {
			snaps, err := store.FairnessSnapshots(ctx, "")
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(snaps), convey.ShouldEqual, 1)
			convey.So(snaps[0].GroupValue, convey.ShouldEqual, "BR")
		})
	})
}
