package fairness_test

import (
	"context"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/hireloop/caliber/internal/adapters/repository"
	"github.com/hireloop/caliber/internal/domain/fairness"
	"github.com/hireloop/caliber/internal/domain/model"
)

var reportDate = time.Date(2026, 4, 1, 3, 30, 0, 0, time.UTC)

// addEvents appends n events for a country with a fixed prediction error.
func addEvents(ctx context.Context, store *repository.MemStore, country, prefix string, n, predicted, actual int) {
	for i := 0; i < n; i++ {
		_, _ = store.AppendEvent(ctx, model.LearningEvent{
			ID:        prefix + "-" + string(rune('a'+i)),
			OutcomeID: prefix + "-o-" + string(rune('a'+i)),
			Meta: model.CandidateMeta{
				CandidateID: "cand",
				CountryCode: country,
				Language:    "en",
			},
			PredictedScore: predicted,
			ActualScore:    actual,
			CreatedAt:      reportDate.Add(-24 * time.Hour),
		})
	}
}

func TestReporterRun(t *testing.T) {
	convey.Convey("Given a reporter over recorded learning events", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		reporter := fairness.NewReporter(store, store)

		convey.Convey("When there are no events in the window", func() {
			snaps, err := reporter.Run(ctx, reportDate)

			convey.Convey("Then the run is empty and nothing persists", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(snaps, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When one group diverges far above the rest", func() {
			// global avg divergence (20*1 + 10*50)/30 = 17.33; alert bar 34.67
			addEvents(ctx, store, "US", "us", 20, 70, 69)
			addEvents(ctx, store, "BR", "br", 10, 80, 30)
			snaps, err := reporter.Run(ctx, reportDate)

			convey.Convey("Then only the divergent group alerts", func() {
				convey.So(err, convey.ShouldBeNil)
				byValue := make(map[string]model.FairnessSnapshot)
				for _, s := range snaps {
					if s.GroupType == fairness.GroupCountry {
						byValue[s.GroupValue] = s
					}
				}
				convey.So(byValue["BR"].HasAlert, convey.ShouldBeTrue)
				convey.So(byValue["BR"].Divergence, convey.ShouldAlmostEqual, 50.0, 0.0001)
				convey.So(byValue["US"].HasAlert, convey.ShouldBeFalse)
			})

			convey.Convey("Then the combined language group stays quiet", func() {
				convey.So(err, convey.ShouldBeNil)
				for _, s := range snaps {
					if s.GroupType == fairness.GroupLanguage {
						// all 30 events share "en"; its divergence sits at the global average
						convey.So(s.HasAlert, convey.ShouldBeFalse)
					}
				}
			})
		})

		convey.Convey("When a divergent group is below the sample floor", func() {
			addEvents(ctx, store, "US", "us", 15, 70, 69)
			addEvents(ctx, store, "BR", "br", 4, 80, 20)
			snaps, err := reporter.Run(ctx, reportDate)

			convey.Convey("Then it never alerts", func() {
				convey.So(err, convey.ShouldBeNil)
				for _, s := range snaps {
					if s.GroupType == fairness.GroupCountry && s.GroupValue == "BR" {
						convey.So(s.SampleCount, convey.ShouldEqual, 4)
						convey.So(s.HasAlert, convey.ShouldBeFalse)
					}
				}
			})
		})

		convey.Convey("When hire predictions resolve both ways", func() {
			_, _ = store.AppendEvent(ctx, model.LearningEvent{
				ID: "e1", OutcomeID: "o1",
				Meta:              model.CandidateMeta{CountryCode: "US"},
				PredictedScore:    80, ActualScore: 85,
				PredictedDecision: model.DecisionHire,
				CreatedAt:         reportDate.Add(-time.Hour),
			})
			_, _ = store.AppendEvent(ctx, model.LearningEvent{
				ID: "e2", OutcomeID: "o2",
				Meta:              model.CandidateMeta{CountryCode: "US"},
				PredictedScore:    80, ActualScore: 25,
				PredictedDecision: model.DecisionHire,
				FalsePositive:     true,
				CreatedAt:         reportDate.Add(-time.Hour),
			})
			snaps, err := reporter.Run(ctx, reportDate)

			convey.Convey("Then hire precision reflects the correct fraction", func() {
				convey.So(err, convey.ShouldBeNil)
				for _, s := range snaps {
					if s.GroupType == fairness.GroupCountry {
						convey.So(s.HirePrecision, convey.ShouldAlmostEqual, 0.5, 0.0001)
					}
				}
			})
		})

		convey.Convey("When events fall outside the window", func() {
			_, _ = store.AppendEvent(ctx, model.LearningEvent{
				ID: "old", OutcomeID: "old-o",
				Meta:           model.CandidateMeta{CountryCode: "US"},
				PredictedScore: 80, ActualScore: 20,
				CreatedAt:      reportDate.Add(-91 * 24 * time.Hour),
			})
			snaps, err := reporter.Run(ctx, reportDate)

			convey.Convey("Then they are ignored", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(snaps, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When snapshots are produced", func() {
			addEvents(ctx, store, "US", "us", 2, 70, 69)
			addEvents(ctx, store, "BR", "br", 2, 70, 69)
			snaps, err := reporter.Run(ctx, reportDate)

			convey.Convey("Then they come out in a stable sorted order and persist", func() {
				convey.So(err, convey.ShouldBeNil)
				for i := 1; i < len(snaps); i++ {
					prev, cur := snaps[i-1], snaps[i]
					ordered := prev.GroupType < cur.GroupType ||
						(prev.GroupType == cur.GroupType && prev.GroupValue < cur.GroupValue)
					convey.So(ordered, convey.ShouldBeTrue)
				}
				stored, serr := store.FairnessSnapshots(ctx, "2026-04-01")
				convey.So(serr, convey.ShouldBeNil)
				convey.So(len(stored), convey.ShouldEqual, len(snaps))
			})
		})
	})
}
