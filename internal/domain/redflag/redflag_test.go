package redflag_test

import (
	"context"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v3"

	"github.com/hireloop/caliber/internal/domain/model"
	"github.com/hireloop/caliber/internal/domain/redflag"
)

func testCatalog() redflag.Catalog {
	return redflag.Catalog{
		Version: "flags-test-v1",
		Definitions: []redflag.Definition{
			{
				Code:             "hostile_language",
				Severity:         model.SeverityHigh,
				Method:           redflag.MethodPhrase,
				Patterns:         []string{"idiot", "useless team"},
				ScoreImpact:      -15,
				MaxScoreOverride: redflag.NoCap,
			},
			{
				Code:             "confidentiality_breach",
				Severity:         model.SeverityCritical,
				Method:           redflag.MethodPhrase,
				Patterns:         []string{"under nda"},
				ScoreImpact:      -30,
				CausesAutoReject: true,
				MaxScoreOverride: redflag.NoCap,
			},
			{
				Code:             "dismissive_answers",
				Severity:         model.SeverityMedium,
				Method:           redflag.MethodThreshold,
				Signal:           redflag.SignalWordCount,
				Operator:         "lt",
				Threshold:        5,
				ScoreImpact:      -8,
				MaxScoreOverride: 70,
			},
		},
	}
}

func TestCatalogDetector(t *testing.T) {
	convey.Convey("Given a detector over the test catalog", t, func() {
		ctx := context.Background()
		detector := redflag.NewCatalogDetector(testCatalog())

		convey.Convey("When no evidence matches anything", func() {
			res := detector.Detect(ctx, []model.AnswerEvidence{
				{QuestionID: "q1", Text: "a perfectly reasonable and thorough answer about teamwork"},
			})

			convey.Convey("Then the result is empty with no cap", func() {
				convey.So(res.Flags, convey.ShouldBeEmpty)
				convey.So(res.ScoreImpactTotal, convey.ShouldEqual, 0)
				convey.So(res.AutoReject, convey.ShouldBeFalse)
				convey.So(res.MaxScoreCap, convey.ShouldEqual, redflag.NoCap)
			})
		})

		convey.Convey("When a phrase matches in several answers", func() {
			res := detector.Detect(ctx, []model.AnswerEvidence{
				{QuestionID: "q1", Text: "my old manager was an IDIOT and everyone knew it for sure"},
				{QuestionID: "q2", Text: "they were a useless team from day one and it never got better"},
			})

			convey.Convey("Then the definition matches at most once", func() {
				convey.So(len(res.Flags), convey.ShouldEqual, 1)
				convey.So(res.Flags[0].Code, convey.ShouldEqual, "hostile_language")
				convey.So(res.ScoreImpactTotal, convey.ShouldEqual, -15)
				convey.So(res.Flags[0].Evidence, convey.ShouldContainSubstring, "IDIOT")
			})
		})

		convey.Convey("When an auto-reject definition matches", func() {
			res := detector.Detect(ctx, []model.AnswerEvidence{
				{QuestionID: "q1", Text: "I cannot discuss the details since that project is still under NDA today"},
			})

			convey.Convey("Then auto-reject is raised", func() {
				convey.So(res.AutoReject, convey.ShouldBeTrue)
				convey.So(res.ScoreImpactTotal, convey.ShouldEqual, -30)
			})
		})

		convey.Convey("When a threshold definition trips on word count", func() {
			res := detector.Detect(ctx, []model.AnswerEvidence{
				{QuestionID: "q1", Text: "no comment"},
			})

			convey.Convey("Then the flag carries its score cap", func() {
				convey.So(len(res.Flags), convey.ShouldEqual, 1)
				convey.So(res.Flags[0].Code, convey.ShouldEqual, "dismissive_answers")
				convey.So(res.MaxScoreCap, convey.ShouldEqual, 70)
			})
		})

		convey.Convey("When several capped definitions match", func() {
			catalog := testCatalog()
			catalog.Definitions = append(catalog.Definitions, redflag.Definition{
				Code:             "very_rushed",
				Severity:         model.SeverityLow,
				Method:           redflag.MethodThreshold,
				Signal:           redflag.SignalAnswerSeconds,
				Operator:         "lt",
				Threshold:        3,
				ScoreImpact:      -2,
				MaxScoreOverride: 40,
			})
			d := redflag.NewCatalogDetector(catalog)
			res := d.Detect(ctx, []model.AnswerEvidence{
				{QuestionID: "q1", Text: "fine", AnswerSeconds: 1},
			})

			convey.Convey("Then the lowest cap wins", func() {
				convey.So(len(res.Flags), convey.ShouldEqual, 2)
				convey.So(res.MaxScoreCap, convey.ShouldEqual, 40)
			})
		})

		convey.Convey("When a catalog file omits max_score_override", func() {
			raw := `
version: flags-yaml-v1
definitions:
  - code: hostile_language
    severity: high
    method: phrase
    patterns: ["idiot"]
    score_impact: -15
`
			var catalog redflag.Catalog
			convey.So(yaml.Unmarshal([]byte(raw), &catalog), convey.ShouldBeNil)
			d := redflag.NewCatalogDetector(catalog)
			res := d.Detect(ctx, []model.AnswerEvidence{
				{QuestionID: "q1", Text: "my old manager was an idiot about everything we shipped"},
			})

			convey.Convey("Then the matched flag carries no cap", func() {
				convey.So(len(res.Flags), convey.ShouldEqual, 1)
				convey.So(res.Flags[0].MaxScoreOverride, convey.ShouldEqual, redflag.NoCap)
				convey.So(res.MaxScoreCap, convey.ShouldEqual, redflag.NoCap)
			})
		})

		convey.Convey("When a definition uses an unknown method", func() {
			catalog := testCatalog()
			catalog.Definitions = append(catalog.Definitions, redflag.Definition{
				Code:   "ml_sentiment",
				Method: "sentiment_model",
			})
			d := redflag.NewCatalogDetector(catalog)
			res := d.Detect(ctx, []model.AnswerEvidence{
				{QuestionID: "q1", Text: "a long enough and perfectly neutral answer for this check"},
			})

			convey.Convey("Then the definition is skipped with a warning", func() {
				convey.So(res.Flags, convey.ShouldBeEmpty)
				convey.So(len(res.Warnings), convey.ShouldEqual, 1)
				convey.So(res.Warnings[0].Code, convey.ShouldEqual, model.WarnUnknownMethod)
			})
		})
	})
}
