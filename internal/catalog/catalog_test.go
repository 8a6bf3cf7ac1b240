package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/hireloop/caliber/internal/catalog"
	"github.com/hireloop/caliber/internal/domain/model"
	"github.com/hireloop/caliber/internal/domain/policy"
	"github.com/hireloop/caliber/internal/domain/redflag"
	"github.com/hireloop/caliber/internal/domain/scoring"
)

func writeArtifact(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	convey.Convey("Given no artifact paths", t, func() {
		bundle, err := catalog.Load(catalog.Paths{})

		convey.Convey("Then the embedded defaults load and validate", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(bundle.Rubric.Competencies, convey.ShouldNotBeEmpty)
			convey.So(bundle.Flags.Definitions, convey.ShouldNotBeEmpty)
			convey.So(bundle.Matrix.Rules, convey.ShouldNotBeEmpty)
			convey.So(bundle.Weights.Version, convey.ShouldNotBeEmpty)
			convey.So(bundle.Weights.Scope, convey.ShouldEqual, "global")
			convey.So(bundle.Weights.BaseWeight, convey.ShouldAlmostEqual, 1.0, 0.0001)
		})

		convey.Convey("Then every default passes its component constructor", func() {
			convey.So(err, convey.ShouldBeNil)
			_, serr := scoring.NewRubricScorer(bundle.Rubric)
			convey.So(serr, convey.ShouldBeNil)
			convey.So(redflag.NewCatalogDetector(bundle.Flags), convey.ShouldNotBeNil)
			_, perr := policy.NewEngine(bundle.Matrix)
			convey.So(perr, convey.ShouldBeNil)
		})
	})
}

func TestLoadOverrides(t *testing.T) {
	convey.Convey("Given an operator-provided rubric file", t, func() {
		path := writeArtifact(t, "rubric.yaml", `
version: rubric-ops-v9
competencies:
  leadership:
    code: leadership
    weight: 1.0
    required: true
    keywords: ["mentored", "delegated"]
`)
		bundle, err := catalog.Load(catalog.Paths{Rubric: path})

		convey.Convey("Then the file wins over the embedded default", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(bundle.Rubric.Version, convey.ShouldEqual, "rubric-ops-v9")
			convey.So(len(bundle.Rubric.Competencies), convey.ShouldEqual, 1)
		})
	})

	convey.Convey("Given a missing artifact file", t, func() {
		_, err := catalog.Load(catalog.Paths{Rubric: "/nonexistent/rubric.yaml"})

		convey.Convey("Then loading fails", func() {
			convey.So(err, convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given a malformed YAML artifact", t, func() {
		path := writeArtifact(t, "rubric.yaml", "version: [unclosed")
		_, err := catalog.Load(catalog.Paths{Rubric: path})

		convey.Convey("Then it fails with a configuration error", func() {
			convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a rubric with no competencies", t, func() {
		path := writeArtifact(t, "rubric.yaml", "version: empty-v1\ncompetencies: {}\n")
		_, err := catalog.Load(catalog.Paths{Rubric: path})

		convey.Convey("Then it fails with a configuration error", func() {
			convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given seed weights without a version", t, func() {
		path := writeArtifact(t, "weights.yaml", "scope: global\nbase_weight: 1.0\n")
		_, err := catalog.Load(catalog.Paths{Weights: path})

		convey.Convey("Then it fails with a configuration error", func() {
			convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
		})
	})
}
