// Package catalog loads the admin-managed evaluation artifacts: the
// competency rubric, the red-flag catalog, the decision-rule matrix, and the
// seed weight set. Artifacts are plain YAML files edited out-of-band and read
// once at startup; a process restart picks up new versions.
package catalog

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hireloop/caliber/internal/domain/model"
	"github.com/hireloop/caliber/internal/domain/policy"
	"github.com/hireloop/caliber/internal/domain/redflag"
	"github.com/hireloop/caliber/internal/domain/scoring"
)

// Bundle holds every loaded artifact. Structural validation beyond basic
// well-formedness happens in the component constructors.
type Bundle struct {
	Rubric  scoring.Rubric
	Flags   redflag.Catalog
	Matrix  policy.Matrix
	Weights model.WeightSet
}

// Paths points at the YAML artifact files. Empty entries fall back to the
// embedded defaults.
type Paths struct {
	Rubric  string
	Flags   string
	Matrix  string
	Weights string
}

// seedWeights is the YAML shape of the seed weight set.
type seedWeights struct {
	Version       string             `yaml:"version"`
	Scope         string             `yaml:"scope"`
	BaseWeight    float64            `yaml:"base_weight"`
	FlagPenalties map[string]float64 `yaml:"flag_penalties"`
	MetaPenalties map[string]float64 `yaml:"meta_penalties"`
	BoostFactors  map[string]float64 `yaml:"boost_factors"`
	GoodThreshold float64            `yaml:"good_threshold"`
	BadThreshold  float64            `yaml:"bad_threshold"`
}

// Load reads the artifact files, substituting embedded defaults for any empty
// path. Malformed or structurally empty artifacts fail with
// model.ErrConfiguration wrapped in context.
func Load(paths Paths) (Bundle, error) {
	var b Bundle

	if err := loadArtifact(paths.Rubric, defaultRubricYAML, &b.Rubric); err != nil {
		return Bundle{}, fmt.Errorf("rubric: %w", err)
	}
	if len(b.Rubric.Competencies) == 0 {
		return Bundle{}, fmt.Errorf("rubric %q defines no competencies: %w", b.Rubric.Version, model.ErrConfiguration)
	}

	if err := loadArtifact(paths.Flags, defaultFlagsYAML, &b.Flags); err != nil {
		return Bundle{}, fmt.Errorf("red-flag catalog: %w", err)
	}

	if err := loadArtifact(paths.Matrix, defaultMatrixYAML, &b.Matrix); err != nil {
		return Bundle{}, fmt.Errorf("decision matrix: %w", err)
	}
	if len(b.Matrix.Rules) == 0 {
		return Bundle{}, fmt.Errorf("decision matrix %q has no rules: %w", b.Matrix.Version, model.ErrConfiguration)
	}

	var sw seedWeights
	if err := loadArtifact(paths.Weights, defaultWeightsYAML, &sw); err != nil {
		return Bundle{}, fmt.Errorf("seed weights: %w", err)
	}
	if sw.Version == "" {
		return Bundle{}, fmt.Errorf("seed weight set has no version: %w", model.ErrConfiguration)
	}
	b.Weights = model.WeightSet{
		Version:       sw.Version,
		Scope:         sw.Scope,
		BaseWeight:    sw.BaseWeight,
		FlagPenalties: sw.FlagPenalties,
		MetaPenalties: sw.MetaPenalties,
		BoostFactors:  sw.BoostFactors,
		GoodThreshold: sw.GoodThreshold,
		BadThreshold:  sw.BadThreshold,
		CreatedAt:     time.Now().UTC(),
	}
	if b.Weights.Scope == "" {
		b.Weights.Scope = "global"
	}
	if b.Weights.BaseWeight == 0 {
		b.Weights.BaseWeight = 1.0
	}

	return b, nil
}

// loadArtifact unmarshals a file when path is set, the embedded fallback
// otherwise.
func loadArtifact(path string, fallback []byte, out any) error {
	raw := fallback
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		raw = data
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse yaml: %v: %w", err, model.ErrConfiguration)
	}
	return nil
}
