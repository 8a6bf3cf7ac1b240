package catalog

import _ "embed"

// Embedded fallback artifacts. They carry a conservative default policy so a
// fresh deployment produces sane decisions before an operator installs the
// tenant-specific catalogs.
var (
	//go:embed defaults/rubric.yaml
	defaultRubricYAML []byte

	//go:embed defaults/redflags.yaml
	defaultFlagsYAML []byte

	//go:embed defaults/policy.yaml
	defaultMatrixYAML []byte

	//go:embed defaults/weights.yaml
	defaultWeightsYAML []byte
)
