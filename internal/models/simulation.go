package models

import (
	"math"
	"time"
)

// Rule is the kind of abundance modification applied to a species.
type Rule string

const (
	// RuleSet replaces the raw count with an absolute value.
	RuleSet Rule = "set"
	// RuleScale multiplies the raw count by a factor.
	RuleScale Rule = "scale"
	// RuleAdd adds a delta to the raw count.
	RuleAdd Rule = "add"
)

// SpeciesChange is one requested abundance edit. A species absent from
// the baseline table is introduced at zero abundance before the rule is
// applied (insertion semantics).
type SpeciesChange struct {
	Species string  `json:"species"`
	Rule    Rule    `json:"rule"`
	Value   float64 `json:"value"`
}

// NoiseConfig parameterizes the multiplicative noise used by bootstrap
// repetitions. Both the distribution and its spread are explicit; no
// implicit process randomness is involved.
type NoiseConfig struct {
	Kind  string  `json:"kind"`  // "lognormal" or "normal"
	Sigma float64 `json:"sigma"` // spread; 0 means noiseless repetitions
}

// BootstrapOptions requests a distribution of deltas instead of a
// single point estimate.
type BootstrapOptions struct {
	Repetitions int         `json:"repetitions"`
	Noise       NoiseConfig `json:"noise"`
	Seed        uint64      `json:"seed"`
	Workers     int         `json:"workers,omitempty"`
}

// PerturbationRequest is a set of abundance edits applied to one
// sample's raw counts. Ephemeral: constructed per interaction, consumed
// immediately by the engine.
type PerturbationRequest struct {
	Targets   []SpeciesChange   `json:"targets"`
	Bootstrap *BootstrapOptions `json:"bootstrap,omitempty"`
}

// Validate checks the request structure before any computation.
// Rules whose outcome depends on the baseline count (set/add going
// negative) are checked by the engine at apply time; structurally
// impossible values are rejected here.
func (r *PerturbationRequest) Validate() error {
	if len(r.Targets) == 0 {
		return NewValidationError("targets", "at least one species change is required")
	}
	seen := make(map[string]struct{}, len(r.Targets))
	for i, change := range r.Targets {
		if change.Species == "" {
			return NewValidationError("targets", "target %d has an empty species name", i)
		}
		if _, dup := seen[change.Species]; dup {
			return NewValidationError("targets", "species %s appears more than once", change.Species)
		}
		seen[change.Species] = struct{}{}

		if math.IsNaN(change.Value) || math.IsInf(change.Value, 0) {
			return NewValidationError("targets", "species %s has a non-finite value", change.Species)
		}
		switch change.Rule {
		case RuleSet:
			if change.Value < 0 {
				return NewValidationError("targets", "species %s: absolute count %g is negative", change.Species, change.Value)
			}
		case RuleScale:
			if change.Value < 0 {
				return NewValidationError("targets", "species %s: multiplier %g would produce a negative abundance", change.Species, change.Value)
			}
		case RuleAdd:
			// May go negative depending on the baseline; checked at apply time.
		default:
			return NewValidationError("targets", "species %s: unknown rule %q", change.Species, change.Rule)
		}
	}

	if b := r.Bootstrap; b != nil {
		if b.Repetitions < 0 {
			return NewValidationError("bootstrap", "repetitions must be >= 0, got %d", b.Repetitions)
		}
		switch b.Noise.Kind {
		case "", "lognormal", "normal": // empty defers to the server default
		default:
			return NewValidationError("bootstrap", "unknown noise kind %q", b.Noise.Kind)
		}
		if b.Noise.Sigma < 0 || math.IsNaN(b.Noise.Sigma) || math.IsInf(b.Noise.Sigma, 0) {
			return NewValidationError("bootstrap", "noise sigma must be finite and >= 0")
		}
		if b.Workers < 0 {
			return NewValidationError("bootstrap", "workers must be >= 0")
		}
	}

	return nil
}

// Profile pairs the community trait vector with its nutrient scores.
type Profile struct {
	Traits TraitVector    `json:"traits"`
	Scores NutrientScores `json:"scores"`
}

// DeltaDistribution summarizes the bootstrap delta distribution for one
// nutrient.
type DeltaDistribution struct {
	Mean float64 `json:"mean"`
	P5   float64 `json:"p5"`
	P25  float64 `json:"p25"`
	P50  float64 `json:"p50"`
	P75  float64 `json:"p75"`
	P95  float64 `json:"p95"`
}

// BootstrapSummary aggregates all bootstrap repetitions.
type BootstrapSummary struct {
	Repetitions int                            `json:"repetitions"`
	Noise       NoiseConfig                    `json:"noise"`
	Seed        uint64                         `json:"seed"`
	Deltas      map[Nutrient]DeltaDistribution `json:"deltas"`
}

// SimulationResult is the immutable outcome of one perturbation run:
// the baseline and perturbed profiles plus their element-wise delta.
type SimulationResult struct {
	ID        string `json:"id"`
	DatasetID string `json:"dataset_id"`
	Sample    string `json:"sample"`

	Baseline  Profile        `json:"baseline"`
	Perturbed Profile        `json:"perturbed"`
	Delta     NutrientScores `json:"delta"`
	// PercentChange holds delta/baseline×100 per nutrient; nutrients
	// with a zero baseline score are omitted.
	PercentChange NutrientScores `json:"percent_change,omitempty"`

	Bootstrap  *BootstrapSummary `json:"bootstrap,omitempty"`
	ComputedAt time.Time         `json:"computed_at"`
}
