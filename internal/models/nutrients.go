package models

import (
	"fmt"
	"math"
)

// Nutrient identifies one of the six modeled nutrients.
type Nutrient string

const (
	NutrientIron       Nutrient = "iron"
	NutrientVitaminB12 Nutrient = "vitamin_b12"
	NutrientFolate     Nutrient = "folate"
	NutrientCalcium    Nutrient = "calcium"
	NutrientMagnesium  Nutrient = "magnesium"
	NutrientZinc       Nutrient = "zinc"
)

// Nutrients returns all modeled nutrients in canonical order.
func Nutrients() []Nutrient {
	return []Nutrient{
		NutrientIron,
		NutrientVitaminB12,
		NutrientFolate,
		NutrientCalcium,
		NutrientMagnesium,
		NutrientZinc,
	}
}

// IsNutrient reports whether name is a modeled nutrient.
func IsNutrient(name string) bool {
	switch Nutrient(name) {
	case NutrientIron, NutrientVitaminB12, NutrientFolate, NutrientCalcium, NutrientMagnesium, NutrientZinc:
		return true
	}
	return false
}

// NutrientScores holds one bioavailability score per nutrient,
// each clamped to [0,1].
type NutrientScores map[Nutrient]float64

// CoefficientTable maps each nutrient to its trait coefficients.
// Positive coefficients are enhancing terms, negative are inhibiting.
// The table is applied uniformly to every scoring call.
type CoefficientTable map[Nutrient]map[Trait]float64

// DefaultCoefficients returns the documented trait-to-nutrient model:
//
//	iron:        +scfa +ph_reduction +barrier_support +siderophore
//	vitamin_b12: +vitamin_biosynthesis +barrier_support
//	folate:      +vitamin_biosynthesis
//	calcium:     +scfa +ph_reduction
//	magnesium:   +scfa
//	zinc:        +barrier_support -siderophore
func DefaultCoefficients() CoefficientTable {
	return CoefficientTable{
		NutrientIron: {
			TraitSCFA:        0.4,
			TraitPHReduction: 0.3,
			TraitBarrier:     0.2,
			TraitSiderophore: 0.6,
		},
		NutrientVitaminB12: {
			TraitVitamin: 0.7,
			TraitBarrier: 0.2,
		},
		NutrientFolate: {
			TraitVitamin: 0.6,
		},
		NutrientCalcium: {
			TraitSCFA:        0.5,
			TraitPHReduction: 0.4,
		},
		NutrientMagnesium: {
			TraitSCFA: 0.4,
		},
		NutrientZinc: {
			TraitBarrier:     0.4,
			TraitSiderophore: -0.5,
		},
	}
}

// Validate checks the table references only known nutrients and traits
// and carries finite coefficients, and that every modeled nutrient has
// at least one term.
func (c CoefficientTable) Validate() error {
	for nutrient, terms := range c {
		if !IsNutrient(string(nutrient)) {
			return fmt.Errorf("unknown nutrient %q in coefficient table", nutrient)
		}
		if len(terms) == 0 {
			return fmt.Errorf("nutrient %s has no coefficient terms", nutrient)
		}
		for trait, coeff := range terms {
			if !IsTrait(string(trait)) {
				return fmt.Errorf("nutrient %s references unknown trait %q", nutrient, trait)
			}
			if math.IsNaN(coeff) || math.IsInf(coeff, 0) {
				return fmt.Errorf("nutrient %s trait %s has non-finite coefficient", nutrient, trait)
			}
		}
	}
	for _, n := range Nutrients() {
		if _, ok := c[n]; !ok {
			return fmt.Errorf("coefficient table is missing nutrient %s", n)
		}
	}
	return nil
}

// Clone returns a deep copy of the table.
func (c CoefficientTable) Clone() CoefficientTable {
	out := make(CoefficientTable, len(c))
	for nutrient, terms := range c {
		row := make(map[Trait]float64, len(terms))
		for trait, coeff := range terms {
			row[trait] = coeff
		}
		out[nutrient] = row
	}
	return out
}

// SpeciesContribution ranks one species' trait-weight contribution to a
// nutrient, independent of abundance. Negative sums are floored at zero.
type SpeciesContribution struct {
	Species      string  `json:"species"`
	Genus        string  `json:"genus"`
	Contribution float64 `json:"contribution"`
}

// Clamp bounds a score into [0,1]. Scores are a normalized
// bioavailability index, not a raw quantity.
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
