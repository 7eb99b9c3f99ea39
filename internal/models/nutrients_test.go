package models

import "testing"

func TestDefaultCoefficients_Valid(t *testing.T) {
	if err := DefaultCoefficients().Validate(); err != nil {
		t.Fatalf("default coefficient table invalid: %v", err)
	}
}

// The documented trait maps: which traits drive which nutrient, and with
// which sign.
func TestDefaultCoefficients_TraitMaps(t *testing.T) {
	coeffs := DefaultCoefficients()

	tests := []struct {
		nutrient   Nutrient
		enhancing  []Trait
		inhibiting []Trait
	}{
		{NutrientIron, []Trait{TraitSCFA, TraitPHReduction, TraitBarrier, TraitSiderophore}, nil},
		{NutrientVitaminB12, []Trait{TraitVitamin, TraitBarrier}, nil},
		{NutrientFolate, []Trait{TraitVitamin}, nil},
		{NutrientCalcium, []Trait{TraitSCFA, TraitPHReduction}, nil},
		{NutrientMagnesium, []Trait{TraitSCFA}, nil},
		{NutrientZinc, []Trait{TraitBarrier}, []Trait{TraitSiderophore}},
	}

	for _, tt := range tests {
		terms := coeffs[tt.nutrient]
		if len(terms) != len(tt.enhancing)+len(tt.inhibiting) {
			t.Errorf("%s: %d terms, want %d", tt.nutrient, len(terms), len(tt.enhancing)+len(tt.inhibiting))
		}
		for _, trait := range tt.enhancing {
			if terms[trait] <= 0 {
				t.Errorf("%s: trait %s coefficient %g, want > 0", tt.nutrient, trait, terms[trait])
			}
		}
		for _, trait := range tt.inhibiting {
			if terms[trait] >= 0 {
				t.Errorf("%s: trait %s coefficient %g, want < 0", tt.nutrient, trait, terms[trait])
			}
		}
	}
}

func TestCoefficientTable_Validate(t *testing.T) {
	c := DefaultCoefficients()
	c["caffeine"] = map[Trait]float64{TraitSCFA: 0.1}
	if err := c.Validate(); err == nil {
		t.Error("expected error for unknown nutrient")
	}

	c = DefaultCoefficients()
	c[NutrientIron]["motility"] = 0.1
	if err := c.Validate(); err == nil {
		t.Error("expected error for unknown trait")
	}

	c = DefaultCoefficients()
	delete(c, NutrientZinc)
	if err := c.Validate(); err == nil {
		t.Error("expected error for missing nutrient")
	}
}

func TestCoefficientTable_CloneIsIndependent(t *testing.T) {
	orig := DefaultCoefficients()
	clone := orig.Clone()
	clone[NutrientIron][TraitSCFA] = 99

	if orig[NutrientIron][TraitSCFA] == 99 {
		t.Error("mutating clone changed the original table")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}
	for _, tt := range tests {
		if got := Clamp(tt.input); got != tt.want {
			t.Errorf("Clamp(%g) = %g, want %g", tt.input, got, tt.want)
		}
	}
}
