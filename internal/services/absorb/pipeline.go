// Package absorb implements the nutrient-absorption model: abundance
// normalization, trait aggregation, and nutrient scoring. Every function
// here is pure; the Service wraps them with dataset access and
// memoization.
package absorb

import (
	"math"
	"sort"

	"github.com/gutlab/nutriome/internal/models"
)

// Normalize converts raw per-species counts into relative abundance
// fractions. The fractions are nonnegative and sum to 1; a total of
// zero is a DataError, never a silent zero vector.
//
// Accumulation runs in sorted species order: float addition is not
// associative, so summing in map iteration order would make repeated
// runs differ in the last ULPs and break seeded reproducibility.
func Normalize(counts map[string]float64) (models.AbundanceVector, error) {
	species := sortedSpecies(counts)

	total := 0.0
	for _, sp := range species {
		count := counts[sp]
		if count < 0 {
			return nil, models.NewDataError("species %s has a negative count %g", sp, count)
		}
		total += count
	}
	if total <= 0 {
		return nil, models.NewDataError("empty or all-zero sample")
	}

	vec := make(models.AbundanceVector, len(counts))
	for _, sp := range species {
		vec[sp] = counts[sp] / total
	}
	return vec, nil
}

func sortedSpecies(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for sp := range m {
		out = append(out, sp)
	}
	sort.Strings(out)
	return out
}

// Aggregate combines an abundance vector with the trait table into the
// community trait vector: value(t) = Σ fraction(s)·weight(s,t).
//
// Species absent from the table are handled per policy: neutral keeps
// their abundance mass but contributes zero to every table trait;
// reject fails with a DataError. The diversity slot is derived from the
// abundance vector itself (Shannon index over ln(S)).
func Aggregate(vec models.AbundanceVector, table *models.TraitTable, policy models.UnknownPolicy) (models.TraitVector, error) {
	var tv models.TraitVector

	for _, species := range sortedSpecies(vec) {
		fraction := vec[species]
		row, known := table.Lookup(species)
		if !known {
			if policy == models.UnknownReject {
				return models.TraitVector{}, models.NewDataError("species %s is not in the trait table", species)
			}
			continue
		}
		tv.SCFA += fraction * row.SCFA
		tv.PHReduction += fraction * row.PHReduction
		tv.BarrierSupport += fraction * row.BarrierSupport
		tv.VitaminBiosynthesis += fraction * row.VitaminBiosynthesis
		tv.Siderophore += fraction * row.Siderophore
	}

	tv.Diversity = shannonDiversity(vec)
	return tv, nil
}

// shannonDiversity computes H/ln(S) over species with positive
// fractions, giving a [0,1] evenness index. Fewer than two species
// yields 0.
func shannonDiversity(vec models.AbundanceVector) float64 {
	n := 0
	h := 0.0
	for _, species := range sortedSpecies(vec) {
		if p := vec[species]; p > 0 {
			n++
			h -= p * math.Log(p)
		}
	}
	if n < 2 {
		return 0
	}
	return h / math.Log(float64(n))
}

// Score maps a trait vector to the six nutrient bioavailability scores,
// clamped into [0,1]. The same coefficient table is applied on every
// call; scores are order-preserving in each contributing trait until
// clamping.
func Score(tv models.TraitVector, coeffs models.CoefficientTable) models.NutrientScores {
	scores := make(models.NutrientScores, len(coeffs))
	for _, nutrient := range models.Nutrients() {
		terms := coeffs[nutrient]
		raw := 0.0
		// canonical trait order keeps the sum bit-stable across runs
		for _, trait := range models.Traits() {
			if coeff, ok := terms[trait]; ok {
				raw += coeff * tv.Get(trait)
			}
		}
		scores[nutrient] = models.Clamp(raw)
	}
	return scores
}

// Profile runs the full pipeline for one sample's raw counts.
func Profile(counts map[string]float64, table *models.TraitTable, coeffs models.CoefficientTable, policy models.UnknownPolicy) (*models.Profile, error) {
	vec, err := Normalize(counts)
	if err != nil {
		return nil, err
	}
	tv, err := Aggregate(vec, table, policy)
	if err != nil {
		return nil, err
	}
	return &models.Profile{Traits: tv, Scores: Score(tv, coeffs)}, nil
}

// Contributions ranks species by their abundance-independent trait-weight
// contribution to one nutrient: Σ weight(s,t)·coeff(t), floored at zero.
// Species the table cannot resolve are skipped. limit <= 0 keeps all
// entries with a positive contribution.
func Contributions(species []string, nutrient models.Nutrient, table *models.TraitTable, coeffs models.CoefficientTable, limit int) []models.SpeciesContribution {
	terms := coeffs[nutrient]
	out := make([]models.SpeciesContribution, 0, len(species))

	for _, sp := range species {
		row, known := table.Lookup(sp)
		if !known {
			continue
		}
		sum := 0.0
		for _, trait := range models.Traits() {
			if coeff, ok := terms[trait]; ok {
				sum += coeff * row.Get(trait)
			}
		}
		if sum <= 0 {
			continue
		}
		out = append(out, models.SpeciesContribution{
			Species:      sp,
			Genus:        models.GenusOf(sp),
			Contribution: sum,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Contribution != out[j].Contribution {
			return out[i].Contribution > out[j].Contribution
		}
		return out[i].Species < out[j].Species
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
