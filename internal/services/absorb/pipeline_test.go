package absorb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gutlab/nutriome/internal/models"
)

func TestNormalize_FractionsSumToOne(t *testing.T) {
	counts := map[string]float64{
		"Lactobacillus_rhamnosus": 1000,
		"Escherichia_coli":        250,
		"Prevotella_copri":        4321.5,
	}

	vec, err := Normalize(counts)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, vec.Total(), 1e-9)
	for species, fraction := range vec {
		assert.GreaterOrEqual(t, fraction, 0.0, "fraction for %s", species)
	}
}

func TestNormalize_EmptyOrZeroSample(t *testing.T) {
	for name, counts := range map[string]map[string]float64{
		"empty":    {},
		"all zero": {"A": 0, "B": 0},
	} {
		_, err := Normalize(counts)
		var dataErr *models.DataError
		require.ErrorAs(t, err, &dataErr, name)
	}
}

func TestNormalize_NegativeCount(t *testing.T) {
	_, err := Normalize(map[string]float64{"A": 10, "B": -1})
	var dataErr *models.DataError
	require.ErrorAs(t, err, &dataErr)
}

func TestAggregate_TraitValuesBounded(t *testing.T) {
	table := models.DefaultTraitTable()
	vec := models.AbundanceVector{
		"Faecalibacterium_prausnitzii": 0.4,
		"Escherichia_coli":             0.3,
		"Bacteroides_fragilis":         0.3,
	}

	tv, err := Aggregate(vec, table, models.UnknownNeutral)
	require.NoError(t, err)

	for _, trait := range models.Traits() {
		v := tv.Get(trait)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "trait %s finite", trait)
		assert.GreaterOrEqual(t, v, 0.0, "trait %s", trait)
		assert.LessOrEqual(t, v, 1.0, "trait %s", trait)
	}
}

// A sample containing an unknown species yields the same trait values as
// if the species contributed nothing, but its abundance mass still
// dilutes everyone else: {A:1000 known SCFA=1.0, X:1000 unknown} gives
// SCFA 0.5.
func TestAggregate_UnknownSpeciesNeutral(t *testing.T) {
	table, err := models.NewTraitTable(map[string]models.TraitWeights{
		"knowngenus": {SCFA: 1.0},
	}, nil)
	require.NoError(t, err)

	vec, err := Normalize(map[string]float64{
		"Knowngenus_a":   1000,
		"Mysterygenus_x": 1000,
	})
	require.NoError(t, err)

	tv, err := Aggregate(vec, table, models.UnknownNeutral)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, tv.SCFA, 1e-12)
	assert.Zero(t, tv.PHReduction)
	assert.Zero(t, tv.Siderophore)
}

func TestAggregate_UnknownSpeciesReject(t *testing.T) {
	table, err := models.NewTraitTable(map[string]models.TraitWeights{
		"knowngenus": {SCFA: 1.0},
	}, nil)
	require.NoError(t, err)

	vec := models.AbundanceVector{"Knowngenus_a": 0.5, "Mysterygenus_x": 0.5}
	_, err = Aggregate(vec, table, models.UnknownReject)

	var dataErr *models.DataError
	require.ErrorAs(t, err, &dataErr)
}

func TestAggregate_DiversityDerived(t *testing.T) {
	table := models.DefaultTraitTable()

	// single species: no diversity
	tv, err := Aggregate(models.AbundanceVector{"Lactobacillus_a": 1.0}, table, models.UnknownNeutral)
	require.NoError(t, err)
	assert.Zero(t, tv.Diversity)

	// perfectly even community: maximal diversity
	tv, err = Aggregate(models.AbundanceVector{
		"Lactobacillus_a": 0.25,
		"Prevotella_b":    0.25,
		"Roseburia_c":     0.25,
		"Clostridium_d":   0.25,
	}, table, models.UnknownNeutral)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, tv.Diversity, 1e-12)
}

func TestScore_AllScoresClamped(t *testing.T) {
	coeffs := models.DefaultCoefficients()

	// saturated trait vector pushes several raw sums above 1
	tv := models.TraitVector{SCFA: 1, PHReduction: 1, BarrierSupport: 1, VitaminBiosynthesis: 1, Siderophore: 1}
	scores := Score(tv, coeffs)

	for _, nutrient := range models.Nutrients() {
		assert.GreaterOrEqual(t, scores[nutrient], 0.0, string(nutrient))
		assert.LessOrEqual(t, scores[nutrient], 1.0, string(nutrient))
	}

	// pure siderophore community floors zinc at 0
	tv = models.TraitVector{Siderophore: 1}
	scores = Score(tv, coeffs)
	assert.Zero(t, scores[models.NutrientZinc])
}

// Lacto-only community: SCFA=1, everything else 0. Magnesium (SCFA-only)
// hits its maximum enhancement; Folate (vitamin-only) stays 0.
func TestScore_LactoOnlyScenario(t *testing.T) {
	table, err := models.NewTraitTable(map[string]models.TraitWeights{
		"lacto": {SCFA: 1.0},
	}, nil)
	require.NoError(t, err)

	profile, err := Profile(map[string]float64{"Lacto_x": 1000}, table, models.DefaultCoefficients(), models.UnknownNeutral)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, profile.Traits.SCFA, 1e-12)
	assert.Zero(t, profile.Traits.VitaminBiosynthesis)
	assert.InDelta(t, 0.4, profile.Scores[models.NutrientMagnesium], 1e-12) // full SCFA coefficient
	assert.Zero(t, profile.Scores[models.NutrientFolate])
}

// Increasing an enhancing trait, holding the others fixed, never
// decreases the score until clamping.
func TestScore_Monotonicity(t *testing.T) {
	coeffs := models.DefaultCoefficients()

	prev := -1.0
	for scfa := 0.0; scfa <= 1.0; scfa += 0.05 {
		tv := models.TraitVector{SCFA: scfa, PHReduction: 0.3}
		score := Score(tv, coeffs)[models.NutrientCalcium]
		assert.GreaterOrEqual(t, score, prev, "calcium at scfa=%g", scfa)
		prev = score
	}
}

func TestProfile_Idempotent(t *testing.T) {
	counts := map[string]float64{
		"Lactobacillus_rhamnosus":      812,
		"Faecalibacterium_prausnitzii": 455,
		"Escherichia_coli":             77,
	}
	table := models.DefaultTraitTable()
	coeffs := models.DefaultCoefficients()

	first, err := Profile(counts, table, coeffs, models.UnknownNeutral)
	require.NoError(t, err)
	second, err := Profile(counts, table, coeffs, models.UnknownNeutral)
	require.NoError(t, err)

	assert.Equal(t, first.Traits, second.Traits)
	assert.Equal(t, first.Scores, second.Scores)
}

// Float addition is not associative, so the pipeline must accumulate in
// a fixed species order: a wide community profiled repeatedly has to
// come out bit-identical every time, not merely within tolerance.
func TestProfile_BitStableAcrossRuns(t *testing.T) {
	table := models.DefaultTraitTable()
	coeffs := models.DefaultCoefficients()

	counts := make(map[string]float64)
	for i, genus := range table.Genera() {
		counts[genus+"_sp"] = 100.0 + float64(i)*7.3
	}
	counts["Unmappedgenus_x"] = 333.3

	first, err := Profile(counts, table, coeffs, models.UnknownNeutral)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		next, err := Profile(counts, table, coeffs, models.UnknownNeutral)
		require.NoError(t, err)
		require.Equal(t, first.Traits, next.Traits, "run %d", i)
		require.Equal(t, first.Scores, next.Scores, "run %d", i)
	}
}

func TestContributions_RankedAndFloored(t *testing.T) {
	table := models.DefaultTraitTable()
	coeffs := models.DefaultCoefficients()

	species := []string{
		"Faecalibacterium_prausnitzii", // strong SCFA/barrier
		"Escherichia_coli",             // siderophore-dominant
		"Unknowngenus_x",
	}

	contribs := Contributions(species, models.NutrientZinc, table, coeffs, 0)

	// unknown species skipped; escherichia's zinc sum (0.4*0.1 - 0.5*0.9)
	// is negative and floored out
	require.Len(t, contribs, 1)
	assert.Equal(t, "Faecalibacterium_prausnitzii", contribs[0].Species)
	assert.InDelta(t, 0.4*0.9, contribs[0].Contribution, 1e-12)

	iron := Contributions(species, models.NutrientIron, table, coeffs, 0)
	require.NotEmpty(t, iron)
	for i := 1; i < len(iron); i++ {
		assert.GreaterOrEqual(t, iron[i-1].Contribution, iron[i].Contribution)
	}
}
