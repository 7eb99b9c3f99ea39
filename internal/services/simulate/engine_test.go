package simulate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gutlab/nutriome/internal/common"
	"github.com/gutlab/nutriome/internal/models"
	"github.com/gutlab/nutriome/internal/services/absorb"
	"github.com/gutlab/nutriome/internal/storage"
)

func newTestEngine(t *testing.T, counts map[string]map[string]float64) (*Engine, string) {
	t.Helper()

	manager, err := storage.NewManager(common.NewSilentLogger(), 32)
	require.NoError(t, err)

	table, err := models.NewAbundanceTable("", "sim", counts)
	require.NoError(t, err)
	datasetID := manager.AddDataset(table)

	profiles := absorb.NewService(manager, models.DefaultTraitTable(), models.DefaultCoefficients(), models.UnknownNeutral, common.NewSilentLogger())
	engine := NewEngine(manager, profiles, Defaults{
		Repetitions: 25,
		NoiseKind:   "lognormal",
		NoiseSigma:  0.1,
		Workers:     2,
	}, common.NewSilentLogger())

	return engine, datasetID
}

func evenCounts() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"Lactobacillus_rhamnosus": {"s1": 1000},
		"Escherichia_coli":        {"s1": 1000},
	}
}

func TestEngine_ScaleMatchesFullRecompute(t *testing.T) {
	engine, datasetID := newTestEngine(t, evenCounts())

	result, err := engine.Simulate(context.Background(), datasetID, "s1", models.PerturbationRequest{
		Targets: []models.SpeciesChange{
			{Species: "Lactobacillus_rhamnosus", Rule: models.RuleScale, Value: 2},
		},
	})
	require.NoError(t, err)

	// The perturbed side must equal a from-scratch run on the edited counts.
	expected, err := absorb.Profile(map[string]float64{
		"Lactobacillus_rhamnosus": 2000,
		"Escherichia_coli":        1000,
	}, models.DefaultTraitTable(), models.DefaultCoefficients(), models.UnknownNeutral)
	require.NoError(t, err)

	for _, nutrient := range models.Nutrients() {
		assert.InDelta(t, expected.Scores[nutrient], result.Perturbed.Scores[nutrient], 1e-12, string(nutrient))
		assert.InDelta(t, expected.Scores[nutrient]-result.Baseline.Scores[nutrient], result.Delta[nutrient], 1e-12, string(nutrient))
	}
	assert.Equal(t, datasetID, result.DatasetID)
	assert.Equal(t, "s1", result.Sample)
	assert.NotEmpty(t, result.ID)
	assert.Nil(t, result.Bootstrap)
}

func TestEngine_InsertsUnknownTarget(t *testing.T) {
	engine, datasetID := newTestEngine(t, evenCounts())

	// Adding an absent species introduces it at zero first.
	result, err := engine.Simulate(context.Background(), datasetID, "s1", models.PerturbationRequest{
		Targets: []models.SpeciesChange{
			{Species: "Akkermansia_muciniphila", Rule: models.RuleAdd, Value: 2000},
		},
	})
	require.NoError(t, err)

	expected, err := absorb.Profile(map[string]float64{
		"Lactobacillus_rhamnosus": 1000,
		"Escherichia_coli":        1000,
		"Akkermansia_muciniphila": 2000,
	}, models.DefaultTraitTable(), models.DefaultCoefficients(), models.UnknownNeutral)
	require.NoError(t, err)

	for _, nutrient := range models.Nutrients() {
		assert.InDelta(t, expected.Scores[nutrient], result.Perturbed.Scores[nutrient], 1e-12, string(nutrient))
	}
}

func TestEngine_ScalingAbsentSpeciesIsNoop(t *testing.T) {
	engine, datasetID := newTestEngine(t, evenCounts())

	result, err := engine.Simulate(context.Background(), datasetID, "s1", models.PerturbationRequest{
		Targets: []models.SpeciesChange{
			{Species: "Roseburia_intestinalis", Rule: models.RuleScale, Value: 5},
		},
	})
	require.NoError(t, err)

	// scale on an inserted zero stays zero, so scores are unchanged
	for _, nutrient := range models.Nutrients() {
		assert.InDelta(t, 0, result.Delta[nutrient], 1e-12, string(nutrient))
	}
}

func TestEngine_RejectsNegativeMultiplier(t *testing.T) {
	engine, datasetID := newTestEngine(t, evenCounts())

	_, err := engine.Simulate(context.Background(), datasetID, "s1", models.PerturbationRequest{
		Targets: []models.SpeciesChange{
			{Species: "Lactobacillus_rhamnosus", Rule: models.RuleScale, Value: -1},
		},
	})
	var validationErr *models.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestEngine_RejectsNegativeResult(t *testing.T) {
	engine, datasetID := newTestEngine(t, evenCounts())

	_, err := engine.Simulate(context.Background(), datasetID, "s1", models.PerturbationRequest{
		Targets: []models.SpeciesChange{
			{Species: "Escherichia_coli", Rule: models.RuleAdd, Value: -3000},
		},
	})
	var validationErr *models.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "targets", validationErr.Field)
}

func TestEngine_ZeroTotalCarriesBaseline(t *testing.T) {
	engine, datasetID := newTestEngine(t, evenCounts())

	_, err := engine.Simulate(context.Background(), datasetID, "s1", models.PerturbationRequest{
		Targets: []models.SpeciesChange{
			{Species: "Lactobacillus_rhamnosus", Rule: models.RuleSet, Value: 0},
			{Species: "Escherichia_coli", Rule: models.RuleSet, Value: 0},
		},
	})
	var simErr *models.SimulationError
	require.ErrorAs(t, err, &simErr)
	require.NotNil(t, simErr.Baseline)
	assert.InDelta(t, 0.5, simErr.Baseline.Traits.SCFA, 1e-12)

	var dataErr *models.DataError
	assert.ErrorAs(t, err, &dataErr)
}

func TestEngine_UnknownDataset(t *testing.T) {
	engine, _ := newTestEngine(t, evenCounts())

	_, err := engine.Simulate(context.Background(), "missing", "s1", models.PerturbationRequest{
		Targets: []models.SpeciesChange{
			{Species: "Escherichia_coli", Rule: models.RuleScale, Value: 2},
		},
	})
	require.ErrorIs(t, err, storage.ErrDatasetNotFound)
}

func TestEngine_Memoized(t *testing.T) {
	engine, datasetID := newTestEngine(t, evenCounts())
	req := models.PerturbationRequest{
		Targets: []models.SpeciesChange{
			{Species: "Lactobacillus_rhamnosus", Rule: models.RuleScale, Value: 2},
		},
	}

	first, err := engine.Simulate(context.Background(), datasetID, "s1", req)
	require.NoError(t, err)
	second, err := engine.Simulate(context.Background(), datasetID, "s1", req)
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestEngine_PercentChangeOmitsZeroBaseline(t *testing.T) {
	// escherichia alone scores zinc at zero after clamping
	engine, datasetID := newTestEngine(t, map[string]map[string]float64{
		"Escherichia_coli": {"s1": 1000},
	})

	result, err := engine.Simulate(context.Background(), datasetID, "s1", models.PerturbationRequest{
		Targets: []models.SpeciesChange{
			{Species: "Lactobacillus_rhamnosus", Rule: models.RuleSet, Value: 9000},
		},
	})
	require.NoError(t, err)

	require.InDelta(t, 0, result.Baseline.Scores[models.NutrientZinc], 1e-12)
	assert.Greater(t, result.Perturbed.Scores[models.NutrientZinc], 0.0)

	_, present := result.PercentChange[models.NutrientZinc]
	assert.False(t, present)
	assert.Contains(t, result.PercentChange, models.NutrientIron)
}

func TestEngine_BootstrapZeroSigmaCollapses(t *testing.T) {
	engine, datasetID := newTestEngine(t, evenCounts())

	result, err := engine.Simulate(context.Background(), datasetID, "s1", models.PerturbationRequest{
		Targets: []models.SpeciesChange{
			{Species: "Lactobacillus_rhamnosus", Rule: models.RuleScale, Value: 2},
		},
		Bootstrap: &models.BootstrapOptions{
			Repetitions: 10,
			Noise:       models.NoiseConfig{Kind: "lognormal", Sigma: 0},
			Seed:        7,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Bootstrap)
	assert.Equal(t, 10, result.Bootstrap.Repetitions)

	// sigma 0 means every repetition reproduces the point delta exactly
	for _, nutrient := range models.Nutrients() {
		dist := result.Bootstrap.Deltas[nutrient]
		assert.InDelta(t, result.Delta[nutrient], dist.Mean, 1e-12, string(nutrient))
		assert.InDelta(t, dist.P5, dist.P95, 1e-12, string(nutrient))
	}
}

func TestEngine_BootstrapReproducibleBySeed(t *testing.T) {
	req := models.PerturbationRequest{
		Targets: []models.SpeciesChange{
			{Species: "Lactobacillus_rhamnosus", Rule: models.RuleScale, Value: 2},
		},
		Bootstrap: &models.BootstrapOptions{
			Repetitions: 40,
			Noise:       models.NoiseConfig{Kind: "lognormal", Sigma: 0.2},
			Seed:        42,
			Workers:     4,
		},
	}

	engineA, datasetA := newTestEngine(t, evenCounts())
	engineB, datasetB := newTestEngine(t, evenCounts())

	first, err := engineA.Simulate(context.Background(), datasetA, "s1", req)
	require.NoError(t, err)
	second, err := engineB.Simulate(context.Background(), datasetB, "s1", req)
	require.NoError(t, err)

	// same seed, independent engines: identical summaries
	for _, nutrient := range models.Nutrients() {
		a := first.Bootstrap.Deltas[nutrient]
		b := second.Bootstrap.Deltas[nutrient]
		assert.Equal(t, a, b, string(nutrient))
	}
	assert.Equal(t, uint64(42), first.Bootstrap.Seed)
}

func TestEngine_BootstrapFillsDefaults(t *testing.T) {
	engine, datasetID := newTestEngine(t, evenCounts())

	result, err := engine.Simulate(context.Background(), datasetID, "s1", models.PerturbationRequest{
		Targets: []models.SpeciesChange{
			{Species: "Escherichia_coli", Rule: models.RuleAdd, Value: 500},
		},
		Bootstrap: &models.BootstrapOptions{},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Bootstrap)

	assert.Equal(t, 25, result.Bootstrap.Repetitions)
	assert.Equal(t, "lognormal", result.Bootstrap.Noise.Kind)
	assert.InDelta(t, 0.1, result.Bootstrap.Noise.Sigma, 1e-12)
	for _, nutrient := range models.Nutrients() {
		dist := result.Bootstrap.Deltas[nutrient]
		assert.LessOrEqual(t, dist.P5, dist.P95, string(nutrient))
		assert.LessOrEqual(t, dist.P25, dist.P75, string(nutrient))
	}
}

func TestDrawFactors(t *testing.T) {
	noise := models.NoiseConfig{Kind: "lognormal", Sigma: 0.3}

	first := drawFactors(11, noise, 5, 4)
	second := drawFactors(11, noise, 5, 4)
	assert.Equal(t, first, second)

	for _, row := range first {
		require.Len(t, row, 4)
		for _, f := range row {
			assert.Greater(t, f, 0.0)
		}
	}

	// normal noise is floored so counts cannot go negative
	floored := drawFactors(3, models.NoiseConfig{Kind: "normal", Sigma: 5}, 20, 10)
	for _, row := range floored {
		for _, f := range row {
			assert.GreaterOrEqual(t, f, 0.0)
		}
	}
}
