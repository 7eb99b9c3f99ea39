// Package simulate implements the perturbation engine: it applies
// hypothetical abundance edits to a sample and recomputes the full
// scoring pipeline on both sides, never shortcutting the baseline
// comparison with incremental updates.
package simulate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gutlab/nutriome/internal/common"
	"github.com/gutlab/nutriome/internal/models"
	"github.com/gutlab/nutriome/internal/services/absorb"
	"github.com/gutlab/nutriome/internal/storage"
)

// Defaults fills in bootstrap parameters a request leaves unset.
type Defaults struct {
	Repetitions int
	NoiseKind   string
	NoiseSigma  float64
	Workers     int
}

// Engine implements SimulationService. Stateless between calls: each
// request is validated, both pipelines run in full, and the result is
// memoized by (dataset, sample, model configuration, request).
type Engine struct {
	storage  *storage.Manager
	profiles *absorb.Service
	defaults Defaults
	logger   *common.Logger
}

// NewEngine creates a perturbation engine sharing the profile service's
// trait and coefficient configuration.
func NewEngine(storageManager *storage.Manager, profiles *absorb.Service, defaults Defaults, logger *common.Logger) *Engine {
	return &Engine{
		storage:  storageManager,
		profiles: profiles,
		defaults: defaults,
		logger:   logger,
	}
}

// Simulate runs one perturbation request against a sample.
//
// Validation failures surface as ValidationError before any scoring.
// A perturbation that drives the total abundance to zero surfaces as a
// SimulationError carrying the already-computed baseline.
func (e *Engine) Simulate(ctx context.Context, datasetID, sample string, req models.PerturbationRequest) (*models.SimulationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	table, err := e.storage.GetDataset(datasetID)
	if err != nil {
		return nil, err
	}

	memo := e.storage.MemoCache()
	key := storage.Key("simulate", table.ID, sample, e.profiles.ModelFingerprint(), req)
	if cached, ok := memo.Get(key); ok {
		if result, ok := cached.(*models.SimulationResult); ok {
			return result, nil
		}
	}

	baselineCounts, err := table.SampleCounts(sample)
	if err != nil {
		return nil, err
	}

	perturbedCounts, err := applyChanges(baselineCounts, req.Targets)
	if err != nil {
		return nil, err
	}

	traitTable := e.profiles.TraitTable()
	coeffs := e.profiles.Coefficients()
	policy := e.profiles.Policy()

	baseline, err := absorb.Profile(baselineCounts, traitTable, coeffs, policy)
	if err != nil {
		return nil, err
	}

	perturbed, err := absorb.Profile(perturbedCounts, traitTable, coeffs, policy)
	if err != nil {
		var dataErr *models.DataError
		if errors.As(err, &dataErr) {
			return nil, &models.SimulationError{Baseline: baseline, Err: err}
		}
		return nil, err
	}

	result := &models.SimulationResult{
		ID:            uuid.New().String(),
		DatasetID:     table.ID,
		Sample:        sample,
		Baseline:      *baseline,
		Perturbed:     *perturbed,
		Delta:         scoreDelta(baseline.Scores, perturbed.Scores),
		PercentChange: percentChange(baseline.Scores, perturbed.Scores),
		ComputedAt:    time.Now().UTC(),
	}

	if req.Bootstrap != nil {
		summary, err := e.runBootstrap(ctx, perturbedCounts, baseline.Scores, *req.Bootstrap, traitTable, coeffs, policy)
		if err != nil {
			var dataErr *models.DataError
			if errors.As(err, &dataErr) {
				return nil, &models.SimulationError{Baseline: baseline, Err: err}
			}
			return nil, err
		}
		result.Bootstrap = summary
	}

	memo.Add(key, result)
	e.logger.Debug().
		Str("dataset_id", table.ID).
		Str("sample", sample).
		Int("targets", len(req.Targets)).
		Bool("bootstrap", req.Bootstrap != nil).
		Msg("Simulation completed")

	return result, nil
}

// applyChanges produces the perturbed raw counts. Species absent from
// the baseline are introduced at zero before the rule applies. Counts
// are never allowed to go negative.
func applyChanges(baseline map[string]float64, targets []models.SpeciesChange) (map[string]float64, error) {
	out := make(map[string]float64, len(baseline)+len(targets))
	for species, count := range baseline {
		out[species] = count
	}

	for _, change := range targets {
		current := out[change.Species] // zero for new species

		var next float64
		switch change.Rule {
		case models.RuleSet:
			next = change.Value
		case models.RuleScale:
			next = current * change.Value
		case models.RuleAdd:
			next = current + change.Value
		}

		if next < 0 {
			return nil, models.NewValidationError("targets",
				"species %s: rule %s with value %g yields negative abundance %g",
				change.Species, change.Rule, change.Value, next)
		}
		out[change.Species] = next
	}

	return out, nil
}

func scoreDelta(baseline, perturbed models.NutrientScores) models.NutrientScores {
	delta := make(models.NutrientScores, len(baseline))
	for _, nutrient := range models.Nutrients() {
		delta[nutrient] = perturbed[nutrient] - baseline[nutrient]
	}
	return delta
}

// percentChange returns delta/baseline×100 per nutrient, omitting
// nutrients whose baseline score is zero.
func percentChange(baseline, perturbed models.NutrientScores) models.NutrientScores {
	pct := make(models.NutrientScores)
	for _, nutrient := range models.Nutrients() {
		if baseline[nutrient] == 0 {
			continue
		}
		pct[nutrient] = (perturbed[nutrient] - baseline[nutrient]) / baseline[nutrient] * 100
	}
	return pct
}
