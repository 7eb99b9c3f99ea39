package simulate

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gutlab/nutriome/internal/models"
	"github.com/gutlab/nutriome/internal/services/absorb"
)

// runBootstrap repeats the perturbed computation with independently
// resampled multiplicative noise and merges the per-nutrient deltas
// into quantile summaries.
//
// All noise factors are drawn sequentially from one seeded source
// before the repetitions fan out, so results are reproducible for a
// given seed regardless of worker scheduling.
func (e *Engine) runBootstrap(ctx context.Context, perturbedCounts map[string]float64, baselineScores models.NutrientScores, opts models.BootstrapOptions, table *models.TraitTable, coeffs models.CoefficientTable, policy models.UnknownPolicy) (*models.BootstrapSummary, error) {
	reps := opts.Repetitions
	if reps < 1 {
		reps = e.defaults.Repetitions
	}
	noise := opts.Noise
	if noise.Kind == "" {
		// noise block omitted entirely: fall back to server defaults
		noise.Kind = e.defaults.NoiseKind
		if noise.Sigma == 0 {
			noise.Sigma = e.defaults.NoiseSigma
		}
	}
	workers := opts.Workers
	if workers < 1 {
		workers = e.defaults.Workers
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > reps {
		workers = reps
	}

	species := make([]string, 0, len(perturbedCounts))
	for sp := range perturbedCounts {
		species = append(species, sp)
	}
	sort.Strings(species)

	factors := drawFactors(opts.Seed, noise, reps, len(species))

	type repResult struct {
		delta models.NutrientScores
		err   error
	}

	jobs := make(chan int)
	results := make([]repResult, reps)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rep := range jobs {
				counts := make(map[string]float64, len(species))
				for i, sp := range species {
					counts[sp] = perturbedCounts[sp] * factors[rep][i]
				}
				profile, err := absorb.Profile(counts, table, coeffs, policy)
				if err != nil {
					results[rep] = repResult{err: err}
					continue
				}
				results[rep] = repResult{delta: scoreDelta(baselineScores, profile.Scores)}
			}
		}()
	}

	for rep := 0; rep < reps; rep++ {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- rep:
		}
	}
	close(jobs)
	wg.Wait()

	perNutrient := make(map[models.Nutrient][]float64, 6)
	for _, nutrient := range models.Nutrients() {
		perNutrient[nutrient] = make([]float64, 0, reps)
	}
	for _, res := range results {
		if res.err != nil {
			return nil, res.err
		}
		for _, nutrient := range models.Nutrients() {
			perNutrient[nutrient] = append(perNutrient[nutrient], res.delta[nutrient])
		}
	}

	deltas := make(map[models.Nutrient]models.DeltaDistribution, 6)
	for _, nutrient := range models.Nutrients() {
		xs := perNutrient[nutrient]
		sort.Float64s(xs)
		deltas[nutrient] = models.DeltaDistribution{
			Mean: stat.Mean(xs, nil),
			P5:   stat.Quantile(0.05, stat.Empirical, xs, nil),
			P25:  stat.Quantile(0.25, stat.Empirical, xs, nil),
			P50:  stat.Quantile(0.50, stat.Empirical, xs, nil),
			P75:  stat.Quantile(0.75, stat.Empirical, xs, nil),
			P95:  stat.Quantile(0.95, stat.Empirical, xs, nil),
		}
	}

	return &models.BootstrapSummary{
		Repetitions: reps,
		Noise:       noise,
		Seed:        opts.Seed,
		Deltas:      deltas,
	}, nil
}

// drawFactors samples reps×species multiplicative noise factors from a
// single seeded source. Lognormal noise is always positive; normal
// noise is centered on 1 and floored at zero so counts stay valid.
func drawFactors(seed uint64, noise models.NoiseConfig, reps, species int) [][]float64 {
	src := rand.NewPCG(seed, seed)

	var sample func() float64
	switch {
	case noise.Sigma == 0:
		sample = func() float64 { return 1 }
	case noise.Kind == "normal":
		dist := distuv.Normal{Mu: 1, Sigma: noise.Sigma, Src: src}
		sample = func() float64 {
			f := dist.Rand()
			if f < 0 {
				return 0
			}
			return f
		}
	default: // lognormal
		dist := distuv.LogNormal{Mu: 0, Sigma: noise.Sigma, Src: src}
		sample = dist.Rand
	}

	factors := make([][]float64, reps)
	for rep := range factors {
		row := make([]float64, species)
		for i := range row {
			row[i] = sample()
		}
		factors[rep] = row
	}
	return factors
}
