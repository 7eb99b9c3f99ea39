package models

import (
	"math"
	"sort"
	"time"
)

// MeanSample is the pseudo-sample identifier that averages raw counts
// across every sample in the table.
const MeanSample = "mean"

// AbundanceTable is a loaded species-by-sample count table.
// Read-only after registration.
type AbundanceTable struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Samples   []string  `json:"samples"`
	CreatedAt time.Time `json:"created_at"`

	// counts[species][sample] = raw nonnegative count
	counts map[string]map[string]float64
}

// NewAbundanceTable builds a table from a species -> sample -> count
// mapping. Cells must be finite and nonnegative; the loader is
// responsible for rejecting anything else before construction.
func NewAbundanceTable(id, name string, counts map[string]map[string]float64) (*AbundanceTable, error) {
	if len(counts) == 0 {
		return nil, NewDataError("abundance table has no species rows")
	}

	sampleSet := make(map[string]struct{})
	for species, row := range counts {
		if species == "" {
			return nil, NewDataError("abundance table has an empty species name")
		}
		for sample, count := range row {
			if sample == "" {
				return nil, NewDataError("species %s has an empty sample identifier", species)
			}
			if math.IsNaN(count) || math.IsInf(count, 0) {
				return nil, NewDataError("species %s sample %s has a non-numeric count", species, sample)
			}
			if count < 0 {
				return nil, NewDataError("species %s sample %s has a negative count %g", species, sample, count)
			}
			sampleSet[sample] = struct{}{}
		}
	}
	if len(sampleSet) == 0 {
		return nil, NewDataError("abundance table has no sample columns")
	}

	samples := make([]string, 0, len(sampleSet))
	for s := range sampleSet {
		samples = append(samples, s)
	}
	sort.Strings(samples)

	copied := make(map[string]map[string]float64, len(counts))
	for species, row := range counts {
		r := make(map[string]float64, len(row))
		for sample, count := range row {
			r[sample] = count
		}
		copied[species] = r
	}

	return &AbundanceTable{
		ID:        id,
		Name:      name,
		Samples:   samples,
		CreatedAt: time.Now().UTC(),
		counts:    copied,
	}, nil
}

// SpeciesCount returns the number of species rows.
func (t *AbundanceTable) SpeciesCount() int {
	return len(t.counts)
}

// Species returns the species names in sorted order.
func (t *AbundanceTable) Species() []string {
	out := make([]string, 0, len(t.counts))
	for sp := range t.counts {
		out = append(out, sp)
	}
	sort.Strings(out)
	return out
}

// HasSample reports whether the table contains the sample column.
// MeanSample is always available.
func (t *AbundanceTable) HasSample(sample string) bool {
	if sample == MeanSample {
		return true
	}
	for _, s := range t.Samples {
		if s == sample {
			return true
		}
	}
	return false
}

// SampleCounts returns a copy of the raw counts for one sample.
// MeanSample averages counts across all samples, the conventional
// single-community baseline for multi-sample tables. Species absent
// from the sample column are treated as zero.
func (t *AbundanceTable) SampleCounts(sample string) (map[string]float64, error) {
	if sample == "" {
		return nil, NewDataError("missing sample identifier")
	}

	if sample == MeanSample {
		n := float64(len(t.Samples))
		out := make(map[string]float64, len(t.counts))
		for species, row := range t.counts {
			sum := 0.0
			for _, count := range row {
				sum += count
			}
			out[species] = sum / n
		}
		return out, nil
	}

	if !t.HasSample(sample) {
		return nil, NewDataError("sample %q not found in dataset", sample)
	}

	out := make(map[string]float64, len(t.counts))
	for species, row := range t.counts {
		out[species] = row[sample]
	}
	return out, nil
}

// AbundanceVector maps species to relative abundance fractions.
// Fractions are nonnegative and sum to 1 within floating tolerance.
type AbundanceVector map[string]float64

// Total returns the fraction sum (1 ± tolerance for a valid vector).
func (v AbundanceVector) Total() float64 {
	sum := 0.0
	for _, f := range v {
		sum += f
	}
	return sum
}

// SpeciesAbundance is one ranked entry of a sample's composition.
type SpeciesAbundance struct {
	Species  string  `json:"species"`
	Count    float64 `json:"count"`
	Fraction float64 `json:"fraction"`
	Genus    string  `json:"genus"`
	Known    bool    `json:"known"` // present in the trait table
}
