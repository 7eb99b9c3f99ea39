// Package interfaces defines service contracts for Nutriome
package interfaces

import (
	"context"

	"github.com/gutlab/nutriome/internal/models"
)

// ProfileService computes baseline community profiles from registered
// abundance datasets.
type ProfileService interface {
	// SampleProfile computes (or recalls) the trait vector and nutrient
	// scores for one sample of a dataset.
	SampleProfile(ctx context.Context, datasetID, sample string) (*models.Profile, error)

	// SampleAbundance returns the ranked relative-abundance composition
	// of a sample. limit <= 0 returns all species.
	SampleAbundance(ctx context.Context, datasetID, sample string, limit int) ([]models.SpeciesAbundance, error)

	// Contributions ranks a dataset's species by their trait-weight
	// contribution to one nutrient, independent of abundance.
	Contributions(ctx context.Context, datasetID string, nutrient models.Nutrient, limit int) ([]models.SpeciesContribution, error)

	// TraitTable exposes the effective trait reference table.
	TraitTable() *models.TraitTable

	// Coefficients exposes the effective per-nutrient coefficient table.
	Coefficients() models.CoefficientTable
}

// SimulationService runs perturbation simulations against registered
// datasets.
type SimulationService interface {
	// Simulate applies a perturbation request to one sample and returns
	// the before/after profiles with their delta. Each call is
	// independent and idempotent.
	Simulate(ctx context.Context, datasetID, sample string, req models.PerturbationRequest) (*models.SimulationResult, error)
}

// DatasetStore is the in-memory dataset registry.
type DatasetStore interface {
	// AddDataset registers a table and returns its assigned ID.
	AddDataset(table *models.AbundanceTable) string

	// GetDataset resolves a dataset by ID or name.
	GetDataset(idOrName string) (*models.AbundanceTable, error)

	// ListDatasets returns all registered tables.
	ListDatasets() []*models.AbundanceTable
}
