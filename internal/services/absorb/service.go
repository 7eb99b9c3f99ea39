package absorb

import (
	"context"
	"fmt"
	"sort"

	"github.com/gutlab/nutriome/internal/common"
	"github.com/gutlab/nutriome/internal/models"
	"github.com/gutlab/nutriome/internal/storage"
)

// Service implements ProfileService on top of the pure pipeline,
// adding dataset resolution and result memoization. The trait table and
// coefficient table are fixed at construction; build a second Service
// to compare alternate configurations side by side.
type Service struct {
	storage *storage.Manager
	table   *models.TraitTable
	coeffs  models.CoefficientTable
	policy  models.UnknownPolicy
	// fingerprint digests the trait table, coefficients, and policy so
	// that services with different configurations sharing one memo
	// cache never read each other's entries.
	fingerprint string
	logger      *common.Logger
}

// NewService creates a profile service. The coefficient table must have
// passed Validate.
func NewService(storageManager *storage.Manager, table *models.TraitTable, coeffs models.CoefficientTable, policy models.UnknownPolicy, logger *common.Logger) *Service {
	return &Service{
		storage:     storageManager,
		table:       table,
		coeffs:      coeffs,
		policy:      policy,
		fingerprint: storage.Key("model", table.Rows(), table.DefaultRow(), coeffs, policy),
		logger:      logger,
	}
}

// TraitTable exposes the effective trait reference table.
func (s *Service) TraitTable() *models.TraitTable {
	return s.table
}

// Coefficients exposes the effective coefficient table.
func (s *Service) Coefficients() models.CoefficientTable {
	return s.coeffs.Clone()
}

// Policy exposes the unknown-species policy.
func (s *Service) Policy() models.UnknownPolicy {
	return s.policy
}

// ModelFingerprint digests the model configuration for use in memo
// keys derived from this service's results.
func (s *Service) ModelFingerprint() string {
	return s.fingerprint
}

// SampleProfile computes the trait vector and nutrient scores for one
// sample, memoized by (dataset, sample, model configuration).
func (s *Service) SampleProfile(ctx context.Context, datasetID, sample string) (*models.Profile, error) {
	table, err := s.storage.GetDataset(datasetID)
	if err != nil {
		return nil, err
	}

	memo := s.storage.MemoCache()
	key := storage.Key("profile", table.ID, sample, s.fingerprint)
	if cached, ok := memo.Get(key); ok {
		if profile, ok := cached.(*models.Profile); ok {
			return profile, nil
		}
	}

	counts, err := table.SampleCounts(sample)
	if err != nil {
		return nil, err
	}

	profile, err := Profile(counts, s.table, s.coeffs, s.policy)
	if err != nil {
		return nil, err
	}

	memo.Add(key, profile)
	s.logger.Debug().
		Str("dataset_id", table.ID).
		Str("sample", sample).
		Msg("Profile computed")

	return profile, nil
}

// SampleAbundance returns the sample composition ranked by fraction,
// annotated with trait-table coverage. limit <= 0 returns all species.
func (s *Service) SampleAbundance(ctx context.Context, datasetID, sample string, limit int) ([]models.SpeciesAbundance, error) {
	table, err := s.storage.GetDataset(datasetID)
	if err != nil {
		return nil, err
	}

	counts, err := table.SampleCounts(sample)
	if err != nil {
		return nil, err
	}

	vec, err := Normalize(counts)
	if err != nil {
		return nil, err
	}

	out := make([]models.SpeciesAbundance, 0, len(vec))
	for species, fraction := range vec {
		_, known := s.table.Lookup(species)
		out = append(out, models.SpeciesAbundance{
			Species:  species,
			Count:    counts[species],
			Fraction: fraction,
			Genus:    models.GenusOf(species),
			Known:    known,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Fraction != out[j].Fraction {
			return out[i].Fraction > out[j].Fraction
		}
		return out[i].Species < out[j].Species
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Contributions ranks a dataset's species by trait-weight contribution
// to one nutrient.
func (s *Service) Contributions(ctx context.Context, datasetID string, nutrient models.Nutrient, limit int) ([]models.SpeciesContribution, error) {
	if !models.IsNutrient(string(nutrient)) {
		return nil, fmt.Errorf("unknown nutrient %q", nutrient)
	}

	table, err := s.storage.GetDataset(datasetID)
	if err != nil {
		return nil, err
	}

	return Contributions(table.Species(), nutrient, s.table, s.coeffs, limit), nil
}
