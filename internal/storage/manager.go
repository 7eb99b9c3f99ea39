// Package storage provides the in-memory dataset registry and the
// result memoization cache. Nothing here touches disk: datasets live
// for the process lifetime and derived results are recomputed on cache
// misses.
package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gutlab/nutriome/internal/common"
	"github.com/gutlab/nutriome/internal/models"
)

// ErrDatasetNotFound is returned when an ID or name resolves to no
// registered dataset.
var ErrDatasetNotFound = fmt.Errorf("dataset not found")

// Manager owns the dataset registry and the memoization cache.
// Safe for concurrent use by HTTP handlers.
type Manager struct {
	mu       sync.RWMutex
	datasets map[string]*models.AbundanceTable // by ID
	byName   map[string]string                 // name -> ID

	memo   *Memo
	logger *common.Logger
}

// NewManager creates a Manager with a memo cache of the given size.
func NewManager(logger *common.Logger, memoSize int) (*Manager, error) {
	memo, err := NewMemo(memoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memo cache: %w", err)
	}
	return &Manager{
		datasets: make(map[string]*models.AbundanceTable),
		byName:   make(map[string]string),
		memo:     memo,
		logger:   logger,
	}, nil
}

// AddDataset registers a table and returns its assigned ID. A dataset
// with the same name replaces the previous name binding; the old table
// stays reachable by ID. Memoized results keyed by other datasets are
// unaffected.
func (m *Manager) AddDataset(table *models.AbundanceTable) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if table.ID == "" {
		table.ID = uuid.New().String()
	}
	m.datasets[table.ID] = table
	if table.Name != "" {
		m.byName[table.Name] = table.ID
	}

	m.logger.Info().
		Str("dataset_id", table.ID).
		Str("name", table.Name).
		Int("species", table.SpeciesCount()).
		Int("samples", len(table.Samples)).
		Msg("Dataset registered")

	return table.ID
}

// GetDataset resolves a dataset by ID or name.
func (m *Manager) GetDataset(idOrName string) (*models.AbundanceTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if table, ok := m.datasets[idOrName]; ok {
		return table, nil
	}
	if id, ok := m.byName[idOrName]; ok {
		return m.datasets[id], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, idOrName)
}

// ListDatasets returns all registered tables, sorted by name then ID.
func (m *Manager) ListDatasets() []*models.AbundanceTable {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.AbundanceTable, 0, len(m.datasets))
	for _, table := range m.datasets {
		out = append(out, table)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MemoCache returns the shared memoization cache.
func (m *Manager) MemoCache() *Memo {
	return m.memo
}
