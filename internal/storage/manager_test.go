package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gutlab/nutriome/internal/common"
	"github.com/gutlab/nutriome/internal/models"
)

func newTestTable(t *testing.T, name string) *models.AbundanceTable {
	t.Helper()
	table, err := models.NewAbundanceTable("", name, map[string]map[string]float64{
		"Lactobacillus_rhamnosus": {"s1": 100},
	})
	require.NoError(t, err)
	return table
}

func TestManager_AddAndGet(t *testing.T) {
	manager, err := NewManager(common.NewSilentLogger(), 8)
	require.NoError(t, err)

	id := manager.AddDataset(newTestTable(t, "gut"))
	require.NotEmpty(t, id)

	byID, err := manager.GetDataset(id)
	require.NoError(t, err)
	byName, err := manager.GetDataset("gut")
	require.NoError(t, err)
	assert.Same(t, byID, byName)

	_, err = manager.GetDataset("nope")
	require.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestManager_NameRebinding(t *testing.T) {
	manager, err := NewManager(common.NewSilentLogger(), 8)
	require.NoError(t, err)

	firstID := manager.AddDataset(newTestTable(t, "gut"))
	secondID := manager.AddDataset(newTestTable(t, "gut"))
	require.NotEqual(t, firstID, secondID)

	// the name now resolves to the newer table
	byName, err := manager.GetDataset("gut")
	require.NoError(t, err)
	assert.Equal(t, secondID, byName.ID)

	// the older one stays reachable by ID
	byID, err := manager.GetDataset(firstID)
	require.NoError(t, err)
	assert.Equal(t, firstID, byID.ID)
}

func TestManager_ListDatasets(t *testing.T) {
	manager, err := NewManager(common.NewSilentLogger(), 8)
	require.NoError(t, err)

	manager.AddDataset(newTestTable(t, "zebra"))
	manager.AddDataset(newTestTable(t, "alpha"))

	listed := manager.ListDatasets()
	require.Len(t, listed, 2)
	assert.Equal(t, "alpha", listed[0].Name)
	assert.Equal(t, "zebra", listed[1].Name)
}

func TestMemo(t *testing.T) {
	memo, err := NewMemo(2)
	require.NoError(t, err)

	key := Key("profile", "ds1", "s1")
	require.NotEmpty(t, key)
	assert.Equal(t, key, Key("profile", "ds1", "s1"))
	assert.NotEqual(t, key, Key("profile", "ds1", "s2"))
	assert.NotEqual(t, key, Key("simulate", "ds1", "s1"))

	_, ok := memo.Get(key)
	assert.False(t, ok)

	memo.Add(key, 42)
	got, ok := memo.Get(key)
	require.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestMemo_Eviction(t *testing.T) {
	memo, err := NewMemo(2)
	require.NoError(t, err)

	memo.Add(Key("a"), 1)
	memo.Add(Key("b"), 2)
	memo.Add(Key("c"), 3)
	assert.Equal(t, 2, memo.Len())

	_, ok := memo.Get(Key("a"))
	assert.False(t, ok, "oldest entry is evicted")
}

func TestMemo_UnmarshalableKeyDisablesCaching(t *testing.T) {
	memo, err := NewMemo(2)
	require.NoError(t, err)

	key := Key("profile", func() {})
	assert.Empty(t, key)

	memo.Add(key, 1)
	_, ok := memo.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, memo.Len())
}
