package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/agrivision-api/internal/domain"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 38, c.Size())

	first, err := c.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, "Apple - Apple Scab", first.FullName)
	assert.Equal(t, "Apple", first.PlantName)
	assert.NotEmpty(t, first.TreatmentSteps)

	last, err := c.Lookup(37)
	require.NoError(t, err)
	assert.Equal(t, "Tomato", last.PlantName)
	assert.Equal(t, "Healthy", last.DiseaseName)

	for i := 0; i < c.Size(); i++ {
		r, err := c.Lookup(i)
		require.NoError(t, err)
		assert.Equal(t, i, r.ClassID)
		assert.NotEmpty(t, r.TreatmentSteps, "class %d", i)
	}
}

func TestLookupUnknownClass(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	for _, id := range []int{-1, 38, 1000} {
		_, err := c.Lookup(id)
		assert.ErrorIs(t, err, domain.ErrUnknownClass, "class %d", id)
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	r, err := c.Lookup(3)
	require.NoError(t, err)
	r.TreatmentSteps[0] = "mutated"

	again, err := c.Lookup(3)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.TreatmentSteps[0])
}

func TestNewRejectsBadTables(t *testing.T) {
	rec := func(id int) domain.DiseaseRecord {
		return domain.DiseaseRecord{ClassID: id, FullName: "X - Y", PlantName: "X", DiseaseName: "Y", TreatmentSteps: []string{"step"}}
	}

	tests := []struct {
		name    string
		records []domain.DiseaseRecord
	}{
		{"empty", nil},
		{"gap", []domain.DiseaseRecord{rec(0), rec(2)}},
		{"duplicate", []domain.DiseaseRecord{rec(0), rec(0)}},
		{"negative", []domain.DiseaseRecord{rec(-1)}},
		{"no treatment", []domain.DiseaseRecord{{ClassID: 0, FullName: "a", PlantName: "b", DiseaseName: "c"}}},
		{"no name", []domain.DiseaseRecord{{ClassID: 0, PlantName: "b", DiseaseName: "c", TreatmentSteps: []string{"s"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.records)
			assert.Error(t, err)
		})
	}
}

func TestNewOrdersByClassID(t *testing.T) {
	c, err := New([]domain.DiseaseRecord{
		{ClassID: 1, FullName: "Rose - Healthy", PlantName: "Rose", DiseaseName: "Healthy", TreatmentSteps: []string{"none"}},
		{ClassID: 0, FullName: "Rose - Rust", PlantName: "Rose", DiseaseName: "Rust", TreatmentSteps: []string{"spray"}},
	})
	require.NoError(t, err)

	r, err := c.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, "Rust", r.DiseaseName)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := []byte(`diseases:
  - id: 0
    name: "Rose - Black Spot"
    plant: "Rose"
    disease: "Black Spot"
    treatment: ["Remove fallen leaves", "Apply fungicide"]
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Size())

	r, err := c.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Remove fallen leaves", "Apply fungicide"}, r.TreatmentSteps)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	def, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 38, def.Size())
}
