// Package catalog holds the static table mapping model class indices to
// disease metadata and treatment guidance.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/agrivision-api/internal/domain"
)

//go:embed plantvillage.yaml
var plantVillage []byte

type file struct {
	Diseases []domain.DiseaseRecord `yaml:"diseases"`
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	records []domain.DiseaseRecord
}

// Default returns the built-in 38-class PlantVillage catalog.
func Default() (*Catalog, error) {
	return Parse(plantVillage)
}

// Load reads a catalog from a YAML file. An empty path yields Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(f.Diseases)
}

// New builds a catalog from records. Ids must cover 0..len-1 exactly once.
func New(records []domain.DiseaseRecord) (*Catalog, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	ordered := make([]domain.DiseaseRecord, len(records))
	seen := make([]bool, len(records))
	for _, r := range records {
		if r.ClassID < 0 || r.ClassID >= len(records) {
			return nil, fmt.Errorf("class id %d outside 0..%d", r.ClassID, len(records)-1)
		}
		if seen[r.ClassID] {
			return nil, fmt.Errorf("duplicate class id %d", r.ClassID)
		}
		if r.FullName == "" || r.PlantName == "" || r.DiseaseName == "" {
			return nil, fmt.Errorf("class %d: name, plant and disease are required", r.ClassID)
		}
		if len(r.TreatmentSteps) == 0 {
			return nil, fmt.Errorf("class %d: treatment steps are required", r.ClassID)
		}
		seen[r.ClassID] = true
		r.TreatmentSteps = append([]string(nil), r.TreatmentSteps...)
		ordered[r.ClassID] = r
	}

	return &Catalog{records: ordered}, nil
}

// Lookup returns the record for classID or an error wrapping
// domain.ErrUnknownClass.
func (c *Catalog) Lookup(classID int) (domain.DiseaseRecord, error) {
	if classID < 0 || classID >= len(c.records) {
		return domain.DiseaseRecord{}, fmt.Errorf("class %d of %d: %w", classID, len(c.records), domain.ErrUnknownClass)
	}
	r := c.records[classID]
	r.TreatmentSteps = append([]string(nil), r.TreatmentSteps...)
	return r, nil
}

func (c *Catalog) Size() int {
	return len(c.records)
}
