// Package predict turns the model's probability vector into a prediction
// joined with the disease catalog.
package predict

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/Brownie44l1/agrivision-api/internal/domain"
)

// Catalog is the lookup the resolver needs; *catalog.Catalog satisfies it.
type Catalog interface {
	Lookup(classID int) (domain.DiseaseRecord, error)
}

type Options struct {
	// WarningThreshold flags results with confidence strictly below it.
	// A confidence equal to the threshold is not flagged.
	WarningThreshold float64
	// DisplayFloor suppresses the label when confidence is strictly below
	// it. Zero disables the floor.
	DisplayFloor float64
	// TopK > 1 also returns the K best classes.
	TopK int
}

type Candidate struct {
	ClassID    int
	Confidence float64
	Disease    domain.DiseaseRecord
}

type Result struct {
	// ClassID is -1 when Indeterminate.
	ClassID    int
	Confidence float64
	// Disease is nil when Indeterminate.
	Disease               *domain.DiseaseRecord
	BelowWarningThreshold bool
	Indeterminate         bool
	// TopK is populated only when Options.TopK > 1, best first.
	TopK []Candidate
}

type Resolver struct {
	catalog Catalog
	opts    Options
}

func NewResolver(catalog Catalog, opts Options) *Resolver {
	return &Resolver{catalog: catalog, opts: opts}
}

// Resolve picks the highest-probability class (lowest index on ties) and
// resolves it against the catalog. A class missing from the catalog fails
// with domain.ErrUnknownClass; no placeholder record is ever produced.
func (r *Resolver) Resolve(probs []float32) (Result, error) {
	ranked, err := rank(probs)
	if err != nil {
		return Result{}, err
	}

	best := ranked[0]
	record, err := r.catalog.Lookup(best)
	if err != nil {
		return Result{}, err
	}

	var candidates []Candidate
	if r.opts.TopK > 1 {
		k := min(r.opts.TopK, len(ranked))
		candidates = make([]Candidate, 0, k)
		for _, id := range ranked[:k] {
			rec, err := r.catalog.Lookup(id)
			if err != nil {
				return Result{}, err
			}
			candidates = append(candidates, Candidate{ClassID: id, Confidence: float64(probs[id]), Disease: rec})
		}
	}

	// thresholds are compared in the model's precision so that an output
	// equal to a configured threshold such as 0.7 is not treated as below it
	confidence := probs[best]
	result := Result{
		ClassID:               best,
		Confidence:            float64(confidence),
		Disease:               &record,
		BelowWarningThreshold: confidence < float32(r.opts.WarningThreshold),
		TopK:                  candidates,
	}

	if confidence < float32(r.opts.DisplayFloor) {
		result.ClassID = -1
		result.Disease = nil
		result.TopK = nil
		result.Indeterminate = true
	}
	return result, nil
}

// rank orders class indices by descending probability. Ties keep ascending
// index order and NaN sorts last.
func rank(probs []float32) ([]int, error) {
	if len(probs) == 0 {
		return nil, fmt.Errorf("%w: empty probability vector", domain.ErrInferenceFailed)
	}

	ids := make([]int, len(probs))
	for i := range ids {
		ids[i] = i
	}
	slices.SortStableFunc(ids, func(a, b int) int {
		pa, pb := float64(probs[a]), float64(probs[b])
		switch {
		case math.IsNaN(pa) && math.IsNaN(pb):
			return 0
		case math.IsNaN(pa):
			return 1
		case math.IsNaN(pb):
			return -1
		}
		return cmp.Compare(pb, pa)
	})

	if math.IsNaN(float64(probs[ids[0]])) {
		return nil, fmt.Errorf("%w: probability vector has no finite values", domain.ErrInferenceFailed)
	}
	return ids, nil
}
