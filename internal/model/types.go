package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Brownie44l1/agrivision-api/internal/domain"
)

// Metadata is an optional JSON sidecar describing the model's tensor
// shapes, for exports whose declared dimensions are dynamic.
type Metadata struct {
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
}

func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return metadata, nil
}

// descriptorFromShapes reads an NHWC input shape and a (batch, classes) or
// (classes) output shape. A dynamic batch dimension (-1) is accepted and
// treated as 1; every other dimension must be concrete.
func descriptorFromShapes(input, output []int64) (domain.Descriptor, error) {
	if len(input) != 4 {
		return domain.Descriptor{}, fmt.Errorf("input shape %v: expected rank 4 (batch, height, width, channels)", input)
	}
	if input[0] != 1 && input[0] != -1 {
		return domain.Descriptor{}, fmt.Errorf("input shape %v: batch dimension must be 1", input)
	}

	var classes int64
	switch len(output) {
	case 1:
		classes = output[0]
	case 2:
		if output[0] != 1 && output[0] != -1 {
			return domain.Descriptor{}, fmt.Errorf("output shape %v: batch dimension must be 1", output)
		}
		classes = output[1]
	default:
		return domain.Descriptor{}, fmt.Errorf("output shape %v: expected rank 1 or 2", output)
	}

	d := domain.Descriptor{
		InputHeight:   int(input[1]),
		InputWidth:    int(input[2]),
		InputChannels: int(input[3]),
		NumClasses:    int(classes),
	}
	if err := d.Validate(); err != nil {
		return domain.Descriptor{}, fmt.Errorf("input %v, output %v: %w", input, output, err)
	}
	return d, nil
}

// concreteShape replaces a dynamic batch dimension with 1.
func concreteShape(shape []int64) []int64 {
	out := append([]int64(nil), shape...)
	if len(out) > 1 && out[0] == -1 {
		out[0] = 1
	}
	return out
}
