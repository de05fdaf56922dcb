package domain

import "fmt"

// DiseaseRecord describes one class the model can output.
type DiseaseRecord struct {
	ClassID        int      `json:"class" yaml:"id"`
	FullName       string   `json:"full_name" yaml:"name"`
	PlantName      string   `json:"plant" yaml:"plant"`
	DiseaseName    string   `json:"disease" yaml:"disease"`
	TreatmentSteps []string `json:"treatment" yaml:"treatment"`
}

// Descriptor is the model's declared input and output geometry.
type Descriptor struct {
	InputHeight   int
	InputWidth    int
	InputChannels int
	NumClasses    int
}

// InputShape returns the NHWC shape the model consumes, batch fixed at 1.
func (d Descriptor) InputShape() []int64 {
	return []int64{1, int64(d.InputHeight), int64(d.InputWidth), int64(d.InputChannels)}
}

// InputSize is the number of float32 values in one input tensor.
func (d Descriptor) InputSize() int {
	return d.InputHeight * d.InputWidth * d.InputChannels
}

func (d Descriptor) Validate() error {
	if d.InputHeight <= 0 || d.InputWidth <= 0 || d.InputChannels <= 0 {
		return fmt.Errorf("invalid input geometry %dx%dx%d", d.InputHeight, d.InputWidth, d.InputChannels)
	}
	if d.NumClasses <= 0 {
		return fmt.Errorf("invalid class count %d", d.NumClasses)
	}
	return nil
}

// Tensor is a dense float32 array laid out row-major in Shape order.
type Tensor struct {
	Shape []int64
	Data  []float32
}
