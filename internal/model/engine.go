package model

import (
	"context"
	"fmt"

	"github.com/Brownie44l1/agrivision-api/internal/domain"
)

// Engine runs the classifier on one preprocessed image.
type Engine interface {
	// Descriptor reports the geometry read from the model at load time.
	Descriptor() domain.Descriptor
	// Infer returns a probability vector of length Descriptor().NumClasses.
	Infer(ctx context.Context, input domain.Tensor) ([]float32, error)
	// Loaded is false for the handle returned by Unavailable.
	Loaded() bool
	Close() error
}

type unavailable struct {
	reason error
}

// Unavailable returns the engine used when loading failed. Every Infer
// call fails with domain.ErrModelUnavailable.
func Unavailable(reason error) Engine {
	return &unavailable{reason: reason}
}

func (u *unavailable) Descriptor() domain.Descriptor { return domain.Descriptor{} }

func (u *unavailable) Infer(context.Context, domain.Tensor) ([]float32, error) {
	if u.reason == nil {
		return nil, domain.ErrModelUnavailable
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, u.reason)
}

func (u *unavailable) Loaded() bool { return false }

func (u *unavailable) Close() error { return nil }

// Reason returns why the model could not be loaded, if e is unavailable.
func Reason(e Engine) error {
	if u, ok := e.(*unavailable); ok {
		return u.reason
	}
	return nil
}
