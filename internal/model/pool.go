package model

import (
	"context"
	"errors"
	"sync"

	"github.com/Brownie44l1/agrivision-api/internal/domain"
)

// runner is one independently loaded model instance. Its buffers are reused
// across calls so it must never run concurrently with itself.
type runner interface {
	run(input []float32) ([]float32, error)
	destroy() error
}

// pool hands out idle runners; a pool of one is a single critical section.
type pool struct {
	idle      chan runner
	size      int
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func newPool(runners []runner) *pool {
	p := &pool{
		idle: make(chan runner, len(runners)),
		size: len(runners),
		done: make(chan struct{}),
	}
	for _, r := range runners {
		p.idle <- r
	}
	return p
}

func (p *pool) acquire(ctx context.Context) (runner, error) {
	select {
	case <-p.done:
		return nil, domain.ErrModelUnavailable
	default:
	}

	select {
	case r := <-p.idle:
		return r, nil
	case <-p.done:
		return nil, domain.ErrModelUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pool) release(r runner) {
	p.idle <- r
}

// close waits for in-flight runs to finish and destroys every runner.
func (p *pool) close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		var errs []error
		for i := 0; i < p.size; i++ {
			r := <-p.idle
			if err := r.destroy(); err != nil {
				errs = append(errs, err)
			}
		}
		p.err = errors.Join(errs...)
	})
	return p.err
}
