package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/opencode-ai/reasoner/internal/metrics"
)

// Pool bounds the number of concurrent inference calls. A local model can
// serve one generation at a time, so the default size is 1.
type Pool struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
}

// NewPool creates a pool with size slots. Sizes below 1 become 1.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Acquire blocks until a slot is free or ctx is done. The returned release
// func is idempotent.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	metrics.ObservePoolWait(time.Since(start))
	metrics.PoolAcquired()
	p.inFlight.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.inFlight.Add(-1)
			metrics.PoolReleased()
			p.sem.Release(1)
		})
	}, nil
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// InFlight returns the number of slots currently held.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}
