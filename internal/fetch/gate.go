package fetch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of simultaneously in-flight requests.
// Create one per run so runs never compete for each other's slots.
type Gate struct {
	sem  *semaphore.Weighted
	size int
}

// NewGate returns a gate with n slots. n < 1 is treated as 1.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Size returns the slot count.
func (g *Gate) Size() int {
	return g.size
}
