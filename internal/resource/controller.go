// Package resource enforces the database-wide concurrency budget: a
// weighted semaphore caps the number of simultaneously executing public
// operations.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Controller limits concurrent operations.
type Controller struct {
	opSem    *semaphore.Weighted
	inFlight atomic.Int64
}

// NewController creates a controller admitting up to maxConcurrentOps
// operations at a time. maxConcurrentOps must be positive.
func NewController(maxConcurrentOps int64) *Controller {
	if maxConcurrentOps <= 0 {
		maxConcurrentOps = 1
	}

	return &Controller{
		opSem: semaphore.NewWeighted(maxConcurrentOps),
	}
}

// AcquireOp blocks until an operation slot is free or ctx is canceled.
func (c *Controller) AcquireOp(ctx context.Context) error {
	if err := c.opSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.inFlight.Add(1)

	return nil
}

// ReleaseOp frees a slot taken by AcquireOp.
func (c *Controller) ReleaseOp() {
	c.inFlight.Add(-1)
	c.opSem.Release(1)
}

// InFlight returns the number of operations currently holding a slot.
func (c *Controller) InFlight() int64 {
	return c.inFlight.Load()
}
