package resource

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_LimitsConcurrency(t *testing.T) {
	ctx := context.Background()
	c := NewController(4)

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			require.NoError(t, c.AcquireOp(ctx))
			defer c.ReleaseOp()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen, 4)
	assert.Zero(t, c.InFlight())
}

func TestController_AcquireRespectsCancellation(t *testing.T) {
	c := NewController(1)

	require.NoError(t, c.AcquireOp(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.AcquireOp(ctx))

	c.ReleaseOp()
	assert.Zero(t, c.InFlight())
}
