package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelizeNCoversEveryItemOnce(t *testing.T) {
	for _, workers := range []int{1, 2, 3, 8, 64} {
		hits := make([]int32, 37)
		ParallelizeN(len(hits), workers, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			assert.Equalf(t, int32(1), h, "item %d with %d workers", i, workers)
		}
	}
}

func TestParallelizeZeroItems(t *testing.T) {
	called := false
	Parallelize(0, func(start, end int) { called = true })
	assert.False(t, called)
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, runtime.NumCPU(), Workers(-1))
	assert.Equal(t, runtime.NumCPU(), Workers(0))
	assert.Equal(t, 3, Workers(3))
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	var calls int32
	ParallelizeWithThreshold(10, 100, 4, func(start, end int) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, int32(1), calls)
}
