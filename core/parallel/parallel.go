package parallel

import (
	"runtime"
	"sync"
)

// Workers resolves an n_jobs style setting: values <= 0 mean "all CPU cores".
func Workers(nJobs int) int {
	if nJobs <= 0 {
		return runtime.NumCPU()
	}
	return nJobs
}

// Parallelize divides the specified total number (items) according to the number of CPU cores,
// and executes the specified function (fn) in parallel for each range (start, end)
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeN(items, runtime.NumCPU(), fn)
}

// ParallelizeN is Parallelize with an explicit worker count.
func ParallelizeN(items, workers int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if workers <= 1 {
		fn(0, items)
		return
	}
	if workers > items {
		workers = items // No need for more workers than items
	}

	// ceiling division
	chunkSize := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold performs parallelization only when the number of items exceeds the threshold
// If below threshold, normal sequential processing is performed
func ParallelizeWithThreshold(items, threshold, workers int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	ParallelizeN(items, workers, fn)
}
