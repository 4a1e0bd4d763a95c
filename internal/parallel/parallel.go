// Package parallel splits independent loop iterations of CPU kernels across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	MinWork    int  // Minimum total work (items × cost) before goroutines are spawned.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinWork:    1 << 15,
	}
}

// For executes f(i) for i in [0, n).
//
// costPerItem is a rough estimate of the inner work per iteration (for a
// convolution output channel: input-columns × output-positions). Small loops
// run sequentially on the calling goroutine.
//
// Each index is visited exactly once; callers must make f(i) write only to
// memory owned by index i.
func For(n, costPerItem int, f func(i int), cfg Config) {
	if n <= 0 {
		return
	}
	workers := min(cfg.NumWorkers, n)
	if !cfg.Enabled || workers <= 1 || n*max(costPerItem, 1) < cfg.MinWork {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}
