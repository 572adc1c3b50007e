package correlation

import "github.com/Carmen-Shannon/automation/tools/worker"

// correlationConfig holds the options applied by From.
type correlationConfig struct {
	workers int
	pool    worker.DynamicWorkerPool
}

// CorrelationBuilderOption is a functional option for configuring From.
type CorrelationBuilderOption func(*correlationConfig)

// WithWorkers is an option builder that sets how many cache lookups run at once
// when From creates its own pool.
//
// Parameters:
//   - n: the number of workers
//
// Returns:
//   - CorrelationBuilderOption: a function that applies the worker count option
func WithWorkers(n int) CorrelationBuilderOption {
	return func(c *correlationConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithWorkerPool is an option builder that runs cache lookups on a caller-owned pool.
// The pool is left running when From returns.
//
// Parameters:
//   - pool: the worker pool
//
// Returns:
//   - CorrelationBuilderOption: a function that applies the pool option
func WithWorkerPool(pool worker.DynamicWorkerPool) CorrelationBuilderOption {
	return func(c *correlationConfig) {
		c.pool = pool
	}
}
