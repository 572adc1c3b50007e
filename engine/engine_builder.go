package engine

import (
	"github.com/Carmen-Shannon/oxy-threedom/engine/cache"
	"github.com/Carmen-Shannon/oxy-threedom/engine/config"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables mutation throughput output.
//
// Parameters:
//   - enabled: if true, enables profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithConfig sets the configuration the engine builds its cache and contexts from.
//
// Parameters:
//   - cfg: a validated configuration
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.Config) EngineBuilderOption {
	return func(e *engine) {
		e.cfg = cfg
	}
}

// WithCachingLoader sets a custom caching loader rather than one built from the configuration.
//
// Parameters:
//   - c: the caching loader to share
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithCachingLoader(c cache.CachingLoader) EngineBuilderOption {
	return func(e *engine) {
		e.cache = c
	}
}
