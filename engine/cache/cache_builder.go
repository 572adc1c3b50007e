package cache

import "github.com/Carmen-Shannon/oxy-threedom/engine/loader"

// EvictionPolicyBuilderOption is a functional option for configuring an EvictionPolicy via NewEvictionPolicy.
type EvictionPolicyBuilderOption func(*evictionPolicy)

// WithThreshold is an option builder that sets how many unretained keys stay cached.
//
// Parameters:
//   - threshold: the eviction threshold, negative values count as 0
//
// Returns:
//   - EvictionPolicyBuilderOption: a function that applies the threshold option to a policy
func WithThreshold(threshold int) EvictionPolicyBuilderOption {
	return func(p *evictionPolicy) {
		p.threshold = max(threshold, 0)
	}
}

// CachingLoaderBuilderOption is a functional option for configuring a CachingLoader via NewCachingLoader.
type CachingLoaderBuilderOption func(*cachingLoader)

// WithLoader is an option builder that sets the loader used for cache misses.
//
// Parameters:
//   - l: the loader
//
// Returns:
//   - CachingLoaderBuilderOption: a function that applies the loader option
func WithLoader(l loader.Loader) CachingLoaderBuilderOption {
	return func(c *cachingLoader) {
		if l != nil {
			c.loader = l
		}
	}
}

// WithEvictionThreshold is an option builder that sets how many unretained models stay cached.
//
// Parameters:
//   - threshold: the eviction threshold
//
// Returns:
//   - CachingLoaderBuilderOption: a function that applies the threshold option
func WithEvictionThreshold(threshold int) CachingLoaderBuilderOption {
	return func(c *cachingLoader) {
		c.threshold = threshold
	}
}
