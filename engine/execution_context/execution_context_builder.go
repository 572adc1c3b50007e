package execution_context

import (
	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
	"github.com/Carmen-Shannon/oxy-threedom/engine/profiler"
)

// ExecutionContextBuilderOption is a functional option for configuring an ExecutionContext via NewExecutionContext.
type ExecutionContextBuilderOption func(*executionContext)

// WithCapabilities is an option builder that sets the capabilities granted to the sandbox scripts.
//
// Parameters:
//   - caps: the granted capabilities
//
// Returns:
//   - ExecutionContextBuilderOption: a function that applies the capability option to a context
func WithCapabilities(caps capability.Set) ExecutionContextBuilderOption {
	return func(c *executionContext) {
		c.caps = caps
	}
}

// WithTransport is an option builder that sets how the sandbox is started.
//
// Parameters:
//   - t: the transport
//
// Returns:
//   - ExecutionContextBuilderOption: a function that applies the transport option to a context
func WithTransport(t Transport) ExecutionContextBuilderOption {
	return func(c *executionContext) {
		c.transport = t
	}
}

// WithProfiler is an option builder that sets the profiler ticked for every applied mutation.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - ExecutionContextBuilderOption: a function that applies the profiler option to a context
func WithProfiler(p *profiler.Profiler) ExecutionContextBuilderOption {
	return func(c *executionContext) {
		c.profiler = p
	}
}
