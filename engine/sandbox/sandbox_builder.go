package sandbox

import (
	"io"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
)

// ModelKernelBuilderOption is a functional option for configuring a ModelKernel via NewModelKernel.
type ModelKernelBuilderOption func(*ModelKernel)

// WithMutationTimeout is an option builder that bounds the wait for each mutation-result.
//
// Parameters:
//   - timeout: the bound, non-positive values keep the default
//
// Returns:
//   - ModelKernelBuilderOption: a function that applies the timeout option to a kernel
func WithMutationTimeout(timeout time.Duration) ModelKernelBuilderOption {
	return func(k *ModelKernel) {
		if timeout > 0 {
			k.timeout = timeout
		}
	}
}

// WithKernelCapabilities is an option builder that sets the capabilities checked by element setters.
//
// Parameters:
//   - caps: the granted capabilities
//
// Returns:
//   - ModelKernelBuilderOption: a function that applies the capability option to a kernel
func WithKernelCapabilities(caps capability.Set) ModelKernelBuilderOption {
	return func(k *ModelKernel) {
		k.caps = caps
	}
}

// WorkerBuilderOption is a functional option for configuring a Worker via NewWorker.
type WorkerBuilderOption func(*Worker)

// WithCapabilities is an option builder that sets the capabilities granted to scripts of the worker.
//
// Parameters:
//   - caps: the granted capabilities
//
// Returns:
//   - WorkerBuilderOption: a function that applies the capability option to a worker
func WithCapabilities(caps capability.Set) WorkerBuilderOption {
	return func(w *Worker) {
		w.caps = caps
	}
}

// WithContextID is an option builder that sets the id of the execution context the worker serves.
//
// Parameters:
//   - id: the context id
//
// Returns:
//   - WorkerBuilderOption: a function that applies the id option to a worker
func WithContextID(id string) WorkerBuilderOption {
	return func(w *Worker) {
		if id != "" {
			w.id = id
		}
	}
}

// WithStartupScript is an option builder that sets a script evaluated before any message is handled.
//
// Parameters:
//   - source: the script source
//
// Returns:
//   - WorkerBuilderOption: a function that applies the startup script option to a worker
func WithStartupScript(source string) WorkerBuilderOption {
	return func(w *Worker) {
		w.startup = source
	}
}

// WithWorkerMutationTimeout is an option builder that bounds the wait for each mutation-result
// of every model kernel the worker builds.
//
// Parameters:
//   - timeout: the bound
//
// Returns:
//   - WorkerBuilderOption: a function that applies the timeout option to a worker
func WithWorkerMutationTimeout(timeout time.Duration) WorkerBuilderOption {
	return func(w *Worker) {
		if timeout > 0 {
			w.timeout = timeout
		}
	}
}

// WithFetchTimeout is an option builder that bounds Fetch calls and http script imports.
//
// Parameters:
//   - timeout: the bound
//
// Returns:
//   - WorkerBuilderOption: a function that applies the fetch timeout option to a worker
func WithFetchTimeout(timeout time.Duration) WorkerBuilderOption {
	return func(w *Worker) {
		if timeout > 0 {
			w.client.Timeout = timeout
		}
	}
}

// WithScriptDir is an option builder that sets the directory relative script paths resolve against.
//
// Parameters:
//   - dir: the directory
//
// Returns:
//   - WorkerBuilderOption: a function that applies the directory option to a worker
func WithScriptDir(dir string) WorkerBuilderOption {
	return func(w *Worker) {
		w.scriptDir = dir
	}
}

// WithOutput is an option builder that sets where script output goes. fmt.Print and
// friends write there as well as the interpreter itself. The default is the log.
//
// Parameters:
//   - out: the writer
//
// Returns:
//   - WorkerBuilderOption: a function that applies the output option to a worker
func WithOutput(out io.Writer) WorkerBuilderOption {
	return func(w *Worker) {
		w.output = out
	}
}

// ServerBuilderOption is a functional option for configuring a Server via NewServer.
type ServerBuilderOption func(*Server)

// WithServerStartupScript is an option builder that sets the script every hosted worker runs
// before answering the handshake.
//
// Parameters:
//   - source: the script source
//
// Returns:
//   - ServerBuilderOption: a function that applies the startup script option to a server
func WithServerStartupScript(source string) ServerBuilderOption {
	return func(s *Server) {
		s.startup = source
	}
}

// WithWorkerOptions is an option builder that adds options applied to every hosted worker.
//
// Parameters:
//   - options: the worker options
//
// Returns:
//   - ServerBuilderOption: a function that applies the worker options to a server
func WithWorkerOptions(options ...WorkerBuilderOption) ServerBuilderOption {
	return func(s *Server) {
		s.workerOptions = append(s.workerOptions, options...)
	}
}
