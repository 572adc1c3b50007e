package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/engine/cache"
	"github.com/Carmen-Shannon/oxy-threedom/engine/config"
	"github.com/Carmen-Shannon/oxy-threedom/engine/correlation"
	"github.com/Carmen-Shannon/oxy-threedom/engine/execution_context"
	"github.com/Carmen-Shannon/oxy-threedom/engine/facade"
	"github.com/Carmen-Shannon/oxy-threedom/engine/loader"
	"github.com/Carmen-Shannon/oxy-threedom/engine/profiler"
	"github.com/Carmen-Shannon/oxy-threedom/engine/sandbox"

	"github.com/golang/glog"
)

// engine implements the Engine interface.
// Owns the model cache and every execution context created through it.
type engine struct {
	cfg   config.Config
	cache cache.CachingLoader

	profiler         *profiler.Profiler
	profilingEnabled bool

	mu       sync.Mutex
	contexts map[string]execution_context.ExecutionContext

	// templates holds the correlation of each cached template, keyed by URL.
	templatesMu sync.Mutex
	templates   map[string]templateCorrelation

	quitOnce sync.Once
}

// Engine is the main entry point for hosts.
// It loads models through a shared cache and runs sandboxed scripts against them.
type Engine interface {
	// Cache returns the caching loader models are loaded through.
	//
	// Returns:
	//   - cache.CachingLoader: the cache
	Cache() cache.CachingLoader

	// Config returns the configuration the engine was built from.
	//
	// Returns:
	//   - config.Config: the configuration
	Config() config.Config

	// EnableProfiler enables mutation throughput output to the log for contexts created afterwards.
	EnableProfiler()

	// DisableProfiler disables mutation throughput output for contexts created afterwards.
	DisableProfiler()

	// Profiler returns the profiler, or nil while profiling is disabled.
	//
	// Returns:
	//   - *profiler.Profiler: the profiler
	Profiler() *profiler.Profiler

	// LoadModel loads a model through the cache and grafts a facade tree onto its clone.
	//
	// Parameters:
	//   - ctx: bounds the load
	//   - url: the model URL
	//   - progress: optional load progress callback
	//
	// Returns:
	//   - *LoadedModel: the graft and the cache handle backing it
	//   - error: error if loading or correlation fails
	LoadModel(ctx context.Context, url string, progress loader.ProgressFunc) (*LoadedModel, error)

	// NewExecutionContext starts an execution context with the configured capabilities
	// and transport. options are applied after the configured ones.
	//
	// Parameters:
	//   - options: a variadic list of ExecutionContextBuilderOption functions
	//
	// Returns:
	//   - execution_context.ExecutionContext: the context
	//   - error: error if the configured capabilities are invalid
	NewExecutionContext(options ...execution_context.ExecutionContextBuilderOption) (execution_context.ExecutionContext, error)

	// Contexts returns the contexts created through the engine that are not terminated.
	//
	// Returns:
	//   - []execution_context.ExecutionContext: the live contexts
	Contexts() []execution_context.ExecutionContext

	// Quit terminates every context and empties the cache.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// LoadedModel is a model graft backed by a retained cache entry.
type LoadedModel struct {
	Graft  *facade.ModelGraft
	handle *cache.Handle
}

// Release gives the cache entry back. The graft must not be used afterwards.
func (m *LoadedModel) Release() {
	m.handle.Release()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options.
// Without WithConfig the configuration defaults apply.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		cfg:       config.Default(),
		contexts:  make(map[string]execution_context.ExecutionContext),
		templates: make(map[string]templateCorrelation),
	}
	for _, option := range options {
		option(e)
	}
	if e.cache == nil {
		e.cache = cache.NewCachingLoader(cache.WithEvictionThreshold(e.cfg.Cache.EvictionThreshold))
	}
	if e.profilingEnabled {
		e.profiler = profiler.NewProfiler()
	}
	return e
}

func (e *engine) Cache() cache.CachingLoader {
	return e.cache
}

func (e *engine) Config() config.Config {
	return e.cfg
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler()
	}
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

func (e *engine) Profiler() *profiler.Profiler {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.profilingEnabled {
		return nil
	}
	return e.profiler
}

func (e *engine) LoadModel(ctx context.Context, url string, progress loader.ProgressFunc) (*LoadedModel, error) {
	handle, err := e.cache.Load(ctx, url, progress)
	if err != nil {
		return nil, err
	}
	template, err := e.templateCorrelation(ctx, handle)
	if err != nil {
		handle.Release()
		return nil, fmt.Errorf("failed to correlate %s: %w", url, err)
	}
	csg := correlation.FromClone(template, handle.Asset, handle.CloneMap)
	return &LoadedModel{Graft: facade.NewModelGraft(url, csg), handle: handle}, nil
}

type templateCorrelation struct {
	asset *loader.Asset
	csg   correlation.CorrelatedSceneGraph
}

// templateCorrelation correlates the template behind handle once per cache entry.
// Correlations of templates the cache no longer holds are dropped.
func (e *engine) templateCorrelation(ctx context.Context, handle *cache.Handle) (correlation.CorrelatedSceneGraph, error) {
	e.templatesMu.Lock()
	defer e.templatesMu.Unlock()
	if t, ok := e.templates[handle.URL]; ok && t.asset == handle.Template {
		return t.csg, nil
	}
	for url := range e.templates {
		if url != handle.URL && !e.cache.Has(url) {
			delete(e.templates, url)
		}
	}

	csg, err := correlation.From(ctx, handle.Template)
	if err != nil {
		return nil, err
	}
	e.templates[handle.URL] = templateCorrelation{asset: handle.Template, csg: csg}
	glog.V(1).Infof("[Engine] correlated template %s", handle.URL)
	return csg, nil
}

func (e *engine) NewExecutionContext(options ...execution_context.ExecutionContextBuilderOption) (execution_context.ExecutionContext, error) {
	caps, err := e.cfg.CapabilitySet()
	if err != nil {
		return nil, err
	}

	base := []execution_context.ExecutionContextBuilderOption{
		execution_context.WithCapabilities(caps),
		execution_context.WithTransport(e.transport()),
	}
	if p := e.Profiler(); p != nil {
		base = append(base, execution_context.WithProfiler(p))
	}
	ec := execution_context.NewExecutionContext(append(base, options...)...)

	e.mu.Lock()
	e.contexts[ec.ID()] = ec
	e.mu.Unlock()
	glog.V(1).Infof("[Engine] created context %s", ec.ID())
	return ec, nil
}

// transport builds the configured transport for a new context.
func (e *engine) transport() execution_context.Transport {
	if e.cfg.Context.Transport == config.TransportWebSocket {
		return execution_context.NewWebSocketTransport(e.cfg.Context.SandboxURL, []byte(e.cfg.Context.GrantSecret), time.Duration(e.cfg.Context.GrantTTL))
	}
	return execution_context.NewWorkerTransport(
		sandbox.WithWorkerMutationTimeout(time.Duration(e.cfg.Context.MutationTimeout)),
		sandbox.WithFetchTimeout(time.Duration(e.cfg.Sandbox.FetchTimeout)),
	)
}

func (e *engine) Contexts() []execution_context.ExecutionContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	live := make([]execution_context.ExecutionContext, 0, len(e.contexts))
	for id, ec := range e.contexts {
		if ec.State() == execution_context.StateTerminated {
			delete(e.contexts, id)
			continue
		}
		live = append(live, ec)
	}
	return live
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		e.mu.Lock()
		contexts := e.contexts
		e.contexts = make(map[string]execution_context.ExecutionContext)
		e.mu.Unlock()

		for _, ec := range contexts {
			ec.Terminate()
		}
		e.cache.Clear()
		e.templatesMu.Lock()
		clear(e.templates)
		e.templatesMu.Unlock()
		glog.Infof("[Engine] quit, %d contexts terminated", len(contexts))
	})
}
