package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-threedom/engine/loader"
	"github.com/Carmen-Shannon/oxy-threedom/engine/scene"

	"github.com/golang/glog"
	"golang.org/x/sync/singleflight"
)

// errDeletedWhileLoading is returned to waiters of a load whose entry was deleted before it finished.
var errDeletedWhileLoading = errors.New("deleted while loading")

// entry is one cached model. asset is nil while the load is in flight.
type entry struct {
	asset *loader.Asset
}

// cachingLoader is the implementation of the CachingLoader interface.
type cachingLoader struct {
	loader    loader.Loader
	threshold int
	policy    EvictionPolicy
	group     singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
}

// CachingLoader loads each model URL once, keeps the loaded asset as a template and
// hands every caller an independent clone. Each clone retains its URL until the
// Handle is released; unretained templates are evicted by the EvictionPolicy.
type CachingLoader interface {
	// Load returns a retained clone of the model at url, loading it first on a miss.
	// Concurrent loads of one url share a single fetch; cancelling ctx stops waiting
	// but not the shared fetch.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//   - url: the model URL
	//   - progress: optional progress callback
	//
	// Returns:
	//   - *Handle: the retained clone
	//   - error: error if the load fails or ctx ends first
	Load(ctx context.Context, url string, progress loader.ProgressFunc) (*Handle, error)

	// Preload populates the cache without retaining the model.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//   - url: the model URL
	//   - progress: optional progress callback
	//
	// Returns:
	//   - error: error if the load fails or ctx ends first
	Preload(ctx context.Context, url string, progress loader.ProgressFunc) error

	// Has reports whether url is cached or loading.
	//
	// Parameters:
	//   - url: the model URL
	//
	// Returns:
	//   - bool: true if cached or in flight
	Has(url string) bool

	// HasFinishedLoading reports whether url is cached and ready.
	//
	// Parameters:
	//   - url: the model URL
	//
	// Returns:
	//   - bool: true if the template is loaded
	HasFinishedLoading(url string) bool

	// Delete removes url from the cache and disposes its template. Outstanding
	// handles keep their clones.
	//
	// Parameters:
	//   - url: the model URL
	Delete(url string)

	// Clear deletes every entry and resets retainer tracking.
	Clear()

	// EvictionPolicy returns the policy governing the cache.
	//
	// Returns:
	//   - EvictionPolicy: the policy
	EvictionPolicy() EvictionPolicy
}

var _ CachingLoader = &cachingLoader{}

// NewCachingLoader creates a CachingLoader with the default loader and eviction
// threshold unless overridden by options.
//
// Parameters:
//   - options: a variadic list of CachingLoaderBuilderOption functions
//
// Returns:
//   - CachingLoader: the caching loader
func NewCachingLoader(options ...CachingLoaderBuilderOption) CachingLoader {
	c := &cachingLoader{
		threshold: DefaultEvictionThreshold,
		entries:   make(map[string]*entry),
	}
	for _, option := range options {
		option(c)
	}
	if c.loader == nil {
		c.loader = loader.NewLoader()
	}
	c.policy = NewEvictionPolicy(c.evict, WithThreshold(c.threshold))
	return c
}

// Load retains url before looking it up so an eviction running concurrently
// cannot dispose the template being cloned.
func (c *cachingLoader) Load(ctx context.Context, url string, progress loader.ProgressFunc) (*Handle, error) {
	c.policy.Retain(url)
	template, err := c.preload(ctx, url, progress)
	if err != nil {
		_ = c.policy.Release(url)
		return nil, err
	}

	clone, cm, err := template.Clone()
	if err != nil {
		_ = c.policy.Release(url)
		return nil, fmt.Errorf("failed to clone %q: %w", url, err)
	}
	return &Handle{URL: url, Asset: clone, Template: template, CloneMap: cm, cache: c}, nil
}

func (c *cachingLoader) Preload(ctx context.Context, url string, progress loader.ProgressFunc) error {
	_, err := c.preload(ctx, url, progress)
	return err
}

func (c *cachingLoader) preload(ctx context.Context, url string, progress loader.ProgressFunc) (*loader.Asset, error) {
	c.mu.Lock()
	e, ok := c.entries[url]
	if ok && e.asset != nil {
		c.mu.Unlock()
		report(progress, 1)
		return e.asset, nil
	}
	if !ok {
		e = &entry{}
		c.entries[url] = e
	}
	c.mu.Unlock()

	scaled := func(fraction float64) { report(progress, fraction*0.9) }
	ch := c.group.DoChan(url, func() (any, error) {
		return c.fill(context.WithoutCancel(ctx), url, e, scaled)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		report(progress, 1)
		return res.Val.(*loader.Asset), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fill loads url into e, or into the entry that replaced e while loading. A failed
// load removes the entry so a later call can retry.
func (c *cachingLoader) fill(ctx context.Context, url string, e *entry, progress loader.ProgressFunc) (*loader.Asset, error) {
	c.mu.Lock()
	if e.asset != nil {
		c.mu.Unlock()
		return e.asset, nil
	}
	c.mu.Unlock()

	glog.V(1).Infof("[Cache] loading %q", url)
	asset, err := c.loader.Load(ctx, url, progress)

	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.entries[url]
	if err != nil {
		if ok && current.asset == nil {
			delete(c.entries, url)
		}
		return nil, fmt.Errorf("failed to load %q: %w", url, err)
	}
	switch {
	case !ok:
		asset.Dispose()
		return nil, fmt.Errorf("%q: %w", url, errDeletedWhileLoading)
	case current != e && current.asset != nil:
		asset.Dispose()
		return current.asset, nil
	}
	// current is e, or an entry re-created while the load was in flight.
	current.asset = asset
	return asset, nil
}

func (c *cachingLoader) Has(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[url]
	return ok
}

func (c *cachingLoader) HasFinishedLoading(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	return ok && e.asset != nil
}

func (c *cachingLoader) Delete(url string) {
	c.remove(url, false)
}

// evict deletes url unless it was retained again after the policy selected it.
func (c *cachingLoader) evict(url string) {
	c.remove(url, true)
}

func (c *cachingLoader) remove(url string, unlessRetained bool) {
	c.mu.Lock()
	if unlessRetained && c.policy.RetainerCount(url) > 0 {
		c.mu.Unlock()
		glog.V(1).Infof("[Cache] %q retained again, not evicting", url)
		return
	}
	e, ok := c.entries[url]
	delete(c.entries, url)
	c.mu.Unlock()

	if ok && e.asset != nil {
		glog.V(1).Infof("[Cache] disposing %q", url)
		e.asset.Dispose()
	}
}

func (c *cachingLoader) Clear() {
	c.mu.Lock()
	urls := make([]string, 0, len(c.entries))
	for url := range c.entries {
		urls = append(urls, url)
	}
	c.mu.Unlock()

	for _, url := range urls {
		c.Delete(url)
	}
	c.policy.Reset()
}

func (c *cachingLoader) EvictionPolicy() EvictionPolicy {
	return c.policy
}

func report(progress loader.ProgressFunc, fraction float64) {
	if progress != nil {
		progress(fraction)
	}
}

// Handle is a retained clone of a cached model.
type Handle struct {
	// URL is the cache key the clone was loaded under.
	URL string

	// Asset is the clone, owned by the holder of the handle.
	Asset *loader.Asset

	// Template is the cached asset the clone was made from. It is shared by every
	// handle of the entry and must not be mutated.
	Template *loader.Asset

	// CloneMap relates the template's materials and textures to the clone's.
	CloneMap *scene.CloneMap

	cache *cachingLoader
	once  sync.Once
}

// Release disposes the clone and drops its retainer. Calling it again has no effect.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.Asset.Dispose()
		_ = h.cache.policy.Release(h.URL)
	})
}
