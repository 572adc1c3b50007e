package loader

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
)

// ErrNotCached is returned for keys that name no cacheable element of the document.
var ErrNotCached = errors.New("no cached dependency for key")

// ParserCache resolves "<type>:<index>" keys to the renderer-native object the
// loader produced for that glTF element:
//
//	material:<i>  material.Material
//	texture:<i>   texture.Texture
//	image:<i>     *texture.Image
//
// Lookups may block while the object is built and are safe for concurrent callers.
type ParserCache interface {
	// Get resolves a key. Concurrent and repeated callers for one key share a
	// single resolution.
	//
	// Parameters:
	//   - ctx: bounds the wait, not the resolution itself
	//   - key: the "<type>:<index>" key
	//
	// Returns:
	//   - any: the renderer-native object
	//   - error: ErrNotCached for unknown keys, or the resolution error
	Get(ctx context.Context, key string) (any, error)
}

// resolveFunc builds the object for one element.
type resolveFunc func(ctx context.Context, ref gltf.ElementRef) (any, error)

// cacheEntry is a memoized resolution.
type cacheEntry struct {
	done  chan struct{}
	value any
	err   error
}

// parserCache is the implementation of ParserCache over a document.
type parserCache struct {
	mu      sync.Mutex
	doc     *gltf.Document
	entries map[string]*cacheEntry
	resolve resolveFunc
}

var _ ParserCache = &parserCache{}

func newParserCache(doc *gltf.Document, resolve resolveFunc) *parserCache {
	return &parserCache{
		doc:     doc,
		entries: make(map[string]*cacheEntry),
		resolve: resolve,
	}
}

func (c *parserCache) Get(ctx context.Context, key string) (any, error) {
	ref, ok := parseCacheKey(key)
	if !ok || !c.doc.Contains(ref) {
		return nil, ErrNotCached
	}

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{done: make(chan struct{})}
		c.entries[key] = entry
		go func() {
			entry.value, entry.err = c.resolve(context.WithoutCancel(ctx), ref)
			close(entry.done)
		}()
	}
	c.mu.Unlock()

	select {
	case <-entry.done:
		return entry.value, entry.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// parseCacheKey splits a "<type>:<index>" key. Only materials, textures and images are cached.
func parseCacheKey(key string) (gltf.ElementRef, bool) {
	kind, idx, ok := strings.Cut(key, ":")
	if !ok {
		return gltf.ElementRef{}, false
	}
	index, err := strconv.Atoi(idx)
	if err != nil || index < 0 {
		return gltf.ElementRef{}, false
	}
	switch t := gltf.ElementType(kind); t {
	case gltf.ElementMaterial, gltf.ElementTexture, gltf.ElementImage:
		return gltf.Ref(t, index), true
	}
	return gltf.ElementRef{}, false
}
