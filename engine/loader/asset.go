package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"
	"github.com/Carmen-Shannon/oxy-threedom/engine/scene"
)

var errNoResourceReader = errors.New("asset has no resource reader")

// Asset is the result of a load: the parsed glTF document, the renderer scenes built
// from it and the cache relating the two.
type Asset struct {
	// URL is where the asset was loaded from.
	URL string

	// Document is the parsed glTF document.
	Document *gltf.Document

	// Scenes holds one renderer scene per glTF scene.
	Scenes []scene.Scene

	// Scene is the default scene, nil if the document has none.
	Scene scene.Scene

	// Cache resolves "<type>:<index>" keys to renderer objects.
	Cache ParserCache

	read     resourceFunc
	mu       sync.Mutex
	disposed bool
}

// ReadResource reads a resource relative to the asset's location, the way the loader
// read the asset's own images.
//
// Parameters:
//   - ctx: the context bounding the read
//   - uri: a data URI, a path relative to the asset, or an absolute URL
//
// Returns:
//   - []byte: the resource bytes
//   - string: the MIME type declared by a data URI, if any
//   - error: error if the read fails
func (a *Asset) ReadResource(ctx context.Context, uri string) ([]byte, string, error) {
	if a.read == nil {
		return nil, "", errNoResourceReader
	}
	return a.read(ctx, uri)
}

// Clone deep-copies the asset. The copy has its own document, scenes, materials and
// textures; shared materials and textures stay shared within the copy. Images and
// buffer payloads are immutable and shared with the original.
//
// Returns:
//   - *Asset: the copy
//   - *scene.CloneMap: the original → copy mapping of materials and textures
//   - error: error if the document cannot be copied
func (a *Asset) Clone() (*Asset, *scene.CloneMap, error) {
	doc, err := cloneDocument(a.Document)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to clone document: %w", err)
	}

	scenes, cm := scene.Clone(a.Scenes)
	clone := &Asset{
		URL:      a.URL,
		Document: doc,
		Scenes:   scenes,
		Cache:    &cloneCache{source: a.Cache, cm: cm},
		read:     a.read,
	}
	for i, s := range a.Scenes {
		if s == a.Scene {
			clone.Scene = scenes[i]
		}
	}
	return clone, cm, nil
}

// Dispose releases every material and texture of the asset. It is idempotent.
func (a *Asset) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	a.disposed = true

	materials := make(map[material.Material]struct{})
	textures := make(map[texture.Texture]struct{})
	for _, s := range a.Scenes {
		for _, m := range s.Materials() {
			materials[m] = struct{}{}
		}
		for _, t := range s.Textures() {
			textures[t] = struct{}{}
		}
	}
	for m := range materials {
		m.Dispose()
	}
	for t := range textures {
		t.Dispose()
	}
}

// Disposed reports whether Dispose has been called.
func (a *Asset) Disposed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disposed
}

// cloneCache resolves keys of a cloned asset through the original's cache and the clone mapping.
// Objects that were not reachable from the original's scenes have no clone and are reported missing.
type cloneCache struct {
	source ParserCache
	cm     *scene.CloneMap
}

var _ ParserCache = &cloneCache{}

func (c *cloneCache) Get(ctx context.Context, key string) (any, error) {
	value, err := c.source.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case material.Material:
		if clone, ok := c.cm.Materials[v]; ok {
			return clone, nil
		}
		return nil, ErrNotCached
	case texture.Texture:
		if clone, ok := c.cm.Textures[v]; ok {
			return clone, nil
		}
		return nil, ErrNotCached
	}
	return value, nil
}

// cloneDocument copies a document through its JSON form and reattaches buffer payloads.
func cloneDocument(doc *gltf.Document) (*gltf.Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var clone gltf.Document
	if err := json.Unmarshal(raw, &clone); err != nil {
		return nil, err
	}
	for i := range clone.Buffers {
		if i < len(doc.Buffers) {
			clone.Buffers[i].Data = doc.Buffers[i].Data
		}
	}
	return &clone, nil
}
