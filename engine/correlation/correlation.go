package correlation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/loader"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"
	"github.com/Carmen-Shannon/oxy-threedom/engine/scene"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/golang/glog"
)

var errNoAsset = errors.New("asset has no document or cache")

// correlatedSceneGraph is the implementation of the CorrelatedSceneGraph interface.
type correlatedSceneGraph struct {
	asset *loader.Asset

	// order lists refs in first-visit order.
	order    []gltf.ElementRef
	elements map[gltf.ElementRef][]any
	refs     map[any][]gltf.ElementRef
}

// CorrelatedSceneGraph relates every glTF element of an asset's document to the
// renderer-native objects built from it. One element may map to several objects and
// one object may serve several elements. Materials map to renderer materials;
// textures, samplers and images map to the renderer textures that use them.
// The map is immutable once built.
type CorrelatedSceneGraph interface {
	// Asset returns the asset the graph was built from.
	//
	// Returns:
	//   - *loader.Asset: the asset
	Asset() *loader.Asset

	// Document returns the glTF document of the asset.
	//
	// Returns:
	//   - *gltf.Document: the document
	Document() *gltf.Document

	// ElementMap returns a copy of the element → objects map.
	//
	// Returns:
	//   - map[gltf.ElementRef][]any: the correlated objects per element
	ElementMap() map[gltf.ElementRef][]any

	// Refs returns every correlated element in first-visit order.
	//
	// Returns:
	//   - []gltf.ElementRef: the correlated elements
	Refs() []gltf.ElementRef

	// ObjectsFor returns the renderer objects correlated with an element.
	//
	// Parameters:
	//   - ref: the glTF element
	//
	// Returns:
	//   - []any: the objects, empty when the element is not correlated
	ObjectsFor(ref gltf.ElementRef) []any

	// MaterialsFor returns the renderer materials correlated with a material element.
	//
	// Parameters:
	//   - ref: the glTF element
	//
	// Returns:
	//   - []material.Material: the materials
	MaterialsFor(ref gltf.ElementRef) []material.Material

	// TexturesFor returns the renderer textures correlated with a texture, sampler or image element.
	//
	// Parameters:
	//   - ref: the glTF element
	//
	// Returns:
	//   - []texture.Texture: the textures
	TexturesFor(ref gltf.ElementRef) []texture.Texture

	// RefsFor returns the glTF elements a renderer object was correlated with.
	//
	// Parameters:
	//   - object: a renderer material or texture
	//
	// Returns:
	//   - []gltf.ElementRef: the elements, in first-visit order
	RefsFor(object any) []gltf.ElementRef
}

var _ CorrelatedSceneGraph = &correlatedSceneGraph{}

// lookup is one cache request issued while correlating.
type lookup struct {
	ref   gltf.ElementRef
	value any
	err   error
}

// From correlates an asset by visiting every scene of its document once and resolving
// each visited material and texture through the asset's cache. Lookups run in parallel;
// cache misses are left out of the graph.
//
// Parameters:
//   - ctx: bounds the cache lookups
//   - asset: the loaded asset
//   - options: a variadic list of CorrelationBuilderOption functions
//
// Returns:
//   - CorrelatedSceneGraph: the correlation
//   - error: error if ctx ends before the lookups complete
func From(ctx context.Context, asset *loader.Asset, options ...CorrelationBuilderOption) (CorrelatedSceneGraph, error) {
	if asset == nil || asset.Document == nil || asset.Cache == nil {
		return nil, errNoAsset
	}

	cfg := &correlationConfig{workers: runtime.NumCPU()}
	for _, option := range options {
		option(cfg)
	}

	doc := asset.Document
	var lookups []*lookup
	request := func(ref gltf.ElementRef, _ []gltf.ElementRef) {
		lookups = append(lookups, &lookup{ref: ref})
	}
	gltf.NewVisitor(gltf.VisitorCallbacks{
		Material: request,
		Texture:  request,
	}).Visit(doc, gltf.VisitOptions{AllScenes: true, Sparse: true})

	pool := cfg.pool
	if pool == nil {
		pool = worker.NewDynamicWorkerPool(cfg.workers, 256, 1*time.Second)
		defer pool.Stop()
	}

	var wg sync.WaitGroup
	for i, l := range lookups {
		wg.Add(1)
		l := l
		pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				l.value, l.err = asset.Cache.Get(ctx, l.ref.CacheKey())
				return l.value, l.err
			},
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to correlate %s: %w", asset.URL, err)
	}

	g := newGraph(asset)
	for _, l := range lookups {
		if l.err != nil {
			glog.V(2).Infof("[Correlation] %s not correlated: %v", l.ref, l.err)
			continue
		}
		g.add(l.ref, l.value)
		if l.ref.Type != gltf.ElementTexture {
			continue
		}
		def := doc.Textures[l.ref.Index]
		if def.Sampler != nil && doc.Contains(gltf.Ref(gltf.ElementSampler, *def.Sampler)) {
			g.add(gltf.Ref(gltf.ElementSampler, *def.Sampler), l.value)
		}
		if def.Source != nil && doc.Contains(gltf.Ref(gltf.ElementImage, *def.Source)) {
			g.add(gltf.Ref(gltf.ElementImage, *def.Source), l.value)
		}
	}
	return g, nil
}

// FromClone correlates a cloned asset by translating the source correlation through
// the clone mapping. Objects without a clone are left out.
//
// Parameters:
//   - source: the correlation of the original asset
//   - clone: the cloned asset
//   - cm: the original → clone mapping returned by Asset.Clone
//
// Returns:
//   - CorrelatedSceneGraph: the correlation of the clone
func FromClone(source CorrelatedSceneGraph, clone *loader.Asset, cm *scene.CloneMap) CorrelatedSceneGraph {
	g := newGraph(clone)
	for _, ref := range source.Refs() {
		for _, obj := range source.ObjectsFor(ref) {
			switch o := obj.(type) {
			case material.Material:
				if c, ok := cm.Materials[o]; ok {
					g.add(ref, c)
				}
			case texture.Texture:
				if c, ok := cm.Textures[o]; ok {
					g.add(ref, c)
				}
			}
		}
	}
	return g
}

func newGraph(asset *loader.Asset) *correlatedSceneGraph {
	return &correlatedSceneGraph{
		asset:    asset,
		elements: make(map[gltf.ElementRef][]any),
		refs:     make(map[any][]gltf.ElementRef),
	}
}

// add records a pair once.
func (g *correlatedSceneGraph) add(ref gltf.ElementRef, obj any) {
	objects, ok := g.elements[ref]
	if !ok {
		g.order = append(g.order, ref)
	}
	for _, existing := range objects {
		if existing == obj {
			return
		}
	}
	g.elements[ref] = append(objects, obj)
	g.refs[obj] = append(g.refs[obj], ref)
}

func (g *correlatedSceneGraph) Asset() *loader.Asset {
	return g.asset
}

func (g *correlatedSceneGraph) Document() *gltf.Document {
	return g.asset.Document
}

func (g *correlatedSceneGraph) ElementMap() map[gltf.ElementRef][]any {
	result := make(map[gltf.ElementRef][]any, len(g.elements))
	for ref, objects := range g.elements {
		result[ref] = append([]any(nil), objects...)
	}
	return result
}

func (g *correlatedSceneGraph) Refs() []gltf.ElementRef {
	return append([]gltf.ElementRef(nil), g.order...)
}

func (g *correlatedSceneGraph) ObjectsFor(ref gltf.ElementRef) []any {
	return append([]any(nil), g.elements[ref]...)
}

func (g *correlatedSceneGraph) MaterialsFor(ref gltf.ElementRef) []material.Material {
	var result []material.Material
	for _, obj := range g.elements[ref] {
		if m, ok := obj.(material.Material); ok {
			result = append(result, m)
		}
	}
	return result
}

func (g *correlatedSceneGraph) TexturesFor(ref gltf.ElementRef) []texture.Texture {
	var result []texture.Texture
	for _, obj := range g.elements[ref] {
		if t, ok := obj.(texture.Texture); ok {
			result = append(result, t)
		}
	}
	return result
}

func (g *correlatedSceneGraph) RefsFor(object any) []gltf.ElementRef {
	if object == nil {
		return nil
	}
	return append([]gltf.ElementRef(nil), g.refs[object]...)
}
