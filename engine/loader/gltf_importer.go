package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-threedom/engine/scene"
)

// resourceFunc reads a resource referenced from within a document.
type resourceFunc func(ctx context.Context, uri string) ([]byte, string, error)

// gltfImporterImpl is the implementation of the gltfImporter interface.
type gltfImporterImpl struct {
	doc   *gltf.Document
	read  resourceFunc
	cache *parserCache

	// canonical maps each material index to the first index with an identical definition.
	canonical []int

	defaultOnce     sync.Once
	defaultMaterial material.Material
}

// gltfImporter defines the interface for turning a parsed glTF document into
// renderer-native scenes. Materials, textures and images are built on demand
// through the importer's ParserCache.
type gltfImporter interface {
	// Import builds one renderer scene per glTF scene. A document without scenes
	// yields a single scene holding every root node.
	//
	// Parameters:
	//   - ctx: the context bounding resource reads
	//
	// Returns:
	//   - []scene.Scene: the scenes in document order
	//   - error: error if a referenced material cannot be built
	Import(ctx context.Context) ([]scene.Scene, error)

	// Cache returns the cache resolving "<type>:<index>" keys for this document.
	//
	// Returns:
	//   - ParserCache: the cache
	Cache() ParserCache

	// ReadResource reads a resource referenced from the document.
	//
	// Parameters:
	//   - ctx: the context bounding the read
	//   - uri: the reference, relative to the document
	//
	// Returns:
	//   - []byte: the resource bytes
	//   - string: the declared MIME type, if any
	//   - error: error if the read fails
	ReadResource(ctx context.Context, uri string) ([]byte, string, error)
}

var _ gltfImporter = &gltfImporterImpl{}

// newGLTFImporter creates a new importer for a parsed document.
//
// Parameters:
//   - doc: the parsed document with buffers loaded
//   - read: reads resources referenced by the document
//   - dedupe: whether identical material definitions share one renderer material
//
// Returns:
//   - *gltfImporterImpl: the importer
func newGLTFImporter(doc *gltf.Document, read resourceFunc, dedupe bool) *gltfImporterImpl {
	imp := &gltfImporterImpl{
		doc:       doc,
		read:      read,
		canonical: canonicalMaterials(doc, dedupe),
	}
	imp.cache = newParserCache(doc, imp.resolve)
	return imp
}

func (imp *gltfImporterImpl) Import(ctx context.Context) ([]scene.Scene, error) {
	if len(imp.doc.Scenes) == 0 {
		roots := rootNodes(imp.doc)
		if len(roots) == 0 {
			return nil, nil
		}
		nodes, err := imp.buildNodes(ctx, roots, map[int]bool{})
		if err != nil {
			return nil, err
		}
		return []scene.Scene{scene.NewScene(scene.WithNodes(nodes...))}, nil
	}

	scenes := make([]scene.Scene, len(imp.doc.Scenes))
	for i, def := range imp.doc.Scenes {
		nodes, err := imp.buildNodes(ctx, def.Nodes, map[int]bool{})
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", i, err)
		}
		scenes[i] = scene.NewScene(scene.WithName(def.Name), scene.WithNodes(nodes...))
	}
	return scenes, nil
}

func (imp *gltfImporterImpl) Cache() ParserCache {
	return imp.cache
}

func (imp *gltfImporterImpl) ReadResource(ctx context.Context, uri string) ([]byte, string, error) {
	return imp.read(ctx, uri)
}

// buildNodes builds the renderer nodes for a list of node indices. Indices already on
// the current path are skipped so a malformed cyclic hierarchy terminates.
func (imp *gltfImporterImpl) buildNodes(ctx context.Context, indices []int, path map[int]bool) ([]*scene.Node, error) {
	var result []*scene.Node
	for _, idx := range indices {
		if idx < 0 || idx >= len(imp.doc.Nodes) || path[idx] {
			continue
		}
		node, err := imp.buildNode(ctx, idx, path)
		if err != nil {
			return nil, err
		}
		result = append(result, node)
	}
	return result, nil
}

func (imp *gltfImporterImpl) buildNode(ctx context.Context, idx int, path map[int]bool) (*scene.Node, error) {
	def := &imp.doc.Nodes[idx]
	node := &scene.Node{Name: def.Name}

	if def.Mesh != nil && *def.Mesh >= 0 && *def.Mesh < len(imp.doc.Meshes) {
		mesh, err := imp.buildMesh(ctx, *def.Mesh)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", idx, err)
		}
		node.Mesh = mesh
	}

	path[idx] = true
	children, err := imp.buildNodes(ctx, def.Children, path)
	delete(path, idx)
	if err != nil {
		return nil, err
	}
	node.Children = children
	return node, nil
}

func (imp *gltfImporterImpl) buildMesh(ctx context.Context, idx int) (*scene.Mesh, error) {
	def := &imp.doc.Meshes[idx]
	mesh := &scene.Mesh{Name: def.Name, Materials: make([]material.Material, len(def.Primitives))}

	for i, prim := range def.Primitives {
		if prim.Material == nil {
			mesh.Materials[i] = imp.fallbackMaterial()
			continue
		}
		value, err := imp.cache.Get(ctx, gltf.Ref(gltf.ElementMaterial, *prim.Material).CacheKey())
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", idx, i, err)
		}
		mesh.Materials[i] = value.(material.Material)
	}
	return mesh, nil
}

// fallbackMaterial is shared by every primitive that names no material.
func (imp *gltfImporterImpl) fallbackMaterial() material.Material {
	imp.defaultOnce.Do(func() {
		imp.defaultMaterial = material.NewMaterial(material.WithName("default"))
	})
	return imp.defaultMaterial
}

// rootNodes returns the nodes that are nobody's child.
func rootNodes(doc *gltf.Document) []int {
	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(isChild) {
				isChild[c] = true
			}
		}
	}
	var roots []int
	for i, child := range isChild {
		if !child {
			roots = append(roots, i)
		}
	}
	return roots
}

// canonicalMaterials maps every material to the first material with an identical
// definition, ignoring names. Without deduplication every material maps to itself.
func canonicalMaterials(doc *gltf.Document, dedupe bool) []int {
	canonical := make([]int, len(doc.Materials))
	var keys [][]byte
	for i := range doc.Materials {
		canonical[i] = i
		if !dedupe {
			continue
		}
		def := doc.Materials[i]
		def.Name = ""
		key, err := json.Marshal(def)
		if err != nil {
			keys = append(keys, nil)
			continue
		}
		for j, other := range keys {
			if other != nil && bytes.Equal(other, key) {
				canonical[i] = j
				break
			}
		}
		keys = append(keys, key)
	}
	return canonical
}
