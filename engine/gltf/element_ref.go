package gltf

import "fmt"

// ElementType names a top-level glTF element array.
type ElementType string

const (
	ElementScene    ElementType = "scene"
	ElementNode     ElementType = "node"
	ElementMesh     ElementType = "mesh"
	ElementMaterial ElementType = "material"
	ElementTexture  ElementType = "texture"
	ElementSampler  ElementType = "sampler"
	ElementImage    ElementType = "image"
)

// ElementRef identifies a glTF element by its position within its type's array.
// It is comparable and used as a map key.
type ElementRef struct {
	Type  ElementType
	Index int
}

// Ref builds an ElementRef.
func Ref(t ElementType, index int) ElementRef {
	return ElementRef{Type: t, Index: index}
}

// CacheKey returns the "<type>:<index>" key used by loader caches.
func (r ElementRef) CacheKey() string {
	return fmt.Sprintf("%s:%d", r.Type, r.Index)
}

func (r ElementRef) String() string {
	return r.CacheKey()
}

// Len returns the number of elements of type t in the document.
//
// Parameters:
//   - t: the element type
//
// Returns:
//   - int: the element count, 0 for unknown types
func (d *Document) Len(t ElementType) int {
	switch t {
	case ElementScene:
		return len(d.Scenes)
	case ElementNode:
		return len(d.Nodes)
	case ElementMesh:
		return len(d.Meshes)
	case ElementMaterial:
		return len(d.Materials)
	case ElementTexture:
		return len(d.Textures)
	case ElementSampler:
		return len(d.Samplers)
	case ElementImage:
		return len(d.Images)
	}
	return 0
}

// Contains reports whether ref points at an element that exists in the document.
func (d *Document) Contains(ref ElementRef) bool {
	return ref.Index >= 0 && ref.Index < d.Len(ref.Type)
}
