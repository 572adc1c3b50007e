package gltf

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two scenes; mesh 0 is instanced by two nodes and uses material 0 twice, texture 0 is shared.
const visitorFixture = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0, 1]}, {"nodes": [2]}],
  "nodes": [
    {"mesh": 0, "children": [3]},
    {"mesh": 0},
    {"mesh": 1},
    {"name": "leaf"}
  ],
  "meshes": [
    {"primitives": [{"attributes": {}, "material": 0}, {"attributes": {}, "material": 0}, {"attributes": {}, "material": 1}]},
    {"primitives": [{"attributes": {}, "material": 2}]}
  ],
  "materials": [
    {"pbrMetallicRoughness": {"baseColorTexture": {"index": 0}}},
    {"normalTexture": {"index": 0}, "emissiveTexture": {"index": 1}},
    {}
  ],
  "textures": [{"sampler": 0, "source": 0}, {"source": 1}],
  "samplers": [{"magFilter": 9728}],
  "images": [{"uri": "a.png"}, {"uri": "b.png"}]
}`

func decodeFixture(t *testing.T, text string) *Document {
	t.Helper()
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(text), &doc))
	return &doc
}

func collect(doc *Document, options VisitOptions) []ElementRef {
	var order []ElementRef
	record := func(ref ElementRef, _ []ElementRef) { order = append(order, ref) }
	NewVisitor(VisitorCallbacks{
		Material: record,
		Texture:  record,
		Sampler:  record,
		Image:    record,
	}).Visit(doc, options)
	return order
}

func TestVisitorSparseDefaultScene(t *testing.T) {
	doc := decodeFixture(t, visitorFixture)

	order := collect(doc, VisitOptions{Sparse: true})
	assert.Equal(t, []ElementRef{
		Ref(ElementMaterial, 0),
		Ref(ElementTexture, 0),
		Ref(ElementSampler, 0),
		Ref(ElementImage, 0),
		Ref(ElementMaterial, 1),
		Ref(ElementTexture, 1),
		Ref(ElementImage, 1),
	}, order)
}

func TestVisitorAllScenes(t *testing.T) {
	doc := decodeFixture(t, visitorFixture)

	var materials []int
	NewVisitor(VisitorCallbacks{
		Material: func(ref ElementRef, _ []ElementRef) { materials = append(materials, ref.Index) },
	}).Visit(doc, VisitOptions{AllScenes: true, Sparse: true})

	assert.Equal(t, []int{0, 1, 2}, materials)
}

func TestVisitorDenseRevisits(t *testing.T) {
	doc := decodeFixture(t, visitorFixture)

	var materials []int
	NewVisitor(VisitorCallbacks{
		Material: func(ref ElementRef, _ []ElementRef) { materials = append(materials, ref.Index) },
	}).Visit(doc, VisitOptions{})

	// Two nodes instance mesh 0, and mesh 0 lists material 0 twice.
	assert.Equal(t, []int{0, 0, 1, 0, 0, 1}, materials)
}

func TestVisitorHierarchy(t *testing.T) {
	doc := decodeFixture(t, visitorFixture)

	var chain []ElementRef
	NewVisitor(VisitorCallbacks{
		Sampler: func(_ ElementRef, hierarchy []ElementRef) {
			chain = append([]ElementRef(nil), hierarchy...)
		},
	}).Visit(doc, VisitOptions{Sparse: true})

	assert.Equal(t, []ElementRef{
		Ref(ElementScene, 0),
		Ref(ElementNode, 0),
		Ref(ElementMesh, 0),
		Ref(ElementMaterial, 0),
		Ref(ElementTexture, 0),
		Ref(ElementSampler, 0),
	}, chain)
}

func TestVisitorSkipsDanglingReferences(t *testing.T) {
	doc := decodeFixture(t, `{"asset":{"version":"2.0"},"scene":0,"scenes":[{"nodes":[5]}]}`)
	assert.Empty(t, collect(doc, VisitOptions{Sparse: true}))
}

func TestElementRefCacheKey(t *testing.T) {
	assert.Equal(t, "material:3", Ref(ElementMaterial, 3).CacheKey())
	assert.Equal(t, "image:0", Ref(ElementImage, 0).String())
}
