package facade

import (
	"context"

	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"
)

// Model is the root facade of a graft.
type Model struct {
	element
	uri       string
	materials []*Material
}

var _ Element = &Model{}

// newModel builds the model facade and one Material facade per distinct material
// reachable from any scene, in pre-order depth-first order.
func newModel(g *ModelGraft, uri string) *Model {
	m := &Model{element: newElement(g, gltf.ElementRef{}), uri: uri}
	g.adopt(m)

	doc := g.Document()
	gltf.NewVisitor(gltf.VisitorCallbacks{
		Material: func(ref gltf.ElementRef, _ []gltf.ElementRef) {
			m.materials = append(m.materials, newMaterial(g, ref.Index))
		},
	}).Visit(doc, gltf.VisitOptions{AllScenes: true, Sparse: true})
	return m
}

func (m *Model) ElementType() string {
	return TypeModel
}

func (m *Model) Name() string {
	return ""
}

// ModelURI returns the URI the model was loaded from.
func (m *Model) ModelURI() string {
	return m.uri
}

// Materials returns the material facades in traversal order.
func (m *Model) Materials() []*Material {
	return append([]*Material(nil), m.materials...)
}

func (m *Model) Mutate(_ context.Context, property string, _ any) error {
	return &UnknownPropertyError{Property: property, ElementType: TypeModel}
}

// ToJSON serializes the facade tree. Leaf facades reachable from the materials are
// created so that every serialized id can be mutated.
//
// Returns:
//   - protocol.SerializedModel: the serialized model
func (m *Model) ToJSON() protocol.SerializedModel {
	out := protocol.SerializedModel{
		SerializedElement: protocol.SerializedElement{ID: m.id},
		ModelURI:          m.uri,
		Materials:         make([]protocol.SerializedMaterial, 0, len(m.materials)),
	}
	m.graft.read(func(doc *gltf.Document) {
		for _, mat := range m.materials {
			out.Materials = append(out.Materials, mat.toJSON(doc))
		}
	})
	return out
}
