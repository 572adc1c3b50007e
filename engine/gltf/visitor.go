package gltf

// VisitFunc receives a visited element's reference and the chain of ancestor
// references leading to it (inclusive of the element itself). The hierarchy
// slice is reused between calls and must be copied to be retained.
type VisitFunc func(ref ElementRef, hierarchy []ElementRef)

// VisitorCallbacks holds one optional callback per element type.
type VisitorCallbacks struct {
	Scene    VisitFunc
	Node     VisitFunc
	Mesh     VisitFunc
	Material VisitFunc
	Texture  VisitFunc
	Sampler  VisitFunc
	Image    VisitFunc
}

// VisitOptions configures a traversal.
type VisitOptions struct {
	// AllScenes visits every scene instead of only the default one.
	AllScenes bool

	// Sparse visits each element at most once even when it is referenced several times.
	Sparse bool
}

// Visitor walks a document in a fixed pre-order, depth-first order:
// scenes → nodes → meshes → primitives → materials → textures → {sampler, image}.
// Traversal order follows the hierarchy, not element indices.
type Visitor struct {
	callbacks VisitorCallbacks
}

// visitState is the per-traversal bookkeeping.
type visitState struct {
	doc       *Document
	sparse    bool
	visited   map[ElementRef]struct{}
	hierarchy []ElementRef
}

// NewVisitor creates a Visitor with the given callbacks.
//
// Parameters:
//   - callbacks: the per-type callbacks; nil entries are skipped
//
// Returns:
//   - *Visitor: the visitor
func NewVisitor(callbacks VisitorCallbacks) *Visitor {
	return &Visitor{callbacks: callbacks}
}

// Visit traverses doc with the configured callbacks.
//
// Parameters:
//   - doc: the document to traverse
//   - options: traversal options
func (v *Visitor) Visit(doc *Document, options VisitOptions) {
	state := &visitState{
		doc:     doc,
		sparse:  options.Sparse,
		visited: make(map[ElementRef]struct{}),
	}

	if options.AllScenes {
		for i := range doc.Scenes {
			v.visitScene(i, state)
		}
		return
	}
	if doc.Scene != nil {
		v.visitScene(*doc.Scene, state)
	}
}

// visitElement handles the sparse check, hierarchy bookkeeping and the callback,
// then descends through traverse.
func (v *Visitor) visitElement(ref ElementRef, state *visitState, visit VisitFunc, traverse func()) {
	if !state.doc.Contains(ref) {
		return
	}
	if _, seen := state.visited[ref]; seen && state.sparse {
		return
	}
	state.visited[ref] = struct{}{}
	state.hierarchy = append(state.hierarchy, ref)

	if visit != nil {
		visit(ref, state.hierarchy)
	}
	if traverse != nil {
		traverse()
	}

	state.hierarchy = state.hierarchy[:len(state.hierarchy)-1]
}

func (v *Visitor) visitScene(index int, state *visitState) {
	v.visitElement(Ref(ElementScene, index), state, v.callbacks.Scene, func() {
		for _, node := range state.doc.Scenes[index].Nodes {
			v.visitNode(node, state)
		}
	})
}

func (v *Visitor) visitNode(index int, state *visitState) {
	v.visitElement(Ref(ElementNode, index), state, v.callbacks.Node, func() {
		node := &state.doc.Nodes[index]
		if node.Mesh != nil {
			v.visitMesh(*node.Mesh, state)
		}
		for _, child := range node.Children {
			v.visitNode(child, state)
		}
	})
}

func (v *Visitor) visitMesh(index int, state *visitState) {
	v.visitElement(Ref(ElementMesh, index), state, v.callbacks.Mesh, func() {
		for _, primitive := range state.doc.Meshes[index].Primitives {
			if primitive.Material != nil {
				v.visitMaterial(*primitive.Material, state)
			}
		}
	})
}

func (v *Visitor) visitMaterial(index int, state *visitState) {
	v.visitElement(Ref(ElementMaterial, index), state, v.callbacks.Material, func() {
		for _, textureIndex := range MaterialTextureIndices(&state.doc.Materials[index]) {
			v.visitTexture(textureIndex, state)
		}
	})
}

func (v *Visitor) visitTexture(index int, state *visitState) {
	v.visitElement(Ref(ElementTexture, index), state, v.callbacks.Texture, func() {
		texture := &state.doc.Textures[index]
		if texture.Sampler != nil {
			v.visitElement(Ref(ElementSampler, *texture.Sampler), state, v.callbacks.Sampler, nil)
		}
		if texture.Source != nil {
			v.visitElement(Ref(ElementImage, *texture.Source), state, v.callbacks.Image, nil)
		}
	})
}

// MaterialTextureIndices lists the texture indices a material references, in slot order:
// base color, metallic-roughness, normal, occlusion, emissive.
//
// Parameters:
//   - m: the material
//
// Returns:
//   - []int: the referenced texture indices, duplicates included
func MaterialTextureIndices(m *Material) []int {
	var indices []int
	if pbr := m.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorTexture != nil {
			indices = append(indices, pbr.BaseColorTexture.Index)
		}
		if pbr.MetallicRoughnessTexture != nil {
			indices = append(indices, pbr.MetallicRoughnessTexture.Index)
		}
	}
	if m.NormalTexture != nil {
		indices = append(indices, m.NormalTexture.Index)
	}
	if m.OcclusionTexture != nil {
		indices = append(indices, m.OcclusionTexture.Index)
	}
	if m.EmissiveTexture != nil {
		indices = append(indices, m.EmissiveTexture.Index)
	}
	return indices
}
