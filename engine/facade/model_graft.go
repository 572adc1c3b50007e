package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-threedom/engine/correlation"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"
)

// MutationEvent describes a mutation applied through ModelGraft.Mutate.
type MutationEvent struct {
	Element  Element
	Property string
}

// MutationListener is notified after every successful ModelGraft.Mutate.
type MutationListener func(event MutationEvent)

// ModelGraft owns the correlation of one loaded (or cloned) scene graph and the
// facade tree built over it. Every element of the tree gets a process-wide unique id,
// so two grafts never share elements or ids. Writes through the facade update the
// correlated renderer objects and the glTF document under the graft lock.
type ModelGraft struct {
	// mu guards the glTF document and serializes facade writes.
	mu sync.RWMutex

	csg   correlation.CorrelatedSceneGraph
	model *Model

	elemMu   sync.Mutex
	elements map[int]Element
	leaves   map[gltf.ElementRef]Element
	bound    map[int][]texture.Texture

	// origins holds the images as loaded, for restoring buffer-view sources.
	origins []gltf.Image

	listenerMu sync.Mutex
	listeners  map[int]MutationListener
	nextListen int
}

// NewModelGraft builds the Model facade over a correlation. Material facades are
// built immediately; textures, samplers and images on first access.
//
// Parameters:
//   - modelURI: the URI the model was loaded from
//   - csg: the correlation of the loaded asset
//
// Returns:
//   - *ModelGraft: the graft
func NewModelGraft(modelURI string, csg correlation.CorrelatedSceneGraph) *ModelGraft {
	g := &ModelGraft{
		csg:       csg,
		elements:  make(map[int]Element),
		leaves:    make(map[gltf.ElementRef]Element),
		bound:     make(map[int][]texture.Texture),
		origins:   append([]gltf.Image(nil), csg.Document().Images...),
		listeners: make(map[int]MutationListener),
	}
	g.model = newModel(g, modelURI)
	return g
}

// Model returns the root facade.
func (g *ModelGraft) Model() *Model {
	return g.model
}

// CorrelatedSceneGraph returns the correlation the graft was built over.
func (g *ModelGraft) CorrelatedSceneGraph() correlation.CorrelatedSceneGraph {
	return g.csg
}

// Document returns the glTF document the facade writes to.
func (g *ModelGraft) Document() *gltf.Document {
	return g.csg.Document()
}

// ElementByID looks up an element by its internal id.
//
// Parameters:
//   - id: the element id
//
// Returns:
//   - Element: the element
//   - bool: false if no element of this graft has the id
func (g *ModelGraft) ElementByID(id int) (Element, bool) {
	g.elemMu.Lock()
	defer g.elemMu.Unlock()
	el, ok := g.elements[id]
	return el, ok
}

// Mutate sets a property on the element with the given id and notifies mutation listeners.
//
// Parameters:
//   - ctx: bounds any resource fetch the write needs
//   - id: the element id
//   - property: the protocol property name
//   - value: the new value
//
// Returns:
//   - error: ErrUnknownElement, UnknownPropertyError or the write error
func (g *ModelGraft) Mutate(ctx context.Context, id int, property string, value any) error {
	el, ok := g.ElementByID(id)
	if !ok {
		return fmt.Errorf("element %d: %w", id, ErrUnknownElement)
	}
	if err := el.Mutate(ctx, property, value); err != nil {
		return err
	}

	g.listenerMu.Lock()
	listeners := make([]MutationListener, 0, len(g.listeners))
	for _, l := range g.listeners {
		listeners = append(listeners, l)
	}
	g.listenerMu.Unlock()

	event := MutationEvent{Element: el, Property: property}
	for _, l := range listeners {
		l(event)
	}
	return nil
}

// AddMutationListener registers a listener for successful mutations.
//
// Parameters:
//   - listener: the listener
//
// Returns:
//   - func(): removes the listener
func (g *ModelGraft) AddMutationListener(listener MutationListener) func() {
	g.listenerMu.Lock()
	defer g.listenerMu.Unlock()
	g.nextListen++
	key := g.nextListen
	g.listeners[key] = listener
	return func() {
		g.listenerMu.Lock()
		defer g.listenerMu.Unlock()
		delete(g.listeners, key)
	}
}

// Export packs the current glTF document, with every applied mutation, into a GLB
// container. The first buffer without a URI becomes the binary chunk.
//
// Returns:
//   - []byte: the GLB bytes
//   - error: error if the document cannot be encoded
func (g *ModelGraft) Export() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := g.Document()
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	var bin []byte
	for _, buf := range doc.Buffers {
		if buf.URI == "" {
			bin = buf.Data
			break
		}
	}
	return gltf.PackGLB(jsonData, bin)
}

// adopt registers an element under its id.
func (g *ModelGraft) adopt(el Element) {
	g.elemMu.Lock()
	defer g.elemMu.Unlock()
	g.elements[el.InternalID()] = el
}

// leaf returns the facade for a texture, sampler or image element, creating it on first use.
func (g *ModelGraft) leaf(ref gltf.ElementRef, create func() Element) Element {
	g.elemMu.Lock()
	if el, ok := g.leaves[ref]; ok {
		g.elemMu.Unlock()
		return el
	}
	el := create()
	g.leaves[ref] = el
	g.elements[el.InternalID()] = el
	g.elemMu.Unlock()
	return el
}

func (g *ModelGraft) texture(index int) *Texture {
	return g.leaf(gltf.Ref(gltf.ElementTexture, index), func() Element {
		return newTexture(g, index)
	}).(*Texture)
}

func (g *ModelGraft) sampler(index int) *Sampler {
	return g.leaf(gltf.Ref(gltf.ElementSampler, index), func() Element {
		return newSampler(g, index)
	}).(*Sampler)
}

func (g *ModelGraft) image(index int) *Image {
	return g.leaf(gltf.Ref(gltf.ElementImage, index), func() Element {
		return newImage(g, index)
	}).(*Image)
}

// write runs fn under the graft write lock unless ctx has ended.
func (g *ModelGraft) write(ctx context.Context, fn func(doc *gltf.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.Document())
}

// read runs fn under the graft read lock.
func (g *ModelGraft) read(fn func(doc *gltf.Document)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(g.Document())
}
