package facade

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"
)

// Texture is the facade of a glTF texture: a sampler plus an image source.
type Texture struct {
	element
}

var _ Element = &Texture{}

func newTexture(g *ModelGraft, index int) *Texture {
	return &Texture{element: newElement(g, gltf.Ref(gltf.ElementTexture, index))}
}

func (t *Texture) ElementType() string {
	return TypeTexture
}

func (t *Texture) Name() string {
	return userDataName(t.textures())
}

// Index returns the glTF texture index.
func (t *Texture) Index() int {
	return t.ref.Index
}

// Sampler returns the facade of the texture's sampler, nil when it uses the defaults.
func (t *Texture) Sampler() *Sampler {
	var index *int
	t.graft.read(func(doc *gltf.Document) {
		index = copyIndex(t.def(doc).Sampler)
	})
	if index == nil {
		return nil
	}
	return t.graft.sampler(*index)
}

// Source returns the facade of the texture's image, nil when it has none.
func (t *Texture) Source() *Image {
	var index *int
	t.graft.read(func(doc *gltf.Document) {
		index = copyIndex(t.def(doc).Source)
	})
	if index == nil {
		return nil
	}
	return t.graft.image(*index)
}

// SetSampler switches the texture to another glTF sampler on every correlated texture.
//
// Parameters:
//   - ctx: cancels the write before it starts
//   - index: the glTF sampler index, nil for the default sampler
//
// Returns:
//   - error: error if the index is out of range or a texture rejects the write
func (t *Texture) SetSampler(ctx context.Context, index *int) error {
	return t.graft.write(ctx, func(doc *gltf.Document) error {
		if err := checkIndex(doc, gltf.ElementSampler, index); err != nil {
			return err
		}
		var def *gltf.Sampler
		if index != nil {
			def = &doc.Samplers[*index]
		}
		state := texture.SamplerFromGLTF(def)
		if err := applyTextures(t.textures(), func(tex texture.Texture) error { return tex.SetSampler(state) }); err != nil {
			return err
		}
		t.def(doc).Sampler = copyIndex(index)
		return nil
	})
}

// SetSource switches the texture to another glTF image on every correlated texture.
//
// Parameters:
//   - ctx: bounds loading the image
//   - index: the glTF image index, nil to unbind the image
//
// Returns:
//   - error: error if the index is out of range, the image fails to load or a
//     texture rejects the write
func (t *Texture) SetSource(ctx context.Context, index *int) error {
	var image *texture.Image
	if index != nil {
		if err := checkIndex(t.graft.Document(), gltf.ElementImage, index); err != nil {
			return err
		}
		img, err := t.graft.imageFor(ctx, *index)
		if err != nil {
			return err
		}
		image = img
	}

	return t.graft.write(ctx, func(doc *gltf.Document) error {
		if err := applyTextures(t.textures(), func(tex texture.Texture) error { return tex.SetImage(image) }); err != nil {
			return err
		}
		t.def(doc).Source = copyIndex(index)
		return nil
	})
}

func (t *Texture) Mutate(ctx context.Context, property string, value any) error {
	var index *int
	switch property {
	case "sampler":
		if err := decodeValue(value, &index); err != nil {
			return err
		}
		return t.SetSampler(ctx, index)
	case "source":
		if err := decodeValue(value, &index); err != nil {
			return err
		}
		return t.SetSource(ctx, index)
	default:
		return &UnknownPropertyError{Property: property, ElementType: TypeTexture}
	}
}

func (t *Texture) toJSON(doc *gltf.Document) protocol.SerializedTexture {
	def := t.def(doc)
	out := protocol.SerializedTexture{
		SerializedElement: protocol.SerializedElement{ID: t.id, Name: t.Name()},
		Index:             t.ref.Index,
	}
	if def.Sampler != nil && doc.Contains(gltf.Ref(gltf.ElementSampler, *def.Sampler)) {
		sampler := t.graft.sampler(*def.Sampler).toJSON(doc)
		out.Sampler = &sampler
	}
	if def.Source != nil && doc.Contains(gltf.Ref(gltf.ElementImage, *def.Source)) {
		image := t.graft.image(*def.Source).toJSON(doc)
		out.Source = &image
	}
	return out
}

func (t *Texture) def(doc *gltf.Document) *gltf.Texture {
	return &doc.Textures[t.ref.Index]
}

func (t *Texture) textures() []texture.Texture {
	return t.graft.texturesFor(t.ref.Index)
}

// imageFor returns the loader's image for a glTF image index.
func (g *ModelGraft) imageFor(ctx context.Context, index int) (*texture.Image, error) {
	value, err := g.csg.Asset().Cache.Get(ctx, gltf.Ref(gltf.ElementImage, index).CacheKey())
	if err != nil {
		return nil, fmt.Errorf("failed to load image %d: %w", index, err)
	}
	image, ok := value.(*texture.Image)
	if !ok {
		return nil, fmt.Errorf("image %d resolved to %T", index, value)
	}
	return image, nil
}

// texturesUsing returns the renderer textures of every glTF texture whose field
// selected by pick equals index. Must be called with the graft lock held.
func (g *ModelGraft) texturesUsing(doc *gltf.Document, index int, pick func(def *gltf.Texture) *int) []texture.Texture {
	var result []texture.Texture
	for i := range doc.Textures {
		if ref := pick(&doc.Textures[i]); ref == nil || *ref != index {
			continue
		}
		for _, tex := range g.texturesFor(i) {
			if !containsTexture(result, tex) {
				result = append(result, tex)
			}
		}
	}
	return result
}

func applyTextures(textures []texture.Texture, fn func(tex texture.Texture) error) error {
	for _, tex := range textures {
		if err := fn(tex); err != nil {
			return fmt.Errorf("failed to update texture %q: %w", tex.Name(), err)
		}
	}
	return nil
}

func copyIndex(index *int) *int {
	if index == nil {
		return nil
	}
	v := *index
	return &v
}
