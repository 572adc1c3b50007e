package facade

import (
	"context"

	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"
)

// Sampler is the facade of a glTF sampler. Writes reach every renderer texture of
// every glTF texture using the sampler.
type Sampler struct {
	element
}

var _ Element = &Sampler{}

func newSampler(g *ModelGraft, index int) *Sampler {
	return &Sampler{element: newElement(g, gltf.Ref(gltf.ElementSampler, index))}
}

func (s *Sampler) ElementType() string {
	return TypeSampler
}

// Name returns the sampler name carried by the renderer textures using the sampler.
func (s *Sampler) Name() string {
	var out string
	s.graft.read(func(doc *gltf.Document) {
		out = s.name(doc)
	})
	return out
}

// Index returns the glTF sampler index.
func (s *Sampler) Index() int {
	return s.ref.Index
}

// MinFilter returns the glTF minification filter, nil when unset.
func (s *Sampler) MinFilter() *int {
	var out *int
	s.graft.read(func(doc *gltf.Document) {
		out = copyIndex(s.def(doc).MinFilter)
	})
	return out
}

// MagFilter returns the glTF magnification filter, nil when unset.
func (s *Sampler) MagFilter() *int {
	var out *int
	s.graft.read(func(doc *gltf.Document) {
		out = copyIndex(s.def(doc).MagFilter)
	})
	return out
}

// WrapS returns the glTF U wrap mode, REPEAT when unset.
func (s *Sampler) WrapS() int {
	var out int
	s.graft.read(func(doc *gltf.Document) {
		out = wrapMode(s.def(doc).WrapS)
	})
	return out
}

// WrapT returns the glTF V wrap mode, REPEAT when unset.
func (s *Sampler) WrapT() int {
	var out int
	s.graft.read(func(doc *gltf.Document) {
		out = wrapMode(s.def(doc).WrapT)
	})
	return out
}

// SetMinFilter sets the minification filter.
//
// Parameters:
//   - ctx: cancels the write before it starts
//   - filter: a glTF minFilter constant, nil for the default
//
// Returns:
//   - error: error if the constant is invalid or a texture rejects the write
func (s *Sampler) SetMinFilter(ctx context.Context, filter *int) error {
	update := func(state common.SamplerState) (common.SamplerState, error) {
		if filter == nil {
			def := common.DefaultSamplerState()
			state.MinFilter, state.MipmapFilter, state.Mipmaps = def.MinFilter, def.MipmapFilter, def.Mipmaps
			return state, nil
		}
		return texture.WithMinFilter(state, *filter)
	}
	return s.update(ctx, update, func(def *gltf.Sampler) { def.MinFilter = copyIndex(filter) })
}

// SetMagFilter sets the magnification filter.
//
// Parameters:
//   - ctx: cancels the write before it starts
//   - filter: a glTF magFilter constant, nil for the default
//
// Returns:
//   - error: error if the constant is invalid or a texture rejects the write
func (s *Sampler) SetMagFilter(ctx context.Context, filter *int) error {
	update := func(state common.SamplerState) (common.SamplerState, error) {
		if filter == nil {
			state.MagFilter = common.DefaultSamplerState().MagFilter
			return state, nil
		}
		return texture.WithMagFilter(state, *filter)
	}
	return s.update(ctx, update, func(def *gltf.Sampler) { def.MagFilter = copyIndex(filter) })
}

// SetWrapS sets the U wrap mode.
//
// Parameters:
//   - ctx: cancels the write before it starts
//   - wrap: a glTF wrap constant
//
// Returns:
//   - error: error if the constant is invalid or a texture rejects the write
func (s *Sampler) SetWrapS(ctx context.Context, wrap int) error {
	update := func(state common.SamplerState) (common.SamplerState, error) {
		mode, err := texture.AddressModeFromGLTF(wrap)
		state.AddressModeU = mode
		return state, err
	}
	return s.update(ctx, update, func(def *gltf.Sampler) { def.WrapS = &wrap })
}

// SetWrapT sets the V wrap mode.
//
// Parameters:
//   - ctx: cancels the write before it starts
//   - wrap: a glTF wrap constant
//
// Returns:
//   - error: error if the constant is invalid or a texture rejects the write
func (s *Sampler) SetWrapT(ctx context.Context, wrap int) error {
	update := func(state common.SamplerState) (common.SamplerState, error) {
		mode, err := texture.AddressModeFromGLTF(wrap)
		state.AddressModeV = mode
		return state, err
	}
	return s.update(ctx, update, func(def *gltf.Sampler) { def.WrapT = &wrap })
}

func (s *Sampler) Mutate(ctx context.Context, property string, value any) error {
	switch property {
	case "minFilter", "magFilter":
		var filter *int
		if err := decodeValue(value, &filter); err != nil {
			return err
		}
		if property == "minFilter" {
			return s.SetMinFilter(ctx, filter)
		}
		return s.SetMagFilter(ctx, filter)
	case "wrapS", "wrapT":
		var wrap int
		if err := decodeValue(value, &wrap); err != nil {
			return err
		}
		if property == "wrapS" {
			return s.SetWrapS(ctx, wrap)
		}
		return s.SetWrapT(ctx, wrap)
	default:
		return &UnknownPropertyError{Property: property, ElementType: TypeSampler}
	}
}

// update validates the change against the default state, then applies it to every
// texture using the sampler before recording it in the document.
func (s *Sampler) update(ctx context.Context, fn func(common.SamplerState) (common.SamplerState, error), record func(def *gltf.Sampler)) error {
	if _, err := fn(common.DefaultSamplerState()); err != nil {
		return err
	}
	return s.graft.write(ctx, func(doc *gltf.Document) error {
		textures := s.graft.texturesUsing(doc, s.ref.Index, func(def *gltf.Texture) *int { return def.Sampler })
		err := applyTextures(textures, func(tex texture.Texture) error {
			state, err := fn(tex.Sampler())
			if err != nil {
				return err
			}
			return tex.SetSampler(state)
		})
		if err != nil {
			return err
		}
		record(s.def(doc))
		return nil
	})
}

func (s *Sampler) toJSON(doc *gltf.Document) protocol.SerializedSampler {
	def := s.def(doc)
	return protocol.SerializedSampler{
		SerializedElement: protocol.SerializedElement{ID: s.id, Name: s.name(doc)},
		Index:             s.ref.Index,
		MinFilter:         copyIndex(def.MinFilter),
		MagFilter:         copyIndex(def.MagFilter),
		WrapS:             wrapMode(def.WrapS),
		WrapT:             wrapMode(def.WrapT),
	}
}

func (s *Sampler) name(doc *gltf.Document) string {
	for _, tex := range s.graft.texturesUsing(doc, s.ref.Index, func(def *gltf.Texture) *int { return def.Sampler }) {
		if name := tex.Sampler().Name; name != "" {
			return name
		}
	}
	return ""
}

func (s *Sampler) def(doc *gltf.Document) *gltf.Sampler {
	return &doc.Samplers[s.ref.Index]
}

func wrapMode(wrap *int) int {
	if wrap == nil {
		return gltf.WrapRepeat
	}
	return *wrap
}
