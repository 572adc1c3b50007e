package facade

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/material"
)

const defaultAlphaCutoff float32 = 0.5

// Material is the facade of a glTF material. Writes fan out to every renderer
// material correlated with it.
type Material struct {
	element
	pbr              *PBRMetallicRoughness
	normalTexture    *TextureInfo
	occlusionTexture *TextureInfo
	emissiveTexture  *TextureInfo
}

var _ Element = &Material{}

func newMaterial(g *ModelGraft, index int) *Material {
	m := &Material{element: newElement(g, gltf.Ref(gltf.ElementMaterial, index))}
	g.adopt(m)
	m.pbr = newPBRMetallicRoughness(m)
	m.normalTexture = newTextureInfo(m, normalSlot)
	m.occlusionTexture = newTextureInfo(m, occlusionSlot)
	m.emissiveTexture = newTextureInfo(m, emissiveSlot)
	return m
}

func (m *Material) ElementType() string {
	return TypeMaterial
}

func (m *Material) Name() string {
	return userDataName(m.materials())
}

// Index returns the glTF material index.
func (m *Material) Index() int {
	return m.ref.Index
}

// PBRMetallicRoughness returns the metallic-roughness facade of the material.
func (m *Material) PBRMetallicRoughness() *PBRMetallicRoughness {
	return m.pbr
}

// NormalTexture returns the normal map slot.
func (m *Material) NormalTexture() *TextureInfo {
	return m.normalTexture
}

// OcclusionTexture returns the occlusion map slot.
func (m *Material) OcclusionTexture() *TextureInfo {
	return m.occlusionTexture
}

// EmissiveTexture returns the emissive map slot.
func (m *Material) EmissiveTexture() *TextureInfo {
	return m.emissiveTexture
}

// EmissiveFactor returns the emissive color, black when unset.
func (m *Material) EmissiveFactor() [3]float32 {
	var out [3]float32
	m.graft.read(func(doc *gltf.Document) {
		out = emissiveFactor(m.def(doc))
	})
	return out
}

// AlphaMode returns the alpha mode, OPAQUE when unset.
func (m *Material) AlphaMode() string {
	var out string
	m.graft.read(func(doc *gltf.Document) {
		out = common.Coalesce(m.def(doc).AlphaMode, gltf.AlphaModeOpaque)
	})
	return out
}

// AlphaCutoff returns the alpha cutoff, 0.5 when unset.
func (m *Material) AlphaCutoff() float32 {
	var out float32
	m.graft.read(func(doc *gltf.Document) {
		out = alphaCutoff(m.def(doc))
	})
	return out
}

// DoubleSided reports whether back faces are rendered.
func (m *Material) DoubleSided() bool {
	var out bool
	m.graft.read(func(doc *gltf.Document) {
		out = m.def(doc).DoubleSided
	})
	return out
}

// SetEmissiveFactor sets the emissive color on every correlated material.
//
// Parameters:
//   - ctx: cancels the write before it starts
//   - factor: the linear RGB emissive color
//
// Returns:
//   - error: error if a correlated material rejects the write
func (m *Material) SetEmissiveFactor(ctx context.Context, factor [3]float32) error {
	return m.graft.write(ctx, func(doc *gltf.Document) error {
		if err := m.apply(func(mat material.Material) error { return mat.SetEmissive(common.RGB(factor)) }); err != nil {
			return err
		}
		m.def(doc).EmissiveFactor = &factor
		return nil
	})
}

// SetAlphaMode sets the alpha mode on every correlated material.
//
// Parameters:
//   - ctx: cancels the write before it starts
//   - mode: OPAQUE, MASK or BLEND
//
// Returns:
//   - error: error if the mode is invalid or a correlated material rejects the write
func (m *Material) SetAlphaMode(ctx context.Context, mode string) error {
	switch mode {
	case gltf.AlphaModeOpaque, gltf.AlphaModeMask, gltf.AlphaModeBlend:
	default:
		return fmt.Errorf("invalid alpha mode %q", mode)
	}
	return m.graft.write(ctx, func(doc *gltf.Document) error {
		if err := m.apply(func(mat material.Material) error { return mat.SetAlphaMode(mode) }); err != nil {
			return err
		}
		m.def(doc).AlphaMode = mode
		return nil
	})
}

// SetAlphaCutoff sets the alpha cutoff on every correlated material.
//
// Parameters:
//   - ctx: cancels the write before it starts
//   - cutoff: the cutoff used in MASK mode
//
// Returns:
//   - error: error if a correlated material rejects the write
func (m *Material) SetAlphaCutoff(ctx context.Context, cutoff float32) error {
	return m.graft.write(ctx, func(doc *gltf.Document) error {
		if err := m.apply(func(mat material.Material) error { return mat.SetAlphaTest(cutoff) }); err != nil {
			return err
		}
		m.def(doc).AlphaCutoff = &cutoff
		return nil
	})
}

// SetDoubleSided toggles back face rendering on every correlated material.
//
// Parameters:
//   - ctx: cancels the write before it starts
//   - doubleSided: the new value
//
// Returns:
//   - error: error if a correlated material rejects the write
func (m *Material) SetDoubleSided(ctx context.Context, doubleSided bool) error {
	return m.graft.write(ctx, func(doc *gltf.Document) error {
		if err := m.apply(func(mat material.Material) error { return mat.SetDoubleSided(doubleSided) }); err != nil {
			return err
		}
		m.def(doc).DoubleSided = doubleSided
		return nil
	})
}

func (m *Material) Mutate(ctx context.Context, property string, value any) error {
	switch property {
	case "emissiveFactor":
		var factor []float32
		if err := decodeValue(value, &factor); err != nil {
			return err
		}
		if len(factor) != 3 {
			return fmt.Errorf("emissiveFactor expects 3 components, got %d", len(factor))
		}
		return m.SetEmissiveFactor(ctx, [3]float32{factor[0], factor[1], factor[2]})
	case "alphaMode":
		var mode string
		if err := decodeValue(value, &mode); err != nil {
			return err
		}
		return m.SetAlphaMode(ctx, mode)
	case "alphaCutoff":
		var cutoff float32
		if err := decodeValue(value, &cutoff); err != nil {
			return err
		}
		return m.SetAlphaCutoff(ctx, cutoff)
	case "doubleSided":
		var doubleSided bool
		if err := decodeValue(value, &doubleSided); err != nil {
			return err
		}
		return m.SetDoubleSided(ctx, doubleSided)
	default:
		return &UnknownPropertyError{Property: property, ElementType: TypeMaterial}
	}
}

// ToJSON serializes the material and its texture slots.
func (m *Material) ToJSON() protocol.SerializedMaterial {
	var out protocol.SerializedMaterial
	m.graft.read(func(doc *gltf.Document) {
		out = m.toJSON(doc)
	})
	return out
}

func (m *Material) toJSON(doc *gltf.Document) protocol.SerializedMaterial {
	def := m.def(doc)
	pbr := m.pbr.toJSON(doc)
	return protocol.SerializedMaterial{
		SerializedElement:    protocol.SerializedElement{ID: m.id, Name: m.Name()},
		PBRMetallicRoughness: &pbr,
		NormalTexture:        m.normalTexture.toJSON(doc),
		OcclusionTexture:     m.occlusionTexture.toJSON(doc),
		EmissiveTexture:      m.emissiveTexture.toJSON(doc),
		EmissiveFactor:       emissiveFactor(def),
		AlphaMode:            common.Coalesce(def.AlphaMode, gltf.AlphaModeOpaque),
		AlphaCutoff:          alphaCutoff(def),
		DoubleSided:          def.DoubleSided,
	}
}

func (m *Material) def(doc *gltf.Document) *gltf.Material {
	return &doc.Materials[m.ref.Index]
}

func (m *Material) materials() []material.Material {
	return m.graft.csg.MaterialsFor(m.ref)
}

// apply runs fn against every correlated material and stops at the first failure.
func (m *Material) apply(fn func(mat material.Material) error) error {
	for _, mat := range m.materials() {
		if err := fn(mat); err != nil {
			return fmt.Errorf("failed to update material %q: %w", mat.Name(), err)
		}
	}
	return nil
}

func emissiveFactor(def *gltf.Material) [3]float32 {
	if def.EmissiveFactor == nil {
		return [3]float32{}
	}
	return *def.EmissiveFactor
}

func alphaCutoff(def *gltf.Material) float32 {
	if def.AlphaCutoff == nil {
		return defaultAlphaCutoff
	}
	return *def.AlphaCutoff
}
