package facade

import (
	"context"

	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/material"
)

// PBRMetallicRoughness is the facade of a material's metallic-roughness model. It
// exists for every material; the document entry is created on the first write.
type PBRMetallicRoughness struct {
	element
	material                 *Material
	baseColorTexture         *TextureInfo
	metallicRoughnessTexture *TextureInfo
}

var _ Element = &PBRMetallicRoughness{}

func newPBRMetallicRoughness(m *Material) *PBRMetallicRoughness {
	p := &PBRMetallicRoughness{element: newElement(m.graft, m.ref), material: m}
	m.graft.adopt(p)
	p.baseColorTexture = newTextureInfo(m, baseColorSlot)
	p.metallicRoughnessTexture = newTextureInfo(m, metallicRoughnessSlot)
	return p
}

func (p *PBRMetallicRoughness) ElementType() string {
	return TypePBRMetallicRoughness
}

func (p *PBRMetallicRoughness) Name() string {
	return ""
}

// Material returns the material the model belongs to.
func (p *PBRMetallicRoughness) Material() *Material {
	return p.material
}

// BaseColorTexture returns the base color slot.
func (p *PBRMetallicRoughness) BaseColorTexture() *TextureInfo {
	return p.baseColorTexture
}

// MetallicRoughnessTexture returns the metallic-roughness slot.
func (p *PBRMetallicRoughness) MetallicRoughnessTexture() *TextureInfo {
	return p.metallicRoughnessTexture
}

// BaseColorFactor returns the RGBA base color, opaque white when unset.
func (p *PBRMetallicRoughness) BaseColorFactor() common.RGBA {
	var out common.RGBA
	p.graft.read(func(doc *gltf.Document) {
		out = baseColorFactor(p.material.def(doc).PBRMetallicRoughness)
	})
	return out
}

// MetallicFactor returns the metalness, 1 when unset.
func (p *PBRMetallicRoughness) MetallicFactor() float32 {
	var out float32
	p.graft.read(func(doc *gltf.Document) {
		out = metallicFactor(p.material.def(doc).PBRMetallicRoughness)
	})
	return out
}

// RoughnessFactor returns the roughness, 1 when unset.
func (p *PBRMetallicRoughness) RoughnessFactor() float32 {
	var out float32
	p.graft.read(func(doc *gltf.Document) {
		out = roughnessFactor(p.material.def(doc).PBRMetallicRoughness)
	})
	return out
}

// SetBaseColorFactor sets color and opacity on every correlated material. Components
// are not clamped.
//
// Parameters:
//   - ctx: cancels the write before it starts
//   - factor: 3 or 4 components; alpha defaults to 1
//
// Returns:
//   - error: error if the component count is wrong or a correlated material rejects the write
func (p *PBRMetallicRoughness) SetBaseColorFactor(ctx context.Context, factor []float32) error {
	color, err := common.NewRGBA(factor)
	if err != nil {
		return err
	}
	return p.graft.write(ctx, func(doc *gltf.Document) error {
		err := p.material.apply(func(mat material.Material) error {
			if err := mat.SetColor(color.RGB()); err != nil {
				return err
			}
			return mat.SetOpacity(color.Alpha())
		})
		if err != nil {
			return err
		}
		value := [4]float32(color)
		p.ensure(doc).BaseColorFactor = &value
		return nil
	})
}

// SetMetallicFactor sets metalness on every correlated material.
//
// Parameters:
//   - ctx: cancels the write before it starts
//   - factor: the metalness
//
// Returns:
//   - error: error if a correlated material rejects the write
func (p *PBRMetallicRoughness) SetMetallicFactor(ctx context.Context, factor float32) error {
	return p.graft.write(ctx, func(doc *gltf.Document) error {
		if err := p.material.apply(func(mat material.Material) error { return mat.SetMetalness(factor) }); err != nil {
			return err
		}
		p.ensure(doc).MetallicFactor = &factor
		return nil
	})
}

// SetRoughnessFactor sets roughness on every correlated material.
//
// Parameters:
//   - ctx: cancels the write before it starts
//   - factor: the roughness
//
// Returns:
//   - error: error if a correlated material rejects the write
func (p *PBRMetallicRoughness) SetRoughnessFactor(ctx context.Context, factor float32) error {
	return p.graft.write(ctx, func(doc *gltf.Document) error {
		if err := p.material.apply(func(mat material.Material) error { return mat.SetRoughness(factor) }); err != nil {
			return err
		}
		p.ensure(doc).RoughnessFactor = &factor
		return nil
	})
}

func (p *PBRMetallicRoughness) Mutate(ctx context.Context, property string, value any) error {
	switch property {
	case "baseColorFactor":
		var factor []float32
		if err := decodeValue(value, &factor); err != nil {
			return err
		}
		return p.SetBaseColorFactor(ctx, factor)
	case "metallicFactor":
		var factor float32
		if err := decodeValue(value, &factor); err != nil {
			return err
		}
		return p.SetMetallicFactor(ctx, factor)
	case "roughnessFactor":
		var factor float32
		if err := decodeValue(value, &factor); err != nil {
			return err
		}
		return p.SetRoughnessFactor(ctx, factor)
	default:
		return &UnknownPropertyError{Property: property, ElementType: TypePBRMetallicRoughness}
	}
}

func (p *PBRMetallicRoughness) toJSON(doc *gltf.Document) protocol.SerializedPBRMetallicRoughness {
	def := p.material.def(doc).PBRMetallicRoughness
	return protocol.SerializedPBRMetallicRoughness{
		SerializedElement:        protocol.SerializedElement{ID: p.id},
		BaseColorFactor:          baseColorFactor(def),
		MetallicFactor:           metallicFactor(def),
		RoughnessFactor:          roughnessFactor(def),
		BaseColorTexture:         p.baseColorTexture.toJSON(doc),
		MetallicRoughnessTexture: p.metallicRoughnessTexture.toJSON(doc),
	}
}

// ensure returns the document entry, creating it if the material had none.
func (p *PBRMetallicRoughness) ensure(doc *gltf.Document) *gltf.PBRMetallicRoughness {
	def := p.material.def(doc)
	if def.PBRMetallicRoughness == nil {
		def.PBRMetallicRoughness = &gltf.PBRMetallicRoughness{}
	}
	return def.PBRMetallicRoughness
}

func baseColorFactor(def *gltf.PBRMetallicRoughness) common.RGBA {
	if def == nil || def.BaseColorFactor == nil {
		return common.RGBA{1, 1, 1, 1}
	}
	return common.RGBA(*def.BaseColorFactor)
}

func metallicFactor(def *gltf.PBRMetallicRoughness) float32 {
	if def == nil || def.MetallicFactor == nil {
		return 1
	}
	return *def.MetallicFactor
}

func roughnessFactor(def *gltf.PBRMetallicRoughness) float32 {
	if def == nil || def.RoughnessFactor == nil {
		return 1
	}
	return *def.RoughnessFactor
}
