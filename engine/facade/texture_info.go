package facade

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"
)

// textureSlot binds a glTF material texture reference to the renderer material
// slots it feeds.
type textureSlot struct {
	name  string
	slots []material.Slot
	get   func(def *gltf.Material) *gltf.TextureInfo
	set   func(def *gltf.Material, info *gltf.TextureInfo)
}

var (
	baseColorSlot = textureSlot{
		name:  "baseColorTexture",
		slots: []material.Slot{material.SlotMap},
		get: func(def *gltf.Material) *gltf.TextureInfo {
			if def.PBRMetallicRoughness == nil {
				return nil
			}
			return def.PBRMetallicRoughness.BaseColorTexture
		},
		set: func(def *gltf.Material, info *gltf.TextureInfo) {
			if def.PBRMetallicRoughness == nil {
				def.PBRMetallicRoughness = &gltf.PBRMetallicRoughness{}
			}
			def.PBRMetallicRoughness.BaseColorTexture = info
		},
	}

	metallicRoughnessSlot = textureSlot{
		name:  "metallicRoughnessTexture",
		slots: []material.Slot{material.SlotMetalnessMap, material.SlotRoughnessMap},
		get: func(def *gltf.Material) *gltf.TextureInfo {
			if def.PBRMetallicRoughness == nil {
				return nil
			}
			return def.PBRMetallicRoughness.MetallicRoughnessTexture
		},
		set: func(def *gltf.Material, info *gltf.TextureInfo) {
			if def.PBRMetallicRoughness == nil {
				def.PBRMetallicRoughness = &gltf.PBRMetallicRoughness{}
			}
			def.PBRMetallicRoughness.MetallicRoughnessTexture = info
		},
	}

	normalSlot = textureSlot{
		name:  "normalTexture",
		slots: []material.Slot{material.SlotNormalMap},
		get: func(def *gltf.Material) *gltf.TextureInfo {
			if def.NormalTexture == nil {
				return nil
			}
			return &def.NormalTexture.TextureInfo
		},
		set: func(def *gltf.Material, info *gltf.TextureInfo) {
			switch {
			case info == nil:
				def.NormalTexture = nil
			case def.NormalTexture == nil:
				def.NormalTexture = &gltf.NormalTextureInfo{TextureInfo: *info}
			default:
				def.NormalTexture.TextureInfo = *info
			}
		},
	}

	occlusionSlot = textureSlot{
		name:  "occlusionTexture",
		slots: []material.Slot{material.SlotAOMap},
		get: func(def *gltf.Material) *gltf.TextureInfo {
			if def.OcclusionTexture == nil {
				return nil
			}
			return &def.OcclusionTexture.TextureInfo
		},
		set: func(def *gltf.Material, info *gltf.TextureInfo) {
			switch {
			case info == nil:
				def.OcclusionTexture = nil
			case def.OcclusionTexture == nil:
				def.OcclusionTexture = &gltf.OcclusionTextureInfo{TextureInfo: *info}
			default:
				def.OcclusionTexture.TextureInfo = *info
			}
		},
	}

	emissiveSlot = textureSlot{
		name:  "emissiveTexture",
		slots: []material.Slot{material.SlotEmissiveMap},
		get: func(def *gltf.Material) *gltf.TextureInfo {
			return def.EmissiveTexture
		},
		set: func(def *gltf.Material, info *gltf.TextureInfo) {
			def.EmissiveTexture = info
		},
	}
)

// TextureInfo is the facade of one texture slot of a material. The slot exists for
// every material; Texture returns nil while nothing is bound.
type TextureInfo struct {
	element
	material *Material
	slot     textureSlot
}

var _ Element = &TextureInfo{}

func newTextureInfo(m *Material, slot textureSlot) *TextureInfo {
	info := &TextureInfo{element: newElement(m.graft, m.ref), material: m, slot: slot}
	m.graft.adopt(info)
	return info
}

func (t *TextureInfo) ElementType() string {
	return TypeTextureInfo
}

func (t *TextureInfo) Name() string {
	return ""
}

// Slot returns the glTF property name of the slot, e.g. "normalTexture".
func (t *TextureInfo) Slot() string {
	return t.slot.name
}

// TexCoord returns the UV set of the bound texture.
func (t *TextureInfo) TexCoord() int {
	var out int
	t.graft.read(func(doc *gltf.Document) {
		if info := t.slot.get(t.material.def(doc)); info != nil {
			out = info.TexCoord
		}
	})
	return out
}

// Texture returns the facade of the bound texture, nil when the slot is empty.
func (t *TextureInfo) Texture() *Texture {
	var index *int
	t.graft.read(func(doc *gltf.Document) {
		index = t.index(doc)
	})
	if index == nil {
		return nil
	}
	return t.graft.texture(*index)
}

// SetTexture binds a glTF texture to the slot on every correlated material.
//
// Parameters:
//   - ctx: bounds the resolution of the renderer texture
//   - index: the glTF texture index, nil to clear the slot
//
// Returns:
//   - error: error if the index is out of range, the texture cannot be built or a
//     correlated material rejects the write
func (t *TextureInfo) SetTexture(ctx context.Context, index *int) error {
	var tex texture.Texture
	if index != nil {
		if err := checkIndex(t.graft.Document(), gltf.ElementTexture, index); err != nil {
			return err
		}
		resolved, err := t.graft.resolveTexture(ctx, *index)
		if err != nil {
			return err
		}
		tex = resolved
	}

	return t.graft.write(ctx, func(doc *gltf.Document) error {
		err := t.material.apply(func(mat material.Material) error {
			for _, slot := range t.slot.slots {
				if err := mat.SetMap(slot, tex); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		def := t.material.def(doc)
		if index == nil {
			t.slot.set(def, nil)
			return nil
		}
		info := gltf.TextureInfo{Index: *index}
		if current := t.slot.get(def); current != nil {
			info.TexCoord = current.TexCoord
		}
		t.slot.set(def, &info)
		return nil
	})
}

func (t *TextureInfo) Mutate(ctx context.Context, property string, value any) error {
	switch property {
	case "texture":
		var index *int
		if err := decodeValue(value, &index); err != nil {
			return err
		}
		return t.SetTexture(ctx, index)
	default:
		return &UnknownPropertyError{Property: property, ElementType: TypeTextureInfo}
	}
}

func (t *TextureInfo) index(doc *gltf.Document) *int {
	info := t.slot.get(t.material.def(doc))
	if info == nil {
		return nil
	}
	index := info.Index
	return &index
}

func (t *TextureInfo) toJSON(doc *gltf.Document) *protocol.SerializedTextureInfo {
	out := &protocol.SerializedTextureInfo{
		SerializedElement: protocol.SerializedElement{ID: t.id},
		Slot:              t.slot.name,
	}
	info := t.slot.get(t.material.def(doc))
	if info == nil {
		return out
	}
	out.TexCoord = info.TexCoord
	if doc.Contains(gltf.Ref(gltf.ElementTexture, info.Index)) {
		tex := t.graft.texture(info.Index).toJSON(doc)
		out.Texture = &tex
	}
	return out
}

// resolveTexture returns the renderer texture to bind for a glTF texture index: a
// correlated one when the texture is already in use, otherwise the loader's.
func (g *ModelGraft) resolveTexture(ctx context.Context, index int) (texture.Texture, error) {
	if textures := g.texturesFor(index); len(textures) > 0 {
		return textures[0], nil
	}
	value, err := g.csg.Asset().Cache.Get(ctx, gltf.Ref(gltf.ElementTexture, index).CacheKey())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve texture %d: %w", index, err)
	}
	tex, ok := value.(texture.Texture)
	if !ok {
		return nil, fmt.Errorf("texture %d resolved to %T", index, value)
	}

	g.elemMu.Lock()
	g.bound[index] = append(g.bound[index], tex)
	g.elemMu.Unlock()
	return tex, nil
}

// texturesFor returns the renderer textures standing for a glTF texture: the
// correlated ones plus any bound later through SetTexture.
func (g *ModelGraft) texturesFor(index int) []texture.Texture {
	textures := g.csg.TexturesFor(gltf.Ref(gltf.ElementTexture, index))
	g.elemMu.Lock()
	defer g.elemMu.Unlock()
	for _, tex := range g.bound[index] {
		if !containsTexture(textures, tex) {
			textures = append(textures, tex)
		}
	}
	return textures
}

func containsTexture(textures []texture.Texture, tex texture.Texture) bool {
	for _, t := range textures {
		if t == tex {
			return true
		}
	}
	return false
}
