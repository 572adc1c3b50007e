package sandbox

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
	"github.com/Carmen-Shannon/oxy-threedom/engine/facade"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"
)

// element holds the fields shared by every script-side element.
type element struct {
	kernel *ModelKernel
	id     int
	name   string
}

// InternalID returns the id the host knows the element by.
func (e *element) InternalID() int {
	return e.id
}

// Name returns the element name, or "" when it has none.
func (e *element) Name() string {
	return e.name
}

// OwnerModel returns the model the element belongs to.
func (e *element) OwnerModel() *Model {
	return e.kernel.model
}

// set checks the capability gating api, sends the mutation and runs commit once
// the host applied it.
func (e *element) set(api, property string, value any, commit func()) error {
	if err := e.kernel.caps.CheckAPI(api); err != nil {
		return err
	}
	if err := e.kernel.Mutate(e.kernel.ctx, e.id, property, value); err != nil {
		return err
	}
	e.kernel.state.Lock()
	commit()
	e.kernel.state.Unlock()
	return nil
}

func (e *element) read(fn func()) {
	e.kernel.state.RLock()
	fn()
	e.kernel.state.RUnlock()
}

// Model is the root element seen by scripts.
type Model struct {
	element
	uri       string
	materials []*Material
}

func newModel(k *ModelKernel, s protocol.SerializedModel) *Model {
	m := &Model{element: element{kernel: k, id: s.ID, name: s.Name}, uri: s.ModelURI}
	k.elements[s.ID] = m
	for _, sm := range s.Materials {
		m.materials = append(m.materials, newMaterial(k, sm))
	}
	return m
}

func (m *Model) ElementType() string { return facade.TypeModel }

// ModelURI returns the URL the model was loaded from.
func (m *Model) ModelURI() string {
	return m.uri
}

// Materials returns the materials of the model.
func (m *Model) Materials() []*Material {
	return append([]*Material(nil), m.materials...)
}

// Material is a glTF material seen by scripts.
type Material struct {
	element
	pbr              *PBRMetallicRoughness
	normalTexture    *TextureInfo
	occlusionTexture *TextureInfo
	emissiveTexture  *TextureInfo
	emissiveFactor   [3]float32
	alphaMode        string
	alphaCutoff      float32
	doubleSided      bool
}

func newMaterial(k *ModelKernel, s protocol.SerializedMaterial) *Material {
	return register(k, s.ID, func() *Material {
		m := &Material{
			element:        element{kernel: k, id: s.ID, name: s.Name},
			emissiveFactor: s.EmissiveFactor,
			alphaMode:      s.AlphaMode,
			alphaCutoff:    s.AlphaCutoff,
			doubleSided:    s.DoubleSided,
		}
		if s.PBRMetallicRoughness != nil {
			m.pbr = newPBRMetallicRoughness(k, *s.PBRMetallicRoughness)
		}
		m.normalTexture = newTextureInfo(k, s.NormalTexture)
		m.occlusionTexture = newTextureInfo(k, s.OcclusionTexture)
		m.emissiveTexture = newTextureInfo(k, s.EmissiveTexture)
		return m
	})
}

func (m *Material) ElementType() string { return facade.TypeMaterial }

func (m *Material) PBRMetallicRoughness() *PBRMetallicRoughness { return m.pbr }
func (m *Material) NormalTexture() *TextureInfo                 { return m.normalTexture }
func (m *Material) OcclusionTexture() *TextureInfo              { return m.occlusionTexture }
func (m *Material) EmissiveTexture() *TextureInfo               { return m.emissiveTexture }

func (m *Material) EmissiveFactor() (out [3]float32) {
	m.read(func() { out = m.emissiveFactor })
	return out
}

func (m *Material) AlphaMode() (out string) {
	m.read(func() { out = m.alphaMode })
	return out
}

func (m *Material) AlphaCutoff() (out float32) {
	m.read(func() { out = m.alphaCutoff })
	return out
}

func (m *Material) DoubleSided() (out bool) {
	m.read(func() { out = m.doubleSided })
	return out
}

// SetEmissiveFactor writes the RGB emissive factor.
func (m *Material) SetEmissiveFactor(rgb []float32) error {
	if len(rgb) != 3 {
		return fmt.Errorf("emissiveFactor needs 3 components, got %d", len(rgb))
	}
	var v [3]float32
	copy(v[:], rgb)
	return m.set(capability.APISetEmissiveFactor, "emissiveFactor", v, func() { m.emissiveFactor = v })
}

// SetAlphaMode writes the alpha mode, one of OPAQUE, MASK or BLEND.
func (m *Material) SetAlphaMode(mode string) error {
	return m.set(capability.APISetAlphaMode, "alphaMode", mode, func() { m.alphaMode = mode })
}

func (m *Material) SetAlphaCutoff(cutoff float32) error {
	return m.set(capability.APISetAlphaCutoff, "alphaCutoff", cutoff, func() { m.alphaCutoff = cutoff })
}

func (m *Material) SetDoubleSided(doubleSided bool) error {
	return m.set(capability.APISetDoubleSided, "doubleSided", doubleSided, func() { m.doubleSided = doubleSided })
}

// PBRMetallicRoughness is the metallic-roughness block of a material.
type PBRMetallicRoughness struct {
	element
	baseColorFactor          [4]float32
	metallicFactor           float32
	roughnessFactor          float32
	baseColorTexture         *TextureInfo
	metallicRoughnessTexture *TextureInfo
}

func newPBRMetallicRoughness(k *ModelKernel, s protocol.SerializedPBRMetallicRoughness) *PBRMetallicRoughness {
	return register(k, s.ID, func() *PBRMetallicRoughness {
		return &PBRMetallicRoughness{
			element:                  element{kernel: k, id: s.ID, name: s.Name},
			baseColorFactor:          s.BaseColorFactor,
			metallicFactor:           s.MetallicFactor,
			roughnessFactor:          s.RoughnessFactor,
			baseColorTexture:         newTextureInfo(k, s.BaseColorTexture),
			metallicRoughnessTexture: newTextureInfo(k, s.MetallicRoughnessTexture),
		}
	})
}

func (p *PBRMetallicRoughness) ElementType() string { return facade.TypePBRMetallicRoughness }

func (p *PBRMetallicRoughness) BaseColorTexture() *TextureInfo         { return p.baseColorTexture }
func (p *PBRMetallicRoughness) MetallicRoughnessTexture() *TextureInfo { return p.metallicRoughnessTexture }

func (p *PBRMetallicRoughness) BaseColorFactor() (out [4]float32) {
	p.read(func() { out = p.baseColorFactor })
	return out
}

func (p *PBRMetallicRoughness) MetallicFactor() (out float32) {
	p.read(func() { out = p.metallicFactor })
	return out
}

func (p *PBRMetallicRoughness) RoughnessFactor() (out float32) {
	p.read(func() { out = p.roughnessFactor })
	return out
}

// SetBaseColorFactor writes the base color. Three components leave alpha at 1.
func (p *PBRMetallicRoughness) SetBaseColorFactor(rgba []float32) error {
	if len(rgba) != 3 && len(rgba) != 4 {
		return fmt.Errorf("baseColorFactor needs 3 or 4 components, got %d", len(rgba))
	}
	v := [4]float32{1, 1, 1, 1}
	copy(v[:], rgba)
	return p.set(capability.APISetBaseColorFactor, "baseColorFactor", rgba, func() { p.baseColorFactor = v })
}

func (p *PBRMetallicRoughness) SetMetallicFactor(f float32) error {
	return p.set(capability.APISetMetallicFactor, "metallicFactor", f, func() { p.metallicFactor = f })
}

func (p *PBRMetallicRoughness) SetRoughnessFactor(f float32) error {
	return p.set(capability.APISetRoughnessFactor, "roughnessFactor", f, func() { p.roughnessFactor = f })
}

// TextureInfo is a texture slot of a material.
type TextureInfo struct {
	element
	slot     string
	texCoord int
	texture  *Texture
}

func newTextureInfo(k *ModelKernel, s *protocol.SerializedTextureInfo) *TextureInfo {
	if s == nil {
		return nil
	}
	return register(k, s.ID, func() *TextureInfo {
		ti := &TextureInfo{element: element{kernel: k, id: s.ID, name: s.Name}, slot: s.Slot, texCoord: s.TexCoord}
		if s.Texture != nil {
			ti.texture = newTexture(k, *s.Texture)
		}
		return ti
	})
}

func (t *TextureInfo) ElementType() string { return facade.TypeTextureInfo }

func (t *TextureInfo) Slot() string  { return t.slot }
func (t *TextureInfo) TexCoord() int { return t.texCoord }

// Texture returns the bound texture, nil for an empty slot.
func (t *TextureInfo) Texture() (out *Texture) {
	t.read(func() { out = t.texture })
	return out
}

// SetTexture binds tex to the slot. A nil texture clears it.
func (t *TextureInfo) SetTexture(tex *Texture) error {
	var index *int
	if tex != nil {
		index = &tex.index
	}
	return t.set(capability.APISetTexture, "texture", index, func() { t.texture = tex })
}

// Texture is a glTF texture seen by scripts.
type Texture struct {
	element
	index   int
	sampler *Sampler
	source  *Image
}

func newTexture(k *ModelKernel, s protocol.SerializedTexture) *Texture {
	return register(k, s.ID, func() *Texture {
		t := &Texture{element: element{kernel: k, id: s.ID, name: s.Name}, index: s.Index}
		if s.Sampler != nil {
			t.sampler = newSampler(k, *s.Sampler)
		}
		if s.Source != nil {
			t.source = newImage(k, *s.Source)
		}
		return t
	})
}

func (t *Texture) ElementType() string { return facade.TypeTexture }

// Index returns the document index of the texture.
func (t *Texture) Index() int { return t.index }

func (t *Texture) Sampler() (out *Sampler) {
	t.read(func() { out = t.sampler })
	return out
}

func (t *Texture) Source() (out *Image) {
	t.read(func() { out = t.source })
	return out
}

// SetSampler points the texture at s. A nil sampler restores the default sampler.
func (t *Texture) SetSampler(s *Sampler) error {
	var index *int
	if s != nil {
		index = &s.index
	}
	return t.set(capability.APISetSampler, "sampler", index, func() { t.sampler = s })
}

// SetSource points the texture at img. A nil image unbinds the source.
func (t *Texture) SetSource(img *Image) error {
	var index *int
	if img != nil {
		index = &img.index
	}
	return t.set(capability.APISetSource, "source", index, func() { t.source = img })
}

// Sampler is a glTF sampler seen by scripts. Filter and wrap values are the glTF enums.
type Sampler struct {
	element
	index     int
	minFilter *int
	magFilter *int
	wrapS     int
	wrapT     int
}

func newSampler(k *ModelKernel, s protocol.SerializedSampler) *Sampler {
	return register(k, s.ID, func() *Sampler {
		return &Sampler{
			element:   element{kernel: k, id: s.ID, name: s.Name},
			index:     s.Index,
			minFilter: s.MinFilter,
			magFilter: s.MagFilter,
			wrapS:     s.WrapS,
			wrapT:     s.WrapT,
		}
	})
}

func (s *Sampler) ElementType() string { return facade.TypeSampler }

func (s *Sampler) Index() int { return s.index }

// MinFilter returns the minification filter, or 0 when unset.
func (s *Sampler) MinFilter() (out int) {
	s.read(func() {
		if s.minFilter != nil {
			out = *s.minFilter
		}
	})
	return out
}

// MagFilter returns the magnification filter, or 0 when unset.
func (s *Sampler) MagFilter() (out int) {
	s.read(func() {
		if s.magFilter != nil {
			out = *s.magFilter
		}
	})
	return out
}

func (s *Sampler) WrapS() (out int) {
	s.read(func() { out = s.wrapS })
	return out
}

func (s *Sampler) WrapT() (out int) {
	s.read(func() { out = s.wrapT })
	return out
}

func (s *Sampler) SetMinFilter(filter int) error {
	return s.set(capability.APISetMinFilter, "minFilter", filter, func() { s.minFilter = &filter })
}

func (s *Sampler) SetMagFilter(filter int) error {
	return s.set(capability.APISetMagFilter, "magFilter", filter, func() { s.magFilter = &filter })
}

func (s *Sampler) SetWrapS(mode int) error {
	return s.set(capability.APISetWrapS, "wrapS", mode, func() { s.wrapS = mode })
}

func (s *Sampler) SetWrapT(mode int) error {
	return s.set(capability.APISetWrapT, "wrapT", mode, func() { s.wrapT = mode })
}

// Image is a glTF image seen by scripts.
type Image struct {
	element
	index    int
	uri      string
	mimeType string
}

func newImage(k *ModelKernel, s protocol.SerializedImage) *Image {
	return register(k, s.ID, func() *Image {
		return &Image{element: element{kernel: k, id: s.ID, name: s.Name}, index: s.Index, uri: s.URI, mimeType: s.MimeType}
	})
}

func (i *Image) ElementType() string { return facade.TypeImage }

func (i *Image) Index() int { return i.index }

func (i *Image) MimeType() (out string) {
	i.read(func() { out = i.mimeType })
	return out
}

func (i *Image) URI() (out string) {
	i.read(func() { out = i.uri })
	return out
}

// SetURI points the image at uri. An empty uri restores an embedded image.
func (i *Image) SetURI(uri string) error {
	return i.set(capability.APISetURI, "uri", uri, func() { i.uri = uri })
}

// ElementsOfType returns the elements of the kernel with the given type name, in id order.
//
// Parameters:
//   - elementType: a type name such as "Material"
//
// Returns:
//   - []any: the matching elements
func (k *ModelKernel) ElementsOfType(elementType string) []any {
	ids := make([]int, 0, len(k.elements))
	for id := range k.elements {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []any
	for _, id := range ids {
		if typed, ok := k.elements[id].(interface{ ElementType() string }); ok && typed.ElementType() == elementType {
			out = append(out, k.elements[id])
		}
	}
	return out
}
