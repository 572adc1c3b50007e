package material

import (
	"errors"
	"maps"
	"sync"

	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"
)

// ErrDisposed is returned by writes on a material that has been disposed.
var ErrDisposed = errors.New("material has been disposed")

// Slot names a texture binding point on a material.
type Slot int

const (
	// SlotMap is the base color (albedo) map.
	SlotMap Slot = iota
	// SlotMetalnessMap samples metalness from the blue channel.
	SlotMetalnessMap
	// SlotRoughnessMap samples roughness from the green channel.
	SlotRoughnessMap
	// SlotNormalMap is the tangent-space normal map.
	SlotNormalMap
	// SlotAOMap is the ambient occlusion map.
	SlotAOMap
	// SlotEmissiveMap is the emissive map.
	SlotEmissiveMap

	slotCount
)

// Slots lists every texture slot in declaration order.
var Slots = []Slot{SlotMap, SlotMetalnessMap, SlotRoughnessMap, SlotNormalMap, SlotAOMap, SlotEmissiveMap}

func (s Slot) String() string {
	switch s {
	case SlotMap:
		return "map"
	case SlotMetalnessMap:
		return "metalnessMap"
	case SlotRoughnessMap:
		return "roughnessMap"
	case SlotNormalMap:
		return "normalMap"
	case SlotAOMap:
		return "aoMap"
	case SlotEmissiveMap:
		return "emissiveMap"
	}
	return "unknown"
}

// material is the implementation of the Material interface.
type material struct {
	mu          sync.RWMutex
	name        string
	userData    map[string]any
	color       common.RGB
	opacity     float32
	metalness   float32
	roughness   float32
	emissive    common.RGB
	alphaMode   string
	alphaTest   float32
	doubleSided bool
	maps        [slotCount]texture.Texture
	version     uint64
	disposed    bool
}

// Material defines the interface for a renderer-native PBR material.
//
// Surface properties are mutable after load so that an editing layer can write
// through to the object the renderer draws. Every successful write bumps the
// version so the renderer can re-upload uniforms. Writes after Dispose fail
// with ErrDisposed.
type Material interface {
	// Name retrieves the renderer-side material identifier. Loaders may generate one.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// UserData retrieves a user data value attached by the loader or the application.
	//
	// Parameters:
	//   - key: the user data key
	//
	// Returns:
	//   - any: the stored value
	//   - bool: true if the key is present
	UserData(key string) (any, bool)

	// SetUserData attaches a user data value.
	//
	// Parameters:
	//   - key: the user data key
	//   - value: the value to store
	SetUserData(key string, value any)

	// Color retrieves the base color of the material.
	//
	// Returns:
	//   - common.RGB: the base color
	Color() common.RGB

	// SetColor sets the base color of the material.
	//
	// Parameters:
	//   - color: the new base color
	//
	// Returns:
	//   - error: ErrDisposed if the material was disposed
	SetColor(color common.RGB) error

	// Opacity retrieves the opacity (base color alpha).
	//
	// Returns:
	//   - float32: the opacity
	Opacity() float32

	// SetOpacity sets the opacity (base color alpha).
	//
	// Parameters:
	//   - opacity: the new opacity
	//
	// Returns:
	//   - error: ErrDisposed if the material was disposed
	SetOpacity(opacity float32) error

	// Metalness retrieves the metallic factor of the material.
	// A value of 0.0 represents a dielectric surface, 1.0 represents a fully metallic surface.
	//
	// Returns:
	//   - float32: the metallic factor
	Metalness() float32

	// SetMetalness sets the metallic factor.
	//
	// Parameters:
	//   - metalness: the new metallic factor
	//
	// Returns:
	//   - error: ErrDisposed if the material was disposed
	SetMetalness(metalness float32) error

	// Roughness retrieves the roughness factor of the material.
	// A value of 0.0 represents a perfectly smooth surface, 1.0 represents a fully rough surface.
	//
	// Returns:
	//   - float32: the roughness factor
	Roughness() float32

	// SetRoughness sets the roughness factor.
	//
	// Parameters:
	//   - roughness: the new roughness factor
	//
	// Returns:
	//   - error: ErrDisposed if the material was disposed
	SetRoughness(roughness float32) error

	// Emissive retrieves the emissive color.
	//
	// Returns:
	//   - common.RGB: the emissive color
	Emissive() common.RGB

	// SetEmissive sets the emissive color.
	//
	// Parameters:
	//   - emissive: the new emissive color
	//
	// Returns:
	//   - error: ErrDisposed if the material was disposed
	SetEmissive(emissive common.RGB) error

	// AlphaMode retrieves the alpha blending mode ("OPAQUE", "MASK" or "BLEND").
	//
	// Returns:
	//   - string: the alpha mode
	AlphaMode() string

	// SetAlphaMode sets the alpha blending mode.
	//
	// Parameters:
	//   - mode: "OPAQUE", "MASK" or "BLEND"
	//
	// Returns:
	//   - error: ErrDisposed if the material was disposed
	SetAlphaMode(mode string) error

	// AlphaTest retrieves the alpha cutoff used in MASK mode.
	//
	// Returns:
	//   - float32: the alpha cutoff
	AlphaTest() float32

	// SetAlphaTest sets the alpha cutoff used in MASK mode.
	//
	// Parameters:
	//   - cutoff: the new alpha cutoff
	//
	// Returns:
	//   - error: ErrDisposed if the material was disposed
	SetAlphaTest(cutoff float32) error

	// DoubleSided reports whether back faces are rendered.
	//
	// Returns:
	//   - bool: true when double sided
	DoubleSided() bool

	// SetDoubleSided sets whether back faces are rendered.
	//
	// Parameters:
	//   - doubleSided: the new value
	//
	// Returns:
	//   - error: ErrDisposed if the material was disposed
	SetDoubleSided(doubleSided bool) error

	// Map retrieves the texture bound to a slot, or nil.
	//
	// Parameters:
	//   - slot: the texture slot
	//
	// Returns:
	//   - texture.Texture: the bound texture or nil
	Map(slot Slot) texture.Texture

	// SetMap binds a texture to a slot. A nil texture clears the slot.
	//
	// Parameters:
	//   - slot: the texture slot
	//   - tex: the texture to bind, or nil
	//
	// Returns:
	//   - error: ErrDisposed if the material was disposed
	SetMap(slot Slot, tex texture.Texture) error

	// Textures lists the distinct textures bound to any slot, in slot order.
	//
	// Returns:
	//   - []texture.Texture: the bound textures
	Textures() []texture.Texture

	// Version reports how many successful writes the material has seen.
	//
	// Returns:
	//   - uint64: the version counter
	Version() uint64

	// Clone returns an independent copy that shares texture bindings with the original.
	//
	// Returns:
	//   - Material: the copy
	Clone() Material

	// Dispose releases the material. Bound textures are not disposed.
	Dispose()

	// Disposed reports whether Dispose has been called.
	//
	// Returns:
	//   - bool: true once disposed
	Disposed() bool
}

var _ Material = &material{}

// NewMaterial creates a new Material instance configured with the provided options.
// Defaults follow glTF: white, opaque, fully metallic and fully rough.
//
// Parameters:
//   - options: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - Material: a new Material instance
func NewMaterial(options ...MaterialBuilderOption) Material {
	m := &material{
		userData:  make(map[string]any),
		color:     common.RGB{1, 1, 1},
		opacity:   1,
		metalness: 1,
		roughness: 1,
		alphaMode: "OPAQUE",
		alphaTest: 0.5,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *material) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

func (m *material) UserData(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.userData[key]
	return v, ok
}

func (m *material) SetUserData(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userData[key] = value
}

func (m *material) Color() common.RGB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.color
}

func (m *material) SetColor(color common.RGB) error {
	return m.write(func() { m.color = color })
}

func (m *material) Opacity() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opacity
}

func (m *material) SetOpacity(opacity float32) error {
	return m.write(func() { m.opacity = opacity })
}

func (m *material) Metalness() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metalness
}

func (m *material) SetMetalness(metalness float32) error {
	return m.write(func() { m.metalness = metalness })
}

func (m *material) Roughness() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roughness
}

func (m *material) SetRoughness(roughness float32) error {
	return m.write(func() { m.roughness = roughness })
}

func (m *material) Emissive() common.RGB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emissive
}

func (m *material) SetEmissive(emissive common.RGB) error {
	return m.write(func() { m.emissive = emissive })
}

func (m *material) AlphaMode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alphaMode
}

func (m *material) SetAlphaMode(mode string) error {
	return m.write(func() { m.alphaMode = mode })
}

func (m *material) AlphaTest() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alphaTest
}

func (m *material) SetAlphaTest(cutoff float32) error {
	return m.write(func() { m.alphaTest = cutoff })
}

func (m *material) DoubleSided() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doubleSided
}

func (m *material) SetDoubleSided(doubleSided bool) error {
	return m.write(func() { m.doubleSided = doubleSided })
}

func (m *material) Map(slot Slot) texture.Texture {
	if slot < 0 || slot >= slotCount {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maps[slot]
}

func (m *material) SetMap(slot Slot, tex texture.Texture) error {
	if slot < 0 || slot >= slotCount {
		return errors.New("invalid texture slot")
	}
	return m.write(func() { m.maps[slot] = tex })
}

func (m *material) Textures() []texture.Texture {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []texture.Texture
	for _, tex := range m.maps {
		if tex == nil {
			continue
		}
		seen := false
		for _, existing := range result {
			if existing == tex {
				seen = true
				break
			}
		}
		if !seen {
			result = append(result, tex)
		}
	}
	return result
}

func (m *material) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

func (m *material) Clone() Material {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &material{
		name:        m.name,
		userData:    maps.Clone(m.userData),
		color:       m.color,
		opacity:     m.opacity,
		metalness:   m.metalness,
		roughness:   m.roughness,
		emissive:    m.emissive,
		alphaMode:   m.alphaMode,
		alphaTest:   m.alphaTest,
		doubleSided: m.doubleSided,
		maps:        m.maps,
	}
}

func (m *material) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = true
}

func (m *material) Disposed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.disposed
}

// write applies fn under the write lock unless the material is disposed.
func (m *material) write(fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return ErrDisposed
	}
	fn()
	m.version++
	return nil
}
