package material

import (
	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"
)

// MaterialBuilderOption is a function that configures a material instance during construction.
type MaterialBuilderOption func(*material)

// WithName is an option builder that sets the name of the material.
//
// Parameters:
//   - name: the identifier for the material
//
// Returns:
//   - MaterialBuilderOption: a function that applies the name option to a material
func WithName(name string) MaterialBuilderOption {
	return func(m *material) {
		m.name = name
	}
}

// WithUserData is an option builder that attaches a user data value to the material.
//
// Parameters:
//   - key: the user data key
//   - value: the value to store
//
// Returns:
//   - MaterialBuilderOption: a function that applies the user data option to a material
func WithUserData(key string, value any) MaterialBuilderOption {
	return func(m *material) {
		m.userData[key] = value
	}
}

// WithBaseColor is an option builder that sets the base color and opacity of the material from an RGBA value.
//
// Parameters:
//   - color: the base color as RGBA values
//
// Returns:
//   - MaterialBuilderOption: a function that applies the base color option to a material
func WithBaseColor(color common.RGBA) MaterialBuilderOption {
	return func(m *material) {
		m.color = color.RGB()
		m.opacity = color.Alpha()
	}
}

// WithMetalness is an option builder that sets the metallic factor of the material.
//
// Parameters:
//   - metalness: the metallic factor (0.0 = dielectric, 1.0 = metal)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the metalness option to a material
func WithMetalness(metalness float32) MaterialBuilderOption {
	return func(m *material) {
		m.metalness = metalness
	}
}

// WithRoughness is an option builder that sets the roughness factor of the material.
//
// Parameters:
//   - roughness: the roughness factor (0.0 = smooth, 1.0 = rough)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the roughness option to a material
func WithRoughness(roughness float32) MaterialBuilderOption {
	return func(m *material) {
		m.roughness = roughness
	}
}

// WithEmissive is an option builder that sets the emissive color of the material.
//
// Parameters:
//   - emissive: the emissive color
//
// Returns:
//   - MaterialBuilderOption: a function that applies the emissive option to a material
func WithEmissive(emissive common.RGB) MaterialBuilderOption {
	return func(m *material) {
		m.emissive = emissive
	}
}

// WithAlphaMode is an option builder that sets the alpha mode and cutoff of the material.
//
// Parameters:
//   - mode: "OPAQUE", "MASK" or "BLEND"
//   - cutoff: the alpha cutoff used in MASK mode
//
// Returns:
//   - MaterialBuilderOption: a function that applies the alpha options to a material
func WithAlphaMode(mode string, cutoff float32) MaterialBuilderOption {
	return func(m *material) {
		m.alphaMode = mode
		m.alphaTest = cutoff
	}
}

// WithDoubleSided is an option builder that marks the material as double sided.
//
// Parameters:
//   - doubleSided: whether back faces are rendered
//
// Returns:
//   - MaterialBuilderOption: a function that applies the double sided option to a material
func WithDoubleSided(doubleSided bool) MaterialBuilderOption {
	return func(m *material) {
		m.doubleSided = doubleSided
	}
}

// WithMap is an option builder that binds a texture to a slot.
//
// Parameters:
//   - slot: the texture slot
//   - tex: the texture to bind
//
// Returns:
//   - MaterialBuilderOption: a function that applies the texture option to a material
func WithMap(slot Slot, tex texture.Texture) MaterialBuilderOption {
	return func(m *material) {
		if slot >= 0 && slot < slotCount {
			m.maps[slot] = tex
		}
	}
}
