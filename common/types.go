// package common contains common types that are used throughout this module. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// RGBA is a linear color with an alpha channel, each component nominally in [0, 1].
// Values outside of that range are carried through untouched.
type RGBA [4]float32

// RGB is a linear color without alpha, each component nominally in [0, 1].
type RGB [3]float32

// NewRGBA builds an RGBA from a slice of 3 or 4 components. When only 3 components are given the alpha defaults to 1.
//
// Parameters:
//   - components: the color components in r, g, b[, a] order
//
// Returns:
//   - RGBA: the color
//   - error: error if the component count is not 3 or 4
func NewRGBA(components []float32) (RGBA, error) {
	switch len(components) {
	case 3:
		return RGBA{components[0], components[1], components[2], 1}, nil
	case 4:
		return RGBA{components[0], components[1], components[2], components[3]}, nil
	default:
		return RGBA{}, fmt.Errorf("expected 3 or 4 color components, got %d", len(components))
	}
}

// RGB returns the color channels without alpha.
func (c RGBA) RGB() RGB {
	return RGB{c[0], c[1], c[2]}
}

// Alpha returns the alpha channel.
func (c RGBA) Alpha() float32 {
	return c[3]
}

// SamplerState holds the sampling configuration of a renderer-native texture.
// It mirrors the glTF sampler model on top of the wgpu enums a renderer consumes.
type SamplerState struct {
	// AddressModeU and AddressModeV specify the addressing mode for texture coordinates outside the [0, 1] range (glTF wrapS, wrapT).
	AddressModeU, AddressModeV wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection. Only meaningful when Mipmaps is set.
	MipmapFilter wgpu.MipmapFilterMode
	// Mipmaps reports whether the minification filter samples mipmap levels.
	Mipmaps bool
	// Name is the name of the glTF sampler the state was built from.
	Name string
}

// DefaultSamplerState returns the sampler configuration used when a texture has no sampler: linear filtering with mipmaps and repeat wrapping.
//
// Returns:
//   - SamplerState: the default sampler configuration
func DefaultSamplerState() SamplerState {
	return SamplerState{
		AddressModeU: wgpu.AddressModeRepeat,
		AddressModeV: wgpu.AddressModeRepeat,
		MagFilter:    wgpu.FilterModeLinear,
		MinFilter:    wgpu.FilterModeLinear,
		MipmapFilter: wgpu.MipmapFilterModeLinear,
		Mipmaps:      true,
	}
}
