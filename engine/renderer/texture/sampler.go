package texture

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"

	"github.com/cogentcore/webgpu/wgpu"
)

// SamplerFromGLTF converts a glTF sampler definition into renderer sampler state.
// Any unset fields fall back to the glTF defaults (linear filtering with mipmaps, repeat wrapping).
// A nil sampler yields the defaults.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#reference-sampler
//
// Parameters:
//   - s: the glTF sampler to convert, may be nil
//
// Returns:
//   - common.SamplerState: the converted sampler state
func SamplerFromGLTF(s *gltf.Sampler) common.SamplerState {
	state := common.DefaultSamplerState()
	if s == nil {
		return state
	}
	state.Name = s.Name

	if s.MagFilter != nil {
		if next, err := WithMagFilter(state, *s.MagFilter); err == nil {
			state = next
		}
	}
	if s.MinFilter != nil {
		if next, err := WithMinFilter(state, *s.MinFilter); err == nil {
			state = next
		}
	}
	if s.WrapS != nil {
		if mode, err := AddressModeFromGLTF(*s.WrapS); err == nil {
			state.AddressModeU = mode
		}
	}
	if s.WrapT != nil {
		if mode, err := AddressModeFromGLTF(*s.WrapT); err == nil {
			state.AddressModeV = mode
		}
	}
	return state
}

// WithMagFilter returns state with its magnification filter set from a glTF constant.
//
// Parameters:
//   - state: the sampler state to start from
//   - filter: 9728 (NEAREST) or 9729 (LINEAR)
//
// Returns:
//   - common.SamplerState: the updated state
//   - error: error if filter is not a valid magnification filter
func WithMagFilter(state common.SamplerState, filter int) (common.SamplerState, error) {
	switch filter {
	case gltf.FilterNearest:
		state.MagFilter = wgpu.FilterModeNearest
	case gltf.FilterLinear:
		state.MagFilter = wgpu.FilterModeLinear
	default:
		return state, fmt.Errorf("invalid magFilter %d", filter)
	}
	return state, nil
}

// WithMinFilter returns state with its minification and mipmap filters set from a glTF constant.
//
// Parameters:
//   - state: the sampler state to start from
//   - filter: one of 9728, 9729, 9984, 9985, 9986, 9987
//
// Returns:
//   - common.SamplerState: the updated state
//   - error: error if filter is not a valid minification filter
func WithMinFilter(state common.SamplerState, filter int) (common.SamplerState, error) {
	switch filter {
	case gltf.FilterNearest:
		state.MinFilter, state.Mipmaps = wgpu.FilterModeNearest, false
	case gltf.FilterLinear:
		state.MinFilter, state.Mipmaps = wgpu.FilterModeLinear, false
	case gltf.FilterNearestMipmapNearest:
		state.MinFilter, state.MipmapFilter, state.Mipmaps = wgpu.FilterModeNearest, wgpu.MipmapFilterModeNearest, true
	case gltf.FilterLinearMipmapNearest:
		state.MinFilter, state.MipmapFilter, state.Mipmaps = wgpu.FilterModeLinear, wgpu.MipmapFilterModeNearest, true
	case gltf.FilterNearestMipmapLinear:
		state.MinFilter, state.MipmapFilter, state.Mipmaps = wgpu.FilterModeNearest, wgpu.MipmapFilterModeLinear, true
	case gltf.FilterLinearMipmapLinear:
		state.MinFilter, state.MipmapFilter, state.Mipmaps = wgpu.FilterModeLinear, wgpu.MipmapFilterModeLinear, true
	default:
		return state, fmt.Errorf("invalid minFilter %d", filter)
	}
	return state, nil
}

// AddressModeFromGLTF converts a glTF wrap mode constant to a wgpu AddressMode.
//
// Parameters:
//   - wrap: the glTF wrap mode constant
//
// Returns:
//   - wgpu.AddressMode: the corresponding wgpu address mode
//   - error: error if wrap is not a valid glTF wrap mode
func AddressModeFromGLTF(wrap int) (wgpu.AddressMode, error) {
	switch wrap {
	case gltf.WrapClampToEdge:
		return wgpu.AddressModeClampToEdge, nil
	case gltf.WrapMirroredRepeat:
		return wgpu.AddressModeMirrorRepeat, nil
	case gltf.WrapRepeat:
		return wgpu.AddressModeRepeat, nil
	default:
		return wgpu.AddressModeRepeat, fmt.Errorf("invalid wrap mode %d", wrap)
	}
}

// MagFilterToGLTF converts renderer sampler state back to a glTF magFilter constant.
func MagFilterToGLTF(state common.SamplerState) int {
	if state.MagFilter == wgpu.FilterModeNearest {
		return gltf.FilterNearest
	}
	return gltf.FilterLinear
}

// MinFilterToGLTF converts renderer sampler state back to a glTF minFilter constant.
func MinFilterToGLTF(state common.SamplerState) int {
	nearest := state.MinFilter == wgpu.FilterModeNearest
	if !state.Mipmaps {
		if nearest {
			return gltf.FilterNearest
		}
		return gltf.FilterLinear
	}
	mipNearest := state.MipmapFilter == wgpu.MipmapFilterModeNearest
	switch {
	case nearest && mipNearest:
		return gltf.FilterNearestMipmapNearest
	case !nearest && mipNearest:
		return gltf.FilterLinearMipmapNearest
	case nearest:
		return gltf.FilterNearestMipmapLinear
	default:
		return gltf.FilterLinearMipmapLinear
	}
}

// AddressModeToGLTF converts a wgpu AddressMode back to a glTF wrap constant.
func AddressModeToGLTF(mode wgpu.AddressMode) int {
	switch mode {
	case wgpu.AddressModeClampToEdge:
		return gltf.WrapClampToEdge
	case wgpu.AddressModeMirrorRepeat:
		return gltf.WrapMirroredRepeat
	default:
		return gltf.WrapRepeat
	}
}
