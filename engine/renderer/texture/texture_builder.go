package texture

import "github.com/Carmen-Shannon/oxy-threedom/common"

// TextureBuilderOption is a function that configures a texture instance during construction.
type TextureBuilderOption func(*texture)

// WithName is an option builder that sets the renderer-side name of the texture.
//
// Parameters:
//   - name: the texture name
//
// Returns:
//   - TextureBuilderOption: a function that applies the name option to a texture
func WithName(name string) TextureBuilderOption {
	return func(t *texture) {
		t.name = name
	}
}

// WithImage is an option builder that binds the source image of the texture.
//
// Parameters:
//   - image: the source image
//
// Returns:
//   - TextureBuilderOption: a function that applies the image option to a texture
func WithImage(image *Image) TextureBuilderOption {
	return func(t *texture) {
		t.image = image
	}
}

// WithSampler is an option builder that sets the sampler state of the texture.
//
// Parameters:
//   - state: the sampler state
//
// Returns:
//   - TextureBuilderOption: a function that applies the sampler option to a texture
func WithSampler(state common.SamplerState) TextureBuilderOption {
	return func(t *texture) {
		t.sampler = state
	}
}

// WithUserData is an option builder that attaches a user data value to the texture.
//
// Parameters:
//   - key: the user data key
//   - value: the value to store
//
// Returns:
//   - TextureBuilderOption: a function that applies the user data option to a texture
func WithUserData(key string, value any) TextureBuilderOption {
	return func(t *texture) {
		t.userData[key] = value
	}
}
