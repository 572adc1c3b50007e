package texture

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextureWritesBumpVersion(t *testing.T) {
	img := &Image{URI: "a.png"}
	tex := NewTexture(WithName("t"), WithImage(img), WithUserData("name", "albedo"))

	assert.Equal(t, "t", tex.Name())
	assert.Same(t, img, tex.Image())
	name, ok := tex.UserData("name")
	require.True(t, ok)
	assert.Equal(t, "albedo", name)

	require.NoError(t, tex.SetImage(nil))
	assert.Nil(t, tex.Image())
	assert.Equal(t, uint64(1), tex.Version())
}

func TestTextureCloneIsIndependent(t *testing.T) {
	img := &Image{URI: "a.png"}
	tex := NewTexture(WithImage(img))
	clone := tex.Clone()

	assert.Same(t, img, clone.Image())

	state := common.DefaultSamplerState()
	state.MagFilter = wgpu.FilterModeNearest
	require.NoError(t, clone.SetSampler(state))

	assert.Equal(t, wgpu.FilterModeLinear, tex.Sampler().MagFilter)
	assert.Equal(t, wgpu.FilterModeNearest, clone.Sampler().MagFilter)
}

func TestTextureDisposedRejectsWrites(t *testing.T) {
	tex := NewTexture()
	tex.Dispose()

	assert.True(t, tex.Disposed())
	assert.ErrorIs(t, tex.SetImage(&Image{}), ErrDisposed)
	assert.ErrorIs(t, tex.SetSampler(common.DefaultSamplerState()), ErrDisposed)
}

func TestSamplerFromGLTF(t *testing.T) {
	assert.Equal(t, common.DefaultSamplerState(), SamplerFromGLTF(nil))

	state := SamplerFromGLTF(&gltf.Sampler{
		Name:      "clamp",
		MagFilter: common.Ptr(gltf.FilterNearest),
		MinFilter: common.Ptr(gltf.FilterLinearMipmapNearest),
		WrapS:     common.Ptr(gltf.WrapClampToEdge),
		WrapT:     common.Ptr(gltf.WrapMirroredRepeat),
	})

	assert.Equal(t, wgpu.FilterModeNearest, state.MagFilter)
	assert.Equal(t, wgpu.FilterModeLinear, state.MinFilter)
	assert.Equal(t, wgpu.MipmapFilterModeNearest, state.MipmapFilter)
	assert.True(t, state.Mipmaps)
	assert.Equal(t, wgpu.AddressModeClampToEdge, state.AddressModeU)
	assert.Equal(t, wgpu.AddressModeMirrorRepeat, state.AddressModeV)
	assert.Equal(t, "clamp", state.Name)
}

func TestFilterRoundTrip(t *testing.T) {
	for _, filter := range []int{9728, 9729, 9984, 9985, 9986, 9987} {
		state, err := WithMinFilter(common.DefaultSamplerState(), filter)
		require.NoError(t, err)
		assert.Equal(t, filter, MinFilterToGLTF(state), "minFilter %d", filter)
	}
	for _, filter := range []int{9728, 9729} {
		state, err := WithMagFilter(common.DefaultSamplerState(), filter)
		require.NoError(t, err)
		assert.Equal(t, filter, MagFilterToGLTF(state))
	}
	for _, wrap := range []int{33071, 33648, 10497} {
		mode, err := AddressModeFromGLTF(wrap)
		require.NoError(t, err)
		assert.Equal(t, wrap, AddressModeToGLTF(mode))
	}
}

func TestInvalidFilterConstants(t *testing.T) {
	_, err := WithMinFilter(common.DefaultSamplerState(), 1)
	assert.Error(t, err)
	_, err = WithMagFilter(common.DefaultSamplerState(), 9984)
	assert.Error(t, err)
	_, err = AddressModeFromGLTF(0)
	assert.Error(t, err)
}
