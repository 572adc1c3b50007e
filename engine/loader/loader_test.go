package loader_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/loader"
	"github.com/Carmen-Shannon/oxy-threedom/engine/loader/loadertest"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"
	"github.com/Carmen-Shannon/oxy-threedom/engine/scene"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const externalImageModel = `{
  "asset": {"version": "2.0"},
  "scenes": [{"nodes": [0]}],
  "nodes": [{"mesh": 0}],
  "meshes": [{"primitives": [{"attributes": {}, "material": 0}]}],
  "materials": [{"pbrMetallicRoughness": {"baseColorTexture": {"index": 0}}}],
  "textures": [{"source": 0}],
  "images": [{"uri": "textures/pixel.png"}]
}`

func getMaterial(t *testing.T, asset *loader.Asset, key string) material.Material {
	t.Helper()
	value, err := asset.Cache.Get(context.Background(), key)
	require.NoError(t, err)
	m, ok := value.(material.Material)
	require.True(t, ok, "%s is %T", key, value)
	return m
}

func writeExternalModel(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "textures"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.gltf"), []byte(externalImageModel), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "textures", "pixel.png"), loadertest.PixelPNGBytes(), 0o644))
	return dir
}

func TestLoadBuildsScenes(t *testing.T) {
	asset := loadertest.LoadAsset(t)

	require.Len(t, asset.Scenes, 2)
	assert.Same(t, asset.Scenes[0], asset.Scene)
	assert.Equal(t, "main", asset.Scenes[0].Name())
	assert.Equal(t, "alt", asset.Scenes[1].Name())

	var names []string
	asset.Scene.Traverse(func(node *scene.Node) { names = append(names, node.Name) })
	assert.Equal(t, []string{"root", "child"}, names)

	root := asset.Scene.Nodes()[0]
	require.Len(t, root.Mesh.Materials, 2)
	assert.Same(t, root.Children[0].Mesh.Materials[0], asset.Scenes[1].Nodes()[0].Mesh.Materials[0])
}

func TestParserCacheBuildsMaterials(t *testing.T) {
	asset := loadertest.LoadAsset(t)
	body := getMaterial(t, asset, "material:0")

	assert.Equal(t, "Body", body.Name())
	name, ok := body.UserData("name")
	require.True(t, ok)
	assert.Equal(t, "Body", name)
	assert.Equal(t, common.RGB{1, 0, 0}, body.Color())
	assert.Equal(t, float32(0.5), body.Metalness())
	assert.Equal(t, float32(0.25), body.Roughness())

	albedo := body.Map(material.SlotMap)
	require.NotNil(t, albedo)
	assert.Equal(t, "albedo", albedo.Name())
	assert.Equal(t, wgpu.FilterModeNearest, albedo.Sampler().MagFilter)
	assert.Equal(t, wgpu.AddressModeClampToEdge, albedo.Sampler().AddressModeU)
	assert.Equal(t, wgpu.AddressModeRepeat, albedo.Sampler().AddressModeV)

	mr := body.Map(material.SlotMetalnessMap)
	require.NotNil(t, mr)
	assert.Same(t, mr, body.Map(material.SlotRoughnessMap))
	assert.Same(t, mr, body.Map(material.SlotNormalMap))
	assert.Same(t, albedo.Image(), mr.Image())
	assert.Equal(t, "image/png", albedo.Image().MimeType)

	emissive := body.Map(material.SlotEmissiveMap)
	require.NotNil(t, emissive)
	require.NotNil(t, emissive.Image())
	assert.Equal(t, loadertest.PixelPNGBytes(), emissive.Image().Data)

	glass := getMaterial(t, asset, "material:1")
	assert.Equal(t, "BLEND", glass.AlphaMode())
	assert.True(t, glass.DoubleSided())
	assert.Equal(t, float32(0.5), glass.Opacity())
}

func TestMaterialDeduplication(t *testing.T) {
	asset := loadertest.LoadAsset(t)
	assert.Same(t, getMaterial(t, asset, "material:1"), getMaterial(t, asset, "material:2"))

	separate := loadertest.LoadAsset(t, loader.WithMaterialDeduplication(false))
	assert.NotSame(t, getMaterial(t, separate, "material:1"), getMaterial(t, separate, "material:2"))
}

func TestParserCacheResolvesUnreferencedMaterial(t *testing.T) {
	asset := loadertest.LoadAsset(t)
	unused := getMaterial(t, asset, "material:3")
	assert.Equal(t, common.RGB{1, 1, 0}, unused.Emissive())

	for _, s := range asset.Scenes {
		assert.NotContains(t, s.Materials(), unused)
	}
}

func TestParserCacheMisses(t *testing.T) {
	asset := loadertest.LoadAsset(t)
	for _, key := range []string{"material:9", "material:-1", "node:0", "sampler:0", "material", "texture:x"} {
		_, err := asset.Cache.Get(context.Background(), key)
		assert.ErrorIs(t, err, loader.ErrNotCached, key)
	}
}

func TestParserCacheConcurrentLookupsShareResult(t *testing.T) {
	asset := loadertest.LoadAsset(t)

	const n = 16
	results := make([]any, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := asset.Cache.Get(context.Background(), "texture:2")
			assert.NoError(t, err)
			results[i] = value
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Same(t, results[0].(texture.Texture), r.(texture.Texture))
	}
}

func TestParserCacheHonorsCallerContext(t *testing.T) {
	asset := loadertest.LoadAsset(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := asset.Cache.Get(ctx, "material:3")
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}

	value, err := asset.Cache.Get(context.Background(), "material:3")
	require.NoError(t, err)
	assert.NotNil(t, value)
}

func TestLoadFromFile(t *testing.T) {
	dir := writeExternalModel(t)

	var last float64
	asset, err := loader.NewLoader().Load(context.Background(), filepath.Join(dir, "model.gltf"), func(f float64) { last = f })
	require.NoError(t, err)
	assert.Equal(t, float64(1), last)

	m := getMaterial(t, asset, "material:0")
	assert.Equal(t, "material_0", m.Name())
	_, ok := m.UserData("name")
	assert.False(t, ok)

	img := m.Map(material.SlotMap).Image()
	require.NotNil(t, img)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, "textures/pixel.png", img.URI)
}

func TestLoadOverHTTP(t *testing.T) {
	dir := writeExternalModel(t)
	srv := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer srv.Close()

	asset, err := loader.NewLoader(loader.WithHTTPClient(srv.Client())).Load(context.Background(), srv.URL+"/model.gltf", nil)
	require.NoError(t, err)

	img := getMaterial(t, asset, "material:0").Map(material.SlotMap).Image()
	require.NotNil(t, img)
	assert.Equal(t, loadertest.PixelPNGBytes(), img.Data)

	data, _, err := asset.ReadResource(context.Background(), "textures/pixel.png")
	require.NoError(t, err)
	assert.Equal(t, loadertest.PixelPNGBytes(), data)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := loader.NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.gltf"), nil)
	assert.Error(t, err)
}

func TestLoadMissingImageLeavesTextureEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.gltf"), []byte(externalImageModel), 0o644))

	asset, err := loader.NewLoader().Load(context.Background(), filepath.Join(dir, "model.gltf"), nil)
	require.NoError(t, err)

	tex := getMaterial(t, asset, "material:0").Map(material.SlotMap)
	require.NotNil(t, tex)
	assert.Nil(t, tex.Image())

	_, err = asset.Cache.Get(context.Background(), "image:0")
	assert.Error(t, err)
}

func TestAssetClone(t *testing.T) {
	asset := loadertest.LoadAsset(t)
	clone, cm, err := asset.Clone()
	require.NoError(t, err)

	original := getMaterial(t, asset, "material:0")
	cloned := getMaterial(t, clone, "material:0")
	assert.NotSame(t, original, cloned)
	assert.Same(t, cm.Materials[original], cloned)
	assert.Same(t, getMaterial(t, clone, "material:1"), getMaterial(t, clone, "material:2"))
	assert.Same(t, clone.Scenes[0], clone.Scene)

	require.NoError(t, cloned.SetMetalness(0))
	assert.Equal(t, float32(0.5), original.Metalness())

	clone.Document.Materials[0].Name = "Changed"
	assert.Equal(t, "Body", asset.Document.Materials[0].Name)
	assert.Equal(t, asset.Document.Buffers[0].Data, clone.Document.Buffers[0].Data)

	_, err = clone.Cache.Get(context.Background(), "material:3")
	assert.ErrorIs(t, err, loader.ErrNotCached)
}

func TestAssetDispose(t *testing.T) {
	asset := loadertest.LoadAsset(t)
	body := getMaterial(t, asset, "material:0")

	asset.Dispose()
	asset.Dispose()

	assert.True(t, asset.Disposed())
	assert.True(t, body.Disposed())
	assert.True(t, body.Map(material.SlotMap).Disposed())
	assert.ErrorIs(t, body.SetMetalness(0), material.ErrDisposed)
}

func TestImageMIMEType(t *testing.T) {
	mime, err := loader.ImageMIMEType(loadertest.PixelPNGBytes(), "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	mime, err = loader.ImageMIMEType([]byte("anything"), "image/ktx2")
	require.NoError(t, err)
	assert.Equal(t, "image/ktx2", mime)

	_, err = loader.ImageMIMEType([]byte("not an image"), "")
	assert.Error(t, err)
}
