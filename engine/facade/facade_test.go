package facade_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/correlation"
	"github.com/Carmen-Shannon/oxy-threedom/engine/facade"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/loader/loadertest"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraft(t *testing.T) *facade.ModelGraft {
	t.Helper()
	asset := loadertest.LoadAsset(t)
	csg, err := correlation.From(context.Background(), asset)
	require.NoError(t, err)
	return facade.NewModelGraft(loadertest.ModelURL, csg)
}

func rendererMaterial(t *testing.T, g *facade.ModelGraft, index int) material.Material {
	t.Helper()
	materials := g.CorrelatedSceneGraph().MaterialsFor(gltf.Ref(gltf.ElementMaterial, index))
	require.Len(t, materials, 1)
	return materials[0]
}

func rendererTexture(t *testing.T, g *facade.ModelGraft, index int) texture.Texture {
	t.Helper()
	textures := g.CorrelatedSceneGraph().TexturesFor(gltf.Ref(gltf.ElementTexture, index))
	require.Len(t, textures, 1)
	return textures[0]
}

func TestModelListsReachableMaterials(t *testing.T) {
	g := newGraft(t)
	model := g.Model()

	assert.Equal(t, loadertest.ModelURL, model.ModelURI())
	materials := model.Materials()
	require.Len(t, materials, 3)

	ids := map[int]bool{model.InternalID(): true}
	for i, m := range materials {
		assert.Equal(t, i, m.Index())
		assert.Same(t, model, m.OwnerModel())
		assert.False(t, ids[m.InternalID()], "duplicate id")
		ids[m.InternalID()] = true
	}

	assert.Equal(t, "Body", materials[0].Name())
	assert.Equal(t, "Glass", materials[1].Name())
	assert.Equal(t, "Glass", materials[2].Name(), "name comes from the shared renderer material")
	assert.Equal(t, gltf.AlphaModeBlend, materials[1].AlphaMode())
	assert.True(t, materials[1].DoubleSided())
	assert.Equal(t, float32(0.5), materials[0].AlphaCutoff())
	assert.Equal(t, "", model.Name())
}

func TestSetBaseColorFactorFansOut(t *testing.T) {
	g := newGraft(t)
	glass := g.Model().Materials()[1]
	copyOf := g.Model().Materials()[2]

	require.NoError(t, glass.PBRMetallicRoughness().SetBaseColorFactor(context.Background(), []float32{0, 0, 1}))

	renderer := rendererMaterial(t, g, 1)
	assert.Same(t, renderer, rendererMaterial(t, g, 2))
	assert.Equal(t, common.RGB{0, 0, 1}, renderer.Color())
	assert.Equal(t, float32(1), renderer.Opacity())
	assert.Equal(t, common.RGBA{0, 0, 1, 1}, glass.PBRMetallicRoughness().BaseColorFactor())
	assert.Equal(t, common.RGBA{0, 0, 1, 0.5}, copyOf.PBRMetallicRoughness().BaseColorFactor())

	err := glass.PBRMetallicRoughness().SetBaseColorFactor(context.Background(), []float32{1, 2})
	assert.Error(t, err)
}

func TestFactorsAreNotClamped(t *testing.T) {
	g := newGraft(t)
	body := g.Model().Materials()[0]

	require.NoError(t, body.PBRMetallicRoughness().SetBaseColorFactor(context.Background(), []float32{2, -1, 0.5, 3}))
	require.NoError(t, body.PBRMetallicRoughness().SetRoughnessFactor(context.Background(), 1.5))

	renderer := rendererMaterial(t, g, 0)
	assert.Equal(t, common.RGB{2, -1, 0.5}, renderer.Color())
	assert.Equal(t, float32(3), renderer.Opacity())
	assert.Equal(t, float32(1.5), renderer.Roughness())
}

func TestMaterialSetters(t *testing.T) {
	g := newGraft(t)
	ctx := context.Background()
	body := g.Model().Materials()[0]
	renderer := rendererMaterial(t, g, 0)

	require.NoError(t, body.SetEmissiveFactor(ctx, [3]float32{0.1, 0.2, 0.3}))
	require.NoError(t, body.SetAlphaMode(ctx, gltf.AlphaModeMask))
	require.NoError(t, body.SetAlphaCutoff(ctx, 0.3))
	require.NoError(t, body.SetDoubleSided(ctx, true))

	assert.Equal(t, common.RGB{0.1, 0.2, 0.3}, renderer.Emissive())
	assert.Equal(t, gltf.AlphaModeMask, renderer.AlphaMode())
	assert.Equal(t, float32(0.3), renderer.AlphaTest())
	assert.True(t, renderer.DoubleSided())
	assert.Equal(t, [3]float32{0.1, 0.2, 0.3}, body.EmissiveFactor())
	assert.Equal(t, float32(0.3), body.AlphaCutoff())

	assert.Error(t, body.SetAlphaMode(ctx, "GLOSSY"))
	assert.Equal(t, gltf.AlphaModeMask, body.AlphaMode())
}

func TestMutateByID(t *testing.T) {
	g := newGraft(t)
	ctx := context.Background()
	pbr := g.Model().Materials()[0].PBRMetallicRoughness()

	var events []facade.MutationEvent
	remove := g.AddMutationListener(func(e facade.MutationEvent) { events = append(events, e) })

	require.NoError(t, g.Mutate(ctx, pbr.InternalID(), "metallicFactor", json.RawMessage("0.75")))
	require.NoError(t, g.Mutate(ctx, pbr.InternalID(), "baseColorFactor", []float32{0, 1, 0, 1}))
	assert.Equal(t, float32(0.75), rendererMaterial(t, g, 0).Metalness())
	assert.Equal(t, common.RGB{0, 1, 0}, rendererMaterial(t, g, 0).Color())
	require.Len(t, events, 2)
	assert.Same(t, pbr, events[0].Element)
	assert.Equal(t, "metallicFactor", events[0].Property)

	remove()
	require.NoError(t, g.Mutate(ctx, pbr.InternalID(), "roughnessFactor", 0.1))
	assert.Len(t, events, 2)

	err := g.Mutate(ctx, -1, "metallicFactor", 1)
	assert.ErrorIs(t, err, facade.ErrUnknownElement)
}

func TestMutateUnknownProperty(t *testing.T) {
	g := newGraft(t)
	pbr := g.Model().Materials()[0].PBRMetallicRoughness()

	err := g.Mutate(context.Background(), pbr.InternalID(), "shininess", 1)
	var propErr *facade.UnknownPropertyError
	require.True(t, errors.As(err, &propErr))
	assert.Equal(t, `Cannot configure property "shininess" on PBRMetallicRoughness`, err.Error())

	err = g.Model().Materials()[0].Mutate(context.Background(), "baseColorFactor", []float32{1, 1, 1})
	assert.EqualError(t, err, `Cannot configure property "baseColorFactor" on Material`)
}

func TestMutateCancelledContext(t *testing.T) {
	g := newGraft(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Model().Materials()[0].PBRMetallicRoughness().SetMetallicFactor(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, float32(0.5), rendererMaterial(t, g, 0).Metalness())
}

func TestTextureSlots(t *testing.T) {
	g := newGraft(t)
	ctx := context.Background()
	body := g.Model().Materials()[0]
	renderer := rendererMaterial(t, g, 0)

	normal := body.NormalTexture().Texture()
	require.NotNil(t, normal)
	assert.Equal(t, 1, normal.Index())
	assert.Same(t, normal, body.PBRMetallicRoughness().MetallicRoughnessTexture().Texture())
	assert.Nil(t, body.OcclusionTexture().Texture())
	assert.Equal(t, "albedo", body.PBRMetallicRoughness().BaseColorTexture().Texture().Name())

	require.NoError(t, body.NormalTexture().SetTexture(ctx, nil))
	assert.Nil(t, renderer.Map(material.SlotNormalMap))
	assert.Nil(t, body.NormalTexture().Texture())

	zero := 0
	require.NoError(t, g.Mutate(ctx, body.OcclusionTexture().InternalID(), "texture", json.RawMessage("0")))
	assert.Same(t, rendererTexture(t, g, 0), renderer.Map(material.SlotAOMap))
	assert.Equal(t, zero, body.OcclusionTexture().Texture().Index())

	five := 5
	assert.Error(t, body.EmissiveTexture().SetTexture(ctx, &five))

	glass := g.Model().Materials()[1]
	require.NoError(t, glass.PBRMetallicRoughness().BaseColorTexture().SetTexture(ctx, &zero))
	assert.Same(t, rendererTexture(t, g, 0), rendererMaterial(t, g, 1).Map(material.SlotMap))
}

func TestSamplerSetters(t *testing.T) {
	g := newGraft(t)
	ctx := context.Background()
	albedo := g.Model().Materials()[0].PBRMetallicRoughness().BaseColorTexture().Texture()
	sampler := albedo.Sampler()
	require.NotNil(t, sampler)
	assert.Equal(t, 0, sampler.Index())
	assert.Equal(t, gltf.WrapClampToEdge, sampler.WrapS())

	tex := rendererTexture(t, g, 0)
	assert.Equal(t, gltf.FilterNearest, texture.MagFilterToGLTF(tex.Sampler()))

	linear := gltf.FilterLinear
	require.NoError(t, sampler.SetMagFilter(ctx, &linear))
	require.NoError(t, g.Mutate(ctx, sampler.InternalID(), "minFilter", json.RawMessage("9728")))
	require.NoError(t, sampler.SetWrapS(ctx, gltf.WrapMirroredRepeat))

	assert.Equal(t, gltf.FilterLinear, texture.MagFilterToGLTF(tex.Sampler()))
	assert.Equal(t, gltf.FilterNearest, texture.MinFilterToGLTF(tex.Sampler()))
	assert.Equal(t, gltf.WrapMirroredRepeat, texture.AddressModeToGLTF(tex.Sampler().AddressModeU))
	assert.Equal(t, gltf.FilterNearest, *sampler.MinFilter())

	assert.Error(t, sampler.SetWrapT(ctx, 1234))
	bogus := 1
	assert.Error(t, sampler.SetMinFilter(ctx, &bogus))
	assert.Equal(t, gltf.WrapRepeat, sampler.WrapT())

	require.NoError(t, albedo.SetSampler(ctx, nil))
	assert.Nil(t, albedo.Sampler())
	assert.Equal(t, common.DefaultSamplerState(), tex.Sampler())
}

func TestTextureSetSource(t *testing.T) {
	g := newGraft(t)
	ctx := context.Background()
	albedo := g.Model().Materials()[0].PBRMetallicRoughness().BaseColorTexture().Texture()
	assert.Equal(t, "pixel", albedo.Source().Name())

	one := 1
	require.NoError(t, albedo.SetSource(ctx, &one))
	image := rendererTexture(t, g, 0).Image()
	require.NotNil(t, image)
	assert.Equal(t, "embedded", image.Name)
	assert.Equal(t, 1, albedo.Source().Index())

	require.NoError(t, albedo.SetSource(ctx, nil))
	assert.Nil(t, rendererTexture(t, g, 0).Image())
	assert.Nil(t, albedo.Source())
}

func TestImageSetURI(t *testing.T) {
	g := newGraft(t)
	ctx := context.Background()
	emissive := g.Model().Materials()[0].EmissiveTexture().Texture()
	image := emissive.Source()
	require.NotNil(t, image)
	assert.Equal(t, "embedded", image.Name())
	tex := rendererTexture(t, g, 2)
	original := tex.Image()
	require.NotNil(t, original)

	uri := "data:image/png;base64," + loadertest.PixelPNG
	require.NoError(t, image.SetURI(ctx, uri))
	assert.Equal(t, uri, tex.Image().URI)
	assert.Equal(t, "image/png", tex.Image().MimeType)
	assert.Equal(t, uri, image.URI())

	require.NoError(t, g.Mutate(ctx, image.InternalID(), "uri", ""))
	assert.Same(t, original, tex.Image())
	assert.Equal(t, "", image.URI())
	assert.Equal(t, "image/png", image.MimeType())

	assert.Error(t, image.SetURI(ctx, "data:,hello"))
	assert.Same(t, original, tex.Image())

	pixel := g.Model().Materials()[0].PBRMetallicRoughness().BaseColorTexture().Texture().Source()
	require.NoError(t, pixel.SetURI(ctx, ""))
	assert.Nil(t, rendererTexture(t, g, 0).Image())
	assert.Nil(t, rendererTexture(t, g, 1).Image())
}

func TestSamplerAndImageNamesFollowRenderer(t *testing.T) {
	g := newGraft(t)
	albedo := g.Model().Materials()[0].PBRMetallicRoughness().BaseColorTexture().Texture()
	sampler := albedo.Sampler()
	require.NotNil(t, sampler)
	assert.Equal(t, "", sampler.Name())

	tex := rendererTexture(t, g, 0)
	state := tex.Sampler()
	state.Name = "clamp"
	require.NoError(t, tex.SetSampler(state))
	assert.Equal(t, "clamp", sampler.Name())

	image := g.Model().Materials()[0].EmissiveTexture().Texture().Source()
	require.NotNil(t, image)
	emissive := rendererTexture(t, g, 2)
	renamed := *emissive.Image()
	renamed.Name = "glow"
	require.NoError(t, emissive.SetImage(&renamed))
	assert.Equal(t, "glow", image.Name())

	serialized := g.Model().ToJSON()
	assert.Equal(t, "clamp", serialized.Materials[0].PBRMetallicRoughness.BaseColorTexture.Texture.Sampler.Name)
	assert.Equal(t, "glow", serialized.Materials[0].EmissiveTexture.Texture.Source.Name)
}

func TestModelToJSON(t *testing.T) {
	g := newGraft(t)
	model := g.Model()

	serialized := model.ToJSON()
	assert.Equal(t, model.InternalID(), serialized.ID)
	assert.Equal(t, loadertest.ModelURL, serialized.ModelURI)
	require.Len(t, serialized.Materials, 3)

	body := serialized.Materials[0]
	assert.Equal(t, "Body", body.Name)
	require.NotNil(t, body.PBRMetallicRoughness)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, body.PBRMetallicRoughness.BaseColorFactor)
	require.NotNil(t, body.NormalTexture.Texture)
	assert.Equal(t, 1, body.NormalTexture.Texture.Index)
	assert.Nil(t, body.OcclusionTexture.Texture)

	base := body.PBRMetallicRoughness.BaseColorTexture.Texture
	require.NotNil(t, base.Sampler)
	assert.Equal(t, gltf.WrapClampToEdge, base.Sampler.WrapS)
	require.NotNil(t, base.Source)
	assert.Equal(t, "pixel", base.Source.Name)

	el, ok := g.ElementByID(base.Source.ID)
	require.True(t, ok)
	assert.Equal(t, facade.TypeImage, el.ElementType())

	raw, err := json.Marshal(serialized)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"modelUri":"fixture/model.gltf"`)
}

func TestExportReflectsMutations(t *testing.T) {
	g := newGraft(t)
	require.NoError(t, g.Model().Materials()[1].PBRMetallicRoughness().SetBaseColorFactor(context.Background(), []float32{0, 1, 0, 1}))

	data, err := g.Export()
	require.NoError(t, err)
	glb, err := gltf.UnpackGLB(data)
	require.NoError(t, err)
	doc, err := glb.Document()
	require.NoError(t, err)

	assert.Equal(t, [4]float32{0, 1, 0, 1}, *doc.Materials[1].PBRMetallicRoughness.BaseColorFactor)
	assert.Equal(t, [4]float32{0, 0, 1, 0.5}, *doc.Materials[2].PBRMetallicRoughness.BaseColorFactor)
}

func TestGraftsDoNotShareElements(t *testing.T) {
	asset := loadertest.LoadAsset(t)
	csg, err := correlation.From(context.Background(), asset)
	require.NoError(t, err)

	a := facade.NewModelGraft("a", csg)
	b := facade.NewModelGraft("b", csg)
	idA := a.Model().Materials()[0].InternalID()
	idB := b.Model().Materials()[0].InternalID()
	assert.NotEqual(t, idA, idB)

	_, ok := a.ElementByID(idB)
	assert.False(t, ok)
	_, ok = b.ElementByID(idA)
	assert.False(t, ok)
}
