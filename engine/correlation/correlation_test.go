package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/loader"
	"github.com/Carmen-Shannon/oxy-threedom/engine/loader/loadertest"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type missingCache struct {
	source  loader.ParserCache
	missing string
}

func (c missingCache) Get(ctx context.Context, key string) (any, error) {
	if key == c.missing {
		return nil, loader.ErrNotCached
	}
	return c.source.Get(ctx, key)
}

func cached[T any](t *testing.T, asset *loader.Asset, key string) T {
	t.Helper()
	value, err := asset.Cache.Get(context.Background(), key)
	require.NoError(t, err)
	return value.(T)
}

func TestFromCorrelatesReachableElements(t *testing.T) {
	asset := loadertest.LoadAsset(t)
	csg, err := From(context.Background(), asset, WithWorkers(2))
	require.NoError(t, err)

	body := cached[material.Material](t, asset, "material:0")
	glass := cached[material.Material](t, asset, "material:1")
	tex0 := cached[texture.Texture](t, asset, "texture:0")
	tex1 := cached[texture.Texture](t, asset, "texture:1")
	tex2 := cached[texture.Texture](t, asset, "texture:2")

	assert.Equal(t, []material.Material{body}, csg.MaterialsFor(gltf.Ref(gltf.ElementMaterial, 0)))
	assert.Equal(t, []material.Material{glass}, csg.MaterialsFor(gltf.Ref(gltf.ElementMaterial, 1)))
	assert.Equal(t, []material.Material{glass}, csg.MaterialsFor(gltf.Ref(gltf.ElementMaterial, 2)))
	assert.Empty(t, csg.ObjectsFor(gltf.Ref(gltf.ElementMaterial, 3)))

	assert.Equal(t, []texture.Texture{tex0, tex1}, csg.TexturesFor(gltf.Ref(gltf.ElementImage, 0)))
	assert.Equal(t, []texture.Texture{tex2}, csg.TexturesFor(gltf.Ref(gltf.ElementImage, 1)))
	assert.Equal(t, []texture.Texture{tex0}, csg.TexturesFor(gltf.Ref(gltf.ElementSampler, 0)))

	assert.Equal(t, []gltf.ElementRef{
		gltf.Ref(gltf.ElementMaterial, 1),
		gltf.Ref(gltf.ElementMaterial, 2),
	}, csg.RefsFor(glass))
	assert.Equal(t, []gltf.ElementRef{
		gltf.Ref(gltf.ElementTexture, 0),
		gltf.Ref(gltf.ElementSampler, 0),
		gltf.Ref(gltf.ElementImage, 0),
	}, csg.RefsFor(tex0))
	assert.Nil(t, csg.RefsFor(nil))

	assert.Same(t, asset, csg.Asset())
	assert.Same(t, asset.Document, csg.Document())
	assert.Len(t, csg.ElementMap(), 9)
	assert.Equal(t, gltf.Ref(gltf.ElementMaterial, 0), csg.Refs()[0])
}

func TestFromOmitsCacheMisses(t *testing.T) {
	source := loadertest.LoadAsset(t)
	asset := &loader.Asset{
		URL:      source.URL,
		Document: source.Document,
		Scenes:   source.Scenes,
		Cache:    missingCache{source: source.Cache, missing: "texture:2"},
	}

	csg, err := From(context.Background(), asset)
	require.NoError(t, err)

	assert.Empty(t, csg.ObjectsFor(gltf.Ref(gltf.ElementTexture, 2)))
	assert.Empty(t, csg.ObjectsFor(gltf.Ref(gltf.ElementImage, 1)))
	assert.Len(t, csg.ObjectsFor(gltf.Ref(gltf.ElementTexture, 0)), 1)
}

func TestFromRejectsEmptyAsset(t *testing.T) {
	_, err := From(context.Background(), &loader.Asset{})
	assert.Error(t, err)
}

func TestFromCancelled(t *testing.T) {
	asset := loadertest.LoadAsset(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := From(ctx, asset)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromUsesProvidedPool(t *testing.T) {
	pool := worker.NewDynamicWorkerPool(2, 16, 1*time.Second)
	defer pool.Stop()

	asset := loadertest.LoadAsset(t)
	first, err := From(context.Background(), asset, WithWorkerPool(pool))
	require.NoError(t, err)
	second, err := From(context.Background(), asset, WithWorkerPool(pool))
	require.NoError(t, err)

	assert.Equal(t, first.Refs(), second.Refs())
}

func TestElementMapIsACopy(t *testing.T) {
	csg, err := From(context.Background(), loadertest.LoadAsset(t))
	require.NoError(t, err)

	m := csg.ElementMap()
	delete(m, gltf.Ref(gltf.ElementMaterial, 0))
	assert.NotEmpty(t, csg.ObjectsFor(gltf.Ref(gltf.ElementMaterial, 0)))
}

func TestFromClone(t *testing.T) {
	asset := loadertest.LoadAsset(t)
	source, err := From(context.Background(), asset)
	require.NoError(t, err)

	clone, cm, err := asset.Clone()
	require.NoError(t, err)
	csg := FromClone(source, clone, cm)

	body := cached[material.Material](t, asset, "material:0")
	cloneBody := csg.MaterialsFor(gltf.Ref(gltf.ElementMaterial, 0))
	require.Len(t, cloneBody, 1)
	assert.Same(t, cm.Materials[body], cloneBody[0])
	assert.NotSame(t, body, cloneBody[0])

	assert.Equal(t, source.Refs(), csg.Refs())
	assert.Same(t, clone.Document, csg.Document())
	assert.Same(t,
		csg.MaterialsFor(gltf.Ref(gltf.ElementMaterial, 1))[0],
		csg.MaterialsFor(gltf.Ref(gltf.ElementMaterial, 2))[0])

	fromCache, err := From(context.Background(), clone)
	require.NoError(t, err)
	assert.Same(t, cloneBody[0], fromCache.MaterialsFor(gltf.Ref(gltf.ElementMaterial, 0))[0])
}
