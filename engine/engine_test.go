package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
	"github.com/Carmen-Shannon/oxy-threedom/engine/config"
	"github.com/Carmen-Shannon/oxy-threedom/engine/execution_context"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/loader/loadertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.gltf")
	require.NoError(t, os.WriteFile(path, []byte(loadertest.ModelJSON), 0o644))
	return path
}

func TestLoadModelRetainsCacheEntry(t *testing.T) {
	e := NewEngine()
	defer e.Quit()
	path := writeModel(t)

	var last float64
	m, err := e.LoadModel(context.Background(), path, func(f float64) { last = f })
	require.NoError(t, err)
	assert.Equal(t, 1.0, last)
	assert.True(t, e.Cache().Has(path))
	assert.Equal(t, 1, e.Cache().EvictionPolicy().RetainerCount(path))
	assert.Len(t, m.Graft.Model().Materials(), 3)

	m.Release()
	assert.Equal(t, 0, e.Cache().EvictionPolicy().RetainerCount(path))
}

func TestLoadModelCorrelatesTemplateOnce(t *testing.T) {
	e := NewEngine()
	defer e.Quit()
	ctx := context.Background()
	path := writeModel(t)

	first, err := e.LoadModel(ctx, path, nil)
	require.NoError(t, err)
	defer first.Release()
	second, err := e.LoadModel(ctx, path, nil)
	require.NoError(t, err)
	defer second.Release()

	internal := e.(*engine)
	require.Len(t, internal.templates, 1)
	template := internal.templates[path]
	assert.Same(t, first.handle.Template, template.asset)
	assert.Same(t, second.handle.Template, template.asset)

	body := gltf.Ref(gltf.ElementMaterial, 0)
	original := template.csg.MaterialsFor(body)
	firstBody := first.Graft.CorrelatedSceneGraph().MaterialsFor(body)
	secondBody := second.Graft.CorrelatedSceneGraph().MaterialsFor(body)
	require.Len(t, original, 1)
	require.Len(t, firstBody, 1)
	require.Len(t, secondBody, 1)
	assert.Same(t, first.handle.CloneMap.Materials[original[0]], firstBody[0])
	assert.NotSame(t, firstBody[0], secondBody[0])

	pbr := first.Graft.Model().Materials()[0].PBRMetallicRoughness()
	require.NoError(t, pbr.SetBaseColorFactor(ctx, []float32{0, 1, 0, 1}))
	assert.Equal(t, common.RGBA{0, 1, 0, 1}, pbr.BaseColorFactor())
	assert.Equal(t, common.RGBA{1, 0, 0, 1}, second.Graft.Model().Materials()[0].PBRMetallicRoughness().BaseColorFactor())
}

func TestLoadModelMissingFile(t *testing.T) {
	e := NewEngine()
	defer e.Quit()
	_, err := e.LoadModel(context.Background(), filepath.Join(t.TempDir(), "missing.gltf"), nil)
	assert.Error(t, err)
}

func TestEngineContextRunsScript(t *testing.T) {
	cfg := config.Default()
	cfg.Context.Capabilities = "messaging,material-properties"
	e := NewEngine(WithConfig(cfg), WithProfiling(true))
	defer e.Quit()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m, err := e.LoadModel(ctx, writeModel(t), nil)
	require.NoError(t, err)
	defer m.Release()

	ec, err := e.NewExecutionContext()
	require.NoError(t, err)
	assert.True(t, ec.Capabilities().Has(capability.MaterialProperties))

	messages := make(chan json.RawMessage, 1)
	ec.OnMessage(func(data json.RawMessage) { messages <- data })
	require.NoError(t, ec.ChangeModel(ctx, m.Graft))
	require.NoError(t, ec.Eval(ctx, `
if err := threedom.Model().Materials()[0].PBRMetallicRoughness().SetBaseColorFactor([]float32{0, 1, 0, 1}); err != nil {
	panic(err)
}
threedom.PostMessage("ok")
`))

	select {
	case data := <-messages:
		assert.JSONEq(t, `"ok"`, string(data))
	case <-ctx.Done():
		t.Fatal("timed out waiting for the script")
	}
	assert.Equal(t, common.RGBA{0, 1, 0, 1}, m.Graft.Model().Materials()[0].PBRMetallicRoughness().BaseColorFactor())
	applied, _ := e.Profiler().Totals()
	assert.Equal(t, 1, applied)
}

func TestContextOptionsOverrideConfig(t *testing.T) {
	e := NewEngine()
	defer e.Quit()
	set, err := capability.Parse("messaging")
	require.NoError(t, err)

	ec, err := e.NewExecutionContext(execution_context.WithCapabilities(set))
	require.NoError(t, err)
	assert.True(t, ec.Capabilities().Has(capability.Messaging))
}

func TestInvalidCapabilitiesInConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Context.Capabilities = "teleport"
	e := NewEngine(WithConfig(cfg))
	defer e.Quit()
	_, err := e.NewExecutionContext()
	assert.Error(t, err)
}

func TestProfilerToggle(t *testing.T) {
	e := NewEngine()
	defer e.Quit()
	assert.Nil(t, e.Profiler())
	e.EnableProfiler()
	assert.NotNil(t, e.Profiler())
	e.DisableProfiler()
	assert.Nil(t, e.Profiler())
}

func TestQuitTerminatesContexts(t *testing.T) {
	e := NewEngine()
	ec, err := e.NewExecutionContext()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ec.Ready(ctx))
	assert.Len(t, e.Contexts(), 1)

	e.Quit()
	assert.Equal(t, execution_context.StateTerminated, ec.State())
	assert.Empty(t, e.Contexts())
	e.Quit()
}
