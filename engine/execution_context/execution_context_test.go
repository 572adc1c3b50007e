package execution_context

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/capability"
	"github.com/Carmen-Shannon/oxy-threedom/engine/correlation"
	"github.com/Carmen-Shannon/oxy-threedom/engine/facade"
	"github.com/Carmen-Shannon/oxy-threedom/engine/loader/loadertest"
	"github.com/Carmen-Shannon/oxy-threedom/engine/profiler"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"
	"github.com/Carmen-Shannon/oxy-threedom/engine/sandbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraft(t *testing.T) *facade.ModelGraft {
	t.Helper()
	csg, err := correlation.From(context.Background(), loadertest.LoadAsset(t))
	require.NoError(t, err)
	return facade.NewModelGraft(loadertest.ModelURL, csg)
}

func caps(t *testing.T, list string) capability.Set {
	t.Helper()
	set, err := capability.Parse(list)
	require.NoError(t, err)
	return set
}

// inbox collects the messages and errors a context reports.
type inbox struct {
	messages chan json.RawMessage
	errors   chan error
}

func watch(c ExecutionContext) *inbox {
	in := &inbox{messages: make(chan json.RawMessage, 16), errors: make(chan error, 16)}
	c.OnMessage(func(data json.RawMessage) { in.messages <- data })
	c.OnError(func(err error) { in.errors <- err })
	return in
}

func (in *inbox) message(t *testing.T) json.RawMessage {
	t.Helper()
	select {
	case data := <-in.messages:
		return data
	case err := <-in.errors:
		t.Fatalf("script error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return nil
}

func (in *inbox) error(t *testing.T) error {
	t.Helper()
	select {
	case err := <-in.errors:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an error")
	}
	return nil
}

func TestContextBecomesReady(t *testing.T) {
	c := NewExecutionContext(WithCapabilities(caps(t, "messaging")))
	defer c.Terminate()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Ready(ctx))
	assert.Equal(t, StateReady, c.State())
	assert.NotEmpty(t, c.ID())
	assert.True(t, c.Capabilities().Has(capability.Messaging))
}

func TestScriptMutatesGraft(t *testing.T) {
	p := profiler.NewProfiler()
	c := NewExecutionContext(WithCapabilities(caps(t, "messaging,material-properties")), WithProfiler(p))
	defer c.Terminate()
	in := watch(c)
	ctx := context.Background()

	graft := newGraft(t)
	require.NoError(t, c.ChangeModel(ctx, graft))
	require.NoError(t, c.Eval(ctx, `
pbr := threedom.Model().Materials()[0].PBRMetallicRoughness()
if err := pbr.SetBaseColorFactor([]float32{0, 0, 1}); err != nil {
	panic(err)
}
threedom.PostMessage("done")
`))

	assert.JSONEq(t, `"done"`, string(in.message(t)))
	assert.Equal(t, common.RGBA{0, 0, 1, 1}, graft.Model().Materials()[0].PBRMetallicRoughness().BaseColorFactor())
	applied, failed := p.Totals()
	assert.Equal(t, 1, applied)
	assert.Equal(t, 0, failed)
}

func TestRejectedMutationReachesScript(t *testing.T) {
	c := NewExecutionContext(WithCapabilities(caps(t, "messaging,material-properties")))
	defer c.Terminate()
	in := watch(c)
	ctx := context.Background()

	require.NoError(t, c.ChangeModel(ctx, newGraft(t)))
	require.NoError(t, c.Eval(ctx, `
err := threedom.Model().Materials()[0].SetAlphaMode("SHINY")
threedom.PostMessage(err != nil)
`))
	assert.JSONEq(t, `true`, string(in.message(t)))
}

func TestMissingCapabilityDeniesSetter(t *testing.T) {
	c := NewExecutionContext()
	defer c.Terminate()
	in := watch(c)
	ctx := context.Background()

	graft := newGraft(t)
	before := graft.Model().Materials()[0].PBRMetallicRoughness().BaseColorFactor()
	require.NoError(t, c.ChangeModel(ctx, graft))
	require.NoError(t, c.Eval(ctx, `
if err := threedom.Model().Materials()[0].PBRMetallicRoughness().SetBaseColorFactor([]float32{0, 0, 1}); err != nil {
	panic(err)
}
`))

	err := in.error(t)
	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Contains(t, scriptErr.Message, `Capability "material-properties" not allowed`)
	assert.Equal(t, before, graft.Model().Materials()[0].PBRMetallicRoughness().BaseColorFactor())
}

func TestChangeModelSwitchesGraft(t *testing.T) {
	c := NewExecutionContext(WithCapabilities(caps(t, "messaging,material-properties")))
	defer c.Terminate()
	in := watch(c)
	ctx := context.Background()

	require.NoError(t, c.Eval(ctx, `
threedom.AddEventListener(threedom.EventModelChange, func(e threedom.Event) {
	threedom.PostMessage([]bool{e.PreviousModel != nil, e.Model != nil})
})
`))

	first, second := newGraft(t), newGraft(t)
	require.NoError(t, c.ChangeModel(ctx, first))
	assert.JSONEq(t, `[false,true]`, string(in.message(t)))
	require.NoError(t, c.ChangeModel(ctx, second))
	assert.JSONEq(t, `[true,true]`, string(in.message(t)))

	require.NoError(t, c.Eval(ctx, `
threedom.Model().Materials()[0].SetDoubleSided(true)
threedom.PostMessage("set")
`))
	assert.JSONEq(t, `"set"`, string(in.message(t)))
	assert.True(t, second.Model().Materials()[0].DoubleSided())
	assert.False(t, first.Model().Materials()[0].DoubleSided())

	require.NoError(t, c.ChangeModel(ctx, nil))
	assert.JSONEq(t, `[true,false]`, string(in.message(t)))
}

func TestHostMessagesReachListeners(t *testing.T) {
	c := NewExecutionContext(WithCapabilities(caps(t, "messaging")))
	defer c.Terminate()
	in := watch(c)
	ctx := context.Background()

	require.NoError(t, c.Eval(ctx, `
threedom.AddEventListener(threedom.EventMessage, func(e threedom.Event) {
	threedom.PostMessage(map[string]any{"echo": e.Data})
})
`))
	require.NoError(t, c.PostMessage(ctx, 42))
	assert.JSONEq(t, `{"echo":42}`, string(in.message(t)))
}

func TestListenersMayRegisterListeners(t *testing.T) {
	c := NewExecutionContext(WithCapabilities(caps(t, "messaging")))
	defer c.Terminate()
	ctx := context.Background()

	first := make(chan json.RawMessage, 4)
	second := make(chan json.RawMessage, 4)
	c.OnMessage(func(data json.RawMessage) {
		first <- data
		c.OnMessage(func(data json.RawMessage) { second <- data })
	})
	errs := make(chan error, 1)
	c.OnError(func(err error) {
		c.OnError(func(error) {})
		errs <- err
	})

	require.NoError(t, c.Eval(ctx, `threedom.PostMessage(1)`))
	select {
	case data := <-first:
		assert.JSONEq(t, `1`, string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
	assert.Empty(t, second, "listener added during dispatch saw the same message")

	require.NoError(t, c.Eval(ctx, `panic("boom")`))
	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "boom")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an error")
	}
}

func TestTerminate(t *testing.T) {
	c := NewExecutionContext()
	require.NoError(t, c.Ready(context.Background()))

	c.Terminate()
	c.Terminate()
	assert.Equal(t, StateTerminated, c.State())
	assert.ErrorIs(t, c.Ready(context.Background()), ErrTerminated)
	assert.ErrorIs(t, c.Eval(context.Background(), `threedom.Log("late")`), ErrTerminated)
	assert.ErrorIs(t, c.ChangeModel(context.Background(), nil), ErrTerminated)
	assert.ErrorIs(t, c.PostMessage(context.Background(), 1), ErrTerminated)
}

// stalledTransport never connects until released.
type stalledTransport struct {
	release chan struct{}
	inner   Transport
	once    sync.Once
}

func (s *stalledTransport) Connect(ctx context.Context, id string, set capability.Set) (protocol.Port, error) {
	<-s.release
	return s.inner.Connect(ctx, id, set)
}

func (s *stalledTransport) Close() {
	s.once.Do(func() { close(s.release) })
	s.inner.Close()
}

func TestOperationsWaitForHandshake(t *testing.T) {
	st := &stalledTransport{release: make(chan struct{}), inner: NewWorkerTransport()}
	c := NewExecutionContext(WithCapabilities(caps(t, "messaging")), WithTransport(st))
	defer c.Terminate()
	in := watch(c)
	assert.Equal(t, StateCreated, c.State())

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Ready(short), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- c.Eval(context.Background(), `threedom.PostMessage("queued")`) }()
	st.once.Do(func() { close(st.release) })

	require.NoError(t, <-done)
	assert.JSONEq(t, `"queued"`, string(in.message(t)))
}

func TestTerminateWakesReadyWaiters(t *testing.T) {
	st := &stalledTransport{release: make(chan struct{}), inner: NewWorkerTransport()}
	c := NewExecutionContext(WithTransport(st))

	done := make(chan error, 1)
	go func() { done <- c.Ready(context.Background()) }()
	c.Terminate()
	assert.ErrorIs(t, <-done, ErrTerminated)
}

func TestManipulatorAnswersEveryMutation(t *testing.T) {
	graft := newGraft(t)
	hostEnd, sandboxEnd := protocol.NewMessageChannel()
	m := NewModelGraftManipulator(graft, hostEnd, nil)
	defer m.Dispose()

	pbrID := graft.Model().Materials()[0].PBRMetallicRoughness().InternalID()
	ok, err := protocol.NewMutate(pbrID, "metallicFactor", 0.1, 1)
	require.NoError(t, err)
	bad, err := protocol.NewMutate(pbrID, "shininess", 1, 2)
	require.NoError(t, err)
	missing, err := protocol.NewMutate(-1, "metallicFactor", 0.1, 3)
	require.NoError(t, err)

	for _, msg := range []protocol.Message{ok, bad, missing} {
		require.NoError(t, sandboxEnd.PostMessage(msg))
	}
	for _, want := range []protocol.Message{protocol.NewMutationResult(1, true), protocol.NewMutationResult(2, false), protocol.NewMutationResult(3, false)} {
		env := <-sandboxEnd.Messages()
		assert.Equal(t, want, env.Message)
	}
	assert.InDelta(t, 0.1, graft.Model().Materials()[0].PBRMetallicRoughness().MetallicFactor(), 1e-6)
	assert.Same(t, graft, m.Graft())
}

func TestWebSocketTransport(t *testing.T) {
	secret := []byte("s3cret")
	srv := sandbox.NewServer(secret, sandbox.WithServerStartupScript(`
threedom.AddEventListener(threedom.EventMessage, func(e threedom.Event) {
	threedom.PostMessage(e.Data)
})
`))
	ts := httptest.NewServer(srv)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	c := NewExecutionContext(
		WithCapabilities(caps(t, "messaging,material-properties")),
		WithTransport(NewWebSocketTransport(url, secret, time.Minute)),
	)
	defer c.Terminate()
	in := watch(c)
	ctx := context.Background()

	require.NoError(t, c.PostMessage(ctx, "over the wire"))
	assert.JSONEq(t, `"over the wire"`, string(in.message(t)))

	graft := newGraft(t)
	require.NoError(t, c.ChangeModel(ctx, graft))
	require.NoError(t, c.Eval(ctx, `
threedom.Model().Materials()[1].PBRMetallicRoughness().SetRoughnessFactor(0.75)
threedom.PostMessage("remote done")
`))
	assert.JSONEq(t, `"remote done"`, string(in.message(t)))
	assert.InDelta(t, 0.75, graft.Model().Materials()[1].PBRMetallicRoughness().RoughnessFactor(), 1e-6)
}

func TestWebSocketTransportRefused(t *testing.T) {
	srv := sandbox.NewServer([]byte("s3cret"))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := NewExecutionContext(WithTransport(NewWebSocketTransport("ws"+strings.TrimPrefix(ts.URL, "http"), []byte("wrong"), 0)))
	err := c.Ready(context.Background())
	assert.ErrorIs(t, err, ErrHandshakeRefused)
	assert.Equal(t, StateTerminated, c.State())
}
