package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-threedom/engine/loader"
	"github.com/Carmen-Shannon/oxy-threedom/engine/loader/loadertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoader serves the fixture model for every URL, counting loads. When gate is
// set every load waits for it to close.
type fakeLoader struct {
	gate   chan struct{}
	fail   atomic.Bool
	loads  atomic.Int32
	mu     sync.Mutex
	assets map[string][]*loader.Asset
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{assets: make(map[string][]*loader.Asset)}
}

func (f *fakeLoader) Load(ctx context.Context, url string, progress loader.ProgressFunc) (*loader.Asset, error) {
	f.loads.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail.Load() {
		return nil, errors.New("boom")
	}
	if progress != nil {
		progress(0.5)
		progress(1)
	}
	asset, err := f.LoadBytes(ctx, url, []byte(loadertest.ModelJSON))
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.assets[url] = append(f.assets[url], asset)
	f.mu.Unlock()
	return asset, nil
}

func (f *fakeLoader) LoadBytes(ctx context.Context, name string, data []byte) (*loader.Asset, error) {
	return loader.NewLoader().LoadBytes(ctx, name, data)
}

func (f *fakeLoader) template(url string) *loader.Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.assets[url]) == 0 {
		return nil
	}
	return f.assets[url][0]
}

func TestRetainerCount(t *testing.T) {
	p := NewEvictionPolicy(nil)
	assert.Equal(t, 0, p.RetainerCount("x"))
	assert.Equal(t, DefaultEvictionThreshold, p.EvictionThreshold())

	p.Retain("x")
	p.Retain("x")
	require.NoError(t, p.Release("x"))
	assert.Equal(t, 1, p.RetainerCount("x"))
	assert.Empty(t, p.Evictable())

	require.NoError(t, p.Release("x"))
	assert.Equal(t, 0, p.RetainerCount("x"))
	assert.Equal(t, []string{"x"}, p.Evictable())

	assert.ErrorIs(t, p.Release("x"), ErrReleaseWithoutRetain)
	assert.ErrorIs(t, p.Release("never"), ErrReleaseWithoutRetain)
	assert.Equal(t, 0, p.RetainerCount("x"))
}

func TestEvictionLeastRecentlyReleasedFirst(t *testing.T) {
	var evicted []string
	p := NewEvictionPolicy(func(key string) { evicted = append(evicted, key) }, WithThreshold(1))

	p.Retain("a")
	p.Retain("b")
	require.NoError(t, p.Release("a"))
	assert.Empty(t, evicted, "within the threshold")
	require.NoError(t, p.Release("b"))

	assert.Equal(t, []string{"a"}, evicted)
	assert.Equal(t, []string{"b"}, p.Evictable())

	p.Retain("b")
	assert.Empty(t, p.Evictable())
	require.NoError(t, p.Release("b"))

	p.SetEvictionThreshold(0)
	assert.Equal(t, []string{"a", "b"}, evicted)
	assert.Empty(t, p.Evictable())
}

func TestEvictionPolicyReset(t *testing.T) {
	p := NewEvictionPolicy(nil)
	p.Retain("a")
	p.Retain("b")
	require.NoError(t, p.Release("b"))
	p.Forget("a")
	assert.Equal(t, 0, p.RetainerCount("a"))

	p.Reset()
	assert.Equal(t, 0, p.RetainerCount("b"))
	assert.Empty(t, p.Evictable())
}

func TestLoadIsSingleFlight(t *testing.T) {
	fake := newFakeLoader()
	fake.gate = make(chan struct{})
	c := NewCachingLoader(WithLoader(fake))

	var wg sync.WaitGroup
	handles := make([]*Handle, 4)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Load(context.Background(), "m.gltf", nil)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}

	require.Eventually(t, func() bool { return c.Has("m.gltf") }, time.Second, time.Millisecond)
	assert.False(t, c.HasFinishedLoading("m.gltf"))
	close(fake.gate)
	wg.Wait()

	assert.Equal(t, int32(1), fake.loads.Load())
	assert.True(t, c.HasFinishedLoading("m.gltf"))
	assert.Equal(t, 4, c.EvictionPolicy().RetainerCount("m.gltf"))
	for i := 1; i < len(handles); i++ {
		assert.NotSame(t, handles[0].Asset, handles[i].Asset)
		assert.Len(t, handles[i].Asset.Document.Materials, 4)
	}
}

func TestHandleRelease(t *testing.T) {
	fake := newFakeLoader()
	c := NewCachingLoader(WithLoader(fake), WithEvictionThreshold(0))

	h1, err := c.Load(context.Background(), "m.gltf", nil)
	require.NoError(t, err)
	h2, err := c.Load(context.Background(), "m.gltf", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.loads.Load())

	h1.Release()
	h1.Release()
	assert.True(t, h1.Asset.Disposed())
	assert.Equal(t, 1, c.EvictionPolicy().RetainerCount("m.gltf"))
	assert.True(t, c.Has("m.gltf"))

	h2.Release()
	assert.False(t, c.Has("m.gltf"))
	assert.True(t, fake.template("m.gltf").Disposed())
}

func TestCachingLoaderEvictsLRU(t *testing.T) {
	fake := newFakeLoader()
	c := NewCachingLoader(WithLoader(fake), WithEvictionThreshold(1))
	ctx := context.Background()

	a, err := c.Load(ctx, "a.gltf", nil)
	require.NoError(t, err)
	b, err := c.Load(ctx, "b.gltf", nil)
	require.NoError(t, err)

	a.Release()
	assert.True(t, c.Has("a.gltf"))
	b.Release()

	assert.False(t, c.Has("a.gltf"))
	assert.True(t, c.Has("b.gltf"))
	assert.True(t, fake.template("a.gltf").Disposed())
	assert.False(t, fake.template("b.gltf").Disposed())

	_, err = c.Load(ctx, "a.gltf", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), fake.loads.Load())
}

func TestPreloadReportsProgress(t *testing.T) {
	fake := newFakeLoader()
	c := NewCachingLoader(WithLoader(fake))

	var got []float64
	require.NoError(t, c.Preload(context.Background(), "m.gltf", func(f float64) { got = append(got, f) }))
	assert.Equal(t, []float64{0.45, 0.9, 1}, got)
	assert.True(t, c.HasFinishedLoading("m.gltf"))
	assert.Equal(t, 0, c.EvictionPolicy().RetainerCount("m.gltf"))
}

func TestFailedLoadIsNotCached(t *testing.T) {
	fake := newFakeLoader()
	fake.fail.Store(true)
	c := NewCachingLoader(WithLoader(fake))

	_, err := c.Load(context.Background(), "m.gltf", nil)
	assert.Error(t, err)
	assert.False(t, c.Has("m.gltf"))

	fake.fail.Store(false)
	_, err = c.Load(context.Background(), "m.gltf", nil)
	assert.NoError(t, err)
	assert.Equal(t, int32(2), fake.loads.Load())
}

func TestCancelledWaitDoesNotCancelLoad(t *testing.T) {
	fake := newFakeLoader()
	fake.gate = make(chan struct{})
	c := NewCachingLoader(WithLoader(fake))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Load(ctx, "m.gltf", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return fake.loads.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(fake.gate)
	require.Eventually(t, func() bool { return c.HasFinishedLoading("m.gltf") }, time.Second, time.Millisecond)
	assert.Equal(t, 0, c.EvictionPolicy().RetainerCount("m.gltf"))
}

func TestDeleteAndClear(t *testing.T) {
	fake := newFakeLoader()
	c := NewCachingLoader(WithLoader(fake))
	ctx := context.Background()

	h, err := c.Load(ctx, "a.gltf", nil)
	require.NoError(t, err)
	require.NoError(t, c.Preload(ctx, "b.gltf", nil))

	c.Delete("a.gltf")
	assert.False(t, c.Has("a.gltf"))
	assert.True(t, fake.template("a.gltf").Disposed())
	assert.False(t, h.Asset.Disposed(), "handles keep their clones")

	c.Clear()
	assert.False(t, c.Has("b.gltf"))
	assert.Equal(t, 0, c.EvictionPolicy().RetainerCount("a.gltf"))
	h.Release()
}

func TestEntryRecreatedDuringLoadIsFilled(t *testing.T) {
	fake := newFakeLoader()
	fake.gate = make(chan struct{})
	c := NewCachingLoader(WithLoader(fake))
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := c.Load(ctx, "m.gltf", nil)
		first <- err
	}()
	require.Eventually(t, func() bool { return fake.loads.Load() == 1 }, time.Second, time.Millisecond)
	c.Delete("m.gltf")
	assert.False(t, c.Has("m.gltf"))

	second := make(chan *Handle, 1)
	go func() {
		h, err := c.Load(ctx, "m.gltf", nil)
		assert.NoError(t, err)
		second <- h
	}()
	require.Eventually(t, func() bool { return c.Has("m.gltf") }, time.Second, time.Millisecond)
	close(fake.gate)

	assert.NoError(t, <-first)
	h := <-second
	require.NotNil(t, h)
	assert.True(t, c.Has("m.gltf"))
	assert.True(t, c.HasFinishedLoading("m.gltf"))
	assert.Equal(t, int32(1), fake.loads.Load())
	assert.False(t, h.Template.Disposed())
	assert.Same(t, fake.template("m.gltf"), h.Template)
}

func TestEntryDeletedDuringLoad(t *testing.T) {
	fake := newFakeLoader()
	fake.gate = make(chan struct{})
	c := NewCachingLoader(WithLoader(fake))

	done := make(chan error, 1)
	go func() {
		_, err := c.Load(context.Background(), "m.gltf", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return fake.loads.Load() == 1 }, time.Second, time.Millisecond)
	c.Delete("m.gltf")
	close(fake.gate)

	assert.ErrorIs(t, <-done, errDeletedWhileLoading)
	assert.False(t, c.Has("m.gltf"))
	assert.False(t, c.HasFinishedLoading("m.gltf"))
	assert.True(t, fake.template("m.gltf").Disposed())
	assert.Equal(t, 0, c.EvictionPolicy().RetainerCount("m.gltf"))
}

func TestEvictionSkipsRetainedEntry(t *testing.T) {
	fake := newFakeLoader()
	c := NewCachingLoader(WithLoader(fake), WithEvictionThreshold(0))

	h, err := c.Load(context.Background(), "m.gltf", nil)
	require.NoError(t, err)
	c.(*cachingLoader).evict("m.gltf")
	assert.True(t, c.HasFinishedLoading("m.gltf"))
	assert.False(t, h.Template.Disposed())

	h.Release()
	assert.False(t, c.Has("m.gltf"))
	assert.True(t, h.Template.Disposed())
}

func TestLoadRacingRelease(t *testing.T) {
	fake := newFakeLoader()
	c := NewCachingLoader(WithLoader(fake), WithEvictionThreshold(0))
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				h, err := c.Load(ctx, "m.gltf", nil)
				if !assert.NoError(t, err) {
					return
				}
				assert.False(t, h.Template.Disposed(), "template disposed while retained")
				h.Release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, c.EvictionPolicy().RetainerCount("m.gltf"))
	assert.False(t, c.Has("m.gltf"))
}
