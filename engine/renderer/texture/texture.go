package texture

import (
	"errors"
	"maps"
	"sync"

	"github.com/Carmen-Shannon/oxy-threedom/common"
)

// ErrDisposed is returned by writes on a texture that has been disposed.
var ErrDisposed = errors.New("texture has been disposed")

// Image is decoded-on-demand source data for a texture. Images are immutable once
// created and may be shared between textures.
type Image struct {
	// Name is an optional image name.
	Name string

	// URI is where the image was loaded from, empty for buffer-view images.
	URI string

	// MimeType is the declared or sniffed MIME type of Data.
	MimeType string

	// Data is the encoded image payload (PNG, JPEG, ...).
	Data []byte
}

// texture is the implementation of the Texture interface.
type texture struct {
	mu       sync.RWMutex
	name     string
	userData map[string]any
	image    *Image
	sampler  common.SamplerState
	version  uint64
	disposed bool
}

// Texture defines the interface for a renderer-native texture: an image plus the
// sampler state used to read it. Every successful write bumps the version so a
// renderer knows to re-upload.
type Texture interface {
	// Name retrieves the renderer-side name of the texture.
	//
	// Returns:
	//   - string: the texture name
	Name() string

	// UserData retrieves a user data value attached by the loader or the application.
	//
	// Parameters:
	//   - key: the user data key
	//
	// Returns:
	//   - any: the stored value
	//   - bool: true if the key is present
	UserData(key string) (any, bool)

	// SetUserData attaches a user data value.
	//
	// Parameters:
	//   - key: the user data key
	//   - value: the value to store
	SetUserData(key string, value any)

	// Image retrieves the current source image, or nil if none is bound.
	//
	// Returns:
	//   - *Image: the image or nil
	Image() *Image

	// SetImage binds a new source image.
	//
	// Parameters:
	//   - image: the image to bind, nil to unbind
	//
	// Returns:
	//   - error: ErrDisposed if the texture was disposed
	SetImage(image *Image) error

	// Sampler retrieves the current sampler state.
	//
	// Returns:
	//   - common.SamplerState: the sampler state
	Sampler() common.SamplerState

	// SetSampler replaces the sampler state.
	//
	// Parameters:
	//   - state: the new sampler state
	//
	// Returns:
	//   - error: ErrDisposed if the texture was disposed
	SetSampler(state common.SamplerState) error

	// Version reports how many successful writes the texture has seen.
	//
	// Returns:
	//   - uint64: the version counter
	Version() uint64

	// Clone returns an independent texture sharing the same image.
	//
	// Returns:
	//   - Texture: the copy
	Clone() Texture

	// Dispose releases the texture. Later writes fail with ErrDisposed.
	Dispose()

	// Disposed reports whether Dispose has been called.
	//
	// Returns:
	//   - bool: true once disposed
	Disposed() bool
}

var _ Texture = &texture{}

// NewTexture creates a new Texture with the default sampler state and the provided options applied.
//
// Parameters:
//   - options: variadic list of TextureBuilderOption functions to configure the texture
//
// Returns:
//   - Texture: a new Texture instance
func NewTexture(options ...TextureBuilderOption) Texture {
	t := &texture{
		userData: make(map[string]any),
		sampler:  common.DefaultSamplerState(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *texture) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

func (t *texture) UserData(key string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.userData[key]
	return v, ok
}

func (t *texture) SetUserData(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userData[key] = value
}

func (t *texture) Image() *Image {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.image
}

func (t *texture) SetImage(image *Image) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return ErrDisposed
	}
	t.image = image
	t.version++
	return nil
}

func (t *texture) Sampler() common.SamplerState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sampler
}

func (t *texture) SetSampler(state common.SamplerState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return ErrDisposed
	}
	t.sampler = state
	t.version++
	return nil
}

func (t *texture) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

func (t *texture) Clone() Texture {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &texture{
		name:     t.name,
		userData: maps.Clone(t.userData),
		image:    t.image,
		sampler:  t.sampler,
	}
}

func (t *texture) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposed = true
}

func (t *texture) Disposed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.disposed
}
