package loader

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
)

// ProgressFunc receives the fraction, between 0 and 1, of a model read so far.
type ProgressFunc func(fraction float64)

// loader is the implementation of the Loader interface.
type loader struct {
	http *httpBackend

	dedupeMaterials bool
}

// Loader defines the public-facing interface for loading glTF models into
// renderer-native scene graphs. The backend is selected from the URL scheme:
// http(s) URLs are fetched over the network, anything else is read from disk.
type Loader interface {
	// Load fetches and imports the model at url.
	//
	// Parameters:
	//   - ctx: the context bounding the fetch of the model and its buffers
	//   - url: a file path, file:// URL or http(s) URL of a .gltf or .glb file
	//   - progress: optional callback receiving the fraction of the model read so far
	//
	// Returns:
	//   - *Asset: the imported asset
	//   - error: error if fetching or parsing fails
	Load(ctx context.Context, url string, progress ProgressFunc) (*Asset, error)

	// LoadBytes imports a model already held in memory. Relative references inside the
	// document resolve against name.
	//
	// Parameters:
	//   - ctx: the context bounding the fetch of external buffers
	//   - name: the location the data came from
	//   - data: glTF JSON text or GLB bytes
	//
	// Returns:
	//   - *Asset: the imported asset
	//   - error: error if parsing fails
	LoadBytes(ctx context.Context, name string, data []byte) (*Asset, error)
}

var _ Loader = &loader{}

// NewLoader creates a new Loader with the given options applied.
// Material deduplication is enabled by default.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided options
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		http:            &httpBackend{client: http.DefaultClient},
		dedupeMaterials: true,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Load(ctx context.Context, url string, progress ProgressFunc) (*Asset, error) {
	data, err := l.resolveBackend(url).Read(ctx, url, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", url, err)
	}
	return l.LoadBytes(ctx, url, data)
}

func (l *loader) LoadBytes(ctx context.Context, name string, data []byte) (*Asset, error) {
	parser := gltf.NewParser(gltf.WithResourceReader(l.resourceReader(ctx, name)))
	doc, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	var imp gltfImporter = newGLTFImporter(doc, func(ctx context.Context, uri string) ([]byte, string, error) {
		return l.readResource(ctx, name, uri)
	}, l.dedupeMaterials)

	scenes, err := imp.Import(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", name, err)
	}

	asset := &Asset{
		URL:      name,
		Document: doc,
		Scenes:   scenes,
		Cache:    imp.Cache(),
		read:     imp.ReadResource,
	}
	if len(scenes) > 0 {
		asset.Scene = scenes[0]
		if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(scenes) {
			asset.Scene = scenes[*doc.Scene]
		}
	}
	return asset, nil
}

// readResource reads a resource referenced from the document at base. Data URIs are
// decoded in place and report their declared MIME type.
func (l *loader) readResource(ctx context.Context, base, ref string) ([]byte, string, error) {
	if strings.HasPrefix(ref, "data:") {
		return gltf.DecodeDataURI(ref)
	}
	data, err := l.resourceReader(ctx, base)(ref)
	if err != nil {
		return nil, "", err
	}
	return data, "", nil
}
