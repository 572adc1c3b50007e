package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
)

// loaderBackend defines the generic interface for reading model files and the
// resources they reference. Concrete implementations handle one URL scheme.
type loaderBackend interface {
	// Read fetches the bytes at uri, reporting progress as bytes arrive.
	//
	// Parameters:
	//   - ctx: the context bounding the read
	//   - uri: an absolute location understood by this backend
	//   - progress: optional callback receiving the fraction read so far
	//
	// Returns:
	//   - []byte: the resource bytes
	//   - error: error if the read fails
	Read(ctx context.Context, uri string, progress ProgressFunc) ([]byte, error)

	// Resolve resolves a reference found inside a document against the document's location.
	//
	// Parameters:
	//   - base: the location of the referencing document
	//   - ref: the reference, relative or absolute
	//
	// Returns:
	//   - string: an absolute location for Read
	Resolve(base, ref string) string
}

// fileBackend reads from the local filesystem.
type fileBackend struct{}

var _ loaderBackend = fileBackend{}

func (fileBackend) Read(ctx context.Context, uri string, progress ProgressFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(strings.TrimPrefix(uri, "file://"))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if progress != nil {
		progress(1)
	}
	return data, nil
}

func (fileBackend) Resolve(base, ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	unescaped, err := url.PathUnescape(ref)
	if err != nil {
		unescaped = ref
	}
	return filepath.Join(filepath.Dir(strings.TrimPrefix(base, "file://")), filepath.FromSlash(unescaped))
}

// httpBackend reads over HTTP(S).
type httpBackend struct {
	client *http.Client
}

var _ loaderBackend = &httpBackend{}

func (b *httpBackend) Read(ctx context.Context, uri string, progress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch %s: status %d", uri, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if progress != nil && resp.ContentLength > 0 {
		body = &progressReader{r: resp.Body, total: resp.ContentLength, progress: progress}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", uri, err)
	}
	if progress != nil {
		progress(1)
	}
	return data, nil
}

func (b *httpBackend) Resolve(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// progressReader reports the fraction of a known-length body read so far.
type progressReader struct {
	r        io.Reader
	read     int64
	total    int64
	progress ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	if n > 0 {
		p.progress(float64(p.read) / float64(p.total))
	}
	return n, err
}

// resolveBackend selects the backend for a URL based on its scheme.
func (l *loader) resolveBackend(uri string) loaderBackend {
	if isHTTP(uri) {
		return l.http
	}
	return fileBackend{}
}

// resourceReader returns a gltf.ResourceReader for references inside the document at base.
func (l *loader) resourceReader(ctx context.Context, base string) gltf.ResourceReader {
	return func(ref string) ([]byte, error) {
		target := ref
		if !isHTTP(ref) {
			target = l.resolveBackend(base).Resolve(base, ref)
		}
		return l.resolveBackend(target).Read(ctx, target, nil)
	}
}

func isHTTP(uri string) bool {
	lower := strings.ToLower(uri)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
