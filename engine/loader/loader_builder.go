package loader

import "net/http"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithHTTPClient is an option builder that sets the client used for http(s) URLs.
//
// Parameters:
//   - client: the HTTP client
//
// Returns:
//   - LoaderBuilderOption: a function that applies the client option to a loader
func WithHTTPClient(client *http.Client) LoaderBuilderOption {
	return func(l *loader) {
		if client != nil {
			l.http = &httpBackend{client: client}
		}
	}
}

// WithMaterialDeduplication is an option builder that controls whether identical glTF
// material definitions collapse into a single renderer material.
//
// Parameters:
//   - enabled: true to share one renderer material between identical definitions
//
// Returns:
//   - LoaderBuilderOption: a function that applies the deduplication option to a loader
func WithMaterialDeduplication(enabled bool) LoaderBuilderOption {
	return func(l *loader) {
		l.dedupeMaterials = enabled
	}
}
