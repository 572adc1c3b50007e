// Package loadertest provides a small glTF model and helpers for tests that need a loaded asset.
package loadertest

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/Carmen-Shannon/oxy-threedom/engine/loader"

	"github.com/stretchr/testify/require"
)

// PixelPNG is a 1x1 PNG, base64 encoded.
const PixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

// ModelURL is the name the fixture model is loaded under.
const ModelURL = "fixture/model.gltf"

// ModelJSON is a glTF document exercising every correlated element type:
//
//   - scene 0 "main": node 0 "root" (mesh 0) with child node 1 "child" (mesh 1)
//   - scene 1 "alt": node 2 "alt-root" (mesh 1)
//   - mesh 0 uses materials 0 and 1, mesh 1 uses material 2
//   - material 2 differs from material 1 only by name, so both share one renderer material
//   - material 3 is referenced by no mesh
//   - textures 0 and 1 share image 0 (data URI), texture 2 uses image 1 (bufferView)
//   - material 0 binds texture 0 as base color, texture 1 as metallic-roughness and
//     normal, and texture 2 as emissive
var ModelJSON = fmt.Sprintf(`{
  "asset": {"version": "2.0", "generator": "loadertest"},
  "scene": 0,
  "scenes": [
    {"name": "main", "nodes": [0]},
    {"name": "alt", "nodes": [2]}
  ],
  "nodes": [
    {"name": "root", "mesh": 0, "children": [1]},
    {"name": "child", "mesh": 1},
    {"name": "alt-root", "mesh": 1}
  ],
  "meshes": [
    {"name": "body", "primitives": [{"attributes": {}, "material": 0}, {"attributes": {}, "material": 1}]},
    {"name": "trim", "primitives": [{"attributes": {}, "material": 2}]}
  ],
  "materials": [
    {
      "name": "Body",
      "pbrMetallicRoughness": {
        "baseColorFactor": [1, 0, 0, 1],
        "baseColorTexture": {"index": 0},
        "metallicFactor": 0.5,
        "roughnessFactor": 0.25,
        "metallicRoughnessTexture": {"index": 1}
      },
      "normalTexture": {"index": 1},
      "emissiveTexture": {"index": 2}
    },
    {"name": "Glass", "pbrMetallicRoughness": {"baseColorFactor": [0, 0, 1, 0.5]}, "alphaMode": "BLEND", "doubleSided": true},
    {"name": "GlassCopy", "pbrMetallicRoughness": {"baseColorFactor": [0, 0, 1, 0.5]}, "alphaMode": "BLEND", "doubleSided": true},
    {"name": "Unused", "emissiveFactor": [1, 1, 0]}
  ],
  "textures": [
    {"name": "albedo", "sampler": 0, "source": 0},
    {"source": 0},
    {"source": 1}
  ],
  "samplers": [
    {"magFilter": 9728, "minFilter": 9987, "wrapS": 33071, "wrapT": 10497}
  ],
  "images": [
    {"name": "pixel", "uri": "data:image/png;base64,%[1]s"},
    {"name": "embedded", "bufferView": 0, "mimeType": "image/png"}
  ],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 70}
  ],
  "buffers": [
    {"byteLength": 70, "uri": "data:application/octet-stream;base64,%[1]s"}
  ]
}`, PixelPNG)

// PixelPNGBytes returns the decoded PixelPNG payload.
func PixelPNGBytes() []byte {
	data, _ := base64.StdEncoding.DecodeString(PixelPNG)
	return data
}

// LoadAsset loads ModelJSON, failing the test on error.
//
// Parameters:
//   - t: the test
//   - options: loader options
//
// Returns:
//   - *loader.Asset: the loaded fixture
func LoadAsset(t testing.TB, options ...loader.LoaderBuilderOption) *loader.Asset {
	t.Helper()
	asset, err := loader.NewLoader(options...).LoadBytes(context.Background(), ModelURL, []byte(ModelJSON))
	require.NoError(t, err)
	return asset
}
