package facade

import (
	"context"
	"fmt"

	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/loader"
	"github.com/Carmen-Shannon/oxy-threedom/engine/protocol"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"
)

// Image is the facade of a glTF image. Writes reach every renderer texture of every
// glTF texture sourcing the image.
type Image struct {
	element
}

var _ Element = &Image{}

func newImage(g *ModelGraft, index int) *Image {
	return &Image{element: newElement(g, gltf.Ref(gltf.ElementImage, index))}
}

func (i *Image) ElementType() string {
	return TypeImage
}

// Name returns the name of the image bound to the renderer textures sourcing it.
func (i *Image) Name() string {
	var out string
	i.graft.read(func(doc *gltf.Document) {
		out = i.name(doc)
	})
	return out
}

// Index returns the glTF image index.
func (i *Image) Index() int {
	return i.ref.Index
}

// URI returns the image URI, empty for buffer-view images.
func (i *Image) URI() string {
	var out string
	i.graft.read(func(doc *gltf.Document) {
		out = i.def(doc).URI
	})
	return out
}

// MimeType returns the declared MIME type.
func (i *Image) MimeType() string {
	var out string
	i.graft.read(func(doc *gltf.Document) {
		out = i.def(doc).MimeType
	})
	return out
}

// SetURI points the image at a new resource, resolved relative to the model. The
// payload must be an image. An empty uri restores the image the model was loaded
// with when it came from a buffer view, and unbinds the image otherwise.
//
// Parameters:
//   - ctx: bounds fetching the resource
//   - uri: a data URI, a path relative to the model or an absolute URL
//
// Returns:
//   - error: error if the resource cannot be fetched, is not an image, or a texture
//     rejects the write
func (i *Image) SetURI(ctx context.Context, uri string) error {
	origin := i.graft.origins[i.ref.Index]

	var (
		image *texture.Image
		next  = gltf.Image{Name: origin.Name, Extensions: origin.Extensions, Extras: origin.Extras}
	)
	switch {
	case uri != "":
		data, declared, err := i.graft.csg.Asset().ReadResource(ctx, uri)
		if err != nil {
			return fmt.Errorf("failed to fetch image %q: %w", uri, err)
		}
		mimeType, err := loader.ImageMIMEType(data, declared)
		if err != nil {
			return fmt.Errorf("image %q: %w", uri, err)
		}
		image = &texture.Image{Name: origin.Name, URI: uri, MimeType: mimeType, Data: data}
		next.URI = uri
		next.MimeType = declared
	case origin.BufferView != nil:
		img, err := i.graft.imageFor(ctx, i.ref.Index)
		if err != nil {
			return err
		}
		image = img
		next.BufferView = copyIndex(origin.BufferView)
		next.MimeType = origin.MimeType
	}

	return i.graft.write(ctx, func(doc *gltf.Document) error {
		textures := i.graft.texturesUsing(doc, i.ref.Index, func(def *gltf.Texture) *int { return def.Source })
		if err := applyTextures(textures, func(tex texture.Texture) error { return tex.SetImage(image) }); err != nil {
			return err
		}
		*i.def(doc) = next
		return nil
	})
}

func (i *Image) Mutate(ctx context.Context, property string, value any) error {
	switch property {
	case "uri":
		var uri string
		if err := decodeValue(value, &uri); err != nil {
			return err
		}
		return i.SetURI(ctx, uri)
	default:
		return &UnknownPropertyError{Property: property, ElementType: TypeImage}
	}
}

func (i *Image) toJSON(doc *gltf.Document) protocol.SerializedImage {
	def := i.def(doc)
	return protocol.SerializedImage{
		SerializedElement: protocol.SerializedElement{ID: i.id, Name: i.name(doc)},
		Index:             i.ref.Index,
		URI:               def.URI,
		MimeType:          def.MimeType,
	}
}

func (i *Image) name(doc *gltf.Document) string {
	for _, tex := range i.graft.texturesUsing(doc, i.ref.Index, func(def *gltf.Texture) *int { return def.Source }) {
		if img := tex.Image(); img != nil && img.Name != "" {
			return img.Name
		}
	}
	return ""
}

func (i *Image) def(doc *gltf.Document) *gltf.Image {
	return &doc.Images[i.ref.Index]
}
