package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-threedom/engine/renderer/texture"

	"github.com/golang/glog"
	"github.com/h2non/filetype"
)

var errUnrecognizedImage = errors.New("unrecognized image data")

// resolve builds the renderer object for a cache key. It runs at most once per key.
func (imp *gltfImporterImpl) resolve(ctx context.Context, ref gltf.ElementRef) (any, error) {
	switch ref.Type {
	case gltf.ElementMaterial:
		return imp.extractMaterial(ctx, ref.Index)
	case gltf.ElementTexture:
		return imp.extractTexture(ctx, ref.Index)
	case gltf.ElementImage:
		return imp.extractImage(ctx, ref.Index)
	}
	return nil, ErrNotCached
}

// extractMaterial builds the renderer material for a glTF material. Materials
// deduplicated onto an earlier definition return that definition's material.
func (imp *gltfImporterImpl) extractMaterial(ctx context.Context, index int) (material.Material, error) {
	if canonical := imp.canonical[index]; canonical != index {
		value, err := imp.cache.Get(ctx, gltf.Ref(gltf.ElementMaterial, canonical).CacheKey())
		if err != nil {
			return nil, err
		}
		return value.(material.Material), nil
	}

	def := &imp.doc.Materials[index]
	options := []material.MaterialBuilderOption{
		material.WithName(common.Coalesce(def.Name, fmt.Sprintf("material_%d", index))),
		material.WithDoubleSided(def.DoubleSided),
		material.WithAlphaMode(common.Coalesce(def.AlphaMode, gltf.AlphaModeOpaque), 0.5),
	}
	if def.Name != "" {
		options = append(options, material.WithUserData("name", def.Name))
	}
	if def.AlphaCutoff != nil {
		options = append(options, material.WithAlphaMode(common.Coalesce(def.AlphaMode, gltf.AlphaModeOpaque), *def.AlphaCutoff))
	}
	if def.EmissiveFactor != nil {
		options = append(options, material.WithEmissive(common.RGB(*def.EmissiveFactor)))
	}

	if pbr := def.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			options = append(options, material.WithBaseColor(common.RGBA(*pbr.BaseColorFactor)))
		}
		if pbr.MetallicFactor != nil {
			options = append(options, material.WithMetalness(*pbr.MetallicFactor))
		}
		if pbr.RoughnessFactor != nil {
			options = append(options, material.WithRoughness(*pbr.RoughnessFactor))
		}
		if pbr.BaseColorTexture != nil {
			options = append(options, imp.textureOptions(ctx, index, pbr.BaseColorTexture.Index, material.SlotMap)...)
		}
		if pbr.MetallicRoughnessTexture != nil {
			options = append(options, imp.textureOptions(ctx, index, pbr.MetallicRoughnessTexture.Index,
				material.SlotMetalnessMap, material.SlotRoughnessMap)...)
		}
	}
	if def.NormalTexture != nil {
		options = append(options, imp.textureOptions(ctx, index, def.NormalTexture.Index, material.SlotNormalMap)...)
	}
	if def.OcclusionTexture != nil {
		options = append(options, imp.textureOptions(ctx, index, def.OcclusionTexture.Index, material.SlotAOMap)...)
	}
	if def.EmissiveTexture != nil {
		options = append(options, imp.textureOptions(ctx, index, def.EmissiveTexture.Index, material.SlotEmissiveMap)...)
	}

	return material.NewMaterial(options...), nil
}

// textureOptions resolves a texture and binds it to every given slot. A texture that
// cannot be resolved leaves the slots empty.
func (imp *gltfImporterImpl) textureOptions(ctx context.Context, materialIndex, textureIndex int, slots ...material.Slot) []material.MaterialBuilderOption {
	value, err := imp.cache.Get(ctx, gltf.Ref(gltf.ElementTexture, textureIndex).CacheKey())
	if err != nil {
		glog.Warningf("[Loader] material %d: texture %d unavailable: %v", materialIndex, textureIndex, err)
		return nil
	}
	tex := value.(texture.Texture)
	options := make([]material.MaterialBuilderOption, len(slots))
	for i, slot := range slots {
		options[i] = material.WithMap(slot, tex)
	}
	return options
}

// extractTexture builds the renderer texture for a glTF texture. An image that fails
// to load leaves the texture without an image.
func (imp *gltfImporterImpl) extractTexture(ctx context.Context, index int) (texture.Texture, error) {
	def := &imp.doc.Textures[index]

	var sampler *gltf.Sampler
	if def.Sampler != nil && *def.Sampler >= 0 && *def.Sampler < len(imp.doc.Samplers) {
		sampler = &imp.doc.Samplers[*def.Sampler]
	}

	options := []texture.TextureBuilderOption{
		texture.WithName(common.Coalesce(def.Name, fmt.Sprintf("texture_%d", index))),
		texture.WithSampler(texture.SamplerFromGLTF(sampler)),
	}
	if def.Name != "" {
		options = append(options, texture.WithUserData("name", def.Name))
	}

	if def.Source != nil {
		value, err := imp.cache.Get(ctx, gltf.Ref(gltf.ElementImage, *def.Source).CacheKey())
		if err != nil {
			glog.Warningf("[Loader] texture %d: image %d unavailable: %v", index, *def.Source, err)
		} else {
			options = append(options, texture.WithImage(value.(*texture.Image)))
		}
	}

	return texture.NewTexture(options...), nil
}

// extractImage reads the payload of a glTF image from its buffer view or URI.
func (imp *gltfImporterImpl) extractImage(ctx context.Context, index int) (*texture.Image, error) {
	def := &imp.doc.Images[index]

	var (
		data     []byte
		declared string
		err      error
	)
	switch {
	case def.BufferView != nil:
		data, err = gltf.ReadBufferView(imp.doc, *def.BufferView)
	case def.URI != "":
		data, declared, err = imp.read(ctx, def.URI)
	default:
		err = fmt.Errorf("image %d has neither uri nor bufferView", index)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image %d: %w", index, err)
	}

	mimeType, err := ImageMIMEType(data, common.Coalesce(def.MimeType, declared))
	if err != nil {
		return nil, fmt.Errorf("image %d: %w", index, err)
	}

	return &texture.Image{
		Name:     def.Name,
		URI:      def.URI,
		MimeType: mimeType,
		Data:     data,
	}, nil
}

// ImageMIMEType returns the declared MIME type when set, otherwise the type sniffed
// from the payload. Payloads that do not sniff as an image are rejected when nothing
// was declared.
//
// Parameters:
//   - data: the image payload
//   - declared: the MIME type declared by the document or data URI, may be empty
//
// Returns:
//   - string: the MIME type
//   - error: error if no image type could be determined
func ImageMIMEType(data []byte, declared string) (string, error) {
	if declared != "" {
		return declared, nil
	}
	if !filetype.IsImage(data) {
		return "", errUnrecognizedImage
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "", errUnrecognizedImage
	}
	return kind.MIME.Value, nil
}
