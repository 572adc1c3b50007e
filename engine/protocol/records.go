package protocol

// SerializedElement holds the fields shared by every serialized facade element.
type SerializedElement struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// SerializedModel is the serialized Model facade sent with model-changed.
type SerializedModel struct {
	SerializedElement
	ModelURI  string               `json:"modelUri"`
	Materials []SerializedMaterial `json:"materials"`
}

// SerializedMaterial is a serialized Material facade.
type SerializedMaterial struct {
	SerializedElement
	PBRMetallicRoughness *SerializedPBRMetallicRoughness `json:"pbrMetallicRoughness,omitempty"`
	NormalTexture        *SerializedTextureInfo          `json:"normalTexture,omitempty"`
	OcclusionTexture     *SerializedTextureInfo          `json:"occlusionTexture,omitempty"`
	EmissiveTexture      *SerializedTextureInfo          `json:"emissiveTexture,omitempty"`
	EmissiveFactor       [3]float32                      `json:"emissiveFactor"`
	AlphaMode            string                          `json:"alphaMode"`
	AlphaCutoff          float32                         `json:"alphaCutoff"`
	DoubleSided          bool                            `json:"doubleSided"`
}

// SerializedPBRMetallicRoughness is a serialized PBRMetallicRoughness facade.
type SerializedPBRMetallicRoughness struct {
	SerializedElement
	BaseColorFactor          [4]float32             `json:"baseColorFactor"`
	MetallicFactor           float32                `json:"metallicFactor"`
	RoughnessFactor          float32                `json:"roughnessFactor"`
	BaseColorTexture         *SerializedTextureInfo `json:"baseColorTexture,omitempty"`
	MetallicRoughnessTexture *SerializedTextureInfo `json:"metallicRoughnessTexture,omitempty"`
}

// SerializedTextureInfo is a serialized TextureInfo facade. Texture is nil for an empty slot.
type SerializedTextureInfo struct {
	SerializedElement
	Slot     string             `json:"slot"`
	TexCoord int                `json:"texCoord,omitempty"`
	Texture  *SerializedTexture `json:"texture,omitempty"`
}

// SerializedTexture is a serialized Texture facade.
type SerializedTexture struct {
	SerializedElement
	Index   int                `json:"index"`
	Sampler *SerializedSampler `json:"sampler,omitempty"`
	Source  *SerializedImage   `json:"source,omitempty"`
}

// SerializedSampler is a serialized Sampler facade. Filters are nil when unset in the document.
type SerializedSampler struct {
	SerializedElement
	Index     int  `json:"index"`
	MinFilter *int `json:"minFilter,omitempty"`
	MagFilter *int `json:"magFilter,omitempty"`
	WrapS     int  `json:"wrapS"`
	WrapT     int  `json:"wrapT"`
}

// SerializedImage is a serialized Image facade. URI is empty for buffer-view images.
type SerializedImage struct {
	SerializedElement
	Index    int    `json:"index"`
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}
