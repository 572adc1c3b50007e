package gltf

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
)

// Errors returned by UnpackGLB. The messages are stable so callers can match on them.
var (
	ErrUnsupportedHeader = errors.New("Unsupported glTF-Binary header.")
	ErrLegacyBinary      = errors.New("Legacy binary file detected.")
	ErrJSONNotFound      = errors.New("JSON content not found.")
	ErrInvalidJSON       = errors.New("invalid JSON content.")
)

// GLB is a binary glTF container broken into its two payloads.
type GLB struct {
	// JSON is the document text with chunk padding removed.
	JSON []byte

	// Binary is the BIN chunk payload, or nil when the container has none.
	Binary []byte
}

// Document decodes the JSON payload and attaches the binary payload to the
// buffer that has no URI.
//
// Returns:
//   - *Document: the decoded document
//   - error: ErrInvalidJSON if the payload does not decode
func (g *GLB) Document() (*Document, error) {
	var doc Document
	if err := json.Unmarshal(g.JSON, &doc); err != nil {
		return nil, ErrInvalidJSON
	}
	if g.Binary != nil {
		for i := range doc.Buffers {
			if doc.Buffers[i].URI == "" {
				doc.Buffers[i].Data = g.Binary
				break
			}
		}
	}
	return &doc, nil
}

// Align4 pads the given length up to the nearest multiple of 4.
//
// Parameters:
//   - n: the byte length
//
// Returns:
//   - int: the aligned length
func Align4(n int) int {
	return (n + 3) &^ 3
}

// PackGLB writes a JSON document and an optional binary payload into a GLB container.
// The JSON chunk is padded with spaces and the BIN chunk with zeros, both to 4-byte alignment.
// The BIN chunk is omitted when bin is empty.
//
// Parameters:
//   - jsonData: the glTF JSON text
//   - bin: the binary buffer payload, may be nil
//
// Returns:
//   - []byte: the GLB container bytes
//   - error: ErrInvalidJSON if jsonData is not valid JSON
func PackGLB(jsonData []byte, bin []byte) ([]byte, error) {
	if !json.Valid(jsonData) {
		return nil, ErrInvalidJSON
	}

	jsonLen := Align4(len(jsonData))
	total := glbHeaderLength + glbChunkHeaderLen + jsonLen
	binLen := 0
	if len(bin) > 0 {
		binLen = Align4(len(bin))
		total += glbChunkHeaderLen + binLen
	}

	out := bytes.NewBuffer(make([]byte, 0, total))
	le := binary.LittleEndian

	_ = binary.Write(out, le, glbHeader{Magic: glbMagic, Version: glbVersion, Length: uint32(total)})

	_ = binary.Write(out, le, glbChunkHeader{ChunkLength: uint32(jsonLen), ChunkType: glbChunkJSON})
	out.Write(jsonData)
	out.Write(bytes.Repeat([]byte{' '}, jsonLen-len(jsonData)))

	if binLen > 0 {
		_ = binary.Write(out, le, glbChunkHeader{ChunkLength: uint32(binLen), ChunkType: glbChunkBIN})
		out.Write(bin)
		out.Write(make([]byte, binLen-len(bin)))
	}

	return out.Bytes(), nil
}

// UnpackGLB splits a GLB container into its JSON and binary payloads.
// The BIN payload is trimmed to the byteLength declared by the document's
// URI-less buffer when that declaration fits inside the chunk.
//
// Parameters:
//   - data: the GLB container bytes
//
// Returns:
//   - *GLB: the unpacked payloads
//   - error: one of ErrUnsupportedHeader, ErrLegacyBinary, ErrJSONNotFound or ErrInvalidJSON
func UnpackGLB(data []byte) (*GLB, error) {
	if len(data) < glbHeaderLength {
		return nil, ErrUnsupportedHeader
	}

	le := binary.LittleEndian
	if le.Uint32(data[0:4]) != glbMagic {
		return nil, ErrUnsupportedHeader
	}
	if le.Uint32(data[4:8]) < glbVersion {
		return nil, ErrLegacyBinary
	}

	offset := glbHeaderLength
	if len(data) < offset+glbChunkHeaderLen {
		return nil, ErrJSONNotFound
	}
	jsonLen := int(le.Uint32(data[offset:]))
	if le.Uint32(data[offset+4:]) != glbChunkJSON {
		return nil, ErrJSONNotFound
	}
	offset += glbChunkHeaderLen
	if offset+jsonLen > len(data) {
		return nil, ErrInvalidJSON
	}

	jsonData := bytes.TrimRight(data[offset:offset+jsonLen], " \t\r\n\x00")
	if !json.Valid(jsonData) {
		return nil, ErrInvalidJSON
	}
	result := &GLB{JSON: append([]byte(nil), jsonData...)}
	offset += jsonLen

	if len(data) >= offset+glbChunkHeaderLen && le.Uint32(data[offset+4:]) == glbChunkBIN {
		binLen := int(le.Uint32(data[offset:]))
		offset += glbChunkHeaderLen
		end := min(offset+binLen, len(data))
		result.Binary = append([]byte(nil), data[offset:end]...)

		var header struct {
			Buffers []struct {
				URI        string `json:"uri"`
				ByteLength int    `json:"byteLength"`
			} `json:"buffers"`
		}
		if err := json.Unmarshal(result.JSON, &header); err == nil {
			for _, b := range header.Buffers {
				if b.URI == "" {
					if b.ByteLength <= len(result.Binary) {
						result.Binary = result.Binary[:b.ByteLength]
					}
					break
				}
			}
		}
	}

	return result, nil
}
