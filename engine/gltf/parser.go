package gltf

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Common errors returned by the parser
var (
	errInvalidGLTFVersion = errors.New("invalid glTF version: must be 2.0")
	errInvalidBufferURI   = errors.New("invalid buffer URI")
	errBufferSizeMismatch = errors.New("buffer size mismatch")
	errNoResourceReader   = errors.New("no resource reader for external URI")
)

// ResourceReader resolves an external URI referenced by a document (relative to the document) into bytes.
type ResourceReader func(uri string) ([]byte, error)

// parser is the implementation of the Parser interface.
type parser struct {
	baseDir string
	reader  ResourceReader
}

// Parser decodes glTF JSON and GLB data into a Document with every buffer loaded.
type Parser interface {
	// Parse decodes data, detecting GLB containers by their magic number.
	// Buffers are loaded from the GLB BIN chunk, data URIs, or through the resource reader.
	//
	// Parameters:
	//   - data: glTF JSON text or GLB container bytes
	//
	// Returns:
	//   - *Document: the parsed document with buffer data populated
	//   - error: error if decoding or buffer loading fails
	Parse(data []byte) (*Document, error)

	// ReadResource resolves a URI the way buffers are resolved: data URIs are decoded
	// in place, anything else goes through the resource reader.
	//
	// Parameters:
	//   - uri: the URI to read
	//
	// Returns:
	//   - []byte: the resource bytes
	//   - string: the MIME type if the URI declared one
	//   - error: error if the resource cannot be read
	ReadResource(uri string) ([]byte, string, error)
}

var _ Parser = &parser{}

// NewParser creates a new Parser with the given options applied.
// Without a resource reader, relative URIs are read from the local filesystem under the base directory.
//
// Parameters:
//   - options: a variadic list of ParserBuilderOption functions
//
// Returns:
//   - Parser: the configured parser
func NewParser(options ...ParserBuilderOption) Parser {
	p := &parser{}
	for _, option := range options {
		option(p)
	}
	if p.reader == nil {
		p.reader = p.readFile
	}
	return p
}

func (p *parser) Parse(data []byte) (*Document, error) {
	if len(data) >= 4 && binary.LittleEndian.Uint32(data[:4]) == glbMagic {
		return p.parseGLB(data)
	}
	return p.parseGLTF(data, nil)
}

func (p *parser) ReadResource(uri string) ([]byte, string, error) {
	if strings.HasPrefix(uri, "data:") {
		return DecodeDataURI(uri)
	}
	if p.reader == nil {
		return nil, "", errNoResourceReader
	}
	data, err := p.reader(uri)
	if err != nil {
		return nil, "", err
	}
	return data, "", nil
}

// parseGLTF parses glTF JSON text. bin is the GLB BIN chunk, if any.
func (p *parser) parseGLTF(data []byte, bin []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse glTF JSON: %w", err)
	}

	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return nil, errInvalidGLTFVersion
	}

	if err := p.loadBuffers(&doc, bin); err != nil {
		return nil, fmt.Errorf("failed to load buffers: %w", err)
	}

	return &doc, nil
}

// parseGLB parses a GLB binary container.
func (p *parser) parseGLB(data []byte) (*Document, error) {
	glb, err := UnpackGLB(data)
	if err != nil {
		return nil, err
	}
	return p.parseGLTF(glb.JSON, glb.Binary)
}

// loadBuffers loads all buffer data (from URIs, embedded data, or GLB binary chunk).
func (p *parser) loadBuffers(doc *Document, bin []byte) error {
	for i := range doc.Buffers {
		buf := &doc.Buffers[i]

		if buf.URI == "" {
			if i == 0 && bin != nil {
				buf.Data = bin
				if len(buf.Data) < buf.ByteLength {
					return fmt.Errorf("buffer %d: %w", i, errBufferSizeMismatch)
				}
				continue
			}
			return fmt.Errorf("buffer %d has no URI and no GLB binary chunk", i)
		}

		data, _, err := p.ReadResource(buf.URI)
		if err != nil {
			return fmt.Errorf("buffer %d: %w", i, err)
		}
		buf.Data = data

		if len(buf.Data) < buf.ByteLength {
			return fmt.Errorf("buffer %d: %w", i, errBufferSizeMismatch)
		}
	}

	return nil
}

// readFile loads an external resource relative to the base directory.
func (p *parser) readFile(uri string) ([]byte, error) {
	fullPath := filepath.Join(p.baseDir, filepath.FromSlash(uri))
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load resource %q: %w", uri, err)
	}
	return data, nil
}

// ReadBufferView copies the bytes covered by a buffer view out of a loaded document.
//
// Parameters:
//   - doc: a document whose buffers are loaded
//   - index: the buffer view index
//
// Returns:
//   - []byte: a copy of the buffer view bytes
//   - error: error if the view or its buffer is out of range
func ReadBufferView(doc *Document, index int) ([]byte, error) {
	if index < 0 || index >= len(doc.BufferViews) {
		return nil, fmt.Errorf("bufferView index %d out of range", index)
	}

	bv := &doc.BufferViews[index]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("buffer index %d out of range", bv.Buffer)
	}

	buf := &doc.Buffers[bv.Buffer]
	start := bv.ByteOffset
	end := start + bv.ByteLength
	if end > len(buf.Data) {
		return nil, fmt.Errorf("bufferView exceeds buffer bounds: offset=%d length=%d bufSize=%d", start, bv.ByteLength, len(buf.Data))
	}

	data := make([]byte, bv.ByteLength)
	copy(data, buf.Data[start:end])
	return data, nil
}

// DecodeDataURI decodes a data URI into raw bytes and its MIME type.
// Format: data:[<mediatype>][;base64],<data>
//
// Parameters:
//   - uri: the data URI
//
// Returns:
//   - []byte: the decoded payload
//   - string: the declared MIME type, possibly empty
//   - error: error if the URI is malformed
func DecodeDataURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", errInvalidBufferURI
	}

	commaIdx := strings.Index(uri, ",")
	if commaIdx < 0 {
		return nil, "", errInvalidBufferURI
	}

	header := uri[5:commaIdx]
	payload := uri[commaIdx+1:]

	if !strings.HasSuffix(header, ";base64") {
		return []byte(payload), header, nil
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64: %w", err)
	}
	return data, strings.TrimSuffix(header, ";base64"), nil
}

// EncodeDataURI encodes bytes as a base64 data URI.
//
// Parameters:
//   - mimeType: the MIME type to declare
//   - data: the payload
//
// Returns:
//   - string: the data URI
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
