package facade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-threedom/common"
	"github.com/Carmen-Shannon/oxy-threedom/engine/gltf"
)

// Element type names used in errors and by the sandbox.
const (
	TypeModel                = "Model"
	TypeMaterial             = "Material"
	TypePBRMetallicRoughness = "PBRMetallicRoughness"
	TypeTextureInfo          = "TextureInfo"
	TypeTexture              = "Texture"
	TypeSampler              = "Sampler"
	TypeImage                = "Image"
)

var (
	// ErrUnknownElement is returned when mutating an id that names no element of the graft.
	ErrUnknownElement = errors.New("unknown element")

	errIndexOutOfRange = errors.New("index out of range")
)

// UnknownPropertyError is returned when a property is not settable on an element type.
type UnknownPropertyError struct {
	Property    string
	ElementType string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("Cannot configure property %q on %s", e.Property, e.ElementType)
}

// Element is the behavior shared by every facade element.
type Element interface {
	// OwnerModel returns the Model facade of the graft the element belongs to.
	//
	// Returns:
	//   - *Model: the owning model
	OwnerModel() *Model

	// InternalID returns the process-wide unique id of the element.
	//
	// Returns:
	//   - int: the id
	InternalID() int

	// ElementType returns the element type name, e.g. "Material".
	//
	// Returns:
	//   - string: the type name
	ElementType() string

	// Name returns the name of the element, or "" when it has none.
	//
	// Returns:
	//   - string: the name
	Name() string

	// Mutate sets a property by its protocol name. value is decoded from JSON when it
	// is a json.RawMessage and converted through JSON otherwise.
	//
	// Parameters:
	//   - ctx: bounds any resource fetch the write needs
	//   - property: the protocol property name
	//   - value: the new value
	//
	// Returns:
	//   - error: UnknownPropertyError for unsupported properties, or the write error
	Mutate(ctx context.Context, property string, value any) error
}

// element holds the fields shared by every facade element.
type element struct {
	graft *ModelGraft
	id    int
	ref   gltf.ElementRef
}

func newElement(graft *ModelGraft, ref gltf.ElementRef) element {
	return element{graft: graft, id: common.NextLocalID(), ref: ref}
}

func (e *element) OwnerModel() *Model {
	return e.graft.model
}

func (e *element) InternalID() int {
	return e.id
}

// Ref returns the glTF element the facade stands for.
func (e *element) Ref() gltf.ElementRef {
	return e.ref
}

// decodeValue converts a mutate value into out.
func decodeValue(value any, out any) error {
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode value: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		raw = []byte("null")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}
	return nil
}

// userDataName returns the "name" user data of the first object that has one.
func userDataName[T interface{ UserData(string) (any, bool) }](objects []T) string {
	for _, o := range objects {
		if v, ok := o.UserData("name"); ok {
			if name, ok := v.(string); ok && name != "" {
				return name
			}
		}
	}
	return ""
}

func checkIndex(doc *gltf.Document, t gltf.ElementType, index *int) error {
	if index != nil && !doc.Contains(gltf.Ref(t, *index)) {
		return fmt.Errorf("%s %d: %w", t, *index, errIndexOutOfRange)
	}
	return nil
}
