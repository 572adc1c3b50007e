package capability

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Capability names a permission granted to an execution context.
type Capability string

const (
	Messaging          Capability = "messaging"
	MaterialProperties Capability = "material-properties"
	Fetch              Capability = "fetch"
)

// All lists every known capability.
var All = []Capability{Messaging, MaterialProperties, Fetch}

// Names of the sandbox APIs a capability gates.
const (
	APIPostMessage        = "PostMessage"
	APIMessageListener    = "AddEventListener(message)"
	APIFetch              = "Fetch"
	APISetBaseColorFactor = "PBRMetallicRoughness.SetBaseColorFactor"
	APISetMetallicFactor  = "PBRMetallicRoughness.SetMetallicFactor"
	APISetRoughnessFactor = "PBRMetallicRoughness.SetRoughnessFactor"
	APISetEmissiveFactor  = "Material.SetEmissiveFactor"
	APISetAlphaMode       = "Material.SetAlphaMode"
	APISetAlphaCutoff     = "Material.SetAlphaCutoff"
	APISetDoubleSided     = "Material.SetDoubleSided"
	APISetTexture         = "TextureInfo.SetTexture"
	APISetSampler         = "Texture.SetSampler"
	APISetSource          = "Texture.SetSource"
	APISetMinFilter       = "Sampler.SetMinFilter"
	APISetMagFilter       = "Sampler.SetMagFilter"
	APISetWrapS           = "Sampler.SetWrapS"
	APISetWrapT           = "Sampler.SetWrapT"
	APISetURI             = "Image.SetURI"
)

// disabledAPIs is the table of sandbox APIs left unbound when a capability is not granted.
var disabledAPIs = map[Capability][]string{
	Messaging: {APIPostMessage, APIMessageListener},
	Fetch:     {APIFetch},
	MaterialProperties: {
		APISetBaseColorFactor, APISetMetallicFactor, APISetRoughnessFactor,
		APISetEmissiveFactor, APISetAlphaMode, APISetAlphaCutoff, APISetDoubleSided,
		APISetTexture, APISetSampler, APISetSource,
		APISetMinFilter, APISetMagFilter, APISetWrapS, APISetWrapT, APISetURI,
	},
}

// ErrUnknownCapability is returned when parsing a name that is not a capability.
var ErrUnknownCapability = errors.New("unknown capability")

// DeniedError is returned by any use of an API whose capability was not granted.
type DeniedError struct {
	Capability Capability
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("Capability %q not allowed", string(e.Capability))
}

// Set is an immutable set of granted capabilities. The zero value grants nothing.
type Set struct {
	granted map[Capability]struct{}
}

// NewSet creates a Set from a list of capabilities. Duplicates are ignored.
//
// Parameters:
//   - capabilities: the capabilities to grant
//
// Returns:
//   - Set: the capability set
//   - error: ErrUnknownCapability if a capability is not known
func NewSet(capabilities ...Capability) (Set, error) {
	granted := make(map[Capability]struct{}, len(capabilities))
	for _, c := range capabilities {
		if !slices.Contains(All, c) {
			return Set{}, fmt.Errorf("%q: %w", string(c), ErrUnknownCapability)
		}
		granted[c] = struct{}{}
	}
	return Set{granted: granted}, nil
}

// Parse creates a Set from a comma separated list such as "messaging,fetch".
// Whitespace around names is ignored and an empty string grants nothing.
//
// Parameters:
//   - list: the comma separated capability names
//
// Returns:
//   - Set: the capability set
//   - error: ErrUnknownCapability if a name is not known
func Parse(list string) (Set, error) {
	var capabilities []Capability
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			capabilities = append(capabilities, Capability(name))
		}
	}
	return NewSet(capabilities...)
}

// Has reports whether c is granted.
func (s Set) Has(c Capability) bool {
	_, ok := s.granted[c]
	return ok
}

// Check returns a DeniedError unless c is granted.
func (s Set) Check(c Capability) error {
	if s.Has(c) {
		return nil
	}
	return &DeniedError{Capability: c}
}

// CheckAPI returns a DeniedError naming the capability that gates api when that
// capability is not granted. APIs no capability gates are always allowed.
func (s Set) CheckAPI(api string) error {
	for _, c := range All {
		if slices.Contains(disabledAPIs[c], api) {
			return s.Check(c)
		}
	}
	return nil
}

// List returns the granted capabilities in declaration order.
func (s Set) List() []Capability {
	var out []Capability
	for _, c := range All {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Disabled returns the APIs left unbound by this set.
func (s Set) Disabled() []string {
	var out []string
	for _, c := range All {
		if !s.Has(c) {
			out = append(out, disabledAPIs[c]...)
		}
	}
	return out
}

func (s Set) String() string {
	names := make([]string, 0, len(s.granted))
	for _, c := range s.List() {
		names = append(names, string(c))
	}
	return strings.Join(names, ",")
}

// DisabledAPIs returns the APIs gated by c.
func DisabledAPIs(c Capability) []string {
	return slices.Clone(disabledAPIs[c])
}
