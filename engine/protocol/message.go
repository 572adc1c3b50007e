package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the messages exchanged between a host and a sandbox.
type MessageType string

const (
	// MessageHandshake is sent host → sandbox with the context port transferred.
	MessageHandshake MessageType = "handshake"

	// MessageContextInitialized acknowledges the handshake, sandbox → host.
	MessageContextInitialized MessageType = "context-initialized"

	// MessageModelChanged carries a serialized model and a mutation port, host → sandbox.
	// A nil Model means the host has no model.
	MessageModelChanged MessageType = "model-changed"

	// MessageMutate requests a property write on a facade element, sandbox → host.
	MessageMutate MessageType = "mutate"

	// MessageMutationResult answers exactly one mutate message, host → sandbox.
	MessageMutationResult MessageType = "mutation-result"

	// MessageImportScript asks the sandbox to load and run a script, host → sandbox.
	MessageImportScript MessageType = "import-script"

	// MessageUser carries application data posted by either side.
	MessageUser MessageType = "message"

	// MessageError reports an uncaught script error, sandbox → host.
	MessageError MessageType = "error"
)

// Message is the wire record for every message type. Fields irrelevant to a type are omitted.
type Message struct {
	Type MessageType `json:"type"`

	// Model is the serialized model of a model-changed message.
	Model *SerializedModel `json:"model,omitempty"`

	// ID is the target element of a mutate message.
	ID int `json:"id,omitempty"`

	// Property is the property written by a mutate message.
	Property string `json:"property,omitempty"`

	// Value is the JSON encoded value written by a mutate message.
	Value json.RawMessage `json:"value,omitempty"`

	// MutationID correlates a mutate message with its mutation-result.
	MutationID int `json:"mutationId,omitempty"`

	// Applied reports whether a mutation succeeded.
	Applied bool `json:"applied,omitempty"`

	// URL is the script location of an import-script message.
	URL string `json:"url,omitempty"`

	// Data is the payload of a user message.
	Data json.RawMessage `json:"data,omitempty"`

	// Error is the description carried by an error message.
	Error string `json:"error,omitempty"`
}

// NewMutate builds a mutate message, encoding value as JSON.
//
// Parameters:
//   - id: the target element id
//   - property: the property name
//   - value: the value to encode
//   - mutationID: the correlation token
//
// Returns:
//   - Message: the mutate message
//   - error: error if value cannot be encoded
func NewMutate(id int, property string, value any, mutationID int) (Message, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode value of %q: %w", property, err)
	}
	return Message{Type: MessageMutate, ID: id, Property: property, Value: raw, MutationID: mutationID}, nil
}

// NewMutationResult builds the answer to a mutate message.
//
// Parameters:
//   - mutationID: the token of the answered mutate message
//   - applied: whether the mutation succeeded
//
// Returns:
//   - Message: the mutation-result message
func NewMutationResult(mutationID int, applied bool) Message {
	return Message{Type: MessageMutationResult, MutationID: mutationID, Applied: applied}
}

// NewUserMessage builds a user message, encoding data as JSON.
//
// Parameters:
//   - data: the payload
//
// Returns:
//   - Message: the user message
//   - error: error if data cannot be encoded
func NewUserMessage(data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode message data: %w", err)
	}
	return Message{Type: MessageUser, Data: raw}, nil
}
