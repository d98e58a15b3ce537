// Package jrpc implements a generic, role-parameterized JSON-RPC 2.0 peer
// abstraction used to build every hop in a Symposium proxy chain: editor to
// conductor, conductor to proxy, proxy to agent. A single Link type serves
// all of them; the wire format and request/response correlation are the
// same regardless of which ACP or MCP vocabulary rides on top.
package jrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version string carried on every message.
const Version = "2.0"

// ID is a JSON-RPC request identifier. It round-trips whichever of string
// or number the peer sent, since the spec allows either.
type ID struct {
	value any
}

// NewIntID builds a numeric request ID.
func NewIntID(n int64) ID { return ID{value: n} }

// NewStringID builds a string request ID.
func NewStringID(s string) ID { return ID{value: s} }

// IsZero reports whether the ID was never set (e.g. a notification).
func (id ID) IsZero() bool { return id.value == nil }

// String renders the ID for logging and map keys.
func (id ID) String() string {
	switch v := id.value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if n, ok := v.(float64); ok {
		id.value = int64(n)
		return nil
	}
	id.value = v
	return nil
}

// Message is the envelope every frame on the wire is unmarshalled into
// first; Method/ID presence distinguishes request, notification, and
// response without needing three separate wire types.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// IsRequest reports whether the message is a call expecting a response.
func (m Message) IsRequest() bool { return m.Method != "" && m.ID != nil }

// IsNotification reports whether the message is a one-way call.
func (m Message) IsNotification() bool { return m.Method != "" && m.ID == nil }

// IsResponse reports whether the message is a reply to one of our requests.
func (m Message) IsResponse() bool { return m.Method == "" && m.ID != nil }

// ErrorObject mirrors the JSON-RPC 2.0 error member.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Reserved JSON-RPC error codes, plus the ACP-specific cancellation code.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeCancelled      = -32800
)

// NewRequest builds a request Message, encoding params with encoding/json.
func NewRequest(id ID, method string, params any) (Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Message{}, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return Message{JSONRPC: Version, ID: &id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification Message (no ID, no reply expected).
func NewNotification(method string, params any) (Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Message{}, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return Message{JSONRPC: Version, Method: method, Params: raw}, nil
}

// NewResult builds a success response Message for the given request ID.
func NewResult(id ID, result any) (Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("marshal result: %w", err)
	}
	return Message{JSONRPC: Version, ID: &id, Result: raw}, nil
}

// NewError builds an error response Message for the given request ID.
func NewError(id ID, code int, message string) Message {
	return Message{JSONRPC: Version, ID: &id, Error: &ErrorObject{Code: code, Message: message}}
}
