package wsconn

import (
	"encoding/json"

	"github.com/apimesh/cluster-rpc/pkg/remote"
)

// Envelope frame types.
const (
	frameRequest  = "request"
	frameResponse = "response"
	framePush     = "push"
)

// envelope is the JSON wire frame exchanged over the WebSocket.
type envelope struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Method    string          `json:"method,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	ErrorCode int             `json:"errorCode,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Request is a client request carried over the WebSocket transport.
type Request struct {
	Name    string
	Payload json.RawMessage
}

// NewRequest creates a request with a JSON-encoded payload.
func NewRequest(method string, payload any) (*Request, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Request{Name: method, Payload: raw}, nil
}

// Method identifies the server operation being invoked.
func (r *Request) Method() string {
	return r.Name
}

// Response is a server reply carried over the WebSocket transport.
type Response struct {
	Code    int
	Payload json.RawMessage
}

// Success reports whether the server handled the request.
func (r *Response) Success() bool {
	return r.Code == remote.ErrCodeOK
}

// ErrorCode returns the server error code, ErrCodeOK on success.
func (r *Response) ErrorCode() int {
	return r.Code
}

// Decode unmarshals the response payload into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Payload, v)
}

// PushRequest is a server-initiated message read off the WebSocket.
type PushRequest struct {
	PushKind string
	Payload  json.RawMessage
}

// Kind identifies the push variant.
func (p *PushRequest) Kind() string {
	return p.PushKind
}
