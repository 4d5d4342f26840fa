package remote

import "context"

// Error codes carried by Response.ErrorCode.
const (
	// ErrCodeOK means the request was handled successfully.
	ErrCodeOK = 0
	// ErrCodeServer is a generic server-side failure.
	ErrCodeServer = 500
	// ErrCodeUnregistered means the server no longer recognizes this
	// client's registration; the connection must be replaced.
	ErrCodeUnregistered = 301
)

// PushKindConnectReset is the server push kind that asks the client to
// drop its current connection and reconnect.
const PushKindConnectReset = "connect.reset"

// Request is a client-originated message sent to a server.
type Request interface {
	// Method identifies the server operation being invoked.
	Method() string
}

// Response is a server reply to a Request.
type Response interface {
	// Success reports whether the server handled the request.
	Success() bool
	// ErrorCode returns the server error code, ErrCodeOK on success.
	ErrorCode() int
}

// ServerPushRequest is a message initiated by the server and delivered
// outside the request/response cycle.
type ServerPushRequest interface {
	// Kind identifies the push variant, e.g. PushKindConnectReset.
	Kind() string
}

// Callback receives the outcome of an asynchronous request. It is
// invoked on whatever goroutine the transport chooses.
type Callback func(Response, error)

// Connection is one transport session bound to one server endpoint.
// A Connection is owned exclusively by the client's current slot and is
// never shared for mutation.
type Connection interface {
	// Request performs one synchronous round trip.
	Request(ctx context.Context, req Request) (Response, error)
	// AsyncRequest submits a request whose outcome is delivered to cb.
	// The returned error covers submission only.
	AsyncRequest(ctx context.Context, req Request, cb Callback) error
	// Close tears down the session. Safe to call more than once.
	Close() error
}

// Transport is the capability a concrete wire implementation supplies
// to the engine.
type Transport interface {
	// ConnectionType identifies the transport, e.g. "websocket".
	ConnectionType() string
	// PortOffset is added to every resolved server port.
	PortOffset() int
	// ConnectToServer opens a working session to the endpoint or fails.
	ConnectToServer(ctx context.Context, endpoint ServerEndpoint) (Connection, error)
}
