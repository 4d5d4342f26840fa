package remote

// ConnectionEventType distinguishes connect from disconnect events.
type ConnectionEventType int

const (
	// EventDisconnected - a connection was closed
	EventDisconnected ConnectionEventType = iota
	// EventConnected - a new connection was installed
	EventConnected
)

// String returns the string representation of the event type
func (t ConnectionEventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionEvent is an ephemeral record of a connection state
// transition, consumed once by the event notifier.
type ConnectionEvent struct {
	Type ConnectionEventType
}

// ConnectionEventListener observes connect/disconnect transitions.
// Listeners are notified in registration order, one event at a time.
type ConnectionEventListener interface {
	OnConnected()
	OnDisconnected()
}

// ServerPushHandler receives inbound server-initiated requests.
type ServerPushHandler interface {
	HandleServerPush(req ServerPushRequest)
}

// ServerPushHandlerFunc adapts a function to the ServerPushHandler
// interface.
type ServerPushHandlerFunc func(req ServerPushRequest)

// HandleServerPush calls f(req).
func (f ServerPushHandlerFunc) HandleServerPush(req ServerPushRequest) {
	f(req)
}
