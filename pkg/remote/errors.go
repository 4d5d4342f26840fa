package remote

import "errors"

var (
	// ErrResolve indicates a server address string could not be parsed
	// into an endpoint.
	ErrResolve = errors.New("cannot resolve server address")

	// ErrConnect indicates the transport failed to establish a session.
	ErrConnect = errors.New("cannot connect to server")

	// ErrServer is returned by Request after the retry budget is
	// exhausted; the last underlying cause is attached.
	ErrServer = errors.New("server error")

	// ErrUnregistered indicates the server no longer recognizes this
	// client's registration. The connection is known-bad and a switch
	// has been triggered.
	ErrUnregistered = errors.New("client registration is no longer valid")

	// ErrNotInited is returned by Start when no server list has been
	// bound via Init.
	ErrNotInited = errors.New("client has no server list")

	// ErrAlreadyStarted is returned by Start when the client has been
	// started before.
	ErrAlreadyStarted = errors.New("client already started")

	// ErrShutdown is returned when an operation is attempted on a
	// client that has been shut down.
	ErrShutdown = errors.New("client is shut down")

	// ErrNoConnection indicates no connection is currently installed.
	ErrNoConnection = errors.New("no current connection")

	// ErrNoServers is returned when a server list is created without
	// any addresses.
	ErrNoServers = errors.New("server list is empty")
)
