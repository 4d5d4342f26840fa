package remote

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ServerEndpoint is the resolved address of one cluster member.
// Immutable once constructed.
type ServerEndpoint struct {
	Host string
	Port int
}

// Address returns the endpoint as a dialable host:port string.
func (e ServerEndpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String returns the string representation of the endpoint
func (e ServerEndpoint) String() string {
	return e.Address()
}

// ResolveEndpoint parses a raw server address into a ServerEndpoint,
// applying the transport's port offset. The raw address is either a bare
// "host:port" or a URL-like "scheme://host:port". Malformed input is a
// hard failure, never silently defaulted.
func ResolveEndpoint(raw string, portOffset int) (ServerEndpoint, error) {
	addr := raw
	if i := strings.Index(addr, "://"); i >= 0 {
		addr = addr[i+3:]
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return ServerEndpoint{}, fmt.Errorf("%w: %q: %v", ErrResolve, raw, err)
	}
	if host == "" {
		return ServerEndpoint{}, fmt.Errorf("%w: %q: missing host", ErrResolve, raw)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ServerEndpoint{}, fmt.Errorf("%w: %q: non-numeric port %q", ErrResolve, raw, portStr)
	}
	if port <= 0 || port+portOffset > 65535 {
		return ServerEndpoint{}, fmt.Errorf("%w: %q: port %d out of range", ErrResolve, raw, port)
	}

	return ServerEndpoint{Host: host, Port: port + portOffset}, nil
}
