package remote

import "sync"

// ServerList supplies and rotates the candidate server addresses the
// client connects to. Implementations must be safe for concurrent use.
type ServerList interface {
	// Next advances the selection to the next candidate and returns it.
	Next() string
	// Current returns the presently selected address without advancing.
	Current() string
}

// RoundRobinServerList is a fixed-address ServerList that rotates
// through its addresses in order.
type RoundRobinServerList struct {
	mu    sync.Mutex
	addrs []string
	index int
}

// NewRoundRobinServerList creates a server list over the given addresses.
func NewRoundRobinServerList(addrs []string) (*RoundRobinServerList, error) {
	if len(addrs) == 0 {
		return nil, ErrNoServers
	}
	list := make([]string, len(addrs))
	copy(list, addrs)
	return &RoundRobinServerList{addrs: list}, nil
}

// Next advances the cursor and returns the newly selected address.
func (l *RoundRobinServerList) Next() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index = (l.index + 1) % len(l.addrs)
	return l.addrs[l.index]
}

// Current returns the presently selected address.
func (l *RoundRobinServerList) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addrs[l.index]
}

// Addresses returns a copy of the configured addresses.
func (l *RoundRobinServerList) Addresses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.addrs))
	copy(out, l.addrs)
	return out
}
