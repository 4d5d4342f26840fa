package remote

// Status represents the lifecycle status of a Client.
type Status int32

const (
	// StatusWaitInit - client constructed, no server list bound yet
	StatusWaitInit Status = iota
	// StatusInited - server list bound, client not started
	StatusInited
	// StatusStarting - Start called, no connection installed yet
	StatusStarting
	// StatusRunning - a connection is installed and usable
	StatusRunning
	// StatusShutdown - terminal, the client will never reconnect
	StatusShutdown
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusWaitInit:
		return "wait_init"
	case StatusInited:
		return "inited"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
