package remote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apimesh/cluster-rpc/pkg/metrics"
)

// currentConn wraps the installed connection so the slot can be
// published atomically.
type currentConn struct {
	conn     Connection
	endpoint ServerEndpoint
}

// Client is the connection engine for a long-lived RPC channel to one
// of several interchangeable servers. It keeps exactly one connection
// alive, replaces it when the server signals a reset or the connection
// breaks, and fans out connection events to registered listeners.
type Client struct {
	transport Transport
	logger    *zap.Logger

	connectionID string

	requestRetries      int
	switchRetryInterval time.Duration
	idleThreshold       time.Duration
	connectTimeout      time.Duration

	// mu guards serverList, labels and the listener registries. The
	// registries are append-only; dispatch iterates over snapshots.
	mu           sync.RWMutex
	serverList   ServerList
	labels       map[string]string
	listeners    []ConnectionEventListener
	pushHandlers []ServerPushHandler

	status atomic.Int32

	// stateMu serializes connection installation against shutdown, so a
	// connect that finishes late can never resurrect a shut down client.
	stateMu sync.Mutex

	// switching is the fast-path announcement that a switch loop is
	// active; switchMu is the authoritative single-flight gate.
	switching atomic.Bool
	switchMu  sync.Mutex

	current  atomic.Pointer[currentConn]
	activeAt atomic.Int64

	notifier  *eventNotifier
	resetHook func()

	started      atomic.Bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewClient creates a client over the given transport. The client is in
// StatusWaitInit until Init binds a server list.
func NewClient(transport Transport, opts ...Option) *Client {
	// Metric variables must exist before first use; Init is a no-op
	// after the first call and honors metrics.SetEnabled.
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		transport:           transport,
		logger:              zap.NewNop(),
		connectionID:        uuid.NewString(),
		requestRetries:      DefaultRequestRetries,
		switchRetryInterval: DefaultSwitchRetryInterval,
		idleThreshold:       DefaultIdleThreshold,
		connectTimeout:      DefaultConnectTimeout,
		labels:              make(map[string]string),
		notifier:            newEventNotifier(),
		ctx:                 ctx,
		cancel:              cancel,
	}
	c.activeAt.Store(time.Now().UnixNano())

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ConnectionID returns the stable identifier assigned to this client.
func (c *Client) ConnectionID() string {
	return c.connectionID
}

// Init binds the server list. It succeeds only while the client is in
// StatusWaitInit and is a silent no-op otherwise.
func (c *Client) Init(serverList ServerList) {
	if serverList == nil {
		return
	}
	if !c.status.CompareAndSwap(int32(StatusWaitInit), int32(StatusInited)) {
		return
	}

	c.mu.Lock()
	c.serverList = serverList
	c.mu.Unlock()

	c.logger.Info("Client initialized",
		zap.String("connection_id", c.connectionID),
		zap.String("connection_type", c.transport.ConnectionType()),
	)
}

// InitLabels merges static metadata labels into the client. Later
// values win on key collision. The labels are opaque to the engine.
func (c *Client) InitLabels(labels map[string]string) {
	c.mu.Lock()
	for k, v := range labels {
		c.labels[k] = v
	}
	c.mu.Unlock()
}

// Labels returns a copy of the client's labels.
func (c *Client) Labels() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.labels))
	for k, v := range c.labels {
		out[k] = v
	}
	return out
}

// Start launches the event consumer and attempts one synchronous
// connect to the currently selected server. On failure the
// asynchronous switch loop takes over; Start itself does not fail on a
// connect error. A second call returns ErrAlreadyStarted.
func (c *Client) Start() error {
	if c.GetStatus() == StatusShutdown {
		return ErrShutdown
	}
	if c.getServerList() == nil {
		return ErrNotInited
	}
	// The one-shot flag is consumed only once the preconditions hold, so
	// a failed Start can be corrected and retried.
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.notifier.Run(c.ctx, c.deliverEvent)
	}()

	c.setStatus(StatusStarting)

	conn, endpoint, err := c.connectOnce()
	if err != nil {
		c.logger.Warn("Initial connect failed, starting server switch",
			zap.String("connection_id", c.connectionID),
			zap.Error(err),
		)
		c.switchServerAsync()
	} else {
		c.installConnection(conn, endpoint)
	}

	// The engine reacts to a server-pushed connection reset on its own,
	// in addition to forwarding the push to user handlers.
	c.RegisterServerPushHandler(ServerPushHandlerFunc(func(req ServerPushRequest) {
		if req.Kind() != PushKindConnectReset {
			return
		}
		if !c.IsRunning() {
			return
		}
		c.clearResetContext()
		c.switchServerAsync()
	}))

	return nil
}

// Request performs one synchronous exchange on the current connection
// with a bounded number of attempts and no backoff between them. A
// stale-registration response counts as a failed attempt and triggers a
// server switch. After the budget is exhausted the last cause is
// surfaced wrapped in ErrServer.
func (c *Client) Request(ctx context.Context, req Request) (Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.requestRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		if c.GetStatus() == StatusShutdown {
			return nil, ErrShutdown
		}

		cur := c.current.Load()
		if cur == nil {
			lastErr = ErrNoConnection
			metrics.RequestsTotal.WithLabelValues("no_connection").Inc()
			continue
		}

		start := time.Now()
		resp, err := cur.conn.Request(ctx, req)
		if err != nil {
			c.logger.Error("Request failed",
				zap.String("connection_id", c.connectionID),
				zap.String("method", req.Method()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			lastErr = err
			metrics.RequestsTotal.WithLabelValues("error").Inc()
			metrics.RequestRetriesTotal.Inc()
			continue
		}

		if resp != nil && resp.ErrorCode() == ErrCodeUnregistered {
			// The server dropped our registration. The connection is
			// known-bad: fail this attempt and replace it.
			c.clearResetContext()
			c.switchServerAsync()
			lastErr = ErrUnregistered
			metrics.RequestsTotal.WithLabelValues("unregistered").Inc()
			continue
		}

		c.refreshActiveTimestamp()
		metrics.RequestsTotal.WithLabelValues("success").Inc()
		metrics.RequestDurationSeconds.Observe(time.Since(start).Seconds())
		return resp, nil
	}

	return nil, fmt.Errorf("%w: request failed after %d attempts: %w",
		ErrServer, c.requestRetries, lastErr)
}

// AsyncRequest submits a request on the current connection. The
// outcome is delivered to cb by the transport; this layer does not
// retry. The returned error covers submission only.
func (c *Client) AsyncRequest(ctx context.Context, req Request, cb Callback) error {
	if c.GetStatus() == StatusShutdown {
		return ErrShutdown
	}

	cur := c.current.Load()
	if cur == nil {
		return ErrNoConnection
	}

	if err := cur.conn.AsyncRequest(ctx, req, cb); err != nil {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return err
	}

	c.refreshActiveTimestamp()
	return nil
}

// RegisterConnectionListener appends a listener that observes
// connect/disconnect transitions in emission order.
func (c *Client) RegisterConnectionListener(l ConnectionEventListener) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()

	c.logger.Info("Registered connection event listener",
		zap.String("connection_id", c.connectionID),
	)
}

// RegisterServerPushHandler appends a handler for server-initiated
// requests.
func (c *Client) RegisterServerPushHandler(h ServerPushHandler) {
	if h == nil {
		return
	}
	c.mu.Lock()
	c.pushHandlers = append(c.pushHandlers, h)
	c.mu.Unlock()

	c.logger.Info("Registered server push handler",
		zap.String("connection_id", c.connectionID),
	)
}

// HandleServerPush dispatches an inbound server-initiated request to
// every registered handler in registration order. Handler panics are
// isolated and logged.
func (c *Client) HandleServerPush(req ServerPushRequest) {
	c.mu.RLock()
	handlers := make([]ServerPushHandler, len(c.pushHandlers))
	copy(handlers, c.pushHandlers)
	c.mu.RUnlock()

	for _, h := range handlers {
		c.safeHandlePush(req, h)
	}
}

func (c *Client) safeHandlePush(req ServerPushRequest, h ServerPushHandler) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Server push handler panicked",
				zap.String("connection_id", c.connectionID),
				zap.String("kind", req.Kind()),
				zap.Any("panic", r),
			)
			metrics.PanicRecoveriesTotal.WithLabelValues("push_handler").Inc()
		}
	}()
	h.HandleServerPush(req)
}

// GetStatus returns the current lifecycle status. The value is a
// point-in-time read; callers must tolerate staleness.
func (c *Client) GetStatus() Status {
	return Status(c.status.Load())
}

// IsWaitInit reports whether the client has not been initialized yet.
func (c *Client) IsWaitInit() bool { return c.GetStatus() == StatusWaitInit }

// IsInited reports whether the client is initialized but not started.
func (c *Client) IsInited() bool { return c.GetStatus() == StatusInited }

// IsStarting reports whether the client is starting and has no
// connection installed yet.
func (c *Client) IsStarting() bool { return c.GetStatus() == StatusStarting }

// IsRunning reports whether a connection is installed and usable.
func (c *Client) IsRunning() bool { return c.GetStatus() == StatusRunning }

// IsShutdown reports whether the client has been shut down.
func (c *Client) IsShutdown() bool { return c.GetStatus() == StatusShutdown }

// IsSwitching reports whether a server switch loop is currently active.
func (c *Client) IsSwitching() bool { return c.switching.Load() }

// OverActiveTime reports whether no request has completed successfully
// within the configured idle threshold. Callers use this to drive
// keep-alive traffic.
func (c *Client) OverActiveTime() bool {
	last := time.Unix(0, c.activeAt.Load())
	return time.Since(last) > c.idleThreshold
}

// CurrentEndpoint resolves the presently selected server address
// without advancing the server list.
func (c *Client) CurrentEndpoint() (ServerEndpoint, error) {
	sl := c.getServerList()
	if sl == nil {
		return ServerEndpoint{}, ErrNotInited
	}
	return ResolveEndpoint(sl.Current(), c.transport.PortOffset())
}

// Shutdown stops the client permanently: the event consumer exits, no
// new switch loops start, and the current connection is closed.
// Idempotent.
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.logger.Info("Shutting down client",
			zap.String("connection_id", c.connectionID),
		)

		c.stateMu.Lock()
		c.setStatus(StatusShutdown)
		cur := c.current.Swap(nil)
		c.stateMu.Unlock()

		c.cancel()

		if cur != nil {
			if err := cur.conn.Close(); err != nil {
				c.logger.Warn("Error closing connection during shutdown",
					zap.Error(err),
				)
			}
		}

		c.wg.Wait()

		c.logger.Info("Client shut down",
			zap.String("connection_id", c.connectionID),
		)
	})
}

// connectOnce resolves the next candidate and attempts a single
// connect, bounded by the configured connect timeout.
func (c *Client) connectOnce() (Connection, ServerEndpoint, error) {
	endpoint, err := c.nextEndpoint()
	if err != nil {
		return nil, ServerEndpoint{}, err
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.connectTimeout)
	defer cancel()

	conn, err := c.transport.ConnectToServer(ctx, endpoint)
	if err != nil {
		return nil, endpoint, fmt.Errorf("%w: %s: %w", ErrConnect, endpoint, err)
	}
	return conn, endpoint, nil
}

// installConnection atomically publishes a new connection, marks the
// client running and emits the connection events. The previous
// connection is closed only after the new one is current, so readers
// never observe an absent slot. A connect that completes after
// Shutdown is discarded: the connection is closed, nothing is
// installed, and false is returned.
func (c *Client) installConnection(conn Connection, endpoint ServerEndpoint) bool {
	c.stateMu.Lock()
	if c.GetStatus() == StatusShutdown {
		c.stateMu.Unlock()
		if err := conn.Close(); err != nil {
			c.logger.Debug("Error closing connection discarded at shutdown", zap.Error(err))
		}
		return false
	}
	old := c.current.Swap(&currentConn{conn: conn, endpoint: endpoint})
	c.setStatus(StatusRunning)
	c.stateMu.Unlock()

	c.notifier.Publish(ConnectionEvent{Type: EventConnected})

	if old != nil {
		if err := old.conn.Close(); err != nil {
			c.logger.Debug("Error closing replaced connection", zap.Error(err))
		}
		c.notifier.Publish(ConnectionEvent{Type: EventDisconnected})
	}

	c.logger.Info("Connection established",
		zap.String("connection_id", c.connectionID),
		zap.String("server", endpoint.Address()),
		zap.String("connection_type", c.transport.ConnectionType()),
	)
	return true
}

// nextEndpoint advances the server list and resolves the newly
// selected candidate. Advance-then-read is performed as a unit.
func (c *Client) nextEndpoint() (ServerEndpoint, error) {
	sl := c.getServerList()
	if sl == nil {
		return ServerEndpoint{}, ErrNotInited
	}
	sl.Next()
	return ResolveEndpoint(sl.Current(), c.transport.PortOffset())
}

func (c *Client) getServerList() ServerList {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverList
}

func (c *Client) setStatus(s Status) {
	old := Status(c.status.Swap(int32(s)))
	if old == s {
		return
	}

	if s == StatusRunning {
		metrics.ConnectionState.WithLabelValues("connected").Set(1)
	} else {
		metrics.ConnectionState.WithLabelValues("connected").Set(0)
	}

	c.logger.Info("Client status changed",
		zap.String("connection_id", c.connectionID),
		zap.String("old_status", old.String()),
		zap.String("new_status", s.String()),
	)
}

func (c *Client) refreshActiveTimestamp() {
	c.activeAt.Store(time.Now().UnixNano())
}

// clearResetContext invokes the reset hook, letting embedders discard
// connection-scoped caches before a switch is triggered.
func (c *Client) clearResetContext() {
	if c.resetHook != nil {
		c.resetHook()
	}
}

func (c *Client) deliverEvent(ev ConnectionEvent) {
	metrics.EventsDispatchedTotal.WithLabelValues(ev.Type.String()).Inc()

	c.mu.RLock()
	listeners := make([]ConnectionEventListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, l := range listeners {
		safeNotify(c.logger, ev, l)
	}
}
