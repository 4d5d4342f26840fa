// Package wsconn implements the remote transport capability over
// WebSocket. Requests and responses travel as JSON envelopes correlated
// by id; frames without a pending id are forwarded to the engine as
// server pushes.
package wsconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/apimesh/cluster-rpc/pkg/remote"
)

// ConnectionType identifies this transport.
const ConnectionType = "websocket"

// DefaultRequestTimeout bounds the wait for a response to one request.
const DefaultRequestTimeout = 10 * time.Second

// DefaultHandshakeTimeout bounds the WebSocket handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// PushSink receives server-initiated requests read off a connection.
// *remote.Client satisfies this.
type PushSink interface {
	HandleServerPush(req remote.ServerPushRequest)
}

// Options configures the WebSocket transport.
type Options struct {
	// Path is the request path of the RPC endpoint, e.g. "/rpc".
	Path string

	// PortOffset is added to every resolved server port.
	PortOffset int

	// TLSEnabled switches the dial scheme to wss.
	TLSEnabled bool

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Headers are sent with the handshake request, e.g. auth tokens.
	Headers http.Header

	// HandshakeTimeout bounds the WebSocket handshake.
	HandshakeTimeout time.Duration

	// RequestTimeout bounds the wait for one response.
	RequestTimeout time.Duration
}

// Transport opens WebSocket sessions to cluster members.
type Transport struct {
	opts   Options
	logger *zap.Logger
	sink   PushSink
}

// NewTransport creates a WebSocket transport. sink receives server
// pushes read off established connections and may be nil.
func NewTransport(opts Options, logger *zap.Logger, sink PushSink) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	return &Transport{
		opts:   opts,
		logger: logger,
		sink:   sink,
	}
}

// SetPushSink binds the push sink after construction. Useful because
// the engine and the transport reference each other.
func (t *Transport) SetPushSink(sink PushSink) {
	t.sink = sink
}

// ConnectionType identifies the transport.
func (t *Transport) ConnectionType() string {
	return ConnectionType
}

// PortOffset is added to every resolved server port.
func (t *Transport) PortOffset() int {
	return t.opts.PortOffset
}

// ConnectToServer dials the endpoint and returns a working connection
// with its read loop running.
func (t *Transport) ConnectToServer(ctx context.Context, endpoint remote.ServerEndpoint) (remote.Connection, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.opts.HandshakeTimeout,
	}

	scheme := "ws"
	if t.opts.TLSEnabled {
		scheme = "wss"
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: t.opts.InsecureSkipVerify,
		}
	}

	url := fmt.Sprintf("%s://%s%s", scheme, endpoint.Address(), t.opts.Path)

	ws, resp, err := dialer.DialContext(ctx, url, t.opts.Headers)
	if err != nil {
		if resp != nil {
			t.logger.Warn("WebSocket dial failed",
				zap.String("url", url),
				zap.Int("status_code", resp.StatusCode),
				zap.Error(err),
			)
		} else {
			t.logger.Warn("WebSocket dial failed",
				zap.String("url", url),
				zap.Error(err),
			)
		}
		return nil, err
	}

	conn := newConn(ws, t.logger, t.sink, t.opts.RequestTimeout)
	go conn.readLoop()

	t.logger.Info("WebSocket connection established",
		zap.String("server", endpoint.Address()),
	)
	return conn, nil
}
