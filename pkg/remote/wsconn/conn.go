package wsconn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/apimesh/cluster-rpc/pkg/remote"
)

const writeTimeout = 5 * time.Second

// Conn is one WebSocket session. Responses are matched to requests by
// envelope id; unmatched frames are treated as server pushes.
type Conn struct {
	ws             *websocket.Conn
	logger         *zap.Logger
	sink           PushSink
	requestTimeout time.Duration

	// wmu serializes writes to the WebSocket.
	wmu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *envelope

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn, logger *zap.Logger, sink PushSink, requestTimeout time.Duration) *Conn {
	return &Conn{
		ws:             ws,
		logger:         logger,
		sink:           sink,
		requestTimeout: requestTimeout,
		pending:        make(map[string]chan *envelope),
		closed:         make(chan struct{}),
	}
}

// Request performs one synchronous round trip over the WebSocket.
func (c *Conn) Request(ctx context.Context, req remote.Request) (remote.Response, error) {
	wsReq, ok := req.(*Request)
	if !ok {
		return nil, fmt.Errorf("websocket transport cannot send request of type %T", req)
	}

	id := uuid.NewString()
	ch := make(chan *envelope, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(&envelope{
		ID:      id,
		Type:    frameRequest,
		Method:  wsReq.Name,
		Payload: wsReq.Payload,
	}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case env := <-ch:
		return &Response{Code: env.ErrorCode, Payload: env.Payload}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, fmt.Errorf("connection closed while waiting for response to %s", wsReq.Name)
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for response to %s", wsReq.Name)
	}
}

// AsyncRequest submits the request and delivers the outcome to cb on a
// separate goroutine. The returned error covers submission only.
func (c *Conn) AsyncRequest(ctx context.Context, req remote.Request, cb remote.Callback) error {
	if _, ok := req.(*Request); !ok {
		return fmt.Errorf("websocket transport cannot send request of type %T", req)
	}
	select {
	case <-c.closed:
		return fmt.Errorf("connection closed")
	default:
	}

	go func() {
		resp, err := c.Request(ctx, req)
		if cb != nil {
			cb(resp, err)
		}
	}()
	return nil
}

// Close sends a close frame and tears down the session. Safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing connection")
		c.wmu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.ws.WriteMessage(websocket.CloseMessage, closeMsg)
		c.wmu.Unlock()

		err = c.ws.Close()
	})
	return err
}

func (c *Conn) write(env *envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames until the connection breaks, delivering
// responses to their waiters and forwarding pushes to the sink.
func (c *Conn) readLoop() {
	defer c.Close()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Warn("WebSocket connection lost", zap.Error(err))
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Error("Failed to parse WebSocket frame",
				zap.Error(err),
				zap.Int("frame_length", len(message)),
			)
			continue
		}

		switch env.Type {
		case frameResponse:
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			c.mu.Unlock()
			if !ok {
				c.logger.Debug("Dropping response with no pending request",
					zap.String("id", env.ID),
				)
				continue
			}
			envCopy := env
			select {
			case ch <- &envCopy:
			default:
			}

		case framePush:
			if c.sink != nil {
				c.sink.HandleServerPush(&PushRequest{
					PushKind: env.Kind,
					Payload:  env.Payload,
				})
			}

		default:
			c.logger.Debug("Ignoring frame of unknown type",
				zap.String("type", env.Type),
			)
		}
	}
}
