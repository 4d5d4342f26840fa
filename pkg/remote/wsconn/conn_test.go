package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/apimesh/cluster-rpc/pkg/remote"
)

var upgrader = websocket.Upgrader{}

// startServer runs a WebSocket endpoint whose session is driven by
// handler and returns the endpoint to dial.
func startServer(t *testing.T, handler func(ws *websocket.Conn)) remote.ServerEndpoint {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()
		handler(ws)
	}))
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi(%q) error = %v", portStr, err)
	}
	return remote.ServerEndpoint{Host: host, Port: port}
}

// echoHandler answers every request frame; the "deregister" method gets
// a stale-registration error code.
func echoHandler(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type != frameRequest {
			continue
		}

		code := remote.ErrCodeOK
		if env.Method == "deregister" {
			code = remote.ErrCodeUnregistered
		}
		out, _ := json.Marshal(envelope{
			ID:        env.ID,
			Type:      frameResponse,
			ErrorCode: code,
			Payload:   json.RawMessage(`{"value":"ok"}`),
		})
		if err := ws.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

type recordingSink struct {
	mu    sync.Mutex
	kinds []string
}

func (s *recordingSink) HandleServerPush(req remote.ServerPushRequest) {
	s.mu.Lock()
	s.kinds = append(s.kinds, req.Kind())
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.kinds))
	copy(out, s.kinds)
	return out
}

func dial(t *testing.T, endpoint remote.ServerEndpoint, opts Options, sink PushSink) remote.Connection {
	t.Helper()

	transport := NewTransport(opts, zap.NewNop(), sink)
	conn, err := transport.ConnectToServer(context.Background(), endpoint)
	if err != nil {
		t.Fatalf("ConnectToServer() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTransportMetadata(t *testing.T) {
	transport := NewTransport(Options{PortOffset: 1000}, nil, nil)
	if got := transport.ConnectionType(); got != "websocket" {
		t.Errorf("ConnectionType() = %q, want websocket", got)
	}
	if got := transport.PortOffset(); got != 1000 {
		t.Errorf("PortOffset() = %d, want 1000", got)
	}
}

func TestConn_RequestResponse(t *testing.T) {
	endpoint := startServer(t, echoHandler)
	conn := dial(t, endpoint, Options{}, nil)

	req, err := NewRequest("health", map[string]string{"probe": "deep"})
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}

	resp, err := conn.Request(context.Background(), req)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !resp.Success() {
		t.Fatalf("response code = %d, want success", resp.ErrorCode())
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := resp.(*Response).Decode(&body); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if body.Value != "ok" {
		t.Errorf("payload value = %q, want ok", body.Value)
	}
}

func TestConn_ServerErrorCodePropagates(t *testing.T) {
	endpoint := startServer(t, echoHandler)
	conn := dial(t, endpoint, Options{}, nil)

	req, _ := NewRequest("deregister", nil)
	resp, err := conn.Request(context.Background(), req)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if resp.Success() {
		t.Error("response reported success for an error code")
	}
	if got := resp.ErrorCode(); got != remote.ErrCodeUnregistered {
		t.Errorf("ErrorCode() = %d, want %d", got, remote.ErrCodeUnregistered)
	}
}

func TestConn_ConcurrentRequestsCorrelated(t *testing.T) {
	endpoint := startServer(t, echoHandler)
	conn := dial(t, endpoint, Options{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := NewRequest("health", nil)
			resp, err := conn.Request(context.Background(), req)
			if err != nil {
				t.Errorf("Request() error = %v", err)
				return
			}
			if !resp.Success() {
				t.Errorf("response code = %d, want success", resp.ErrorCode())
			}
		}()
	}
	wg.Wait()
}

func TestConn_PushForwardedToSink(t *testing.T) {
	endpoint := startServer(t, func(ws *websocket.Conn) {
		out, _ := json.Marshal(envelope{
			Type: framePush,
			Kind: remote.PushKindConnectReset,
		})
		if err := ws.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
		// Keep the session open until the client hangs up.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	sink := &recordingSink{}
	dial(t, endpoint, Options{}, sink)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		kinds := sink.snapshot()
		if len(kinds) == 1 {
			if kinds[0] != remote.PushKindConnectReset {
				t.Fatalf("push kind = %q, want %q", kinds[0], remote.PushKindConnectReset)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("push never reached the sink")
}

func TestConn_RequestTimeout(t *testing.T) {
	endpoint := startServer(t, func(ws *websocket.Conn) {
		// Swallow requests without answering.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	conn := dial(t, endpoint, Options{RequestTimeout: 100 * time.Millisecond}, nil)

	req, _ := NewRequest("health", nil)
	if _, err := conn.Request(context.Background(), req); err == nil {
		t.Fatal("Request() succeeded against a mute server")
	}
}

func TestConn_RequestContextCancelled(t *testing.T) {
	endpoint := startServer(t, func(ws *websocket.Conn) {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	conn := dial(t, endpoint, Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	req, _ := NewRequest("health", nil)
	if _, err := conn.Request(ctx, req); err != context.Canceled {
		t.Fatalf("Request() error = %v, want context.Canceled", err)
	}
}

func TestConn_RequestFailsWhenServerCloses(t *testing.T) {
	endpoint := startServer(t, func(ws *websocket.Conn) {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		ws.Close()
	})
	conn := dial(t, endpoint, Options{}, nil)

	req, _ := NewRequest("health", nil)
	if _, err := conn.Request(context.Background(), req); err == nil {
		t.Fatal("Request() succeeded on a connection the server closed")
	}
}

type foreignRequest struct{}

func (foreignRequest) Method() string { return "foreign" }

func TestConn_RejectsForeignRequestType(t *testing.T) {
	endpoint := startServer(t, echoHandler)
	conn := dial(t, endpoint, Options{}, nil)

	if _, err := conn.Request(context.Background(), foreignRequest{}); err == nil {
		t.Error("Request() accepted a request of a foreign type")
	}
	if err := conn.AsyncRequest(context.Background(), foreignRequest{}, nil); err == nil {
		t.Error("AsyncRequest() accepted a request of a foreign type")
	}
}

func TestConn_AsyncRequest(t *testing.T) {
	endpoint := startServer(t, echoHandler)
	conn := dial(t, endpoint, Options{}, nil)

	got := make(chan error, 1)
	req, _ := NewRequest("health", nil)
	err := conn.AsyncRequest(context.Background(), req, func(resp remote.Response, err error) {
		if err == nil && !resp.Success() {
			err = errors.New("unexpected failure response")
		}
		got <- err
	})
	if err != nil {
		t.Fatalf("AsyncRequest() error = %v", err)
	}

	select {
	case err := <-got:
		if err != nil {
			t.Errorf("callback error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never invoked")
	}
}

func TestTransport_DialFailure(t *testing.T) {
	// Reserve a port, then close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)

	transport := NewTransport(Options{HandshakeTimeout: 500 * time.Millisecond}, zap.NewNop(), nil)
	if _, err := transport.ConnectToServer(context.Background(), remote.ServerEndpoint{Host: host, Port: port}); err == nil {
		t.Fatal("ConnectToServer() succeeded against a closed port")
	}
}

func TestConn_CloseIdempotent(t *testing.T) {
	endpoint := startServer(t, echoHandler)
	conn := dial(t, endpoint, Options{}, nil)

	if err := conn.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	// A second close must not panic or error.
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
