package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// signerStub accepts one websocket connection and answers frames with the
// supplied respond function. A nil reply suppresses the response.
func startSignerStub(t *testing.T, respond func(req wsRequest) *wsFrame, push <-chan wsFrame) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "stub closed")
		ctx := r.Context()

		if push != nil {
			go func() {
				for frame := range push {
					data, _ := json.Marshal(frame)
					_ = conn.Write(ctx, websocket.MessageText, data)
				}
			}()
		}

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			if reply := respond(req); reply != nil {
				out, _ := json.Marshal(reply)
				if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialStub(t *testing.T, url string) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestCallRoundTrip(t *testing.T) {
	url := startSignerStub(t, func(req wsRequest) *wsFrame {
		if req.Method != "signer_ping" {
			t.Errorf("unexpected method %q", req.Method)
		}
		return &wsFrame{ID: req.ID, Result: json.RawMessage(`{"pong":true}`)}
	}, nil)

	conn := dialStub(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = conn.Run(ctx, nil) }()

	var res struct {
		Pong bool `json:"pong"`
	}
	if err := conn.Call(ctx, "signer_ping", map[string]any{"n": 1}, &res); err != nil {
		t.Fatalf("call: %v", err)
	}
	if !res.Pong {
		t.Fatalf("result not decoded: %+v", res)
	}
}

func TestCallSurfacesRPCError(t *testing.T) {
	url := startSignerStub(t, func(req wsRequest) *wsFrame {
		return &wsFrame{ID: req.ID, Error: &RPCError{Code: -32601, Message: "unknown method"}}
	}, nil)

	conn := dialStub(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = conn.Run(ctx, nil) }()

	err := conn.Call(ctx, "signer_bogus", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != -32601 {
		t.Fatalf("wrong code: %d", rpcErr.Code)
	}
}

func TestNotificationsInterleaveWithCalls(t *testing.T) {
	push := make(chan wsFrame, 1)
	url := startSignerStub(t, func(req wsRequest) *wsFrame {
		return &wsFrame{ID: req.ID, Result: json.RawMessage(`null`)}
	}, push)

	conn := dialStub(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan Envelope, 1)
	go func() {
		_ = conn.Run(ctx, func(env Envelope) error {
			got <- env
			return nil
		})
	}()

	if err := conn.Call(ctx, "signer_ping", nil, nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	push <- wsFrame{Channel: ChannelExtension, Event: "connected", Origin: "https://wallet.test", Payload: json.RawMessage(`{}`)}

	select {
	case env := <-got:
		if env.Channel != ChannelExtension || env.Event != "connected" {
			t.Fatalf("unexpected envelope: %+v", env)
		}
	case <-ctx.Done():
		t.Fatal("notification never delivered")
	}
}

func TestHandlerErrorStopsRun(t *testing.T) {
	push := make(chan wsFrame, 1)
	url := startSignerStub(t, func(req wsRequest) *wsFrame { return nil }, push)

	conn := dialStub(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	boom := errors.New("boom")
	done := make(chan error, 1)
	go func() {
		done <- conn.Run(ctx, func(Envelope) error { return boom })
	}()

	push <- wsFrame{Channel: ChannelExtension, Event: "weird"}

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Fatalf("expected handler error, got %v", err)
		}
	case <-ctx.Done():
		t.Fatal("run did not stop")
	}
}

func TestCloseSettlesPendingCalls(t *testing.T) {
	// The stub never responds, so the call stays pending until Close.
	url := startSignerStub(t, func(req wsRequest) *wsFrame { return nil }, nil)

	conn := dialStub(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = conn.Run(ctx, nil) }()

	errCh := make(chan error, 1)
	go func() {
		errCh <- conn.Call(ctx, "signer_hang", nil, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	_ = conn.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("pending call settled without error")
		}
	case <-ctx.Done():
		t.Fatal("pending call never settled")
	}

	if err := conn.Call(ctx, "signer_after", nil, nil); !errors.Is(err, errConnClosed) {
		t.Fatalf("call on closed conn: %v", err)
	}
}
