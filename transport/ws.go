package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

const wsWriteTimeout = 10 * time.Second

var errConnClosed = errors.New("transport: connection closed")

// wsFrame is the single wire shape: frames with an ID are correlated
// responses, frames without one are notification envelopes.
type wsFrame struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`

	Channel Channel         `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Conn is a websocket link to the signer service. It implements Requester and
// Source over a single connection: calls are matched to responses by UUID while
// pushed notification frames are handed to the Run handler.
type Conn struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan callResult
	closed  bool
}

// Dial connects to the signer service at the provided websocket URL. The
// returned connection must be closed by the caller; Run must be started for
// calls to settle.
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}

// NewConn wraps an established websocket connection.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{
		conn:    conn,
		pending: make(map[string]chan callResult),
	}
}

// Call implements Requester. It registers a pending slot keyed by a fresh
// UUID, writes the request frame and blocks until the correlated response
// arrives, the context ends, or the connection dies. An outstanding call on a
// discarded connection settles with an error rather than hanging.
func (c *Conn) Call(ctx context.Context, method string, params any, result any) error {
	var encoded json.RawMessage
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		encoded = raw
	}

	id := uuid.NewString()
	ch := make(chan callResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errConnClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, wsRequest{ID: id, Method: method, Params: encoded}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if result == nil {
			return nil
		}
		return json.Unmarshal(res.result, result)
	}
}

func (c *Conn) write(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

// Run implements Source. It reads frames until the context is cancelled or
// the connection fails, settling correlated responses and forwarding
// notification envelopes to the handler. A handler error terminates the loop
// and is returned to the caller.
func (c *Conn) Run(ctx context.Context, handler Handler) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.failPending(err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Malformed frames are boundary noise, not a caller error.
			continue
		}

		if frame.ID != "" {
			c.settle(frame)
			continue
		}

		if handler == nil {
			continue
		}
		env := Envelope{
			Channel: frame.Channel,
			Event:   frame.Event,
			Origin:  frame.Origin,
			Payload: frame.Payload,
		}
		if err := handler(env); err != nil {
			c.failPending(err)
			return err
		}
	}
}

func (c *Conn) settle(frame wsFrame) {
	c.mu.Lock()
	ch, ok := c.pending[frame.ID]
	if ok {
		delete(c.pending, frame.ID)
	}
	c.mu.Unlock()
	if !ok {
		// Late response for an abandoned call.
		return
	}
	if frame.Error != nil {
		ch <- callResult{err: frame.Error}
		return
	}
	ch <- callResult{result: frame.Result}
}

func (c *Conn) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan callResult)
	c.closed = true
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- callResult{err: err}
	}
}

// Close tears down the websocket and settles every outstanding call with an
// error.
func (c *Conn) Close() error {
	c.failPending(errConnClosed)
	return c.conn.Close(websocket.StatusNormalClosure, "provider closed")
}
