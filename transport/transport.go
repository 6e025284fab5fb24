// Package transport carries requests and notifications between the page-side
// provider and the isolated signer service. Each request yields exactly one
// correlated response or failure; notifications arrive asynchronously on the
// same link with at-most-once, per-channel ordering assumed but not verified.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
)

// Channel tags the producer of a notification.
type Channel string

const (
	// ChannelExtension carries session notifications from the standalone
	// signer extension.
	ChannelExtension Channel = "extension"
	// ChannelPlugin carries notifications from an embedding host
	// application.
	ChannelPlugin Channel = "plugin"
)

// Envelope is a single inbound notification. It is consumed once by the
// provider's router and never persisted.
type Envelope struct {
	Channel Channel         `json:"channel"`
	Event   string          `json:"event"`
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler consumes inbound notification envelopes. A non-nil error stops the
// delivering loop.
type Handler func(Envelope) error

// Requester issues a correlated request across the boundary and decodes the
// response into result when result is non-nil.
type Requester interface {
	Call(ctx context.Context, method string, params any, result any) error
}

// Source delivers notifications to a handler until the context is cancelled
// or the link fails.
type Source interface {
	Run(ctx context.Context, handler Handler) error
}

// RPCError is a structured failure returned by the signer service.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("transport: rpc error %d: %s", e.Code, e.Message)
}
