package bridge

import (
	"errors"
	"fmt"

	"walletbridge/transport"
)

var (
	// ErrNotConnected is returned when an account-dependent operation could
	// not establish a wallet session. Callers recover by invoking Connect
	// explicitly.
	ErrNotConnected = errors.New("bridge: wallet not connected")

	// ErrUnsupportedOperation marks deliberately unimplemented entry
	// points. Callers feature-detect with errors.Is; the session is
	// unaffected.
	ErrUnsupportedOperation = errors.New("bridge: operation not implemented")
)

// ProtocolViolationError reports an accepted-channel notification carrying an
// event name this build does not recognise. It indicates a version skew
// between the provider and the signer service and is never swallowed.
type ProtocolViolationError struct {
	Channel transport.Channel
	Event   string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("bridge: unrecognised event %q on channel %q", e.Event, e.Channel)
}
