package bridge

import (
	"encoding/json"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"walletbridge/events"
	"walletbridge/observability"
	"walletbridge/transport"
)

// Public event surface. Subscribers receive the original notification payload
// unmodified, after internal state has been updated.
const (
	EventConnect               = "connect"
	EventDisconnect            = "disconnect"
	EventConnectionDidChange   = "connectionDidChange"
	EventActiveWalletDidChange = "activeWalletDidChange"
	EventMount                 = "mount"
	EventUnmount               = "unmount"
	EventMetadata              = "metadata"
)

// Inbound event names on the accepted channels.
const (
	notifConnected       = "connected"
	notifDisconnected    = "disconnected"
	notifEndpointUpdated = "endpointUpdated"
	notifWalletUpdated   = "activeWalletUpdated"
	notifHostConnect     = "hostConnect"
	notifMount           = "mount"
	notifUnmount         = "unmount"
	notifMetadataUpdated = "metadataUpdated"
)

type sessionPayload struct {
	Account  common.Address `json:"account"`
	Endpoint string         `json:"endpoint"`
}

type endpointPayload struct {
	ChainID  string `json:"chainId"`
	Endpoint string `json:"endpoint"`
}

type walletPayload struct {
	Account common.Address `json:"account"`
}

// router validates inbound envelopes by origin and channel and dispatches
// them by event name. Origin mismatches and unknown channels are expected
// noise and dropped silently; an unknown event on an accepted channel is a
// protocol violation and is surfaced to the caller.
type router struct {
	origin  string
	session *session
	emitter *events.Emitter
	log     *slog.Logger
	metrics *observability.BridgeMetrics
}

func (r *router) handle(env transport.Envelope) error {
	if env.Origin != r.origin {
		r.log.Debug("dropping notification from foreign origin", "event", env.Event)
		r.metrics.RecordDroppedNotification("origin")
		return nil
	}
	if env.Channel != transport.ChannelExtension && env.Channel != transport.ChannelPlugin {
		r.log.Debug("dropping notification on unknown channel", "channel", string(env.Channel))
		r.metrics.RecordDroppedNotification("channel")
		return nil
	}

	switch env.Event {
	case notifConnected:
		var p sessionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			r.metrics.RecordDroppedNotification("payload")
			return nil
		}
		r.session.applyConnected(p.Account, p.Endpoint)
		r.emitter.Emit(EventConnect, env.Payload)

	case notifDisconnected:
		r.session.applyDisconnected()
		r.emitter.Emit(EventDisconnect, env.Payload)

	case notifEndpointUpdated:
		var p endpointPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			r.metrics.RecordDroppedNotification("payload")
			return nil
		}
		if !r.session.applyEndpoint(p.ChainID, p.Endpoint) {
			r.log.Debug("ignoring endpoint update", "chain", p.ChainID)
			r.metrics.RecordDroppedNotification("chain")
			return nil
		}
		r.emitter.Emit(EventConnectionDidChange, env.Payload)

	case notifWalletUpdated:
		var p walletPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			r.metrics.RecordDroppedNotification("payload")
			return nil
		}
		if !r.session.applyAccount(p.Account) {
			r.metrics.RecordDroppedNotification("state")
			return nil
		}
		r.emitter.Emit(EventActiveWalletDidChange, env.Payload)

	case notifHostConnect:
		var p sessionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			r.metrics.RecordDroppedNotification("payload")
			return nil
		}
		r.session.latchEmbedded()
		r.session.applyConnected(p.Account, p.Endpoint)
		r.emitter.Emit(EventConnect, env.Payload)

	case notifMount:
		r.emitter.Emit(EventMount, env.Payload)

	case notifUnmount:
		r.emitter.Emit(EventUnmount, env.Payload)

	case notifMetadataUpdated:
		r.emitter.Emit(EventMetadata, env.Payload)

	default:
		err := &ProtocolViolationError{Channel: env.Channel, Event: env.Event}
		r.log.Error("notification protocol violation", "channel", string(env.Channel), "event", env.Event)
		r.metrics.RecordProtocolViolation()
		return err
	}

	return nil
}
