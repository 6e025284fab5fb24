package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"walletbridge/transport"
)

func TestForeignOriginIsSilentlyDropped(t *testing.T) {
	f := newStubFactory()
	p := newTestProvider(t, f)

	err := p.HandleNotification(transport.Envelope{
		Channel: transport.ChannelExtension,
		Event:   notifConnected,
		Origin:  "https://evil.test",
		Payload: json.RawMessage(fmt.Sprintf(`{"account":"%s"}`, accountX.Hex())),
	})
	if err != nil {
		t.Fatalf("foreign origin must be dropped, not raised: %v", err)
	}
	if p.Connected() {
		t.Fatal("foreign-origin notification mutated state")
	}
}

func TestUnknownChannelIsSilentlyDropped(t *testing.T) {
	f := newStubFactory()
	p := newTestProvider(t, f)

	err := p.HandleNotification(transport.Envelope{
		Channel: transport.Channel("sidecar"),
		Event:   notifConnected,
		Origin:  testOrigin,
		Payload: json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("unknown channel must be dropped, not raised: %v", err)
	}
	if p.Connected() {
		t.Fatal("unknown-channel notification mutated state")
	}
}

func TestUnknownEventOnAcceptedChannelIsViolation(t *testing.T) {
	f := newStubFactory()
	p := newTestProvider(t, f)

	err := p.HandleNotification(transport.Envelope{
		Channel: transport.ChannelExtension,
		Event:   "quantumEntangle",
		Origin:  testOrigin,
	})
	var violation *ProtocolViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected ProtocolViolationError, got %v", err)
	}
	if violation.Event != "quantumEntangle" || violation.Channel != transport.ChannelExtension {
		t.Fatalf("violation fields: %+v", violation)
	}
}

// Subscribers must observe state that is already consistent: by the time the
// public event fires, the session reflects the notification.
func TestPublicEmitHappensAfterStateUpdate(t *testing.T) {
	f := newStubFactory()
	p := newTestProvider(t, f)

	observed := make(chan bool, 1)
	p.On(EventConnect, func(json.RawMessage) {
		observed <- p.Connected()
	})

	notify(t, p, transport.ChannelExtension, notifConnected,
		fmt.Sprintf(`{"account":"%s","endpoint":"https://rpc.e1.test"}`, accountX.Hex()))

	select {
	case connected := <-observed:
		if !connected {
			t.Fatal("subscriber observed stale state")
		}
	default:
		t.Fatal("connect event not emitted")
	}
}

func TestHostLifecycleEventsReemittedVerbatim(t *testing.T) {
	f := newStubFactory()
	p := newTestProvider(t, f)

	payloads := map[string]string{}
	for _, event := range []string{EventMount, EventUnmount, EventMetadata} {
		event := event
		p.On(event, func(payload json.RawMessage) {
			payloads[event] = string(payload)
		})
	}

	notify(t, p, transport.ChannelPlugin, notifMount, `{"view":"main"}`)
	notify(t, p, transport.ChannelPlugin, notifUnmount, `{"view":"main"}`)
	notify(t, p, transport.ChannelPlugin, notifMetadataUpdated, `{"title":"Swap"}`)

	if payloads[EventMount] != `{"view":"main"}` {
		t.Fatalf("mount payload: %q", payloads[EventMount])
	}
	if payloads[EventUnmount] != `{"view":"main"}` {
		t.Fatalf("unmount payload: %q", payloads[EventUnmount])
	}
	if payloads[EventMetadata] != `{"title":"Swap"}` {
		t.Fatalf("metadata payload: %q", payloads[EventMetadata])
	}
	if p.Connected() {
		t.Fatal("lifecycle events must not touch the session")
	}
}

func TestMalformedPayloadIsDroppedNotRaised(t *testing.T) {
	f := newStubFactory()
	p := newTestProvider(t, f)

	err := p.HandleNotification(transport.Envelope{
		Channel: transport.ChannelExtension,
		Event:   notifConnected,
		Origin:  testOrigin,
		Payload: json.RawMessage(`{"account":42`),
	})
	if err != nil {
		t.Fatalf("malformed payload on a known event: %v", err)
	}
	if p.Connected() {
		t.Fatal("malformed payload mutated state")
	}
}

func TestDisconnectNotificationTearsDownSession(t *testing.T) {
	f := newStubFactory()
	p := newTestProvider(t, f)

	var gotDisconnect bool
	p.On(EventDisconnect, func(json.RawMessage) { gotDisconnect = true })

	notify(t, p, transport.ChannelExtension, notifConnected,
		fmt.Sprintf(`{"account":"%s","endpoint":"https://rpc.e1.test"}`, accountX.Hex()))
	notify(t, p, transport.ChannelExtension, notifDisconnected, `{}`)

	if p.Connected() {
		t.Fatal("session survived disconnect notification")
	}
	if _, ok := p.Account(); ok {
		t.Fatal("account survived disconnect notification")
	}
	if p.Endpoint() != testEndpoint {
		t.Fatalf("endpoint not reset: %s", p.Endpoint())
	}
	if !gotDisconnect {
		t.Fatal("disconnect event not emitted")
	}
}
