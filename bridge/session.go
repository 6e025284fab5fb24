package bridge

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"walletbridge/signer"
)

// State is the connection lifecycle position of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ContextKind distinguishes a provider used directly by a page from one
// embedded inside a host application that owns the session lifecycle.
type ContextKind int

const (
	ContextStandalone ContextKind = iota
	ContextEmbeddedPlugin
)

func (k ContextKind) String() string {
	if k == ContextEmbeddedPlugin {
		return "embedded-plugin"
	}
	return "standalone"
}

// session owns the provider's connection state. It is mutated only through
// the transition methods below; every account or endpoint change bumps the
// generation counter so the facade rebinds its signer client before the next
// dispatch.
type session struct {
	mu sync.RWMutex

	state      State
	kind       ContextKind
	account    common.Address
	hasAccount bool
	endpoint   string

	chainID         string
	defaultEndpoint string
	generation      uint64
}

func newSession(chainID, defaultEndpoint string) *session {
	return &session{
		chainID:         chainID,
		defaultEndpoint: defaultEndpoint,
		endpoint:        defaultEndpoint,
	}
}

func (s *session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *session) Kind() ContextKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kind
}

func (s *session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateConnected
}

func (s *session) Account() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account, s.hasAccount
}

func (s *session) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// binding snapshots the state a signer client must be constructed against.
func (s *session) binding() signer.Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return signer.Binding{
		Account:    s.account,
		HasAccount: s.hasAccount,
		Endpoint:   s.endpoint,
		Generation: s.generation,
	}
}

// beginConnect moves the session into Connecting. It reports false when the
// session is already connected; double connect is idempotent, not an error.
func (s *session) beginConnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnected {
		return false
	}
	s.state = StateConnecting
	return true
}

// completeConnect lands a successful connect round trip. An empty endpoint
// keeps the current one.
func (s *session) completeConnect(account common.Address, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateConnected
	s.account = account
	s.hasAccount = true
	if endpoint != "" {
		s.endpoint = endpoint
	}
	s.generation++
}

// failConnect rolls a failed connect attempt back to Disconnected.
func (s *session) failConnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnecting {
		s.state = StateDisconnected
	}
}

// applyConnected lands a signer-side "connected" notification.
func (s *session) applyConnected(account common.Address, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateConnected
	s.account = account
	s.hasAccount = true
	if endpoint != "" {
		s.endpoint = endpoint
	}
	s.generation++
}

// applyDisconnected clears the account and resets the endpoint to the
// default public one.
func (s *session) applyDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDisconnected
	s.account = common.Address{}
	s.hasAccount = false
	s.endpoint = s.defaultEndpoint
	s.generation++
}

// applyEndpoint updates the endpoint if the notification targets this
// session's chain and a session is being or has been established. The
// notification bus is shared across chain providers, so foreign-chain
// updates must not bind here.
func (s *session) applyEndpoint(chainID, endpoint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chainID != s.chainID {
		return false
	}
	if s.state == StateDisconnected {
		return false
	}
	s.endpoint = endpoint
	s.generation++
	return true
}

// applyAccount updates the active account while a session exists.
func (s *session) applyAccount(account common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return false
	}
	s.account = account
	s.hasAccount = true
	s.generation++
	return true
}

// latchEmbedded marks the session as host-owned. The latch is permanent for
// the lifetime of the instance.
func (s *session) latchEmbedded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = ContextEmbeddedPlugin
}
