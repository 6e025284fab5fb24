// Package bridge coordinates blockchain operations issued by an untrusted
// embedding context with the isolated signer service that actually executes
// them. It correlates request/response pairs across the message boundary,
// reconciles asynchronous signer notifications into a single connection
// state, and transparently re-establishes a session before any signing call.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"walletbridge/config"
	"walletbridge/events"
	"walletbridge/observability"
	"walletbridge/observability/logging"
	"walletbridge/signer"
	"walletbridge/transport"
)

// Options configure a provider instance. The operation surface is fixed at
// construction; there is no dynamic reconfiguration path.
type Options struct {
	// ChainID identifies the chain this provider speaks for. Endpoint
	// updates for other chains are ignored.
	ChainID string
	// DefaultEndpoint is the public unauthenticated endpoint used before a
	// session exists and after disconnect.
	DefaultEndpoint string
	// Origin is the opaque token every accepted notification must carry.
	Origin string
	// Factory builds signer clients bound to a session snapshot.
	Factory signer.Factory

	Logger  *slog.Logger
	Metrics *observability.BridgeMetrics
}

// Provider is the single operation surface over the signer service,
// regardless of whether the page or an embedding host owns the session.
type Provider struct {
	session *session
	emitter *events.Emitter
	router  *router
	factory signer.Factory

	// mu guards the bound-client cache and the in-flight connect.
	mu        sync.Mutex
	client    signer.Client
	clientGen uint64
	bound     bool
	inflight  *inflightConnect

	log     *slog.Logger
	metrics *observability.BridgeMetrics
	tracer  trace.Tracer
}

type inflightConnect struct {
	done chan struct{}
	err  error
}

// New constructs a provider. The session starts disconnected and standalone,
// bound to the default endpoint.
func New(opts Options) (*Provider, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("bridge: signer factory is required")
	}
	if opts.DefaultEndpoint == "" {
		return nil, fmt.Errorf("bridge: default endpoint is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	p := &Provider{
		session: newSession(opts.ChainID, opts.DefaultEndpoint),
		emitter: events.NewEmitter(),
		factory: opts.Factory,
		log:     log,
		metrics: opts.Metrics,
		tracer:  otel.Tracer("walletbridge/bridge"),
	}
	p.router = &router{
		origin:  opts.Origin,
		session: p.session,
		emitter: p.emitter,
		log:     log,
		metrics: opts.Metrics,
	}
	return p, nil
}

// NewFromConfig wires a provider over the supplied request channel using the
// remote signer client.
func NewFromConfig(cfg *config.Config, req transport.Requester) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return New(Options{
		ChainID:         cfg.ChainID,
		DefaultEndpoint: cfg.DefaultEndpoint,
		Origin:          cfg.Origin,
		Factory:         signer.NewFactory(req),
		Metrics:         observability.Bridge(),
	})
}

// On subscribes to a public event. The returned function removes the
// subscription.
func (p *Provider) On(event string, handler events.Handler) func() {
	return p.emitter.Subscribe(event, handler)
}

// HandleNotification routes one inbound envelope. A ProtocolViolationError
// indicates version skew with the signer service and must not be masked.
func (p *Provider) HandleNotification(env transport.Envelope) error {
	return p.router.handle(env)
}

// Run pumps notifications from the source into the provider until the context
// is cancelled, the source fails, or a protocol violation occurs.
func (p *Provider) Run(ctx context.Context, src transport.Source) error {
	return src.Run(ctx, p.HandleNotification)
}

// Connected reports whether a session is established.
func (p *Provider) Connected() bool { return p.session.Connected() }

// Account returns the active account, if any.
func (p *Provider) Account() (common.Address, bool) { return p.session.Account() }

// Endpoint returns the network endpoint the next operation will bind to.
func (p *Provider) Endpoint() string { return p.session.Endpoint() }

// Context reports whether the provider runs standalone or inside an
// embedding host.
func (p *Provider) Context() ContextKind { return p.session.Kind() }

// boundClient returns the signer client for the current session snapshot,
// rebuilding it when the snapshot has moved since the last dispatch.
// Construction is cheap and side-effect free, so this runs on every guarded
// operation.
func (p *Provider) boundClient() signer.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.session.binding()
	if !p.bound || p.clientGen != b.Generation {
		p.client = p.factory(b)
		p.clientGen = b.Generation
		p.bound = true
		p.metrics.RecordRebind()
	}
	return p.client
}

// Connect establishes a session. Connecting while already connected is a
// warning-level no-op; concurrent callers share a single signer round trip.
func (p *Provider) Connect(ctx context.Context) error {
	ctx, finish := p.startOp(ctx, "connect")
	err := p.connectOnce(ctx)
	finish(err)
	return err
}

func (p *Provider) connectOnce(ctx context.Context) error {
	p.mu.Lock()
	if call := p.inflight; call != nil {
		p.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &inflightConnect{done: make(chan struct{})}
	p.inflight = call
	p.mu.Unlock()

	call.err = p.doConnect(ctx)
	close(call.done)

	p.mu.Lock()
	p.inflight = nil
	p.mu.Unlock()
	return call.err
}

func (p *Provider) doConnect(ctx context.Context) error {
	if !p.session.beginConnect() {
		p.log.Warn("connect requested on an established session")
		return nil
	}
	res, err := p.boundClient().Connect(ctx)
	if err != nil {
		p.session.failConnect()
		return err
	}
	p.session.completeConnect(res.Account, res.Endpoint)
	p.log.Info("session established", "endpoint", p.session.Endpoint())
	return nil
}

// Disconnect tears the session down. Under an embedding host the session is
// not ours to end, so the call is a warning-level no-op.
func (p *Provider) Disconnect(ctx context.Context) error {
	if p.session.Kind() == ContextEmbeddedPlugin {
		p.log.Warn("disconnect ignored: session owned by embedding host")
		return nil
	}
	if !p.session.Connected() {
		p.log.Warn("disconnect requested without a session")
		return nil
	}
	ctx, finish := p.startOp(ctx, "disconnect")
	err := p.boundClient().Disconnect(ctx)
	// Local state resets regardless; the signer side reconciles on its own.
	p.session.applyDisconnected()
	finish(err)
	return err
}

// ensureConnected is the lazy-connect guard: exactly one connect attempt, no
// silent retry loops. It runs before any operation-specific validation so a
// caller always sees a uniform not-connected failure.
func (p *Provider) ensureConnected(ctx context.Context) error {
	if _, ok := p.session.Account(); ok {
		return nil
	}
	if err := p.connectOnce(ctx); err != nil {
		return errors.Join(ErrNotConnected, err)
	}
	if _, ok := p.session.Account(); !ok {
		return ErrNotConnected
	}
	return nil
}

func (p *Provider) guardedClient(ctx context.Context) (signer.Client, error) {
	if err := p.ensureConnected(ctx); err != nil {
		return nil, err
	}
	return p.boundClient(), nil
}

// startOp opens a span and returns a closure recording the outcome.
func (p *Provider) startOp(ctx context.Context, operation string) (context.Context, func(error)) {
	ctx, span := p.tracer.Start(ctx, "bridge."+operation)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
		p.metrics.RecordRequest(operation, err)
	}
}

// Send submits a transaction through the signer service.
func (p *Provider) Send(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	ctx, finish := p.startOp(ctx, "send")
	client, err := p.guardedClient(ctx)
	if err != nil {
		finish(err)
		return common.Hash{}, err
	}
	hash, err := client.Send(ctx, tx)
	finish(err)
	return hash, err
}

// SendAndConfirm submits a transaction and waits for signer-side
// confirmation.
func (p *Provider) SendAndConfirm(ctx context.Context, tx *types.Transaction) (*signer.Receipt, error) {
	ctx, finish := p.startOp(ctx, "sendAndConfirm")
	client, err := p.guardedClient(ctx)
	if err != nil {
		finish(err)
		return nil, err
	}
	receipt, err := client.SendAndConfirm(ctx, tx)
	finish(err)
	return receipt, err
}

// SendAll is deliberately unimplemented. It fails fast so callers can
// feature-detect with errors.Is.
func (p *Provider) SendAll(ctx context.Context, txs []*types.Transaction) ([]common.Hash, error) {
	return nil, fmt.Errorf("%w: sendAll", ErrUnsupportedOperation)
}

// Simulate dry-runs a transaction against the bound endpoint.
func (p *Provider) Simulate(ctx context.Context, tx *types.Transaction) (*signer.SimulationResult, error) {
	ctx, finish := p.startOp(ctx, "simulate")
	client, err := p.guardedClient(ctx)
	if err != nil {
		finish(err)
		return nil, err
	}
	res, err := client.Simulate(ctx, tx)
	finish(err)
	return res, err
}

// SimulateAll is the legacy multi-transaction simulate surface; it is
// deliberately unimplemented.
func (p *Provider) SimulateAll(ctx context.Context, txs []*types.Transaction) ([]*signer.SimulationResult, error) {
	return nil, fmt.Errorf("%w: simulateAll", ErrUnsupportedOperation)
}

// SignTransaction asks the signer service to sign without submitting.
func (p *Provider) SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	ctx, finish := p.startOp(ctx, "signTransaction")
	client, err := p.guardedClient(ctx)
	if err != nil {
		finish(err)
		return nil, err
	}
	signed, err := client.SignTransaction(ctx, tx)
	finish(err)
	return signed, err
}

// SignAllTransactions signs a batch in order.
func (p *Provider) SignAllTransactions(ctx context.Context, txs []*types.Transaction) ([]*types.Transaction, error) {
	ctx, finish := p.startOp(ctx, "signAllTransactions")
	client, err := p.guardedClient(ctx)
	if err != nil {
		finish(err)
		return nil, err
	}
	signed, err := client.SignAllTransactions(ctx, txs)
	finish(err)
	return signed, err
}

// SignMessage signs an arbitrary message with the active account.
func (p *Provider) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	ctx, finish := p.startOp(ctx, "signMessage")
	client, err := p.guardedClient(ctx)
	if err != nil {
		finish(err)
		return nil, err
	}
	sig, err := client.SignMessage(ctx, msg)
	finish(err)
	if err == nil {
		p.log.Debug("message signed", logging.Truncated("sig", hexutil.Encode(sig)))
	}
	return sig, err
}

// PrepareOffchainMessage wraps a message for off-chain signing. No account is
// required, so the lazy-connect guard is bypassed, but the call still routes
// through the client bound to the current snapshot.
func (p *Provider) PrepareOffchainMessage(ctx context.Context, msg []byte) ([]byte, error) {
	ctx, finish := p.startOp(ctx, "prepareOffchainMessage")
	prepared, err := p.boundClient().PrepareOffchainMessage(ctx, msg)
	finish(err)
	return prepared, err
}

// OpenHost deep-links into the host application. From within that host the
// call is a warning-level no-op.
func (p *Provider) OpenHost(ctx context.Context, target string) error {
	if p.session.Kind() == ContextEmbeddedPlugin {
		p.log.Warn("openHost ignored inside embedding host", "target", target)
		return nil
	}
	ctx, finish := p.startOp(ctx, "openHost")
	err := p.boundClient().OpenHost(ctx, target)
	finish(err)
	return err
}
