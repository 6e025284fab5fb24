// Package signer defines the trusted-side signer client: the only way the
// provider reaches the isolated execution context holding key material.
package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Binding is the (account, endpoint) snapshot a client was constructed
// against, together with the session generation observed at build time. The
// provider rebuilds its client whenever the generation moves.
type Binding struct {
	Account    common.Address
	HasAccount bool
	Endpoint   string
	Generation uint64
}

// ConnectResult carries the session the signer service established.
type ConnectResult struct {
	Account  common.Address `json:"account"`
	Endpoint string         `json:"endpoint"`
}

// Receipt summarises a confirmed transaction.
type Receipt struct {
	TxHash      common.Hash `json:"txHash"`
	BlockHash   common.Hash `json:"blockHash"`
	BlockNumber uint64      `json:"blockNumber"`
	GasUsed     uint64      `json:"gasUsed"`
	Status      uint64      `json:"status"`
}

// SimulationResult reports the outcome of a dry-run execution.
type SimulationResult struct {
	Reverted bool     `json:"reverted"`
	Err      string   `json:"err,omitempty"`
	GasUsed  uint64   `json:"gasUsed"`
	Logs     []string `json:"logs,omitempty"`
}

// Client is the operation surface of the trusted-side signer. Implementations
// must be safe to discard mid-flight: outstanding calls on a discarded client
// settle independently.
type Client interface {
	Connect(ctx context.Context) (ConnectResult, error)
	Disconnect(ctx context.Context) error
	Send(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	SendAndConfirm(ctx context.Context, tx *types.Transaction) (*Receipt, error)
	Simulate(ctx context.Context, tx *types.Transaction) (*SimulationResult, error)
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
	SignAllTransactions(ctx context.Context, txs []*types.Transaction) ([]*types.Transaction, error)
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	PrepareOffchainMessage(ctx context.Context, msg []byte) ([]byte, error)
	OpenHost(ctx context.Context, target string) error
}

// Factory builds a client bound to the supplied snapshot. Construction must
// be cheap and side-effect free (no network round trip); the provider invokes
// it on the hot path of every guarded operation.
type Factory func(Binding) Client
