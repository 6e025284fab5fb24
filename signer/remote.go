package signer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"walletbridge/transport"
)

// Method names understood by the signer service.
const (
	methodConnect         = "signer_connect"
	methodDisconnect      = "signer_disconnect"
	methodSend            = "signer_send"
	methodSendAndConfirm  = "signer_sendAndConfirm"
	methodSimulate        = "signer_simulate"
	methodSignTransaction = "signer_signTransaction"
	methodSignAll         = "signer_signAllTransactions"
	methodSignMessage     = "signer_signMessage"
	methodPrepareOffchain = "signer_prepareOffchainMessage"
	methodOpenHost        = "signer_openHost"
)

// Remote is the Client implementation backed by the request channel. Every
// call carries the bound (account, endpoint) snapshot so the signer service
// executes against exactly the session observed at dispatch time.
type Remote struct {
	req     transport.Requester
	binding Binding
}

// NewRemote binds a remote client to the supplied snapshot.
func NewRemote(req transport.Requester, binding Binding) *Remote {
	return &Remote{req: req, binding: binding}
}

// NewFactory returns a Factory producing Remote clients over the given
// request channel.
func NewFactory(req transport.Requester) Factory {
	return func(binding Binding) Client {
		return NewRemote(req, binding)
	}
}

// Binding exposes the snapshot this client was constructed against.
func (r *Remote) Binding() Binding {
	return r.binding
}

func (r *Remote) params(extra map[string]any) map[string]any {
	p := map[string]any{"endpoint": r.binding.Endpoint}
	if r.binding.HasAccount {
		p["account"] = r.binding.Account
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func (r *Remote) Connect(ctx context.Context) (ConnectResult, error) {
	var res ConnectResult
	if err := r.req.Call(ctx, methodConnect, r.params(nil), &res); err != nil {
		return ConnectResult{}, err
	}
	return res, nil
}

func (r *Remote) Disconnect(ctx context.Context) error {
	return r.req.Call(ctx, methodDisconnect, r.params(nil), nil)
}

func (r *Remote) Send(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	raw, err := encodeTx(tx)
	if err != nil {
		return common.Hash{}, err
	}
	var hash common.Hash
	if err := r.req.Call(ctx, methodSend, r.params(map[string]any{"tx": raw}), &hash); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (r *Remote) SendAndConfirm(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	raw, err := encodeTx(tx)
	if err != nil {
		return nil, err
	}
	receipt := new(Receipt)
	if err := r.req.Call(ctx, methodSendAndConfirm, r.params(map[string]any{"tx": raw}), receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (r *Remote) Simulate(ctx context.Context, tx *types.Transaction) (*SimulationResult, error) {
	raw, err := encodeTx(tx)
	if err != nil {
		return nil, err
	}
	res := new(SimulationResult)
	if err := r.req.Call(ctx, methodSimulate, r.params(map[string]any{"tx": raw}), res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Remote) SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	raw, err := encodeTx(tx)
	if err != nil {
		return nil, err
	}
	var signed hexutil.Bytes
	if err := r.req.Call(ctx, methodSignTransaction, r.params(map[string]any{"tx": raw}), &signed); err != nil {
		return nil, err
	}
	return decodeTx(signed)
}

func (r *Remote) SignAllTransactions(ctx context.Context, txs []*types.Transaction) ([]*types.Transaction, error) {
	raws := make([]hexutil.Bytes, 0, len(txs))
	for _, tx := range txs {
		raw, err := encodeTx(tx)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	var signed []hexutil.Bytes
	if err := r.req.Call(ctx, methodSignAll, r.params(map[string]any{"txs": raws}), &signed); err != nil {
		return nil, err
	}
	out := make([]*types.Transaction, 0, len(signed))
	for _, raw := range signed {
		tx, err := decodeTx(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r *Remote) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	var sig hexutil.Bytes
	if err := r.req.Call(ctx, methodSignMessage, r.params(map[string]any{"message": hexutil.Bytes(msg)}), &sig); err != nil {
		return nil, err
	}
	return sig, nil
}

func (r *Remote) PrepareOffchainMessage(ctx context.Context, msg []byte) ([]byte, error) {
	var prepared hexutil.Bytes
	if err := r.req.Call(ctx, methodPrepareOffchain, r.params(map[string]any{"message": hexutil.Bytes(msg)}), &prepared); err != nil {
		return nil, err
	}
	return prepared, nil
}

func (r *Remote) OpenHost(ctx context.Context, target string) error {
	return r.req.Call(ctx, methodOpenHost, r.params(map[string]any{"target": target}), nil)
}

func encodeTx(tx *types.Transaction) (hexutil.Bytes, error) {
	if tx == nil {
		return nil, fmt.Errorf("signer: nil transaction")
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeTx(raw hexutil.Bytes) (*types.Transaction, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return tx, nil
}
