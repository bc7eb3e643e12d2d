// Package runtime is the support library of generated contract servers: contract
// state, argument coercion, the method registry and the HTTP server.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the part of an Ethereum client a State needs.
// *ethclient.Client implements it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// State is the execution state shared by every method of one contract server.
type State struct {
	Address common.Address
	Account common.Address
	ABI     gethabi.ABI
	Backend Backend
	Vars    *Store
}

// NewState creates a State with an empty variable store.
func NewState(address, account common.Address, contractABI gethabi.ABI, backend Backend) *State {
	return &State{
		Address: address,
		Account: account,
		ABI:     contractABI,
		Backend: backend,
		Vars:    NewStore(),
	}
}

// Transaction is an unsigned transaction, encoded the way JSON-RPC wallets expect.
type Transaction struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Data     hexutil.Bytes  `json:"data"`
	Value    *hexutil.Big   `json:"value"`
	Gas      hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big   `json:"gasPrice"`
	Nonce    hexutil.Uint64 `json:"nonce"`
	ChainID  *hexutil.Big   `json:"chainId"`
}

// Unsigned returns t as a legacy go-ethereum transaction, ready for a signer.
func (t *Transaction) Unsigned() *types.Transaction {
	to := t.To
	return types.NewTx(&types.LegacyTx{
		Nonce:    uint64(t.Nonce),
		GasPrice: t.GasPrice.ToInt(),
		Gas:      uint64(t.Gas),
		To:       &to,
		Value:    t.Value.ToInt(),
		Data:     t.Data,
	})
}

// Call runs a read-only contract call. A single return value is returned
// unwrapped, several as a slice in declaration order.
func (s *State) Call(ctx context.Context, method string, args ...any) (any, error) {
	data, err := s.pack(method, args)
	if err != nil {
		return nil, err
	}
	to := s.Address
	out, err := s.Backend.CallContract(ctx, ethereum.CallMsg{From: s.Account, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := s.ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		return values[0], nil
	default:
		return values, nil
	}
}

// EstimateGas estimates the gas a state-changing call would use.
func (s *State) EstimateGas(ctx context.Context, value Value, method string, args ...any) (uint64, error) {
	data, err := s.pack(method, args)
	if err != nil {
		return 0, err
	}
	wei, err := s.amount(method, value)
	if err != nil {
		return 0, err
	}
	to := s.Address
	gas, err := s.Backend.EstimateGas(ctx, ethereum.CallMsg{From: s.Account, To: &to, Value: wei, Data: data})
	if err != nil {
		return 0, fmt.Errorf("estimate gas for %s: %w", method, err)
	}
	return gas, nil
}

// BuildTransaction assembles an unsigned transaction for a state-changing call.
// Signing is left to the caller.
func (s *State) BuildTransaction(ctx context.Context, gas uint64, value Value, method string, args ...any) (*Transaction, error) {
	data, err := s.pack(method, args)
	if err != nil {
		return nil, err
	}
	wei, err := s.amount(method, value)
	if err != nil {
		return nil, err
	}
	if wei == nil {
		wei = new(big.Int)
	}
	nonce, err := s.Backend.PendingNonceAt(ctx, s.Account)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := s.Backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	chainID, err := s.Backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return &Transaction{
		From:     s.Account,
		To:       s.Address,
		Data:     data,
		Value:    (*hexutil.Big)(wei),
		Gas:      hexutil.Uint64(gas),
		GasPrice: (*hexutil.Big)(gasPrice),
		Nonce:    hexutil.Uint64(nonce),
		ChainID:  (*hexutil.Big)(chainID),
	}, nil
}

// amount parses value and refuses wei for a method that is not payable.
// Callers must pack first so method is known to exist.
func (s *State) amount(method string, value Value) (*big.Int, error) {
	wei, err := value.Int()
	if err != nil {
		return nil, err
	}
	if wei != nil && wei.Sign() > 0 && !s.ABI.Methods[method].IsPayable() {
		return nil, fmt.Errorf("%s is not payable, refusing to send %s wei", method, wei)
	}
	return wei, nil
}

func (s *State) pack(method string, args []any) ([]byte, error) {
	if s.Backend == nil {
		return nil, errors.New("no ethereum backend configured")
	}
	m, ok := s.ABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %q not found in abi", method)
	}
	if len(args) != len(m.Inputs) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", method, len(m.Inputs), len(args))
	}
	values := make([]any, len(args))
	for i, a := range args {
		v, err := coerce(m.Inputs[i].Type, a)
		if err != nil {
			return nil, fmt.Errorf("%s argument %d (%s): %w", method, i, m.Inputs[i].Name, err)
		}
		values[i] = v
	}
	data, err := s.ABI.Pack(method, values...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}
