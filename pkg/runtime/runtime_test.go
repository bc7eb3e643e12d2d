package runtime

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const tokenABI = `[
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getReserves","stateMutability":"view","inputs":[],"outputs":[{"name":"r0","type":"uint112"},{"name":"r1","type":"uint112"},{"name":"ts","type":"uint32"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"bid","stateMutability":"payable","inputs":[{"name":"value","type":"uint256"}],"outputs":[]}
]`

var (
	contractAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	accountAddr  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	holderAddr   = "0x3000000000000000000000000000000000000003"
)

// fakeBackend answers calls from a fixed table of return data.
type fakeBackend struct {
	returns  map[string][]byte
	lastCall ethereum.CallMsg
	lastEst  ethereum.CallMsg
	gas      uint64
	nonce    uint64
	gasPrice *big.Int
	chainID  *big.Int
	err      error
}

func (b *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.lastCall = msg
	if b.err != nil {
		return nil, b.err
	}
	return b.returns[common.Bytes2Hex(msg.Data[:4])], nil
}

func (b *fakeBackend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.lastEst = msg
	return b.gas, b.err
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return b.nonce, b.err
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return b.gasPrice, b.err
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return b.chainID, b.err
}

func parseABI(t *testing.T) gethabi.ABI {
	t.Helper()
	a, err := gethabi.JSON(strings.NewReader(tokenABI))
	require.NoError(t, err)
	return a
}

func newTestState(t *testing.T) (*State, *fakeBackend) {
	t.Helper()
	a := parseABI(t)
	b := &fakeBackend{
		returns:  make(map[string][]byte),
		gas:      51000,
		nonce:    7,
		gasPrice: big.NewInt(2_000_000_000),
		chainID:  big.NewInt(1),
	}
	ret := func(method string, values ...any) {
		out, err := a.Methods[method].Outputs.Pack(values...)
		require.NoError(t, err)
		b.returns[common.Bytes2Hex(a.Methods[method].ID)] = out
	}
	ret("totalSupply", big.NewInt(1_000_000))
	ret("balanceOf", big.NewInt(42))
	ret("getReserves", big.NewInt(10), big.NewInt(20), uint32(1700000000))
	return NewState(contractAddr, accountAddr, a, b), b
}

var errBackend = errors.New("node unavailable")
