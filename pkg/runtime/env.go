package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Environment variables read by NewStateFromEnv.
const (
	EnvContractAddress = "CONTRACT_ADDRESS"
	EnvNodeURL         = "ETH_NODE_URL"
	EnvAccountAddress  = "ACCOUNT_ADDRESS"
)

// NewStateFromEnv dials the node named by ETH_NODE_URL and returns a State for
// the contract at CONTRACT_ADDRESS. ACCOUNT_ADDRESS is optional and is used as
// the sender of calls and transactions.
func NewStateFromEnv(ctx context.Context, abiJSON []byte) (*State, error) {
	contractABI, err := gethabi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	addr := os.Getenv(EnvContractAddress)
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("%s: invalid or missing contract address %q", EnvContractAddress, addr)
	}
	var account common.Address
	if a := os.Getenv(EnvAccountAddress); a != "" {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("%s: invalid account address %q", EnvAccountAddress, a)
		}
		account = common.HexToAddress(a)
	}
	url := os.Getenv(EnvNodeURL)
	if url == "" {
		return nil, fmt.Errorf("%s is not set", EnvNodeURL)
	}

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewState(common.HexToAddress(addr), account, contractABI, client), nil
}
