package evm

import "fmt"

// ChainID maps a Sardis chain name to its EVM chain ID. Grounded on the
// same mainnet/testnet set cctp_constants.py enumerates for CCTP, plus
// Ethereum itself as the anchoring default.
var ChainID = map[string]int64{
	"ethereum":         1,
	"ethereum-sepolia": 11155111,
	"base":             8453,
	"base-sepolia":     84532,
	"polygon":          137,
	"polygon-amoy":     80002,
	"arbitrum":         42161,
	"arbitrum-sepolia": 421614,
	"optimism":         10,
	"optimism-sepolia": 11155420,
}

// ChainIDFor looks up chain's EVM chain ID, erroring on an unknown name
// rather than silently defaulting (a wrong chain ID signs a transaction
// that will never land on the intended network).
func ChainIDFor(chain string) (int64, error) {
	id, ok := ChainID[chain]
	if !ok {
		return 0, fmt.Errorf("evm: unsupported chain %q", chain)
	}
	return id, nil
}
