package evm

import "testing"

func TestChainIDForKnownChains(t *testing.T) {
	cases := map[string]int64{
		"ethereum": 1,
		"base":     8453,
		"polygon":  137,
		"arbitrum": 42161,
		"optimism": 10,
	}
	for chain, want := range cases {
		got, err := ChainIDFor(chain)
		if err != nil {
			t.Fatalf("ChainIDFor(%q): %v", chain, err)
		}
		if got != want {
			t.Fatalf("ChainIDFor(%q) = %d, want %d", chain, got, want)
		}
	}
}

func TestChainIDForUnknownChainErrors(t *testing.T) {
	if _, err := ChainIDFor("dogecoin"); err == nil {
		t.Fatal("expected error for unsupported chain")
	}
}
