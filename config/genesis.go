package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/vm/modules/market"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock builds and signs block #0 from the genesis config. It
// credits the Alloc balances, initializes the marketplace registry when one
// is configured, and commits state.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	proposerPub := proposerPriv.Public()

	addrs := make([]string, 0, len(cfg.Genesis.Alloc))
	for addr := range cfg.Genesis.Alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		acc := &core.Account{Address: addr, Balance: cfg.Genesis.Alloc[addr]}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	if m := cfg.Genesis.Marketplace; m != nil {
		if _, err := market.Initialize(state, m.Authority, m.FeeBasisPoints, m.Treasury); err != nil {
			return nil, fmt.Errorf("genesis marketplace: %w", err)
		}
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(0, GenesisHash, proposerPub.Hex(), nil)
	block.Header.StateRoot = stateRoot
	// The chain ID is committed to through TxRoot.
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}
