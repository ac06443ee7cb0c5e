// Package node wires storage, execution, consensus and the RPC surface into
// a runnable marketplace node.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tolelom/tolmarket/config"
	"github.com/tolelom/tolmarket/consensus"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/journal"
	"github.com/tolelom/tolmarket/rpc"
	"github.com/tolelom/tolmarket/storage"
	"github.com/tolelom/tolmarket/vm"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/tolmarket/vm/modules/asset"
	_ "github.com/tolelom/tolmarket/vm/modules/economy"
	_ "github.com/tolelom/tolmarket/vm/modules/market"
)

var log = logging.Logger("node")

// Node is a single marketplace validator.
type Node struct {
	cfg     *config.Config
	db      storage.DB
	journal *journal.Journal

	Chain     *core.Blockchain
	State     *storage.StateDB
	Mempool   *core.Mempool
	Emitter   *events.Emitter
	Indexer   *indexer.Indexer
	Executor  *vm.Executor
	Consensus *consensus.PoA
	RPC       *rpc.Server
}

// New opens the node's storage under cfg.DataDir, commits the genesis block
// on a fresh chain, and assembles every component. Call Close when done.
func New(cfg *config.Config, privKey crypto.PrivateKey) (_ *Node, err error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.Open(cfg.DBBackend, filepath.Join(cfg.DataDir, "chain"), cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	n := &Node{cfg: cfg, db: db}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	// State and blocks share one DB under different key prefixes.
	n.State = storage.NewStateDB(db)
	n.Chain = core.NewBlockchain(storage.NewBlockStore(db))
	if err := n.Chain.Init(); err != nil {
		return nil, fmt.Errorf("blockchain init: %w", err)
	}
	if n.Chain.Tip() == nil {
		genesis, err := config.CreateGenesisBlock(cfg, n.State, privKey)
		if err != nil {
			return nil, fmt.Errorf("genesis: %w", err)
		}
		if err := n.Chain.AddBlock(genesis); err != nil {
			return nil, fmt.Errorf("add genesis: %w", err)
		}
		log.Infow("genesis block committed", "hash", genesis.Hash, "chain_id", cfg.Genesis.ChainID)
	}

	n.Emitter = events.NewEmitter()
	n.Indexer = indexer.New(db, n.Emitter)

	var trades rpc.TradeSource
	if cfg.JournalPath != "" {
		path := cfg.JournalPath
		if !filepath.IsAbs(path) && path != ":memory:" {
			path = filepath.Join(cfg.DataDir, path)
		}
		j, err := journal.Open(path)
		if err != nil {
			return nil, err
		}
		j.Attach(n.Emitter)
		n.journal = j
		trades = j
	}

	n.Mempool = core.NewMempool(cfg.Genesis.ChainID)
	n.Mempool.SetCommitted(n.Chain.HasTx)
	n.Executor = vm.NewExecutor(n.State, n.Emitter)
	n.Consensus = consensus.New(cfg, n.Chain, n.State, n.Mempool, n.Executor, n.Emitter, privKey)

	handler := rpc.NewHandler(n.Chain, n.Mempool, n.State, n.Indexer, trades, cfg.Genesis.ChainID)
	n.RPC = rpc.NewServer(fmt.Sprintf(":%d", cfg.RPCPort), handler, cfg.RPCAuthToken)
	return n, nil
}

// Run serves RPC and produces blocks until ctx is cancelled or either
// component fails.
func (n *Node) Run(ctx context.Context) error {
	if err := n.RPC.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	if n.cfg.RPCAuthToken != "" {
		log.Info("RPC bearer token authentication enabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.Consensus.Run(ctx, n.cfg.BlockInterval)
	})
	g.Go(func() error {
		<-ctx.Done()
		// Consensus stops on the same signal; in-flight RPCs get a grace period.
		return n.RPC.Stop()
	})
	log.Infow("node running", "validators", len(n.cfg.Validators), "interval", n.cfg.BlockInterval)
	return g.Wait()
}

// Close releases the journal and the database.
func (n *Node) Close() error {
	var errs []error
	if n.journal != nil {
		errs = append(errs, n.journal.Close())
	}
	if n.db != nil {
		errs = append(errs, n.db.Close())
	}
	return errors.Join(errs...)
}
