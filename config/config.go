// Package config loads node configuration from defaults, an optional config
// file and TOLMARKET_* environment variables, in that order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/storage"
)

// EnvPrefix prefixes environment overrides, e.g. TOLMARKET_RPC_PORT.
const EnvPrefix = "TOLMARKET"

// MarketGenesis initializes the marketplace registry at genesis.
type MarketGenesis struct {
	Authority      string `json:"authority" mapstructure:"authority"`
	FeeBasisPoints uint16 `json:"fee_basis_points" mapstructure:"fee_basis_points"`
	Treasury       string `json:"treasury" mapstructure:"treasury"`
}

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID     string            `json:"chain_id" mapstructure:"chain_id"`
	Alloc       map[string]uint64 `json:"alloc" mapstructure:"alloc"` // pubkey hex → initial balance
	Marketplace *MarketGenesis    `json:"marketplace,omitempty" mapstructure:"marketplace"`
}

// Config holds all node configuration.
type Config struct {
	NodeID        string        `json:"node_id" mapstructure:"node_id"`
	DataDir       string        `json:"data_dir" mapstructure:"data_dir"`
	DBBackend     string        `json:"db_backend" mapstructure:"db_backend"` // "leveldb" or "pebble"
	CacheSize     int           `json:"cache_size" mapstructure:"cache_size"` // state read cache entries; 0 disables
	JournalPath   string        `json:"journal_path" mapstructure:"journal_path"`
	LogLevel      string        `json:"log_level" mapstructure:"log_level"`
	RPCPort       int           `json:"rpc_port" mapstructure:"rpc_port"`
	RPCAuthToken  string        `json:"rpc_auth_token" mapstructure:"rpc_auth_token"`
	BlockInterval time.Duration `json:"block_interval" mapstructure:"block_interval"`
	MaxBlockTxs   int           `json:"max_block_txs" mapstructure:"max_block_txs"` // max transactions per block; 0 → 500
	Validators    []string      `json:"validators" mapstructure:"validators"`       // authorised proposer pubkey hexes
	Genesis       GenesisConfig `json:"genesis" mapstructure:"genesis"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_id", "node0")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("db_backend", storage.BackendLevelDB)
	v.SetDefault("cache_size", 4096)
	v.SetDefault("journal_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("rpc_port", 8545)
	v.SetDefault("rpc_auth_token", "")
	v.SetDefault("block_interval", "2s")
	v.SetDefault("max_block_txs", 500)
	v.SetDefault("validators", []string{})
	v.SetDefault("genesis.chain_id", "tolmarket-dev")
	v.SetDefault("genesis.alloc", map[string]uint64{})
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not load: %v", err))
	}
	return cfg
}

// Load reads the config file at path (JSON, YAML or TOML by extension) over
// the defaults, applies environment overrides and validates the result. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Genesis.Alloc == nil {
		cfg.Genesis.Alloc = map[string]uint64{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the node cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Genesis.ChainID == "" {
		errs = append(errs, errors.New("genesis.chain_id is required"))
	}
	switch c.DBBackend {
	case storage.BackendLevelDB, storage.BackendPebble:
	default:
		errs = append(errs, fmt.Errorf("db_backend %q: want %q or %q", c.DBBackend, storage.BackendLevelDB, storage.BackendPebble))
	}
	if c.CacheSize < 0 {
		errs = append(errs, errors.New("cache_size must not be negative"))
	}
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		errs = append(errs, fmt.Errorf("rpc_port %d out of range", c.RPCPort))
	}
	if c.BlockInterval <= 0 {
		errs = append(errs, errors.New("block_interval must be positive"))
	}
	for _, val := range c.Validators {
		if _, err := crypto.PubKeyFromHex(val); err != nil {
			errs = append(errs, fmt.Errorf("validator %q: %w", val, err))
		}
	}
	for addr := range c.Genesis.Alloc {
		if _, err := crypto.PubKeyFromHex(addr); err != nil {
			errs = append(errs, fmt.Errorf("genesis.alloc %q: %w", addr, err))
		}
	}
	if m := c.Genesis.Marketplace; m != nil {
		if m.FeeBasisPoints > core.MaxFeeBasisPoints {
			errs = append(errs, fmt.Errorf("genesis.marketplace.fee_basis_points %d exceeds %d", m.FeeBasisPoints, core.MaxFeeBasisPoints))
		}
		if _, err := crypto.PubKeyFromHex(m.Treasury); err != nil {
			errs = append(errs, fmt.Errorf("genesis.marketplace.treasury: %w", err))
		}
		if _, err := crypto.PubKeyFromHex(m.Authority); err != nil {
			errs = append(errs, fmt.Errorf("genesis.marketplace.authority: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
