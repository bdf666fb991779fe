// Package config implements the populated config record (spec.md §6)
// and its TOML loading, following the teacher's convention of a flat
// struct tree decoded by BurntSushi/toml (mirroring go-ethereum's own
// TOML-based node config in cmd/utils/config load paths).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Blockchain is one entry of the `blockchains` config map.
type Blockchain struct {
	ChainID uint64 `toml:"chain_id"`
}

// Transport is a client's wire transport.
type Transport string

const (
	TransportWS   Transport = "ws"
	TransportHTTP Transport = "http"
	TransportIPC  Transport = "ipc"
)

// NodeKind distinguishes the client implementation behind a URL,
// used only for node-specific debug-trace quirks.
type NodeKind string

const (
	NodeKindGeth NodeKind = "geth"
	NodeKindReth NodeKind = "reth"
)

// Client is one entry of the `clients` config map.
type Client struct {
	URL       string    `toml:"url"`
	Transport Transport `toml:"transport"`
	NodeKind  NodeKind  `toml:"node_kind"`
	DBPath    string    `toml:"db_path"`
}

// Signer is one entry of the `signers` config map: an env-var name
// holding the passphrase, plus the path to the encrypted key file
// (spec.md §6 "env-based encrypted key").
type Signer struct {
	PassphraseEnv string `toml:"passphrase_env"`
	KeyFile       string `toml:"key_file"`
}

// Actors toggles which optional actors run (spec.md §6).
type Actors struct {
	Mempool            bool `toml:"mempool"`
	Price              bool `toml:"price"`
	PoolsHistory       bool `toml:"pools_history"`
	PoolsNew           bool `toml:"pools_new"`
	PoolsProtocol      bool `toml:"pools_protocol"`
	NonceBalance       bool `toml:"noncebalance"`
	Broadcaster        bool `toml:"broadcaster"`
	Estimator          bool `toml:"estimator"`
}

// BackrunStrategy is the `backrun_strategy` config block.
type BackrunStrategy struct {
	EOA                string `toml:"eoa"`
	Smart              bool   `toml:"smart"`
	ChainID            uint64 `toml:"chain_id"`
	MinProfitWei       string `toml:"min_profit_wei"`
	FlashLoanFeeBps    uint64 `toml:"flash_loan_fee_bps"`
	MaxCapitalUSD      uint64 `toml:"max_capital_usd"`
	DynamicCapital     bool   `toml:"dynamic_capital"`
	MaxPathLength      int    `toml:"max_path_length"`
	MulticallerAddress string `toml:"multicaller_address"`
}

// InfluxDB is the optional `influxdb` config block.
type InfluxDB struct {
	URL      string            `toml:"url"`
	Database string            `toml:"database"`
	Tags     map[string]string `toml:"tags"`
}

// Relay is one configured bundle-relay endpoint.
type Relay struct {
	Name    string `toml:"name"`
	URL     string `toml:"url"`
	AuthEnv string `toml:"auth_env"`
}

// Config is the full populated record ingested pre-core (spec.md §6).
type Config struct {
	Blockchains map[string]Blockchain `toml:"blockchains"`
	Clients     map[string]Client     `toml:"clients"`
	Signers     map[string]Signer     `toml:"signers"`
	Actors      Actors                `toml:"actors"`
	Strategy    BackrunStrategy       `toml:"backrun_strategy"`
	InfluxDB    *InfluxDB             `toml:"influxdb"`
	Relays      []Relay               `toml:"relays"`
	AllowBroadcast bool               `toml:"allow_broadcast"`
}

// Load parses a TOML config file and validates it per §7 ConfigError
// ("missing required keys, unparseable address/URL... fatal at
// startup").
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Blockchains) == 0 {
		return fmt.Errorf("config: at least one blockchain is required")
	}
	if len(c.Clients) == 0 {
		return fmt.Errorf("config: at least one client is required")
	}
	for name, cl := range c.Clients {
		if cl.URL == "" {
			return fmt.Errorf("config: client %q missing url", name)
		}
		switch cl.Transport {
		case TransportWS, TransportHTTP, TransportIPC:
		default:
			return fmt.Errorf("config: client %q has unknown transport %q", name, cl.Transport)
		}
	}
	if c.Strategy.ChainID == 0 {
		return fmt.Errorf("config: backrun_strategy.chain_id is required")
	}
	return nil
}

// SignerPassphrase reads a signer's decryption passphrase from its
// configured environment variable.
func (s Signer) SignerPassphrase() (string, error) {
	v, ok := os.LookupEnv(s.PassphraseEnv)
	if !ok {
		return "", fmt.Errorf("config: environment variable %q not set for signer passphrase", s.PassphraseEnv)
	}
	return v, nil
}
