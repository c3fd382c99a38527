package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Settlement variant identifiers accepted by the Settlement config key.
const (
	SettlementNative = "native"
	SettlementToken  = "token"
)

// GenesisAccount seeds an initial settlement balance for an address on first
// start, replacing any external faucet during local development.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// Telemetry captures the OTLP exporter knobs.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

type Config struct {
	RPCAddress    string           `toml:"RPCAddress"`
	DataDir       string           `toml:"DataDir"`
	Environment   string           `toml:"Environment"`
	Settlement    string           `toml:"Settlement"`
	TokenSymbol   string           `toml:"TokenSymbol"`
	TokenDecimals uint8            `toml:"TokenDecimals"`
	Genesis       []GenesisAccount `toml:"Genesis"`
	Telemetry     Telemetry        `toml:"Telemetry"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./market-data"
	}
	if strings.TrimSpace(cfg.Settlement) == "" {
		cfg.Settlement = SettlementNative
	}
	cfg.Settlement = strings.ToLower(strings.TrimSpace(cfg.Settlement))
	cfg.TokenSymbol = strings.ToUpper(strings.TrimSpace(cfg.TokenSymbol))
}

// Validate rejects configurations the node cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	switch cfg.Settlement {
	case SettlementNative:
	case SettlementToken:
		if cfg.TokenSymbol == "" {
			return fmt.Errorf("token settlement requires TokenSymbol")
		}
		if cfg.TokenDecimals > 18 {
			return fmt.Errorf("TokenDecimals out of range: %d", cfg.TokenDecimals)
		}
	default:
		return fmt.Errorf("unknown Settlement variant %q", cfg.Settlement)
	}
	for i, alloc := range cfg.Genesis {
		if strings.TrimSpace(alloc.Address) == "" {
			return fmt.Errorf("genesis entry %d: address required", i)
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Balance), 10)
		if !ok || balance.Sign() < 0 {
			return fmt.Errorf("genesis entry %d: invalid balance %q", i, alloc.Balance)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:  ":8080",
		DataDir:     "./market-data",
		Settlement:  SettlementNative,
		Environment: "",
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
