package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"marketchain/config"
	"marketchain/core"
	"marketchain/crypto"
	"marketchain/native/marketplace/settlement"
	"marketchain/observability/logging"
	"marketchain/observability/otel"
	"marketchain/rpc"
	"marketchain/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("marketd", cfg.Environment)

	ctx := context.Background()
	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "marketd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Traces:      cfg.Telemetry.Traces,
			Metrics:     cfg.Telemetry.Metrics,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	asset, err := buildAsset(cfg)
	if err != nil {
		logger.Error("Failed to configure settlement asset", slog.Any("error", err))
		os.Exit(1)
	}

	node, err := core.NewNode(db, asset)
	if err != nil {
		logger.Error("Failed to open ledger state", slog.Any("error", err))
		os.Exit(1)
	}

	alloc, err := genesisAlloc(cfg)
	if err != nil {
		logger.Error("Failed to parse genesis allocation", slog.Any("error", err))
		os.Exit(1)
	}
	if err := node.ApplyGenesis(alloc); err != nil {
		logger.Error("Failed to apply genesis allocation", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("marketplace node ready",
		slog.String("settlement", cfg.Settlement),
		slog.String("symbol", asset.Symbol()),
		slog.String("dataDir", cfg.DataDir),
	)

	server := rpc.NewServer(node, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func buildAsset(cfg *config.Config) (settlement.Asset, error) {
	switch cfg.Settlement {
	case config.SettlementToken:
		return settlement.NewTokenAsset(cfg.TokenSymbol, cfg.TokenDecimals)
	default:
		return settlement.NewNativeAsset("MKT"), nil
	}
}

func genesisAlloc(cfg *config.Config) ([]core.GenesisAlloc, error) {
	alloc := make([]core.GenesisAlloc, 0, len(cfg.Genesis))
	for _, entry := range cfg.Genesis {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(entry.Address))
		if err != nil {
			return nil, fmt.Errorf("genesis address %q: %w", entry.Address, err)
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(entry.Balance), 10)
		if !ok {
			return nil, fmt.Errorf("genesis balance %q: not a decimal integer", entry.Balance)
		}
		alloc = append(alloc, core.GenesisAlloc{Address: addr.Raw(), Balance: balance})
	}
	return alloc, nil
}
