// Package main runs one diagnostic monitoring pass and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chainsage-alerts/internal/adapter"
	"github.com/chainsage-alerts/internal/agent"
	"github.com/chainsage-alerts/internal/chains"
	"github.com/chainsage-alerts/internal/config"
	"github.com/chainsage-alerts/internal/logging"
	"github.com/chainsage-alerts/internal/models"
	"github.com/chainsage-alerts/internal/service"
	"github.com/chainsage-alerts/internal/storage"
	"github.com/chainsage-alerts/internal/types"
)

type scanResult struct {
	Snapshot   types.PortfolioSnapshot `json:"snapshot"`
	Assessment *models.Assessment      `json:"assessment"`
}

func main() {
	walletFlag := flag.String("wallet", "", "Wallet address to scan (defaults to WALLET_ADDRESS)")
	persistFlag := flag.Bool("persist", false, "Store the assessment in the alert store")
	timeoutFlag := flag.Duration("timeout", 60*time.Second, "Overall timeout for the pass")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	wallet := *walletFlag
	if wallet == "" {
		wallet = cfg.Agent.WalletAddress
	}
	if !config.IsWalletAddress(wallet) {
		fmt.Fprintf(os.Stderr, "Invalid wallet address: %q\n", wallet)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	result, err := scan(ctx, cfg, wallet, *persistFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
		os.Exit(1)
	}
}

func scan(ctx context.Context, cfg *config.Config, wallet string, persist bool) (*scanResult, error) {
	clients, err := adapter.NewBalanceClients(cfg.Chains)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	var store agent.AlertStore = discardStore{}
	if persist {
		alertStore, err := storage.OpenAlertStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		defer func() { _ = alertStore.Close() }()
		store = alertStore
	}

	return runScan(ctx, cfg, wallet, clients, store)
}

// runScan executes a single agent pass over clients and keeps the snapshot it scored
func runScan(ctx context.Context, cfg *config.Config, wallet string, clients map[types.ChainID]adapter.BalanceClient, store agent.AlertStore) (*scanResult, error) {
	registry := chains.NewRegistry(cfg.Chains.Monitored)
	aggregator := &snapshotRecorder{
		Aggregator: service.NewAggregator(service.NewBalanceFetcher(clients, registry, cfg.Fetch)),
	}

	interval := cfg.Agent.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	monitor, err := agent.NewAgent(agent.Config{
		WalletAddress: wallet,
		Interval:      interval,
	}, registry, aggregator, service.NewScorer(registry), store)
	if err != nil {
		return nil, err
	}

	assessment, err := monitor.RunOnce(ctx)
	if err != nil {
		return nil, err
	}
	return &scanResult{Snapshot: aggregator.last, Assessment: assessment}, nil
}

// snapshotRecorder keeps the last snapshot produced during the pass
type snapshotRecorder struct {
	*service.Aggregator
	last types.PortfolioSnapshot
}

func (r *snapshotRecorder) Aggregate(records []types.BalanceRecord) types.PortfolioSnapshot {
	r.last = r.Aggregator.Aggregate(records)
	return r.last
}

// discardStore stands in for the alert store when the result is not persisted
type discardStore struct{}

func (discardStore) Insert(context.Context, *models.Assessment) (int64, error) {
	return 0, nil
}
