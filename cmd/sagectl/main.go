// Package main is a command-line remote control for a running ChainSage server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chainsage-alerts/internal/client"
)

func main() {
	var (
		action  = flag.String("action", "status", "Action: status, start, stop, run, alerts, wallet, stats")
		baseURL = flag.String("url", envOr("CHAINSAGE_URL", client.DefaultBaseURL), "ChainSage server URL")
		wallet  = flag.String("wallet", "", "Wallet address for -action wallet")
		limit   = flag.Int("limit", 10, "Number of alerts to list")
		timeout = flag.Duration("timeout", 60*time.Second, "Request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := client.NewClient(*baseURL)

	var (
		result interface{}
		err    error
	)
	switch *action {
	case "status":
		result, err = c.AgentStatus(ctx)
	case "start":
		result, err = c.StartAgent(ctx)
	case "stop":
		result, err = c.StopAgent(ctx)
	case "run":
		result, err = c.RunOnce(ctx)
	case "alerts":
		result, err = c.RecentAlerts(ctx, *limit)
	case "wallet":
		if *wallet == "" {
			fmt.Fprintln(os.Stderr, "-wallet is required for -action wallet")
			os.Exit(2)
		}
		result, err = c.WalletInsights(ctx, *wallet, *limit)
	case "stats":
		result, err = c.Stats(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown action: %s\n", *action)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
