package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/chainsage-alerts/internal/adapter"
	"github.com/chainsage-alerts/internal/chains"
	"github.com/chainsage-alerts/internal/circuitbreaker"
	"github.com/chainsage-alerts/internal/config"
	"github.com/chainsage-alerts/internal/logging"
	"github.com/chainsage-alerts/internal/metrics"
	"github.com/chainsage-alerts/internal/ratelimit"
	"github.com/chainsage-alerts/internal/retry"
	"github.com/chainsage-alerts/internal/types"
	"github.com/shopspring/decimal"
)

// BalanceFetcher queries one chain's native balance and normalizes it into a record.
// Failures never escape as errors; they are captured in the returned record.
type BalanceFetcher struct {
	clients  map[types.ChainID]adapter.BalanceClient
	registry *chains.Registry
	retryCfg *retry.RetryConfig
	breakers *circuitbreaker.Set    // nil when disabled
	budget   *ratelimit.ChainBudget // nil when disabled
	now      func() time.Time
}

// NewBalanceFetcher creates a fetcher over the given per-chain clients
func NewBalanceFetcher(clients map[types.ChainID]adapter.BalanceClient, registry *chains.Registry, cfg config.FetchConfig) *BalanceFetcher {
	f := &BalanceFetcher{
		clients:  clients,
		registry: registry,
		retryCfg: &retry.RetryConfig{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			ShouldRetry:  isTransient,
		},
		budget: ratelimit.NewChainBudget(cfg.RPCRateLimit),
		now:    time.Now,
	}
	if cfg.BreakerEnabled {
		f.breakers = circuitbreaker.NewSet(circuitbreaker.Config{
			MaxFailures: cfg.BreakerMaxFailure,
			Cooldown:    cfg.BreakerTimeout,
			OnStateChange: func(chainID types.ChainID, _, to circuitbreaker.State) {
				metrics.RecordBreakerState(chainID, string(to))
			},
		})
	}
	return f
}

// FetchBalance returns the native balance of address on chainID
func (f *BalanceFetcher) FetchBalance(ctx context.Context, address string, chainID types.ChainID) types.BalanceRecord {
	client, ok := f.clients[chainID]
	if !ok || client == nil {
		metrics.RecordFetch(chainID, "error")
		return types.NewFailedRecord(chainID, address, adapter.ErrNoClient.Error(), f.now())
	}

	wei, err := f.query(ctx, client, address, chainID)
	if err != nil {
		status := "error"
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			status = "circuit_open"
		}
		metrics.RecordFetch(chainID, status)
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"chainId": int64(chainID),
			"address": address,
		}).WithError(err).Warn("Balance fetch failed")
		return types.NewFailedRecord(chainID, address, diagnostic(err), f.now())
	}

	metrics.RecordFetch(chainID, "success")
	return types.NewBalanceRecord(chainID, address, types.Balance{
		RawValue:     wei.String(),
		DisplayValue: FormatDisplayValue(wei),
		Symbol:       f.registry.Info(chainID).NativeSymbol,
		Decimals:     types.NativeDecimals,
	}, f.now())
}

func (f *BalanceFetcher) query(ctx context.Context, client adapter.BalanceClient, address string, chainID types.ChainID) (*big.Int, error) {
	var wei *big.Int
	call := func() error {
		result := retry.WithExponentialBackoff(ctx, f.retryCfg, func(ctx context.Context, attempt int) error {
			if err := f.budget.Wait(ctx, chainID); err != nil {
				return err
			}
			b, err := client.GetNativeBalance(ctx, address)
			if err != nil {
				return err
			}
			wei = b
			return nil
		})
		return result.Err()
	}

	var err error
	if f.breakers == nil {
		err = call()
	} else {
		err = f.breakers.For(chainID).Do(ctx, call)
	}
	if err != nil {
		return nil, err
	}
	return wei, nil
}

// BreakerStats returns per-chain circuit breaker statistics, or nil when breakers are off
func (f *BalanceFetcher) BreakerStats() map[types.ChainID]circuitbreaker.Stats {
	if f.breakers == nil {
		return nil
	}
	return f.breakers.Stats()
}

// BudgetStats returns per-chain RPC pacing counters, or nil when pacing is off
func (f *BalanceFetcher) BudgetStats() map[types.ChainID]ratelimit.BudgetStats {
	return f.budget.Stats()
}

// FormatDisplayValue converts a wei amount to the native unit with six fractional digits
func FormatDisplayValue(wei *big.Int) string {
	if wei == nil {
		return decimal.Zero.StringFixed(types.DisplayPrecision)
	}
	return decimal.NewFromBigInt(wei, -types.NativeDecimals).StringFixed(types.DisplayPrecision)
}

// isTransient reports whether an RPC error is worth another attempt
func isTransient(err error) bool {
	return !errors.Is(err, adapter.ErrInvalidAddress) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, ratelimit.ErrContextCancelled)
}

// diagnostic shortens an error chain into the message stored on the record
func diagnostic(err error) string {
	var adapterErr *adapter.AdapterError
	if errors.As(err, &adapterErr) && adapterErr.Err != nil {
		return fmt.Sprintf("%s: %v", adapterErr.Op, adapterErr.Err)
	}
	return err.Error()
}
