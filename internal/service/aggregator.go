package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chainsage-alerts/internal/logging"
	"github.com/chainsage-alerts/internal/types"
	"github.com/shopspring/decimal"
)

// Fetcher fetches one chain's balance record
type Fetcher interface {
	FetchBalance(ctx context.Context, address string, chainID types.ChainID) types.BalanceRecord
}

// Aggregator fans balance fetches out across chains and folds them into a snapshot
type Aggregator struct {
	fetcher Fetcher
	now     func() time.Time
}

// NewAggregator creates a new aggregator
func NewAggregator(fetcher Fetcher) *Aggregator {
	return &Aggregator{
		fetcher: fetcher,
		now:     time.Now,
	}
}

// FetchMultiChain fetches every chain concurrently. Each chain's outcome is
// independent of the others, and the result follows the order of chainIDs.
func (a *Aggregator) FetchMultiChain(ctx context.Context, address string, chainIDs []types.ChainID) []types.BalanceRecord {
	records := make([]types.BalanceRecord, len(chainIDs))

	var wg sync.WaitGroup
	for i, chainID := range chainIDs {
		wg.Add(1)
		go func(i int, chainID types.ChainID) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logging.FromContext(ctx).WithFields(map[string]interface{}{
						"chainId": int64(chainID),
						"panic":   fmt.Sprint(r),
					}).Error("Balance fetch panicked")
					records[i] = types.NewFailedRecord(chainID, address, fmt.Sprintf("fetch panicked: %v", r), a.now())
				}
			}()
			records[i] = a.fetcher.FetchBalance(ctx, address, chainID)
		}(i, chainID)
	}
	wg.Wait()

	return records
}

// Aggregate folds records into a portfolio snapshot stamped with the current time
func (a *Aggregator) Aggregate(records []types.BalanceRecord) types.PortfolioSnapshot {
	return Aggregate(records, a.now())
}

// Aggregate folds records into a portfolio snapshot. Failed fetches and
// unparsable or negative display values contribute nothing.
func Aggregate(records []types.BalanceRecord, at time.Time) types.PortfolioSnapshot {
	total := decimal.Zero
	active := 0
	for _, r := range records {
		amount := r.DisplayAmount()
		if !amount.IsPositive() {
			continue
		}
		total = total.Add(amount)
		active++
	}

	address := ""
	if len(records) > 0 {
		address = records[0].Address
	}

	chainsCopy := make([]types.BalanceRecord, len(records))
	copy(chainsCopy, records)

	return types.PortfolioSnapshot{
		Address:       address,
		TotalChains:   len(records),
		ActiveChains:  active,
		TotalValueUSD: total,
		Chains:        chainsCopy,
		AggregatedAt:  at,
	}
}
