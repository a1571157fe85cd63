// Package ratelimit paces outgoing RPC calls per chain so public and
// free-tier endpoints are not hammered into returning 429s.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chainsage-alerts/internal/types"
	"golang.org/x/time/rate"
)

// ErrContextCancelled is returned when the context ends while waiting for budget.
var ErrContextCancelled = errors.New("context cancelled while waiting for budget")

// ChainBudget hands out RPC call slots per chain. Each chain has its own
// token bucket of CallsPerSecond with a burst of the same size.
type ChainBudget struct {
	callsPerSecond int

	mu       sync.Mutex
	limiters map[types.ChainID]*rate.Limiter
	stats    map[types.ChainID]*BudgetStats
}

// BudgetStats counts how a chain's budget was used
type BudgetStats struct {
	Granted   int64 `json:"granted"`
	Delayed   int64 `json:"delayed"`   // granted after waiting
	Cancelled int64 `json:"cancelled"` // gave up because the context ended
}

// NewChainBudget creates a budget. Returns nil when callsPerSecond is not positive, which disables pacing.
func NewChainBudget(callsPerSecond int) *ChainBudget {
	if callsPerSecond <= 0 {
		return nil
	}
	return &ChainBudget{
		callsPerSecond: callsPerSecond,
		limiters:       make(map[types.ChainID]*rate.Limiter),
		stats:          make(map[types.ChainID]*BudgetStats),
	}
}

func (b *ChainBudget) limiter(chainID types.ChainID) (*rate.Limiter, *BudgetStats) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.limiters[chainID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(b.callsPerSecond), b.callsPerSecond)
		b.limiters[chainID] = l
		b.stats[chainID] = &BudgetStats{}
	}
	return l, b.stats[chainID]
}

// Wait blocks until chainID has budget for one call. A nil budget never blocks.
func (b *ChainBudget) Wait(ctx context.Context, chainID types.ChainID) error {
	if b == nil {
		return nil
	}
	l, stats := b.limiter(chainID)

	if l.Allow() {
		b.mu.Lock()
		stats.Granted++
		b.mu.Unlock()
		return nil
	}

	if err := l.Wait(ctx); err != nil {
		b.mu.Lock()
		stats.Cancelled++
		b.mu.Unlock()
		return fmt.Errorf("chain %d: %w: %v", chainID, ErrContextCancelled, err)
	}

	b.mu.Lock()
	stats.Granted++
	stats.Delayed++
	b.mu.Unlock()
	return nil
}

// Stats returns a copy of the per-chain counters
func (b *ChainBudget) Stats() map[types.ChainID]BudgetStats {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[types.ChainID]BudgetStats, len(b.stats))
	for id, s := range b.stats {
		out[id] = *s
	}
	return out
}
