// Package types provides common type definitions for the wallet monitor.
package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ChainID is the numeric identifier of an EVM network (e.g. 1 for Ethereum mainnet)
type ChainID int64

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = 1
	// ChainOptimism represents the Optimism network
	ChainOptimism ChainID = 10
	// ChainBNB represents the BNB Chain (BSC)
	ChainBNB ChainID = 56
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = 137
	// ChainBase represents the Base network
	ChainBase ChainID = 8453
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = 42161
)

// NativeDecimals is the fixed-point precision of every supported native asset
const NativeDecimals = 18

// DisplayPrecision is the number of fractional digits kept in display values
const DisplayPrecision = 6

// ChainInfo describes a chain for presentation purposes
type ChainInfo struct {
	ID           ChainID `json:"id"`
	Name         string  `json:"name"`
	NativeSymbol string  `json:"nativeSymbol"`
	ExplorerURL  string  `json:"explorerUrl"`
}

// FetchOutcome is the result of a single balance query: either a *Balance or a FetchFailure.
// The unexported marker method keeps the set of outcomes closed.
type FetchOutcome interface {
	isFetchOutcome()
}

// Balance is a successfully fetched native balance
type Balance struct {
	RawValue     string `json:"value"`        // Integer wei amount
	DisplayValue string `json:"displayValue"` // RawValue / 10^Decimals, DisplayPrecision digits
	Symbol       string `json:"symbol"`
	Decimals     int    `json:"decimals"`
}

func (*Balance) isFetchOutcome() {}

// FetchFailure carries the diagnostic for a balance query that did not succeed
type FetchFailure struct {
	Reason string
}

func (FetchFailure) isFetchOutcome() {}

// BalanceRecord is the immutable result of one fetch attempt for one chain
type BalanceRecord struct {
	ChainID    ChainID
	Address    string
	Outcome    FetchOutcome
	ObservedAt time.Time
}

// NewBalanceRecord creates a successful record
func NewBalanceRecord(chainID ChainID, address string, balance Balance, observedAt time.Time) BalanceRecord {
	return BalanceRecord{
		ChainID:    chainID,
		Address:    address,
		Outcome:    &balance,
		ObservedAt: observedAt,
	}
}

// NewFailedRecord creates a record for a fetch that failed
func NewFailedRecord(chainID ChainID, address string, reason string, observedAt time.Time) BalanceRecord {
	if reason == "" {
		reason = "unknown error"
	}
	return BalanceRecord{
		ChainID:    chainID,
		Address:    address,
		Outcome:    FetchFailure{Reason: reason},
		ObservedAt: observedAt,
	}
}

// Balance returns the fetched balance, or nil when the fetch failed
func (r BalanceRecord) Balance() *Balance {
	if b, ok := r.Outcome.(*Balance); ok {
		return b
	}
	return nil
}

// Err returns the failure reason, or "" when the fetch succeeded
func (r BalanceRecord) Err() string {
	switch o := r.Outcome.(type) {
	case FetchFailure:
		return o.Reason
	case *Balance:
		return ""
	default:
		return "no fetch outcome"
	}
}

// OK reports whether the record holds a balance
func (r BalanceRecord) OK() bool {
	return r.Balance() != nil
}

// DisplayAmount parses the display value. Failed fetches and malformed values yield zero.
func (r BalanceRecord) DisplayAmount() decimal.Decimal {
	b := r.Balance()
	if b == nil || b.DisplayValue == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(b.DisplayValue)
	if err != nil {
		return decimal.Zero
	}
	return d
}

type balanceRecordJSON struct {
	ChainID   ChainID  `json:"chainId"`
	Address   string   `json:"address"`
	Balance   *Balance `json:"balance"`
	Error     string   `json:"error,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// MarshalJSON renders the record with a nullable balance and an optional error
func (r BalanceRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(balanceRecordJSON{
		ChainID:   r.ChainID,
		Address:   r.Address,
		Balance:   r.Balance(),
		Error:     r.Err(),
		Timestamp: r.ObservedAt.UnixMilli(),
	})
}

// PortfolioSnapshot is the aggregated point-in-time view of a wallet across monitored chains
type PortfolioSnapshot struct {
	Address       string          `json:"address"`
	TotalChains   int             `json:"totalChains"`
	ActiveChains  int             `json:"activeChains"`
	TotalValueUSD decimal.Decimal `json:"totalValueUSD"`
	Chains        []BalanceRecord `json:"chains"`
	AggregatedAt  time.Time       `json:"timestamp"`
}

// AgentStatus is a point-in-time view of the monitoring scheduler
type AgentStatus struct {
	IsRunning     bool       `json:"isRunning"`
	WalletAddress string     `json:"walletAddress"`
	IntervalMs    int64      `json:"interval"`
	LastRunAt     *time.Time `json:"lastRun"`
	RunCount      int64      `json:"runCount"`
	NextRunAt     *time.Time `json:"nextRun"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
