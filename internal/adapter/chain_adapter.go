package adapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/chainsage-alerts/internal/types"
)

// BalanceClient queries the native balance of an address on one chain
type BalanceClient interface {
	// GetNativeBalance returns the wei-denominated balance at the latest block.
	// Returns error if the address is invalid or the provider request fails
	GetNativeBalance(ctx context.Context, address string) (*big.Int, error)

	// ChainID returns the chain this client is bound to
	ChainID() types.ChainID

	// Close releases the underlying connection
	Close()
}

// Common error types for chain adapters

var (
	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrProviderUnavailable indicates the data provider is unavailable
	ErrProviderUnavailable = fmt.Errorf("data provider unavailable")

	// ErrNoClient indicates no RPC client is configured for the chain
	ErrNoClient = fmt.Errorf("no RPC client configured for chain")

	// ErrEmptyResponse indicates the provider returned no balance
	ErrEmptyResponse = fmt.Errorf("empty balance response")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Chain   types.ChainID
	Op      string // Operation that failed (e.g., "GetNativeBalance")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("chain adapter error [%d:%s]: %v (details: %+v)", e.Chain, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("chain adapter error [%d:%s]: %v", e.Chain, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(chain types.ChainID, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Chain:   chain,
		Op:      op,
		Err:     err,
		Details: details,
	}
}
