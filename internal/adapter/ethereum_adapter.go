package adapter

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chainsage-alerts/internal/config"
	"github.com/chainsage-alerts/internal/logging"
	"github.com/chainsage-alerts/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// balanceReader is the subset of ethclient.Client used by the adapter
type balanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// dialFunc opens a connection to an RPC endpoint
type dialFunc func(ctx context.Context, rpcURL string) (balanceReader, error)

func dialEthClient(ctx context.Context, rpcURL string) (balanceReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// EthereumAdapter implements BalanceClient for Ethereum and EVM-compatible chains
type EthereumAdapter struct {
	chainID types.ChainID
	pool    EndpointPool
	dial    dialFunc

	mu     sync.RWMutex
	client balanceReader
}

// NewEthereumAdapter creates an adapter connected to the pool's primary endpoint
func NewEthereumAdapter(chainID types.ChainID, pool EndpointPool) (*EthereumAdapter, error) {
	return newEthereumAdapter(chainID, pool, dialEthClient)
}

func newEthereumAdapter(chainID types.ChainID, pool EndpointPool, dial dialFunc) (*EthereumAdapter, error) {
	if pool == nil {
		return nil, fmt.Errorf("endpoint pool cannot be nil")
	}

	rpcURL := pool.Active()
	client, err := dial(context.Background(), rpcURL)
	if err != nil {
		return nil, NewAdapterError(chainID, "NewEthereumAdapter", err, map[string]interface{}{
			"rpcURL": redactURL(rpcURL),
		})
	}

	return &EthereumAdapter{
		chainID: chainID,
		pool:    pool,
		dial:    dial,
		client:  client,
	}, nil
}

// GetNativeBalance retrieves the native balance at the latest block.
// A rate-limit, timeout or connection error fails over to the other endpoint once.
func (a *EthereumAdapter) GetNativeBalance(ctx context.Context, address string) (*big.Int, error) {
	if !a.ValidateAddress(address) {
		return nil, NewAdapterError(a.chainID, "GetNativeBalance", ErrInvalidAddress, map[string]interface{}{
			"address": address,
		})
	}

	addr := common.HexToAddress(address)

	balance, err := a.balanceAt(ctx, addr)
	if err != nil && a.shouldFailover(err) && a.failover(ctx) {
		balance, err = a.balanceAt(ctx, addr)
	}
	if err != nil {
		return nil, NewAdapterError(a.chainID, "GetNativeBalance", err, map[string]interface{}{
			"address": address,
		})
	}
	if balance == nil {
		return nil, NewAdapterError(a.chainID, "GetNativeBalance", ErrEmptyResponse, nil)
	}

	return balance, nil
}

func (a *EthereumAdapter) balanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil {
		return nil, ErrProviderUnavailable
	}

	start := time.Now()
	balance, err := client.BalanceAt(ctx, addr, nil)
	if err != nil {
		a.pool.RecordFailure(err)
		return nil, err
	}
	a.pool.RecordSuccess(time.Since(start))
	return balance, nil
}

// failover switches the pool endpoint and redials. Reports whether a new client is in place.
func (a *EthereumAdapter) failover(ctx context.Context) bool {
	if err := a.pool.Failover(); err != nil {
		return false
	}
	rpcURL := a.pool.Active()
	client, err := a.dial(ctx, rpcURL)
	if err != nil {
		logging.WithFields(map[string]interface{}{
			"chainId": int64(a.chainID),
			"rpcURL":  redactURL(rpcURL),
		}).WithError(err).Warn("Failover dial failed")
		return false
	}

	a.mu.Lock()
	old := a.client
	a.client = client
	a.mu.Unlock()
	if old != nil {
		old.Close()
	}

	logging.WithFields(map[string]interface{}{
		"chainId": int64(a.chainID),
		"rpcURL":  redactURL(rpcURL),
	}).Info("Switched RPC endpoint")
	return true
}

// ValidateAddress checks if address format is valid for EVM chains
func (a *EthereumAdapter) ValidateAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// ChainID returns the chain identifier
func (a *EthereumAdapter) ChainID() types.ChainID {
	return a.chainID
}

// Health returns the endpoint counters for this chain
func (a *EthereumAdapter) Health() *PoolHealth {
	return a.pool.Health()
}

// shouldFailover determines if an error warrants failing over to another provider
func (a *EthereumAdapter) shouldFailover(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") {
		return true
	}

	return false
}

// Close closes the Ethereum client connection
func (a *EthereumAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
}

// NewBalanceClients builds one adapter per monitored chain.
// Chains without an endpoint are skipped; their fetches fail with ErrNoClient.
func NewBalanceClients(cfg config.ChainsConfig) (map[types.ChainID]BalanceClient, error) {
	clients := make(map[types.ChainID]BalanceClient, len(cfg.Monitored))
	for _, id := range cfg.Monitored {
		primary, secondary := cfg.RPCEndpoints(id)
		if primary == "" {
			logging.WithField("chainId", int64(id)).Warn("No RPC endpoint configured, chain will report fetch errors")
			continue
		}

		pool, err := NewRPCPool(primary, secondary)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("failed to create endpoint pool for chain %d: %w", id, err)
		}

		ethAdapter, err := NewEthereumAdapter(id, pool)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("failed to create adapter for chain %d: %w", id, err)
		}
		clients[id] = ethAdapter
	}
	return clients, nil
}

// redactURL strips the path of an RPC URL, which usually carries the API key
func redactURL(rpcURL string) string {
	if i := strings.Index(rpcURL, "://"); i >= 0 {
		if j := strings.Index(rpcURL[i+3:], "/"); j >= 0 {
			return rpcURL[:i+3+j] + "/***"
		}
	}
	return rpcURL
}
