package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/chainsage-alerts/internal/config"
	"github.com/chainsage-alerts/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"

// newRPCServer serves eth_getBalance with the given hex result
func newRPCServer(t *testing.T, result string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if req.Method != "eth_getBalance" {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":"` + result + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRateLimitedServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEthereumAdapter_GetNativeBalance(t *testing.T) {
	srv := newRPCServer(t, "0xde0b6b3a7640000", nil) // 1 ether

	pool, err := NewRPCPool(srv.URL, "")
	require.NoError(t, err)
	a, err := NewEthereumAdapter(types.ChainEthereum, pool)
	require.NoError(t, err)
	defer a.Close()

	balance, err := a.GetNativeBalance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", balance.String())
	assert.Equal(t, int64(1), a.Health().ActiveEndpoint().Calls)
}

func TestEthereumAdapter_InvalidAddress(t *testing.T) {
	srv := newRPCServer(t, "0x0", nil)
	pool, _ := NewRPCPool(srv.URL, "")
	a, err := NewEthereumAdapter(types.ChainPolygon, pool)
	require.NoError(t, err)

	_, err = a.GetNativeBalance(context.Background(), "0x1234")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	var adapterErr *AdapterError
	require.True(t, errors.As(err, &adapterErr))
	assert.Equal(t, types.ChainPolygon, adapterErr.Chain)
}

func TestEthereumAdapter_FailoverOnRateLimit(t *testing.T) {
	var primaryCalls, secondaryCalls int32
	primary := newRateLimitedServer(t, &primaryCalls)
	secondary := newRPCServer(t, "0x2a", &secondaryCalls)

	pool, err := NewRPCPool(primary.URL, secondary.URL)
	require.NoError(t, err)
	a, err := NewEthereumAdapter(types.ChainBase, pool)
	require.NoError(t, err)
	defer a.Close()

	balance, err := a.GetNativeBalance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance.Int64())
	assert.Equal(t, int32(1), atomic.LoadInt32(&primaryCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&secondaryCalls))

	assert.Equal(t, secondary.URL, pool.Active())
	health := a.Health()
	assert.Equal(t, int64(1), health.Endpoints[0].Failures)
	assert.Equal(t, int64(1), health.Endpoints[1].Calls)
}

func TestEthereumAdapter_NoSecondaryReturnsError(t *testing.T) {
	var calls int32
	primary := newRateLimitedServer(t, &calls)

	pool, _ := NewRPCPool(primary.URL, "")
	a, err := NewEthereumAdapter(types.ChainArbitrum, pool)
	require.NoError(t, err)

	_, err = a.GetNativeBalance(context.Background(), testAddress)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, pool.Health().ActiveEndpoint().ConsecutiveFails)
}

type stubReader struct {
	balance *big.Int
	err     error
	closed  bool
}

func (s *stubReader) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return s.balance, s.err
}

func (s *stubReader) Close() { s.closed = true }

func TestEthereumAdapter_NoFailoverOnRPCError(t *testing.T) {
	primary := &stubReader{err: errors.New("execution reverted")}
	dials := 0
	dial := func(ctx context.Context, url string) (balanceReader, error) {
		dials++
		return primary, nil
	}

	pool, _ := NewRPCPool("https://primary", "https://secondary")
	a, err := newEthereumAdapter(types.ChainOptimism, pool, dial)
	require.NoError(t, err)

	_, err = a.GetNativeBalance(context.Background(), testAddress)
	require.Error(t, err)
	assert.Equal(t, 1, dials)

	a.Close()
	assert.True(t, primary.closed)

	_, err = a.GetNativeBalance(context.Background(), testAddress)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestEthereumAdapter_ShouldFailover(t *testing.T) {
	a := &EthereumAdapter{}
	tests := []struct {
		err  string
		want bool
	}{
		{"429 Too Many Requests", true},
		{"context deadline exceeded", true},
		{"dial tcp: connection refused", true},
		{"dial tcp: lookup rpc.example: no such host", true},
		{"execution reverted", false},
	}
	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			assert.Equal(t, tt.want, a.shouldFailover(errors.New(tt.err)))
		})
	}
	assert.False(t, a.shouldFailover(nil))
}

func TestNewBalanceClients(t *testing.T) {
	srv := newRPCServer(t, "0x0", nil)

	clients, err := NewBalanceClients(config.ChainsConfig{
		Monitored: []types.ChainID{types.ChainEthereum, types.ChainPolygon},
		Chains: map[types.ChainID]config.ChainConfig{
			types.ChainEthereum: {RPCPrimary: srv.URL},
		},
	})
	require.NoError(t, err)
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	require.Len(t, clients, 1)
	assert.Equal(t, types.ChainEthereum, clients[types.ChainEthereum].ChainID())
	_, ok := clients[types.ChainPolygon]
	assert.False(t, ok)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://1.rpc.thirdweb.com/***", redactURL("https://1.rpc.thirdweb.com/secret"))
	assert.Equal(t, "http://127.0.0.1:8545", redactURL("http://127.0.0.1:8545"))
}
