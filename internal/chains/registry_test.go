package chains

import (
	"testing"

	"github.com/chainsage-alerts/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	tests := []struct {
		id     types.ChainID
		name   string
		symbol string
	}{
		{types.ChainEthereum, "Ethereum", "ETH"},
		{types.ChainPolygon, "Polygon", "MATIC"},
		{types.ChainBNB, "BSC", "BNB"},
		{types.ChainArbitrum, "Arbitrum", "ETH"},
		{types.ChainOptimism, "Optimism", "ETH"},
		{types.ChainBase, "Base", "ETH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Info(tt.id)
			assert.Equal(t, tt.id, info.ID)
			assert.Equal(t, tt.name, info.Name)
			assert.Equal(t, tt.symbol, info.NativeSymbol)
			assert.NotEmpty(t, info.ExplorerURL)
			assert.True(t, Known(tt.id))
		})
	}
}

func TestInfo_UnknownChain(t *testing.T) {
	info := Info(324)
	assert.Equal(t, types.ChainID(324), info.ID)
	assert.Equal(t, "Chain 324", info.Name)
	assert.Equal(t, "UNKNOWN", info.NativeSymbol)
	assert.Empty(t, info.ExplorerURL)
	assert.False(t, Known(324))
}

func TestRegistry_MonitoredChains(t *testing.T) {
	t.Run("default list", func(t *testing.T) {
		r := NewRegistry(nil)
		assert.Equal(t, []types.ChainID{1, 137}, r.MonitoredChains())
		assert.Equal(t, types.ChainEthereum, r.Primary())
	})

	t.Run("configured order is kept", func(t *testing.T) {
		r := NewRegistry([]types.ChainID{8453, 1, 42161})
		assert.Equal(t, []types.ChainID{8453, 1, 42161}, r.MonitoredChains())
		assert.Equal(t, types.ChainBase, r.Primary())
	})

	t.Run("callers cannot mutate the list", func(t *testing.T) {
		in := []types.ChainID{10, 56}
		r := NewRegistry(in)
		in[0] = 1

		out := r.MonitoredChains()
		out[1] = 1
		assert.Equal(t, []types.ChainID{10, 56}, r.MonitoredChains())
	})
}
