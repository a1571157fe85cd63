// Package chains holds the static chain metadata and the set of monitored chains.
package chains

import (
	"fmt"

	"github.com/chainsage-alerts/internal/types"
)

var knownChains = map[types.ChainID]types.ChainInfo{
	types.ChainEthereum: {ID: types.ChainEthereum, Name: "Ethereum", NativeSymbol: "ETH", ExplorerURL: "https://etherscan.io"},
	types.ChainPolygon:  {ID: types.ChainPolygon, Name: "Polygon", NativeSymbol: "MATIC", ExplorerURL: "https://polygonscan.com"},
	types.ChainBNB:      {ID: types.ChainBNB, Name: "BSC", NativeSymbol: "BNB", ExplorerURL: "https://bscscan.com"},
	types.ChainArbitrum: {ID: types.ChainArbitrum, Name: "Arbitrum", NativeSymbol: "ETH", ExplorerURL: "https://arbiscan.io"},
	types.ChainOptimism: {ID: types.ChainOptimism, Name: "Optimism", NativeSymbol: "ETH", ExplorerURL: "https://optimistic.etherscan.io"},
	types.ChainBase:     {ID: types.ChainBase, Name: "Base", NativeSymbol: "ETH", ExplorerURL: "https://basescan.org"},
}

// DefaultMonitored is used when no chain list is configured
var DefaultMonitored = []types.ChainID{types.ChainEthereum, types.ChainPolygon}

// Registry resolves chain metadata and exposes the monitored chain list.
// The first monitored chain is the primary chain used to tag assessments.
type Registry struct {
	monitored []types.ChainID
}

// NewRegistry creates a registry for the given chains, falling back to DefaultMonitored
func NewRegistry(monitored []types.ChainID) *Registry {
	if len(monitored) == 0 {
		monitored = DefaultMonitored
	}
	ids := make([]types.ChainID, len(monitored))
	copy(ids, monitored)
	return &Registry{monitored: ids}
}

// Info returns metadata for a chain. Unknown ids get a placeholder.
func (r *Registry) Info(id types.ChainID) types.ChainInfo {
	return Info(id)
}

// MonitoredChains returns a copy of the monitored chain ids in configured order
func (r *Registry) MonitoredChains() []types.ChainID {
	ids := make([]types.ChainID, len(r.monitored))
	copy(ids, r.monitored)
	return ids
}

// Primary returns the first monitored chain
func (r *Registry) Primary() types.ChainID {
	return r.monitored[0]
}

// Info returns metadata for a chain id without a registry
func Info(id types.ChainID) types.ChainInfo {
	if info, ok := knownChains[id]; ok {
		return info
	}
	return types.ChainInfo{
		ID:           id,
		Name:         fmt.Sprintf("Chain %d", id),
		NativeSymbol: "UNKNOWN",
	}
}

// Known reports whether the chain has static metadata
func Known(id types.ChainID) bool {
	_, ok := knownChains[id]
	return ok
}
