package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chainsage-alerts/internal/models"
	"github.com/chainsage-alerts/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	walletA = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
	walletB = "0x0000000000000000000000000000000000000001"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newSQLiteStore(t *testing.T) *SQLiteAlertStore {
	t.Helper()
	store, err := OpenSQLiteAlertStore(testContext(t), filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newAssessment(wallet string, score int, at time.Time) *models.Assessment {
	return &models.Assessment{
		Timestamp:         at,
		WalletAddress:     wallet,
		ChainID:           types.ChainEthereum,
		Risk:              "Standard portfolio risk",
		Opportunity:       "Explore DeFi yield opportunities",
		Score:             score,
		Explanation:       "Wallet has 0.5000 in assets. Standard risk profile.",
		RecommendedAction: "Consider staking or liquidity provision for passive income",
		Context: models.AssessmentContext{
			Wallet:       wallet,
			TotalValue:   decimal.RequireFromString("0.5"),
			ActiveChains: 1,
			TotalChains:  2,
			ChainDetails: []models.ChainDetail{
				{ChainID: types.ChainEthereum, ChainName: "Ethereum", Balance: "0.500000", Symbol: "ETH"},
				{ChainID: types.ChainPolygon, ChainName: "Polygon", Balance: "0", Symbol: "N/A"},
			},
		},
	}
}
