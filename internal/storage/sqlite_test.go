package storage

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chainsage-alerts/internal/config"
	"github.com/chainsage-alerts/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteAlertStore_InsertAndQuery(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := testContext(t)

	inserted := newAssessment(walletA, 45, baseTime)
	id, err := store.Insert(ctx, inserted)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	alerts, err := store.QueryRecent(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	got := alerts[0]
	assert.Equal(t, id, got.ID)
	assert.True(t, got.Timestamp.Equal(baseTime))
	assert.Equal(t, inserted.WalletAddress, got.WalletAddress)
	assert.Equal(t, inserted.ChainID, got.ChainID)
	assert.Equal(t, inserted.Risk, got.Risk)
	assert.Equal(t, inserted.Opportunity, got.Opportunity)
	assert.Equal(t, inserted.Score, got.Score)
	assert.Equal(t, inserted.Explanation, got.Explanation)
	assert.Equal(t, inserted.RecommendedAction, got.RecommendedAction)
	assert.True(t, inserted.Context.TotalValue.Equal(got.Context.TotalValue))
	assert.Equal(t, inserted.Context.ChainDetails, got.Context.ChainDetails)
	assert.Equal(t, 1, got.Context.ActiveChains)
	assert.Equal(t, 2, got.Context.TotalChains)
}

func TestSQLiteAlertStore_IDsIncrease(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := testContext(t)

	var last int64
	for i := 0; i < 5; i++ {
		id, err := store.Insert(ctx, newAssessment(walletA, 10, baseTime))
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestSQLiteAlertStore_NewestFirst(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := testContext(t)

	// Inserted out of order; two share a timestamp
	times := []time.Time{
		baseTime.Add(2 * time.Minute),
		baseTime,
		baseTime.Add(time.Minute),
		baseTime.Add(time.Minute),
	}
	ids := make([]int64, len(times))
	for i, ts := range times {
		id, err := store.Insert(ctx, newAssessment(walletA, 10, ts))
		require.NoError(t, err)
		ids[i] = id
	}

	alerts, err := store.QueryRecent(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 4)

	gotIDs := []int64{alerts[0].ID, alerts[1].ID, alerts[2].ID, alerts[3].ID}
	assert.Equal(t, []int64{ids[0], ids[3], ids[2], ids[1]}, gotIDs)

	page, err := store.QueryRecent(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)
}

func TestSQLiteAlertStore_QueryByWallet(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := testContext(t)

	for i := 0; i < 3; i++ {
		_, err := store.Insert(ctx, newAssessment(walletA, 10, baseTime.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	_, err := store.Insert(ctx, newAssessment(walletB, 10, baseTime.Add(time.Hour)))
	require.NoError(t, err)

	alerts, err := store.QueryByWallet(ctx, walletA, 2)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	for _, a := range alerts {
		assert.Equal(t, walletA, a.WalletAddress)
	}
	assert.True(t, alerts[0].Timestamp.After(alerts[1].Timestamp))

	none, err := store.QueryByWallet(ctx, "0x00000000000000000000000000000000000000ff", 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSQLiteAlertStore_Stats(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := testContext(t)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStats{}, *stats)

	for _, score := range []int{10, 39, 40, 55, 69, 70, 100} {
		_, err := store.Insert(ctx, newAssessment(walletA, score, baseTime))
		require.NoError(t, err)
	}

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStats{Total: 7, HighRisk: 2, MediumRisk: 3, LowRisk: 2}, *stats)
}

func TestSQLiteAlertStore_RejectsInvalid(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := testContext(t)

	tests := []struct {
		name       string
		assessment *models.Assessment
	}{
		{"nil", nil},
		{"no wallet", newAssessment("", 10, baseTime)},
		{"score above range", newAssessment(walletA, 101, baseTime)},
		{"negative score", newAssessment(walletA, -1, baseTime)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Insert(ctx, tt.assessment)
			assert.Error(t, err)
		})
	}
}

func TestSQLiteAlertStore_ConcurrentInserts(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := testContext(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Insert(ctx, newAssessment(walletA, 50, baseTime))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), stats.Total)
}

func TestSQLiteAlertStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "alerts.db")
	ctx := testContext(t)

	store, err := OpenSQLiteAlertStore(ctx, path)
	require.NoError(t, err)
	_, err = store.Insert(ctx, newAssessment(walletA, 25, baseTime))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenAlertStore(ctx, config.StoreConfig{Driver: DriverSQLite, SQLitePath: path})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	alerts, err := reopened.QueryRecent(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestOpenAlertStore_UnknownDriver(t *testing.T) {
	_, err := OpenAlertStore(testContext(t), config.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
}
