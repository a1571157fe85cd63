package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chainsage-alerts/internal/chains"
	apperrors "github.com/chainsage-alerts/internal/errors"
	"github.com/chainsage-alerts/internal/logging"
	"github.com/chainsage-alerts/internal/models"
	"github.com/chainsage-alerts/internal/service"
	"github.com/chainsage-alerts/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"

// memoryStore is an in-memory AlertStore
type memoryStore struct {
	mu      sync.Mutex
	alerts  []*models.Assessment
	fail    error
	inserts int32
}

func (m *memoryStore) Insert(ctx context.Context, a *models.Assessment) (int64, error) {
	atomic.AddInt32(&m.inserts, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	m.alerts = append(m.alerts, a)
	return int64(len(m.alerts)), nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

func (m *memoryStore) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// staticFetcher returns fixed display values per chain, optionally after a delay
type staticFetcher struct {
	values map[types.ChainID]string
	delay  time.Duration
	calls  int32
}

func (f *staticFetcher) FetchBalance(ctx context.Context, address string, chainID types.ChainID) types.BalanceRecord {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	v, ok := f.values[chainID]
	if !ok {
		return types.NewFailedRecord(chainID, address, "connection refused", time.Now())
	}
	return types.NewBalanceRecord(chainID, address, types.Balance{
		RawValue: "0", DisplayValue: v, Symbol: chains.Info(chainID).NativeSymbol, Decimals: 18,
	}, time.Now())
}

type panicScorer struct{}

func (panicScorer) Score(types.PortfolioSnapshot) *models.Assessment { panic("rule table corrupted") }

type recordingCache struct {
	mu     sync.Mutex
	latest *models.Assessment
	err    error
}

func (c *recordingCache) SetLatest(ctx context.Context, a *models.Assessment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = a
	return c.err
}

type recordingPublisher struct {
	published int32
}

func (p *recordingPublisher) Publish(ctx context.Context, a *models.Assessment) error {
	atomic.AddInt32(&p.published, 1)
	return errors.New("broker unavailable")
}

func newTestAgent(t *testing.T, interval time.Duration, fetcher service.Fetcher, store AlertStore) *Agent {
	t.Helper()
	registry := chains.NewRegistry([]types.ChainID{types.ChainPolygon, types.ChainEthereum})
	a, err := NewAgent(
		Config{WalletAddress: testWallet, Interval: interval, AllowOverlap: true},
		registry,
		service.NewAggregator(fetcher),
		service.NewScorer(registry),
		store,
	)
	require.NoError(t, err)
	a.SetLogger(logging.Nop())
	return a
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestNewAgent_Validation(t *testing.T) {
	registry := chains.NewRegistry(nil)
	agg := service.NewAggregator(&staticFetcher{})
	scorer := service.NewScorer(registry)

	_, err := NewAgent(Config{Interval: time.Second}, registry, agg, scorer, &memoryStore{})
	assert.Error(t, err)

	_, err = NewAgent(Config{WalletAddress: testWallet}, registry, agg, scorer, &memoryStore{})
	assert.Error(t, err)

	_, err = NewAgent(Config{WalletAddress: testWallet, Interval: time.Second}, registry, agg, scorer, nil)
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	store := &memoryStore{}
	fetcher := &staticFetcher{values: map[types.ChainID]string{
		types.ChainPolygon:  "3.000000",
		types.ChainEthereum: "2.000000",
	}}
	a := newTestAgent(t, time.Hour, fetcher, store)

	assessment, err := a.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), assessment.ID)
	assert.Equal(t, types.ChainPolygon, assessment.ChainID, "tagged with the first monitored chain")
	assert.Equal(t, testWallet, assessment.WalletAddress)
	assert.Equal(t, 50, assessment.Score)

	status := a.Status()
	assert.False(t, status.IsRunning)
	assert.Equal(t, int64(1), status.RunCount)
	require.NotNil(t, status.LastRunAt)
	assert.Nil(t, status.NextRunAt, "next run is only reported while running")
}

func TestRunOnce_PersistFailure(t *testing.T) {
	store := &memoryStore{fail: errors.New("database is locked")}
	a := newTestAgent(t, time.Hour, &staticFetcher{}, store)

	_, err := a.RunOnce(context.Background())
	require.Error(t, err)

	var catErr *apperrors.CategorizedError
	require.True(t, errors.As(err, &catErr))
	assert.Equal(t, "persist", catErr.Details["stage"])
	assert.Equal(t, int64(1), catErr.Details["pass"])

	status := a.Status()
	assert.Equal(t, int64(0), status.RunCount)
	assert.Nil(t, status.LastRunAt)
}

func TestRunOnce_ScorerPanicIsSurfaced(t *testing.T) {
	registry := chains.NewRegistry(nil)
	store := &memoryStore{}
	a, err := NewAgent(
		Config{WalletAddress: testWallet, Interval: time.Hour},
		registry,
		service.NewAggregator(&staticFetcher{}),
		panicScorer{},
		store,
	)
	require.NoError(t, err)
	a.SetLogger(logging.Nop())

	_, err = a.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule table corrupted")
	assert.Equal(t, 0, store.count())
}

func TestRunOnce_CacheAndPublisherFailuresDoNotFailPass(t *testing.T) {
	store := &memoryStore{}
	cache := &recordingCache{err: errors.New("redis down")}
	pub := &recordingPublisher{}
	a := newTestAgent(t, time.Hour, &staticFetcher{values: map[types.ChainID]string{types.ChainPolygon: "0.5"}}, store)
	a.SetCache(cache)
	a.SetPublisher(pub)

	assessment, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Same(t, assessment, cache.latest)
	assert.Equal(t, int32(1), atomic.LoadInt32(&pub.published))
}

func TestStart_RunsImmediately(t *testing.T) {
	store := &memoryStore{}
	a := newTestAgent(t, time.Hour, &staticFetcher{}, store)

	require.True(t, a.Start())
	defer a.Stop()

	waitFor(t, func() bool { return a.Status().RunCount == 1 })
	status := a.Status()
	assert.True(t, status.IsRunning)
	require.NotNil(t, status.NextRunAt)
	assert.Equal(t, status.LastRunAt.Add(time.Hour), *status.NextRunAt)
}

func TestStart_Twice(t *testing.T) {
	store := &memoryStore{}
	a := newTestAgent(t, time.Hour, &staticFetcher{}, store)

	require.True(t, a.Start())
	assert.False(t, a.Start())
	defer a.Stop()

	waitFor(t, func() bool { return a.Status().RunCount == 1 })
	require.NoError(t, a.Wait(context.Background()))

	assert.Equal(t, int32(1), a.activeTickers.Load())
	assert.Equal(t, int64(1), a.Status().RunCount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.inserts))
}

func TestStop(t *testing.T) {
	a := newTestAgent(t, time.Hour, &staticFetcher{}, &memoryStore{})

	assert.False(t, a.Stop(), "stopping a stopped agent is a no-op")

	require.True(t, a.Start())
	require.True(t, a.Stop())
	waitFor(t, func() bool { return a.activeTickers.Load() == 0 })
	require.NoError(t, a.Wait(context.Background()))

	status := a.Status()
	assert.False(t, status.IsRunning)
	assert.Nil(t, status.NextRunAt)

	// Restart after stop is allowed
	require.True(t, a.Start())
	a.Stop()
}

func TestTicks_ContinueAfterFailedPass(t *testing.T) {
	store := &memoryStore{fail: errors.New("disk full")}
	a := newTestAgent(t, 20*time.Millisecond, &staticFetcher{}, store)

	require.True(t, a.Start())
	defer a.Stop()

	waitFor(t, func() bool { return atomic.LoadInt32(&store.inserts) >= 2 })
	assert.True(t, a.Status().IsRunning)
	assert.Equal(t, int64(0), a.Status().RunCount)

	store.setFail(nil)
	waitFor(t, func() bool { return a.Status().RunCount >= 1 })
}

func TestTicks_OverlapAllowed(t *testing.T) {
	fetcher := &staticFetcher{delay: 120 * time.Millisecond}
	store := &memoryStore{}
	a := newTestAgent(t, 20*time.Millisecond, fetcher, store)

	require.True(t, a.Start())
	time.Sleep(100 * time.Millisecond)
	a.Stop()

	// Several passes started while the first was still fetching
	assert.Greater(t, atomic.LoadInt32(&fetcher.calls), int32(2))
	require.NoError(t, a.Wait(context.Background()))
}

func TestTicks_OverlapDisabled(t *testing.T) {
	fetcher := &staticFetcher{delay: 120 * time.Millisecond}
	store := &memoryStore{}
	a := newTestAgent(t, 20*time.Millisecond, fetcher, store)
	a.cfg.AllowOverlap = false

	require.True(t, a.Start())
	time.Sleep(100 * time.Millisecond)
	a.Stop()

	// One pass, two chains fetched
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetcher.calls))
	require.NoError(t, a.Wait(context.Background()))
	assert.Equal(t, 1, store.count())
}

func TestWait_Timeout(t *testing.T) {
	a := newTestAgent(t, time.Hour, &staticFetcher{delay: 200 * time.Millisecond}, &memoryStore{})
	require.True(t, a.Start())
	a.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Wait(ctx), context.DeadlineExceeded)
	require.NoError(t, a.Wait(context.Background()))
}

func TestStop_NoPassLaunchedAfterStopReturns(t *testing.T) {
	store := &memoryStore{}
	a := newTestAgent(t, 2*time.Millisecond, &staticFetcher{values: map[types.ChainID]string{types.ChainEthereum: "1"}}, store)

	require.True(t, a.Start())
	waitFor(t, func() bool { return atomic.LoadInt32(&store.inserts) >= 3 })
	require.True(t, a.Stop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Wait(ctx))
	settled := atomic.LoadInt32(&store.inserts)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, atomic.LoadInt32(&store.inserts))
	assert.Equal(t, int32(0), a.activeTickers.Load())
}

func TestLaunch_IgnoresStaleRun(t *testing.T) {
	store := &memoryStore{}
	a := newTestAgent(t, time.Hour, &staticFetcher{}, store)

	require.True(t, a.Start())
	waitFor(t, func() bool { return store.count() == 1 })

	// A tick from a previous run must not start a pass in the current one
	a.launch(make(chan struct{}))
	require.True(t, a.Stop())
	a.launch(nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Wait(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.inserts))
}
