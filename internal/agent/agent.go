// Package agent schedules monitoring pipeline passes for one wallet.
//
// A pass fetches every monitored chain, aggregates the balances, scores the
// snapshot and persists the resulting assessment. Start runs a pass
// immediately and then one per interval tick until Stop. Ticks do not wait
// for earlier passes to finish unless AllowOverlap is false.
package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainsage-alerts/internal/chains"
	apperrors "github.com/chainsage-alerts/internal/errors"
	"github.com/chainsage-alerts/internal/logging"
	"github.com/chainsage-alerts/internal/metrics"
	"github.com/chainsage-alerts/internal/models"
	"github.com/chainsage-alerts/internal/types"
	"github.com/google/uuid"
)

// MultiChainAggregator fetches balances across chains and folds them into a snapshot
type MultiChainAggregator interface {
	FetchMultiChain(ctx context.Context, address string, chainIDs []types.ChainID) []types.BalanceRecord
	Aggregate(records []types.BalanceRecord) types.PortfolioSnapshot
}

// RiskScorer derives an assessment from a snapshot
type RiskScorer interface {
	Score(snapshot types.PortfolioSnapshot) *models.Assessment
}

// AlertStore persists assessments
type AlertStore interface {
	Insert(ctx context.Context, assessment *models.Assessment) (int64, error)
}

// LatestCache keeps the most recent assessment per wallet
type LatestCache interface {
	SetLatest(ctx context.Context, assessment *models.Assessment) error
}

// Publisher announces persisted assessments to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, assessment *models.Assessment) error
}

// Config holds scheduler settings
type Config struct {
	WalletAddress string
	Interval      time.Duration
	AllowOverlap  bool
}

// Agent owns the run lifecycle of the monitoring pipeline
type Agent struct {
	cfg        Config
	registry   *chains.Registry
	aggregator MultiChainAggregator
	scorer     RiskScorer
	store      AlertStore
	cache      LatestCache
	publisher  Publisher
	logger     *logging.Logger
	now        func() time.Time

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	lastRunAt *time.Time
	runCount  int64

	passSeq       atomic.Int64
	inFlight      atomic.Int32
	activeTickers atomic.Int32
	passes        sync.WaitGroup
}

// NewAgent creates a stopped agent
func NewAgent(cfg Config, registry *chains.Registry, aggregator MultiChainAggregator, scorer RiskScorer, store AlertStore) (*Agent, error) {
	if cfg.WalletAddress == "" {
		return nil, fmt.Errorf("wallet address is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	if registry == nil || aggregator == nil || scorer == nil || store == nil {
		return nil, fmt.Errorf("registry, aggregator, scorer and store are required")
	}

	return &Agent{
		cfg:        cfg,
		registry:   registry,
		aggregator: aggregator,
		scorer:     scorer,
		store:      store,
		logger:     logging.GetGlobalLogger().WithField("component", "agent"),
		now:        time.Now,
	}, nil
}

// SetCache attaches an optional latest-assessment cache
func (a *Agent) SetCache(cache LatestCache) {
	a.cache = cache
}

// SetPublisher attaches an optional assessment publisher
func (a *Agent) SetPublisher(publisher Publisher) {
	a.publisher = publisher
}

// SetLogger replaces the agent logger
func (a *Agent) SetLogger(logger *logging.Logger) {
	a.logger = logger
}

// Start runs one pass in the background and arms the interval ticker.
// Returns false without side effects when the agent is already running.
func (a *Agent) Start() bool {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		a.logger.Warn("Agent is already running")
		return false
	}
	a.running = true
	stop := make(chan struct{})
	a.stopCh = stop
	a.mu.Unlock()

	a.logger.WithFields(map[string]interface{}{
		"wallet":     a.cfg.WalletAddress,
		"intervalMs": a.cfg.Interval.Milliseconds(),
		"chains":     a.registry.MonitoredChains(),
	}).Info("Agent started")

	a.launch(stop)
	a.activeTickers.Add(1)
	go a.tickLoop(stop)
	return true
}

// Stop cancels the ticker. Passes already in flight run to completion.
// Returns false when the agent was not running.
func (a *Agent) Stop() bool {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		a.logger.Warn("Agent is not running")
		return false
	}
	close(a.stopCh)
	a.stopCh = nil
	a.running = false
	a.mu.Unlock()

	a.logger.Info("Agent stopped")
	return true
}

// Wait blocks until every launched pass has finished or ctx is done
func (a *Agent) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.passes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the scheduler state
func (a *Agent) Status() types.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := types.AgentStatus{
		IsRunning:     a.running,
		WalletAddress: a.cfg.WalletAddress,
		IntervalMs:    a.cfg.Interval.Milliseconds(),
		RunCount:      a.runCount,
	}
	if a.lastRunAt != nil {
		last := *a.lastRunAt
		status.LastRunAt = &last
		if a.running {
			next := last.Add(a.cfg.Interval)
			status.NextRunAt = &next
		}
	}
	return status
}

func (a *Agent) tickLoop(stop chan struct{}) {
	defer a.activeTickers.Add(-1)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.launch(stop)
		}
	}
}

// launch starts a pass without waiting for it. Nothing is launched once the
// run that owns stop has ended.
func (a *Agent) launch(stop chan struct{}) {
	a.mu.Lock()
	if !a.running || a.stopCh != stop {
		a.mu.Unlock()
		return
	}
	if !a.cfg.AllowOverlap && !a.inFlight.CompareAndSwap(0, 1) {
		a.mu.Unlock()
		a.logger.Debug("Previous pass still running, skipping tick")
		return
	}
	a.passes.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.passes.Done()
		if !a.cfg.AllowOverlap {
			defer a.inFlight.Store(0)
		}
		defer func() {
			if r := recover(); r != nil {
				a.logger.WithField("panic", fmt.Sprint(r)).Error("Pipeline pass panicked")
			}
		}()

		// Failures are logged inside RunOnce
		_, _ = a.RunOnce(context.Background())
	}()
}

// RunOnce executes one pipeline pass and returns the persisted assessment.
// A failure aborts the pass and is returned; the scheduler state is untouched.
func (a *Agent) RunOnce(ctx context.Context) (*models.Assessment, error) {
	seq := a.passSeq.Add(1)
	logger := a.logger.WithFields(map[string]interface{}{
		"pass":   seq,
		"passId": uuid.NewString(),
		"wallet": a.cfg.WalletAddress,
	})
	ctx = logging.WithLogger(ctx, logger)
	started := a.now()

	fail := func(stage string, err error) (*models.Assessment, error) {
		metrics.RecordPassFailure(a.now().Sub(started))
		pipelineErr := apperrors.NewPipelineError(seq, stage, err)
		logger.WithField("stage", stage).WithError(err).Error("Pipeline pass failed")
		return nil, pipelineErr
	}

	chainIDs := a.registry.MonitoredChains()
	if len(chainIDs) == 0 {
		return fail("fetch", fmt.Errorf("no chains to monitor"))
	}

	records := a.aggregator.FetchMultiChain(ctx, a.cfg.WalletAddress, chainIDs)
	snapshot := a.aggregator.Aggregate(records)

	assessment, err := a.score(snapshot)
	if err != nil {
		return fail("score", err)
	}
	assessment.WalletAddress = a.cfg.WalletAddress
	assessment.ChainID = chainIDs[0]

	id, err := a.store.Insert(ctx, assessment)
	if err != nil {
		return fail("persist", err)
	}
	assessment.ID = id

	finished := a.now()
	a.mu.Lock()
	a.lastRunAt = &finished
	a.runCount++
	a.mu.Unlock()

	a.fanOut(ctx, logger, assessment)

	totalValue, _ := snapshot.TotalValueUSD.Float64()
	metrics.RecordPassSuccess(finished.Sub(started), assessment.Score, totalValue, finished)

	logger.WithFields(map[string]interface{}{
		"alertId":      id,
		"score":        assessment.Score,
		"risk":         assessment.Risk,
		"totalValue":   snapshot.TotalValueUSD.String(),
		"activeChains": snapshot.ActiveChains,
		"totalChains":  snapshot.TotalChains,
		"durationMs":   finished.Sub(started).Milliseconds(),
	}).Info("Pipeline pass completed")

	return assessment, nil
}

// score runs the scorer, turning a panic into an error
func (a *Agent) score(snapshot types.PortfolioSnapshot) (assessment *models.Assessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scorer panicked: %v", r)
		}
	}()
	assessment = a.scorer.Score(snapshot)
	if assessment == nil {
		return nil, fmt.Errorf("scorer returned no assessment")
	}
	return assessment, nil
}

// fanOut sends the persisted assessment to the cache and publisher. Failures are only logged.
func (a *Agent) fanOut(ctx context.Context, logger *logging.Logger, assessment *models.Assessment) {
	if a.cache != nil {
		if err := a.cache.SetLatest(ctx, assessment); err != nil {
			logger.WithError(err).Warn("Failed to cache latest assessment")
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, assessment); err != nil {
			logger.WithError(err).Warn("Failed to publish assessment")
		}
	}
}
