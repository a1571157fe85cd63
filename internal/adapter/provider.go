package adapter

import (
	"fmt"
	"sync"
	"time"
)

// defaultUnhealthyAfter is the consecutive failure count that marks an endpoint unhealthy
const defaultUnhealthyAfter = 5

// EndpointPool holds the RPC endpoints of one chain and records how each performs
type EndpointPool interface {
	// Primary returns the first configured endpoint
	Primary() string

	// Active returns the endpoint calls currently go to
	Active() string

	// Failover makes the other endpoint active.
	// Returns error if only one endpoint is configured
	Failover() error

	// RecordSuccess counts a completed call against the active endpoint
	RecordSuccess(latency time.Duration)

	// RecordFailure counts a failed call against the active endpoint
	RecordFailure(err error)

	// Health returns a copy of the per-endpoint counters
	Health() *PoolHealth
}

// EndpointHealth holds the call counters of one endpoint
type EndpointHealth struct {
	URL              string        `json:"url"`
	Calls            int64         `json:"calls"`
	Failures         int64         `json:"failures"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	AverageLatency   time.Duration `json:"averageLatency"`
	LastError        string        `json:"lastError,omitempty"`
	LastErrorAt      time.Time     `json:"lastErrorAt,omitempty"`
}

// Healthy reports whether the endpoint is below the failure streak limit
func (h EndpointHealth) Healthy(limit int) bool {
	return h.ConsecutiveFails < limit
}

// PoolHealth describes every endpoint of a pool
type PoolHealth struct {
	Active    int              `json:"active"`
	Endpoints []EndpointHealth `json:"endpoints"`
	Healthy   bool             `json:"healthy"`
}

// ActiveEndpoint returns the counters of the endpoint in use
func (h *PoolHealth) ActiveEndpoint() EndpointHealth {
	return h.Endpoints[h.Active]
}

type endpointCounters struct {
	url          string
	calls        int64
	failures     int64
	streak       int
	totalLatency time.Duration
	lastError    string
	lastErrorAt  time.Time
}

// RPCPool is an EndpointPool with a primary and an optional fallback endpoint
type RPCPool struct {
	mu             sync.RWMutex
	endpoints      []*endpointCounters
	active         int
	unhealthyAfter int
	now            func() time.Time
}

// NewRPCPool creates a pool. The fallback may be empty.
func NewRPCPool(primary, fallback string) (*RPCPool, error) {
	if primary == "" {
		return nil, fmt.Errorf("primary RPC endpoint is required")
	}

	endpoints := []*endpointCounters{{url: primary}}
	if fallback != "" && fallback != primary {
		endpoints = append(endpoints, &endpointCounters{url: fallback})
	}

	return &RPCPool{
		endpoints:      endpoints,
		unhealthyAfter: defaultUnhealthyAfter,
		now:            time.Now,
	}, nil
}

func (p *RPCPool) Primary() string {
	return p.endpoints[0].url
}

func (p *RPCPool) Active() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints[p.active].url
}

func (p *RPCPool) Failover() error {
	if len(p.endpoints) < 2 {
		return fmt.Errorf("no fallback RPC endpoint configured")
	}

	p.mu.Lock()
	p.active = (p.active + 1) % len(p.endpoints)
	p.mu.Unlock()
	return nil
}

func (p *RPCPool) RecordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.endpoints[p.active]
	e.calls++
	e.totalLatency += latency
	e.streak = 0
}

func (p *RPCPool) RecordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.endpoints[p.active]
	e.calls++
	e.failures++
	e.streak++
	e.lastErrorAt = p.now()
	if err != nil {
		e.lastError = err.Error()
	}
}

func (p *RPCPool) Health() *PoolHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	health := &PoolHealth{
		Active:    p.active,
		Endpoints: make([]EndpointHealth, len(p.endpoints)),
	}
	for i, e := range p.endpoints {
		h := EndpointHealth{
			URL:              redactURL(e.url),
			Calls:            e.calls,
			Failures:         e.failures,
			ConsecutiveFails: e.streak,
			LastError:        e.lastError,
			LastErrorAt:      e.lastErrorAt,
		}
		if ok := e.calls - e.failures; ok > 0 {
			h.AverageLatency = e.totalLatency / time.Duration(ok)
		}
		health.Endpoints[i] = h
	}
	health.Healthy = health.Endpoints[p.active].Healthy(p.unhealthyAfter)
	return health
}

// SetUnhealthyAfter changes the failure streak that marks an endpoint unhealthy
func (p *RPCPool) SetUnhealthyAfter(streak int) {
	if streak <= 0 {
		return
	}
	p.mu.Lock()
	p.unhealthyAfter = streak
	p.mu.Unlock()
}
