// Package circuitbreaker keeps one breaker per chain so a dead RPC endpoint
// stops costing retries until a cool-down has passed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chainsage-alerts/internal/logging"
	"github.com/chainsage-alerts/internal/types"
)

// State is the position of a breaker
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

var (
	// ErrCircuitOpen is returned without calling the chain while the breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned while the single half-open probe is in flight
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

const defaultMaxFailures = 5

// Config is shared by every breaker of a Set
type Config struct {
	MaxFailures int           // consecutive failures that open the breaker
	Cooldown    time.Duration // time spent open before one probe is let through

	// OnStateChange, when set, is called after every transition with the lock released
	OnStateChange func(chainID types.ChainID, from, to State)
}

// Breaker guards the calls made to one chain
type Breaker struct {
	chainID types.ChainID
	cfg     Config
	now     func() time.Time

	mu          sync.Mutex
	state       State
	streak      int
	calls       int
	failures    int
	probing     bool
	lastFailure time.Time
	changedAt   time.Time
}

// New creates a closed breaker for chainID
func New(chainID types.ChainID, cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	return &Breaker{
		chainID:   chainID,
		cfg:       cfg,
		now:       time.Now,
		state:     StateClosed,
		changedAt: time.Now(),
	}
}

// Do runs fn unless the breaker is open. An error returned after ctx ended
// is not counted against the chain.
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()
	if err != nil && ctx.Err() != nil {
		b.mu.Lock()
		b.probing = false
		b.mu.Unlock()
		return err
	}

	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.changedAt) < b.cfg.Cooldown {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probing = true
		from := b.transition(StateHalfOpen)
		b.mu.Unlock()
		b.notify(from, StateHalfOpen, nil)
		return nil
	case StateHalfOpen:
		defer b.mu.Unlock()
		if b.probing {
			return ErrTooManyRequests
		}
		b.probing = true
		return nil
	default:
		b.mu.Unlock()
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	b.calls++
	b.probing = false

	var from, to State
	if err == nil {
		b.streak = 0
		if b.state == StateHalfOpen {
			to = StateClosed
			from = b.transition(to)
		}
	} else {
		b.failures++
		b.streak++
		b.lastFailure = b.now()
		if b.state == StateHalfOpen || (b.state == StateClosed && b.streak >= b.cfg.MaxFailures) {
			to = StateOpen
			from = b.transition(to)
		}
	}
	b.mu.Unlock()

	if to != "" {
		b.notify(from, to, err)
	}
}

// transition must be called with the lock held; it returns the previous state
func (b *Breaker) transition(to State) State {
	from := b.state
	b.state = to
	b.changedAt = b.now()
	return from
}

func (b *Breaker) notify(from, to State, cause error) {
	logger := logging.WithFields(map[string]interface{}{
		"chainId": int64(b.chainID),
		"from":    from,
		"to":      to,
	}).WithError(cause)
	if to == StateOpen {
		logger.Warn("Chain circuit breaker opened")
	} else {
		logger.Info("Chain circuit breaker state changed")
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.chainID, from, to)
	}
}

// State returns the current position of the breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a point-in-time copy of a breaker's counters
type Stats struct {
	ChainID          types.ChainID `json:"chainId"`
	State            State         `json:"state"`
	Calls            int           `json:"calls"`
	Failures         int           `json:"failures"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	LastFailure      time.Time     `json:"lastFailure"`
	StateChangedAt   time.Time     `json:"stateChangedAt"`
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		ChainID:          b.chainID,
		State:            b.state,
		Calls:            b.calls,
		Failures:         b.failures,
		ConsecutiveFails: b.streak,
		LastFailure:      b.lastFailure,
		StateChangedAt:   b.changedAt,
	}
}

// Set lazily creates one breaker per chain from a shared Config
type Set struct {
	cfg Config

	mu       sync.Mutex
	breakers map[types.ChainID]*Breaker
}

func NewSet(cfg Config) *Set {
	return &Set{
		cfg:      cfg,
		breakers: make(map[types.ChainID]*Breaker),
	}
}

// For returns the breaker of chainID, creating it on first use
func (s *Set) For(chainID types.ChainID) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[chainID]
	if !ok {
		b = New(chainID, s.cfg)
		s.breakers[chainID] = b
	}
	return b
}

// Stats returns the counters of every breaker created so far
func (s *Set) Stats() map[types.ChainID]Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[types.ChainID]Stats, len(s.breakers))
	for id, b := range s.breakers {
		out[id] = b.Stats()
	}
	return out
}
