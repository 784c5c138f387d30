// Package circuitbreaker implements the circuit breaker pattern for the
// gateway's external dependencies (vector index, chain SDK, embedder, LLM).
package circuitbreaker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// State is the breaker position. The int values feed the breaker-state gauge.
type State int

const (
	StateClosed   State = iota // requests pass through
	StateOpen                  // requests rejected until the timeout elapses
	StateHalfOpen              // limited probes test recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config tunes one breaker.
type Config struct {
	Name string

	// MaxRequests caps in-flight probes in half-open state and doubles as
	// the consecutive-success count required to close.
	MaxRequests uint32

	// Interval is the closed-state generation length; counts reset each one.
	Interval time.Duration

	// Timeout is how long the breaker stays open before allowing probes.
	Timeout time.Duration

	// ReadyToTrip sees a copy of the counts after each closed-state failure.
	ReadyToTrip func(counts Counts) bool

	OnStateChange func(name string, from State, to State)
}

// Counts is the per-generation request tally.
type Counts struct {
	Requests             uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// FailureRatio is TotalFailures over Requests, 0 for an empty generation.
func (c Counts) FailureRatio() float64 {
	if c.Requests == 0 {
		return 0.0
	}
	return float64(c.TotalFailures) / float64(c.Requests)
}

func (c *Counts) clear() {
	*c = Counts{}
}

func (c *Counts) onSuccess() {
	c.Requests++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.Requests++
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// CircuitBreaker guards one external dependency. Generations make results
// from before a state change harmless: a late success cannot close a circuit
// that tripped after the call started.
type CircuitBreaker struct {
	cfg *Config

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

func New(cfg *Config) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// State returns the current state, advancing open→half-open when the
// timeout has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, _ := cb.currentState(time.Now())
	return state
}

// Counts returns a snapshot of the current generation's tally.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Execute runs the given function if the circuit breaker allows
func (cb *CircuitBreaker) Execute(ctx context.Context, req func(context.Context) error) error {
	generation, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterRequest(generation, false)
			panic(r)
		}
	}()

	err = req(ctx)
	cb.afterRequest(generation, err == nil)
	return err
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)

	if state == StateOpen {
		return generation, ErrCircuitOpen
	}

	if state == StateHalfOpen && cb.counts.Requests >= cb.cfg.MaxRequests {
		return generation, ErrTooManyRequests
	}

	cb.counts.Requests++
	return generation, nil
}

func (cb *CircuitBreaker) afterRequest(generation uint64, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	state, currentGeneration := cb.currentState(now)

	// Result from a previous generation; the state it belonged to is gone.
	if generation != currentGeneration {
		return
	}

	if success {
		cb.onSuccess(state, now)
	} else {
		cb.onFailure(state, now)
	}
}

func (cb *CircuitBreaker) onSuccess(state State, now time.Time) {
	switch state {
	case StateClosed:
		cb.counts.onSuccess()
	case StateHalfOpen:
		cb.counts.onSuccess()
		if cb.counts.ConsecutiveSuccesses >= cb.cfg.MaxRequests {
			cb.setState(StateClosed, now)
		}
	}
}

func (cb *CircuitBreaker) onFailure(state State, now time.Time) {
	switch state {
	case StateClosed:
		cb.counts.onFailure()
		if cb.cfg.ReadyToTrip(cb.counts) {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

// currentState advances time-driven transitions before reporting.
func (cb *CircuitBreaker) currentState(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.toNewGeneration(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) setState(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prevState := cb.state
	cb.state = state

	cb.toNewGeneration(now)

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, prevState, state)
	}
}

func (cb *CircuitBreaker) toNewGeneration(now time.Time) {
	cb.generation++
	cb.counts.clear()

	var expiry time.Time
	switch cb.state {
	case StateClosed:
		if cb.cfg.Interval > 0 {
			expiry = now.Add(cb.cfg.Interval)
		}
	case StateOpen:
		expiry = now.Add(cb.cfg.Timeout)
	}
	cb.expiry = expiry
}

// GatewayBreakers holds one breaker per external dependency of the gateway.
type GatewayBreakers struct {
	VectorIndex *CircuitBreaker
	ChainSDK    *CircuitBreaker
	Embedder    *CircuitBreaker
	Classifier  *CircuitBreaker
	IPFS        *CircuitBreaker
}

// NewGatewayBreakers creates the per-dependency breakers.
func NewGatewayBreakers() *GatewayBreakers {
	// Vector index is the hot path: trip fast, probe after 15s.
	vectorCfg := &Config{
		Name:        "vector-index",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(c Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	}

	// Chain SDK is the fallback path; tolerate more before tripping.
	chainCfg := &Config{
		Name:        "chain-sdk",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	}

	// Embedder and classifier failures never fail requests, so trips
	// only suppress wasted calls during an outage.
	embedCfg := &Config{
		Name:        "embedder",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c Counts) bool {
			return c.ConsecutiveFailures >= 4
		},
	}

	classifierCfg := &Config{
		Name:        "classifier",
		MaxRequests: 2,
		Interval:    120 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(c Counts) bool {
			return c.TotalFailures >= 5
		},
	}

	ipfsCfg := &Config{
		Name:        "ipfs",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c Counts) bool {
			return c.FailureRatio() > 0.5 && c.Requests >= 5
		},
	}

	for _, cfg := range []*Config{vectorCfg, chainCfg, embedCfg, classifierCfg, ipfsCfg} {
		cfg.OnStateChange = func(name string, from, to State) {
			log.Printf("[CircuitBreaker:%s] State change: %s -> %s", name, from, to)
		}
	}

	return &GatewayBreakers{
		VectorIndex: New(vectorCfg),
		ChainSDK:    New(chainCfg),
		Embedder:    New(embedCfg),
		Classifier:  New(classifierCfg),
		IPFS:        New(ipfsCfg),
	}
}

// HealthStatus returns overall health based on breaker states.
func (g *GatewayBreakers) HealthStatus() (string, map[string]string) {
	statuses := map[string]string{
		"vector-index": g.VectorIndex.State().String(),
		"chain-sdk":    g.ChainSDK.State().String(),
		"embedder":     g.Embedder.State().String(),
		"classifier":   g.Classifier.State().String(),
		"ipfs":         g.IPFS.State().String(),
	}

	for _, s := range statuses {
		if s == StateOpen.String() {
			return "DEGRADED", statuses
		}
	}
	return "HEALTHY", statuses
}
