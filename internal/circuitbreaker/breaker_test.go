package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func testConfig() *Config {
	return &Config{
		Name:        "test",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
	}
}

func fail(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func(context.Context) error { return errBoom })
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func(context.Context) error { return nil })
}

func TestStartsClosed(t *testing.T) {
	cb := New(testConfig())
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, succeed(cb))
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, fail(cb), errBoom)
	}
	assert.Equal(t, StateOpen, cb.State())

	err := succeed(cb)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	cb := New(testConfig())

	assert.Error(t, fail(cb))
	assert.Error(t, fail(cb))
	assert.NoError(t, succeed(cb))
	assert.Error(t, fail(cb))
	assert.Error(t, fail(cb))

	// Never three in a row, so still closed.
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenAfterTimeout(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		fail(cb)
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestHalfOpenClosesAfterSuccesses(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		fail(cb)
	}
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	// MaxRequests consecutive successes close the circuit.
	assert.NoError(t, succeed(cb))
	assert.NoError(t, succeed(cb))
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		fail(cb)
	}
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	assert.ErrorIs(t, fail(cb), errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestHalfOpenLimitsProbes(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRequests = 1
	cb := New(cfg)

	for i := 0; i < 3; i++ {
		fail(cb)
	}
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	started := make(chan struct{})
	release := make(chan struct{})
	go cb.Execute(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	err := succeed(cb)
	assert.ErrorIs(t, err, ErrTooManyRequests)
	close(release)
}

func TestOnStateChangeFires(t *testing.T) {
	var transitions [][2]State
	cfg := testConfig()
	cfg.OnStateChange = func(name string, from, to State) {
		transitions = append(transitions, [2]State{from, to})
	}
	cb := New(cfg)

	for i := 0; i < 3; i++ {
		fail(cb)
	}
	require.Len(t, transitions, 1)
	assert.Equal(t, [2]State{StateClosed, StateOpen}, transitions[0])
}

func TestCountsFailureRatio(t *testing.T) {
	var c Counts
	assert.Zero(t, c.FailureRatio())

	c.onSuccess()
	c.onFailure()
	c.onFailure()
	c.onFailure()
	assert.InDelta(t, 0.75, c.FailureRatio(), 1e-9)
	assert.Equal(t, uint32(3), c.ConsecutiveFailures)
	assert.Zero(t, c.ConsecutiveSuccesses)
}

func TestExecutePropagatesPanic(t *testing.T) {
	cb := New(testConfig())
	assert.Panics(t, func() {
		cb.Execute(context.Background(), func(context.Context) error {
			panic("kaboom")
		})
	})
	// The panicked call counts as a failure.
	assert.Equal(t, uint32(1), cb.Counts().TotalFailures)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
}

func TestGatewayBreakersHealth(t *testing.T) {
	g := NewGatewayBreakers()

	status, services := g.HealthStatus()
	assert.Equal(t, "HEALTHY", status)
	assert.Len(t, services, 5)

	// Trip the vector index breaker.
	for i := 0; i < 3; i++ {
		g.VectorIndex.Execute(context.Background(), func(context.Context) error { return errBoom })
	}
	status, services = g.HealthStatus()
	assert.Equal(t, "DEGRADED", status)
	assert.Equal(t, "OPEN", services["vector-index"])
	assert.Equal(t, "CLOSED", services["chain-sdk"])
}
