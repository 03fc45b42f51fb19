// Package breaker implements a per-operation-key circuit breaker registry.
//
// Each operation key owns an independent state machine guarded by its own
// lock; breakers are created lazily on first use. There is deliberately no
// global lock: breakers for different keys never contend.
package breaker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	xerrors "queryflow/internal/errors"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

// Config controls every breaker created by a Registry.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit.
	FailureThreshold int
	// OpenDuration is how long the circuit stays open before a trial call
	// is allowed through.
	OpenDuration time.Duration
	// OnStateChange, if set, is invoked after every transition.
	OnStateChange func(key string, from, to State)
}

// DefaultConfig returns the breaker defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenDuration:     30 * time.Second,
	}
}

// Snapshot is a point-in-time view of one breaker.
type Snapshot struct {
	Key              string        `json:"key"`
	State            State         `json:"state"`
	Failures         int           `json:"failures"`
	LastFailure      time.Time     `json:"lastFailure,omitempty"`
	NextAttempt      time.Time     `json:"nextAttempt,omitempty"`
	FailureThreshold int           `json:"failureThreshold"`
	OpenDuration     time.Duration `json:"openDuration"`
}

// Operation is the protected primary call.
type Operation func(ctx context.Context) error

// Fallback handles a rejected or failed call. Receiving the rejection error
// lets a fallback degrade differently for an open circuit vs a real failure.
type Fallback func(ctx context.Context, cause error) error

type circuit struct {
	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	nextAttempt time.Time
}

// Registry tracks one breaker per operation key.
type Registry struct {
	cfg      Config
	circuits sync.Map // key -> *circuit
	logger   *zap.Logger
	clock    func() time.Time
}

// NewRegistry creates a breaker registry.
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = DefaultConfig().OpenDuration
	}
	return &Registry{cfg: cfg, logger: logger, clock: time.Now}
}

func (r *Registry) get(key string) *circuit {
	if c, ok := r.circuits.Load(key); ok {
		return c.(*circuit)
	}
	c, _ := r.circuits.LoadOrStore(key, &circuit{state: StateClosed})
	return c.(*circuit)
}

// Execute runs primary under the breaker for key. When the circuit is open
// (or a half-open trial is already in flight) the call is rejected: the
// fallback runs if supplied, otherwise a retryable Unavailable error is
// returned carrying the estimated time until the breaker may retry.
func (r *Registry) Execute(ctx context.Context, key string, primary Operation, fallback Fallback) error {
	c := r.get(key)
	now := r.clock()

	c.mu.Lock()
	switch c.state {
	case StateOpen:
		if now.Before(c.nextAttempt) {
			retryAfter := c.nextAttempt.Sub(now)
			c.mu.Unlock()
			return r.reject(ctx, key, retryAfter, fallback)
		}
		// Cooldown elapsed: this call becomes the half-open trial.
		r.transition(c, key, StateHalfOpen)
	case StateHalfOpen:
		// A trial is already in flight; only one call may probe.
		retryAfter := c.nextAttempt.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		c.mu.Unlock()
		return r.reject(ctx, key, retryAfter, fallback)
	}
	c.mu.Unlock()

	err := primary(ctx)
	r.record(c, key, err)
	return err
}

// reject routes a rejected call to the fallback or a typed error.
func (r *Registry) reject(ctx context.Context, key string, retryAfter time.Duration, fallback Fallback) error {
	cause := xerrors.Unavailable("CIRCUIT_OPEN", "circuit breaker is open").
		WithOperation(key).
		WithRetryAfter(retryAfter).
		Build()
	if fallback != nil {
		return fallback(ctx, cause)
	}
	return cause
}

// record applies the outcome of a primary call to the state machine.
func (r *Registry) record(c *circuit, key string, err error) {
	success := err == nil || !countsAsFailure(err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if success {
		switch c.state {
		case StateHalfOpen:
			c.failures = 0
			r.transition(c, key, StateClosed)
		default:
			// Decay the counter so isolated failures don't accumulate
			// into a trip.
			if c.failures > 0 {
				c.failures--
			}
		}
		return
	}

	c.failures++
	c.lastFailure = r.clock()

	switch c.state {
	case StateHalfOpen:
		c.nextAttempt = r.clock().Add(r.cfg.OpenDuration)
		r.transition(c, key, StateOpen)
	default:
		if c.failures >= r.cfg.FailureThreshold {
			c.nextAttempt = r.clock().Add(r.cfg.OpenDuration)
			r.transition(c, key, StateOpen)
		}
	}
}

// countsAsFailure excludes caller errors from tripping the breaker: a bad
// request or a missing table says nothing about dependency health.
func countsAsFailure(err error) bool {
	return !xerrors.IsValidation(err) && !xerrors.IsNotFound(err)
}

// transition changes state. Caller must hold c.mu.
func (r *Registry) transition(c *circuit, key string, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	r.logger.Info("circuit breaker state changed",
		zap.String("key", key),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("failures", c.failures),
	)
	if r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(key, from, to)
	}
}

// State returns a snapshot for key, creating the breaker if needed.
func (r *Registry) State(key string) Snapshot {
	c := r.get(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Key:              key,
		State:            c.state,
		Failures:         c.failures,
		LastFailure:      c.lastFailure,
		NextAttempt:      c.nextAttempt,
		FailureThreshold: r.cfg.FailureThreshold,
		OpenDuration:     r.cfg.OpenDuration,
	}
}

// Reset forces the breaker for key back to Closed with a cleared counter.
func (r *Registry) Reset(key string) {
	c := r.get(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.nextAttempt = time.Time{}
	r.transition(c, key, StateClosed)
}

// AllStates snapshots every breaker the registry has created.
func (r *Registry) AllStates() map[string]Snapshot {
	out := make(map[string]Snapshot)
	r.circuits.Range(func(k, _ any) bool {
		key := k.(string)
		out[key] = r.State(key)
		return true
	})
	return out
}
