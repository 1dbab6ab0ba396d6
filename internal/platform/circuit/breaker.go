// Package circuit implements a three-state circuit breaker used to guard
// calls to downstream dependencies (provider key endpoints, session storage,
// the audit pipeline). Failures within a rolling window trip the breaker;
// after a cooldown a limited number of trial calls probe the dependency
// before traffic is fully restored.
package circuit

import (
	"context"
	"sync"
	"time"

	gwerrors "storygate/pkg/gateway-errors"
)

// State identifies the breaker's position in its lifecycle.
type State int

const (
	// StateClosed admits all calls and counts failures.
	StateClosed State = iota
	// StateOpen rejects all calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a bounded number of trial calls.
	StateHalfOpen
)

// String returns the state name for logs and metrics labels.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// StateChange reports transitions triggered by recording an outcome.
type StateChange struct {
	Opened bool
	Closed bool
}

// Sink receives breaker lifecycle events. BreakerCallOutcome fires once per
// guarded call with one of "success", "failure", "timeout" or "rejected".
// Implementations must be safe for concurrent use.
type Sink interface {
	BreakerStateChanged(name string, from, to State)
	BreakerRejected(name string)
	BreakerCallOutcome(name, outcome string)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) BreakerStateChanged(string, State, State) {}
func (NopSink) BreakerRejected(string)                   {}
func (NopSink) BreakerCallOutcome(string, string)        {}

// Breaker is a single named circuit breaker. All methods are safe for
// concurrent use.
type Breaker struct {
	name string

	failureThreshold int
	window           time.Duration
	cooldown         time.Duration
	halfOpenMax      int
	successThreshold int
	callTimeout      time.Duration

	sink Sink
	now  func() time.Time

	mu           sync.Mutex
	state        State
	failures     []time.Time
	openedAt     time.Time
	trialsInUse  int
	trialSuccess int
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many failures within the rolling window trip
// the breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

// WithWindow sets the rolling window failures are counted over.
func WithWindow(d time.Duration) Option {
	return func(b *Breaker) { b.window = d }
}

// WithCooldown sets how long the breaker stays open before admitting trials.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) { b.cooldown = d }
}

// WithHalfOpenMax bounds concurrent trial calls while half-open.
func WithHalfOpenMax(n int) Option {
	return func(b *Breaker) { b.halfOpenMax = n }
}

// WithSuccessThreshold sets how many trial successes close the breaker.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) { b.successThreshold = n }
}

// WithCallTimeout bounds each guarded call. Zero disables the timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Breaker) { b.callTimeout = d }
}

// WithSink installs an event sink.
func WithSink(s Sink) Option {
	return func(b *Breaker) { b.sink = s }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a closed breaker with the given name.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		window:           30 * time.Second,
		cooldown:         15 * time.Second,
		halfOpenMax:      1,
		successThreshold: 1,
		sink:             NopSink{},
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, promoting open to half-open once the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// IsOpen reports whether calls would currently be rejected.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Allow reports whether a call may proceed. The caller must pair every true
// result with exactly one RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.trialsInUse < b.halfOpenMax {
			b.trialsInUse++
			return true
		}
		b.reject()
		return false
	default:
		b.reject()
		return false
	}
}

// RecordSuccess records a successful call. While half-open, enough successes
// close the breaker; the return values report whether primary traffic should
// resume and any resulting transition.
func (b *Breaker) RecordSuccess() (bool, StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sink.BreakerCallOutcome(b.name, "success")

	switch b.state {
	case StateHalfOpen:
		if b.trialsInUse > 0 {
			b.trialsInUse--
		}
		b.trialSuccess++
		if b.trialSuccess >= b.successThreshold {
			b.transition(StateClosed)
			return true, StateChange{Closed: true}
		}
		return false, StateChange{}
	case StateClosed:
		b.failures = b.failures[:0]
		return true, StateChange{}
	default:
		return false, StateChange{}
	}
}

// RecordFailure records a failed call. Enough failures within the rolling
// window open the breaker; a half-open trial failure reopens it with a fresh
// cooldown. The return values report whether callers should fail fast and
// any resulting transition.
func (b *Breaker) RecordFailure() (bool, StateChange) {
	return b.recordFailure("failure")
}

func (b *Breaker) recordFailure(outcome string) (bool, StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sink.BreakerCallOutcome(b.name, outcome)

	switch b.state {
	case StateHalfOpen:
		if b.trialsInUse > 0 {
			b.trialsInUse--
		}
		b.reopen()
		return true, StateChange{Opened: true}
	case StateClosed:
		now := b.now()
		b.pruneFailures(now)
		b.failures = append(b.failures, now)
		if len(b.failures) >= b.failureThreshold {
			b.reopen()
			return true, StateChange{Opened: true}
		}
		return false, StateChange{}
	default:
		return true, StateChange{}
	}
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateClosed {
		b.transition(StateClosed)
	} else {
		b.failures = b.failures[:0]
	}
}

// Do runs fn under the breaker. Rejected calls fail fast with a
// circuit-breaker-open error and never invoke fn. When a call timeout is
// configured, fn runs under a deadline and overruns count as failures and
// surface as downstream timeouts. fn must honor ctx cancellation.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.Allow() {
		return gwerrors.New(gwerrors.CodeCircuitBreakerOpen, b.name+" circuit breaker is open")
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if b.callTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.callTimeout)
		defer cancel()
	}

	err := fn(callCtx)
	if err == nil {
		b.RecordSuccess()
		return nil
	}

	if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		b.recordFailure("timeout")
		return gwerrors.Wrap(err, gwerrors.CodeDownstreamTimeout, b.name+" call timed out")
	}
	b.RecordFailure()
	return err
}

// mu must be held.
func (b *Breaker) reject() {
	b.sink.BreakerRejected(b.name)
	b.sink.BreakerCallOutcome(b.name, "rejected")
}

// mu must be held.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.transition(StateHalfOpen)
	}
}

// mu must be held.
func (b *Breaker) reopen() {
	b.openedAt = b.now()
	b.transition(StateOpen)
}

// mu must be held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.failures = b.failures[:0]
	b.trialsInUse = 0
	b.trialSuccess = 0
	if from != to {
		b.sink.BreakerStateChanged(b.name, from, to)
	}
}

// mu must be held.
func (b *Breaker) pruneFailures(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}
