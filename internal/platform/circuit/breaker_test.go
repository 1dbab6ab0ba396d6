package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "storygate/pkg/gateway-errors"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

type recordingSink struct {
	transitions []string
	rejected    int
	outcomes    []string
}

func (s *recordingSink) BreakerStateChanged(name string, from, to State) {
	s.transitions = append(s.transitions, from.String()+">"+to.String())
}

func (s *recordingSink) BreakerRejected(string) { s.rejected++ }

func (s *recordingSink) BreakerCallOutcome(_, outcome string) {
	s.outcomes = append(s.outcomes, outcome)
}

func TestBreaker_InitialState(t *testing.T) {
	b := New("test")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "test", b.Name())
	assert.True(t, b.Allow())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("test", WithFailureThreshold(3))

	// First two failures don't open
	failFast, change := b.RecordFailure()
	assert.False(t, failFast)
	assert.False(t, change.Opened)

	failFast, change = b.RecordFailure()
	assert.False(t, failFast)
	assert.False(t, change.Opened)

	// Third failure opens the circuit
	failFast, change = b.RecordFailure()
	assert.True(t, failFast)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())
	assert.False(t, b.Allow())
}

func TestBreaker_RollingWindowExpiresFailures(t *testing.T) {
	clock := newFakeClock()
	b := New("test", WithFailureThreshold(3), WithWindow(30*time.Second), WithClock(clock.Now))

	b.RecordFailure()
	b.RecordFailure()

	// Old failures age out of the window before the third lands
	clock.Advance(31 * time.Second)
	failFast, change := b.RecordFailure()
	assert.False(t, failFast)
	assert.False(t, change.Opened)
	assert.False(t, b.IsOpen())
}

func TestBreaker_SuccessClearsFailureCount(t *testing.T) {
	b := New("test", WithFailureThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())

	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreaker_CooldownAdmitsTrials(t *testing.T) {
	clock := newFakeClock()
	b := New("test", WithFailureThreshold(1), WithCooldown(15*time.Second), WithHalfOpenMax(1), WithClock(clock.Now))

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	// Still open just before the cooldown elapses
	clock.Advance(14 * time.Second)
	assert.False(t, b.Allow())

	clock.Advance(2 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.True(t, b.Allow())

	// Trial budget of one; a second concurrent call is rejected
	assert.False(t, b.Allow())
}

func TestBreaker_TrialSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	b := New("test", WithFailureThreshold(1), WithCooldown(time.Second), WithClock(clock.Now))

	b.RecordFailure()
	clock.Advance(2 * time.Second)
	require.True(t, b.Allow())

	primary, change := b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_TrialFailureReopensWithFreshCooldown(t *testing.T) {
	clock := newFakeClock()
	b := New("test", WithFailureThreshold(1), WithCooldown(10*time.Second), WithClock(clock.Now))

	b.RecordFailure()
	clock.Advance(11 * time.Second)
	require.True(t, b.Allow())

	failFast, change := b.RecordFailure()
	assert.True(t, failFast)
	assert.True(t, change.Opened)
	assert.Equal(t, StateOpen, b.State())

	// The cooldown restarts from the trial failure
	clock.Advance(9 * time.Second)
	assert.False(t, b.Allow())
	clock.Advance(2 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreaker_SuccessThresholdRequiresMultipleTrials(t *testing.T) {
	clock := newFakeClock()
	b := New("test",
		WithFailureThreshold(1),
		WithCooldown(time.Second),
		WithHalfOpenMax(2),
		WithSuccessThreshold(2),
		WithClock(clock.Now),
	)

	b.RecordFailure()
	clock.Advance(2 * time.Second)

	require.True(t, b.Allow())
	primary, change := b.RecordSuccess()
	assert.False(t, primary)
	assert.False(t, change.Closed)
	assert.Equal(t, StateHalfOpen, b.State())

	require.True(t, b.Allow())
	primary, change = b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)
}

func TestBreaker_Reset(t *testing.T) {
	b := New("test", WithFailureThreshold(1))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_SinkObservesLifecycle(t *testing.T) {
	clock := newFakeClock()
	sink := &recordingSink{}
	b := New("test", WithFailureThreshold(1), WithCooldown(time.Second), WithSink(sink), WithClock(clock.Now))

	b.RecordFailure()
	assert.False(t, b.Allow())
	clock.Advance(2 * time.Second)
	require.True(t, b.Allow())
	b.RecordSuccess()

	assert.Equal(t, []string{"closed>open", "open>half_open", "half_open>closed"}, sink.transitions)
	assert.Equal(t, 1, sink.rejected)
}

func TestBreaker_DoFailsFastWhenOpen(t *testing.T) {
	b := New("test", WithFailureThreshold(1))
	b.RecordFailure()

	called := false
	err := b.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeCircuitBreakerOpen))
}

func TestBreaker_DoRecordsOutcomes(t *testing.T) {
	b := New("test", WithFailureThreshold(2))

	boom := errors.New("boom")
	err := b.Do(context.Background(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, b.IsOpen())

	err = b.Do(context.Background(), func(context.Context) error { return boom })
	require.Error(t, err)
	assert.True(t, b.IsOpen())
}

func TestBreaker_DoTimeoutMapsToDownstreamTimeout(t *testing.T) {
	b := New("test", WithFailureThreshold(5), WithCallTimeout(10*time.Millisecond))

	err := b.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeDownstreamTimeout))
}

func TestBreaker_SinkObservesCallOutcomes(t *testing.T) {
	sink := &recordingSink{}
	b := New("test", WithFailureThreshold(2), WithCallTimeout(10*time.Millisecond), WithSink(sink))

	require.NoError(t, b.Do(context.Background(), func(context.Context) error { return nil }))

	boom := errors.New("boom")
	require.Error(t, b.Do(context.Background(), func(context.Context) error { return boom }))

	err := b.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.True(t, gwerrors.Is(err, gwerrors.CodeDownstreamTimeout))

	// Second failure tripped the breaker, so the next call is rejected.
	require.Error(t, b.Do(context.Background(), func(context.Context) error { return nil }))

	assert.Equal(t, []string{"success", "failure", "timeout", "rejected"}, sink.outcomes)
	assert.Equal(t, 1, sink.rejected)
}
