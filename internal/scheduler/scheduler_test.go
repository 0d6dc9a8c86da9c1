package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var loc = time.FixedZone("test", 2*60*60)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, loc)
}

func TestNextReset(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{"later today", at(2, 3, 0), 4, at(2, 4, 0)},
		{"already passed", at(2, 5, 0), 4, at(3, 4, 0)},
		{"exactly now rolls to tomorrow", at(2, 4, 0), 4, at(3, 4, 0)},
		{"midnight", at(2, 23, 59), 0, at(3, 0, 0)},
		{"end of month", time.Date(2026, 3, 31, 22, 0, 0, 0, loc), 4, time.Date(2026, 4, 1, 4, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextReset(tt.now, tt.hour))
		})
	}
}

func TestPreviousReset(t *testing.T) {
	assert.Equal(t, at(1, 4, 0), PreviousReset(at(2, 3, 0), 4))
	assert.Equal(t, at(2, 4, 0), PreviousReset(at(2, 4, 0), 4))
	assert.Equal(t, at(2, 4, 0), PreviousReset(at(2, 9, 0), 4))
}

type harness struct {
	clock  *clockwork.FakeClock
	sched  *Scheduler
	fired  atomic.Int32
	cancel context.CancelFunc
	done   chan error
}

func startScheduler(t *testing.T, start time.Time, hour int) *harness {
	t.Helper()
	h := &harness{
		clock: clockwork.NewFakeClockAt(start),
		done:  make(chan error, 1),
	}
	h.sched = New(h.clock, hour, func(context.Context) error {
		h.fired.Add(1)
		return nil
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.sched.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) waitArmed(t *testing.T, want time.Time) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.sched.Next().Equal(want)
	}, time.Second, time.Millisecond)
}

func (h *harness) waitFired(t *testing.T, n int32) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.fired.Load() == n
	}, time.Second, time.Millisecond)
}

func TestScheduler_FiresOncePerInstant(t *testing.T) {
	h := startScheduler(t, at(2, 3, 0), 4)
	h.waitArmed(t, at(2, 4, 0))

	h.clock.Advance(59 * time.Minute)
	assert.Never(t, func() bool { return h.fired.Load() > 0 }, 20*time.Millisecond, time.Millisecond)

	h.clock.Advance(time.Minute)
	h.waitFired(t, 1)
	h.waitArmed(t, at(3, 4, 0))

	h.clock.Advance(Period)
	h.waitFired(t, 2)
	h.waitArmed(t, at(4, 4, 0))
}

func TestScheduler_RescheduleCancelsStaleTimer(t *testing.T) {
	h := startScheduler(t, at(2, 3, 0), 4)
	h.waitArmed(t, at(2, 4, 0))

	h.sched.Reschedule(6)
	h.waitArmed(t, at(2, 6, 0))
	assert.Equal(t, 6, h.sched.Hour())

	// The old 04:00 instant passes without a reset.
	h.clock.Advance(90 * time.Minute)
	assert.Never(t, func() bool { return h.fired.Load() > 0 }, 20*time.Millisecond, time.Millisecond)

	h.clock.Advance(90 * time.Minute)
	h.waitFired(t, 1)
	h.waitArmed(t, at(3, 6, 0))
	assert.Equal(t, int32(1), h.fired.Load())
}

func TestScheduler_RescheduleToEarlierHourRollsToTomorrow(t *testing.T) {
	h := startScheduler(t, at(2, 10, 0), 12)
	h.waitArmed(t, at(2, 12, 0))

	h.sched.Reschedule(9)

	h.waitArmed(t, at(3, 9, 0))
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(2, 3, 0))
	s := New(clock, 4, func(context.Context) error { return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return !s.Next().IsZero() }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_ResetErrorDoesNotStopLoop(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(2, 3, 0))
	var calls atomic.Int32
	s := New(clock, 4, func(context.Context) error {
		calls.Add(1)
		return errors.New("store unavailable")
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Next().Equal(at(2, 4, 0)) }, time.Second, time.Millisecond)
	clock.Advance(time.Hour)

	require.Eventually(t, func() bool { return s.Next().Equal(at(3, 4, 0)) }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
