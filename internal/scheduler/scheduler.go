// Package scheduler fires the daily reset at the configured local hour.
// It holds no session state and can be rebuilt from settings alone.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Period is the interval between resets once armed.
const Period = 24 * time.Hour

// NextReset returns today at hour:00:00 in now's location, or tomorrow at
// that hour if that instant is not after now.
func NextReset(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, 0, 0, 0, now.Location())
	}
	return next
}

// PreviousReset returns the most recent reset instant at or before now.
func PreviousReset(now time.Time, hour int) time.Time {
	next := NextReset(now, hour)
	return time.Date(next.Year(), next.Month(), next.Day()-1, hour, 0, 0, 0, next.Location())
}

// ResetFunc performs the reset transition.
type ResetFunc func(ctx context.Context) error

// Scheduler arms a timer for the next reset and re-arms every 24h.
// The timer is owned by the Run goroutine; Reschedule replaces it.
type Scheduler struct {
	clock  clockwork.Clock
	reset  ResetFunc
	logger *zap.Logger

	rescheduleMu sync.Mutex
	reschedule   chan int

	mu   sync.Mutex
	hour int
	next time.Time
}

// New creates a scheduler for resetHour. Call Run to arm it.
func New(clock clockwork.Clock, resetHour int, reset ResetFunc, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		clock:      clock,
		reset:      reset,
		logger:     logger,
		reschedule: make(chan int, 1),
		hour:       resetHour,
	}
}

// Hour returns the reset hour the scheduler is using.
func (s *Scheduler) Hour() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hour
}

// Next returns the currently armed reset instant (zero before Run arms).
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Reschedule cancels the armed timer and recomputes from scratch for hour.
// Calling it again before Run picks it up replaces the pending request.
func (s *Scheduler) Reschedule(hour int) {
	s.rescheduleMu.Lock()
	defer s.rescheduleMu.Unlock()
	select {
	case <-s.reschedule:
	default:
	}
	s.reschedule <- hour
}

// Run arms the timer and fires resets until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	next := NextReset(s.clock.Now(), s.Hour())

	for {
		timer := s.clock.NewTimer(next.Sub(s.clock.Now()))
		s.setNext(next)
		s.logger.Info("daily reset scheduled", zap.Time("at", next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case hour := <-s.reschedule:
			timer.Stop()
			next = s.rearm(hour)

		case <-timer.Chan():
			// A reschedule that raced with expiry wins: the old schedule is stale.
			select {
			case hour := <-s.reschedule:
				next = s.rearm(hour)
				continue
			default:
			}

			s.fire(ctx, next)
			next = next.Add(Period)
			if now := s.clock.Now(); !next.After(now) {
				// Woke up more than a period late; one reset covers the gap.
				next = NextReset(now, s.Hour())
			}
		}
	}
}

func (s *Scheduler) rearm(hour int) time.Time {
	s.mu.Lock()
	s.hour = hour
	s.mu.Unlock()
	s.logger.Info("reset hour changed, rescheduling", zap.Int("reset_hour", hour))
	return NextReset(s.clock.Now(), hour)
}

func (s *Scheduler) fire(ctx context.Context, at time.Time) {
	s.logger.Info("performing daily reset", zap.Time("scheduled_for", at))
	if err := s.reset(ctx); err != nil {
		s.logger.Error("daily reset failed", zap.Error(err))
	}
}

func (s *Scheduler) setNext(next time.Time) {
	s.mu.Lock()
	s.next = next
	s.mu.Unlock()
}
