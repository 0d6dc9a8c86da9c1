// Package daemon implements the background process that fires the daily
// reset on schedule.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
	"github.com/eliteGoblin/focusd/focusgate/internal/scheduler"
	"github.com/eliteGoblin/focusd/focusgate/internal/usecase"
)

// Config holds daemon configuration.
type Config struct {
	SettingsPollInterval time.Duration // How often to re-read settings written by other processes
	HeartbeatInterval    time.Duration // How often to update heartbeat
}

// DefaultConfig returns default daemon configuration.
func DefaultConfig() Config {
	return Config{
		SettingsPollInterval: 30 * time.Second,
		HeartbeatInterval:    30 * time.Second,
	}
}

// Runner is the scheduler daemon. It registers itself, performs any reset
// missed while it was not running, and keeps the scheduler armed at the
// configured reset hour.
type Runner struct {
	config   Config
	engine   *usecase.Engine
	registry domain.DaemonRegistry
	clock    clockwork.Clock
	daemon   domain.Daemon
	logger   *zap.Logger

	mu    sync.Mutex
	sched *scheduler.Scheduler
}

// NewRunner creates a new daemon runner.
func NewRunner(
	config Config,
	engine *usecase.Engine,
	registry domain.DaemonRegistry,
	clock clockwork.Clock,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		config:   config,
		engine:   engine,
		registry: registry,
		clock:    clock,
		daemon:   daemon,
		logger:   logger,
	}
}

// Next returns the armed reset instant, or zero before the scheduler starts.
func (r *Runner) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sched == nil {
		return time.Time{}
	}
	return r.sched.Next()
}

// Run starts the daemon loop. This blocks until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.registry.Register(r.daemon); err != nil {
		r.logger.Error("failed to register daemon", zap.Error(err))
		return err
	}
	defer r.unregister()

	r.logger.Info("scheduler daemon started",
		zap.Int("pid", r.daemon.PID),
		zap.String("version", r.daemon.AppVersion))

	r.catchUp(ctx)

	settings, err := r.engine.Settings(ctx)
	if err != nil {
		return err
	}

	// The scheduled reset only fires if no reset has happened since the
	// scheduled instant, so a catch-up after wake and a late timer cannot
	// both reset the same day.
	sched := scheduler.New(r.clock, settings.ResetHour, func(ctx context.Context) error {
		_, err := r.engine.CatchUp(ctx)
		return err
	}, r.logger)
	r.mu.Lock()
	r.sched = sched
	r.mu.Unlock()

	unsubscribe := r.engine.Subscribe(domain.NotifierFunc(func(e domain.Event) {
		if e.Kind == domain.EventSettingsChanged && e.ResetHour != sched.Hour() {
			sched.Reschedule(e.ResetHour)
		}
	}))
	defer unsubscribe()

	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(ctx) }()

	pollTicker := r.clock.NewTicker(r.config.SettingsPollInterval)
	heartbeatTicker := r.clock.NewTicker(r.config.HeartbeatInterval)
	defer func() {
		pollTicker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("scheduler daemon stopping")
			<-schedDone
			return ctx.Err()

		case err := <-schedDone:
			if errors.Is(err, context.Canceled) {
				return err
			}
			r.logger.Error("scheduler exited", zap.Error(err))
			return err

		case <-pollTicker.Chan():
			r.pollSettings(ctx, sched)

		case <-heartbeatTicker.Chan():
			if err := r.registry.UpdateHeartbeat(); err != nil {
				r.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// pollSettings picks up a reset hour changed by another process and
// performs a reset missed while the machine slept.
func (r *Runner) pollSettings(ctx context.Context, sched *scheduler.Scheduler) {
	settings, err := r.engine.Settings(ctx)
	if err != nil {
		r.logger.Warn("failed to read settings", zap.Error(err))
		return
	}
	if settings.ResetHour != sched.Hour() {
		sched.Reschedule(settings.ResetHour)
	}
	r.catchUp(ctx)
}

func (r *Runner) catchUp(ctx context.Context) {
	if _, err := r.engine.CatchUp(ctx); err != nil {
		r.logger.Error("missed reset check failed", zap.Error(err))
	}
}

// unregister clears the registry unless another daemon has replaced us.
func (r *Runner) unregister() {
	d, err := r.registry.Get()
	if err != nil || d == nil || d.PID != r.daemon.PID {
		return
	}
	if err := r.registry.Clear(); err != nil {
		r.logger.Warn("failed to clear registry", zap.Error(err))
	}
}
