package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusgate/internal/daemon"
	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
	"github.com/eliteGoblin/focusd/focusgate/internal/transport/nativemsg"
)

// daemonArgs are the global flags forwarded to the spawned daemon so it
// opens the same store.
func (o *options) daemonArgs() []string {
	var args []string
	if o.configPath != "" {
		args = append(args, "--config", o.configPath)
	}
	if o.dataDir != "" {
		args = append(args, "--data-dir", o.dataDir)
	}
	if o.store != "" {
		args = append(args, "--store", o.store)
	}
	return args
}

func newStartCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the reset scheduler daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			err = daemon.StartDaemon(a.registry, opts.daemonArgs()...)
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				a.printf("Scheduler daemon is already running.\n")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to start daemon: %w", err)
			}
			a.printf("Scheduler daemon started. Logs: %s\n", a.cfg.Log.File)
			return nil
		},
	}
}

func newStopCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the reset scheduler daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			stopped, err := daemon.StopDaemon(a.registry, a.pm)
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			if stopped {
				a.printf("Scheduler daemon stopped.\n")
			} else {
				a.printf("Scheduler daemon was not running.\n")
			}
			return nil
		},
	}
}

// Hidden daemon command (internal use)
func newDaemonCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:    "daemon",
		Short:  "Run the reset scheduler in the foreground",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := createLogger(cfg)

			a, err := opts.openApp(cmd, logger)
			if err != nil {
				logger.Error("failed to open store", zap.Error(err))
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(logger)
			defer cancel()

			runner := daemon.NewRunner(
				daemon.Config{
					SettingsPollInterval: a.cfg.Daemon.SettingsPollInterval,
					HeartbeatInterval:    a.cfg.Daemon.HeartbeatInterval,
				},
				a.engine,
				a.registry,
				clockwork.NewRealClock(),
				domain.Daemon{
					PID:        a.pm.GetCurrentPID(),
					Role:       domain.RoleScheduler,
					StartedAt:  time.Now(),
					AppVersion: Version,
				},
				logger,
			)

			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newNativeHostCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "native-host [origin]",
		Short: "Serve the browser extension over native messaging",
		Long: `Speaks the browser native messaging protocol on stdin/stdout. The
browser starts this command itself; point the host manifest's "path" at
a wrapper that runs "focusgate native-host". Logs go to the log file.`,
		Args: cobra.ArbitraryArgs,
		FParseErrWhitelist: cobra.FParseErrWhitelist{
			// Browsers append flags such as --parent-window.
			UnknownFlags: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := createLogger(cfg)
			if len(args) > 0 {
				logger = logger.With(zap.String("origin", args[0]))
			}

			a, err := opts.openApp(cmd, logger)
			if err != nil {
				logger.Error("failed to open store", zap.Error(err))
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(logger)
			defer cancel()

			host := nativemsg.NewHost(a.engine, os.Stdin, os.Stdout, logger)
			unsubscribe := a.engine.Subscribe(host)
			defer unsubscribe()

			watchCtx, stopWatch := context.WithCancel(ctx)
			watched := make(chan struct{})
			go func() {
				defer close(watched)
				_ = host.Watch(watchCtx, a.engine, clockwork.NewRealClock(), a.cfg.Host.SyncInterval)
			}()
			defer func() {
				stopWatch()
				<-watched
			}()

			if err := host.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("native messaging host stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
