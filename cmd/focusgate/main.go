// Package main is the CLI entry point for focusgate.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/focusgate/internal/config"
	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
	"github.com/eliteGoblin/focusd/focusgate/internal/infra"
	"github.com/eliteGoblin/focusd/focusgate/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds the global flags.
type options struct {
	configPath string
	dataDir    string
	store      string
	verbose    bool
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "focusgate",
		Short: "Daily focus gate - allow-list browsing behind a daily goal",
		Long: `focusgate decides which URLs may be visited. Until you declare a goal
for the day everything is blocked; once a goal is set only allow-listed
patterns are reachable while focus mode is on. The day resets at the
configured hour and the gate locks again.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default $FOCUSGATE_CONFIG or ~/.focusgate/config.yaml)")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Override the data directory")
	root.PersistentFlags().StringVar(&opts.store, "store", "", "Override the store kind (encrypted, file, memory)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print machine-readable JSON")

	root.AddCommand(
		newStatusCmd(opts),
		newCheckCmd(opts),
		newGoalCmd(opts),
		newFocusCmd(opts),
		newPatternCmd(opts),
		newSettingsCmd(opts),
		newResetCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newClearCmd(opts),
		newStartCmd(opts),
		newStopCmd(opts),
		newDaemonCmd(opts),
		newNativeHostCmd(opts),
		newInstallCmd(opts),
		newUninstallCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

// app bundles what a command needs.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	pm       domain.ProcessManager
	store    domain.StateStore
	registry domain.DaemonRegistry
	engine   *usecase.Engine
	out      io.Writer
	json     bool
}

func (o *options) loadConfig() (config.Config, error) {
	path := o.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if o.dataDir != "" {
		// The default log file follows the data directory.
		if cfg.Log.File == filepath.Join(cfg.DataDir, "focusgate.log") {
			cfg.Log.File = ""
		}
		cfg.DataDir = o.dataDir
	}
	if o.store != "" {
		cfg.Store = o.store
	}
	if err := cfg.Finalize(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openApp loads config and opens the store. logger nil selects the CLI
// logger (stderr with --verbose, otherwise silent).
func (o *options) openApp(cmd *cobra.Command, logger *zap.Logger) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = o.cliLogger(cfg)
	}

	pm := infra.NewProcessManager()
	store, registry, err := infra.OpenStore(cfg.Store, cfg.DataDir, pm)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		pm:       pm,
		store:    store,
		registry: registry,
		engine:   usecase.NewEngine(store, logger, usecase.EngineOptions{MinGoalLength: cfg.Goal.MinLength}),
		out:      cmd.OutOrStdout(),
		json:     o.jsonOutput,
	}

	// A reset missed while nothing was running must land before the
	// command observes the session.
	if _, err := a.handle(usecase.CatchUp{}); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// handle runs one engine command with a bounded context.
func (a *app) handle(cmd usecase.Command) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.engine.Handle(ctx, cmd)
}

// printf writes human output; suppressed in --json mode.
func (a *app) printf(format string, args ...any) {
	if !a.json {
		fmt.Fprintf(a.out, format, args...)
	}
}

// emit writes v as JSON in --json mode.
func (a *app) emit(v any) error {
	if !a.json {
		return nil
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *options) cliLogger(cfg config.Config) *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	zcfg := zap.NewDevelopmentConfig()
	if level, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// createLogger builds the file logger used by the daemon and the native
// messaging host, whose stdout is reserved.
func createLogger(cfg config.Config) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if level, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	zcfg.OutputPaths = []string{cfg.Log.File}
	zcfg.ErrorOutputPaths = []string{cfg.Log.File}
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return zap.NewNop()
	}
	logger, err := zcfg.Build()
	if err != nil {
		// stdout may be the native messaging channel; stay silent.
		return zap.NewNop()
	}
	return logger
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				fmt.Fprintf(out, `{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
					Version, Commit, BuildTime)
			} else {
				fmt.Fprintf(out, "focusgate %s (commit: %s, built: %s)\n",
					Version, Commit, BuildTime)
			}
		},
	}
}
