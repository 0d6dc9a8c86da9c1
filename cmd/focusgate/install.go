package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focusgate/internal/infra"
)

func newInstallCmd(opts *options) *cobra.Command {
	var extensionIDs []string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Start the scheduler at login and register the browser host",
		Long: `On macOS, installs a LaunchAgent that runs the scheduler daemon at
login. With --extension-id, registers the native messaging host so the
browser extension can reach the engine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			execPath, err := os.Executable()
			if err != nil {
				return err
			}

			if runtime.GOOS == "darwin" {
				agent := infra.NewLaunchAgentManager(cfg.DataDir)
				if agent.IsInstalled() && !agent.NeedsUpdate(execPath, opts.daemonArgs()) {
					fmt.Fprintf(out, "LaunchAgent up to date: %s\n", agent.Path())
				} else {
					if err := agent.Install(execPath, opts.daemonArgs()); err != nil {
						return fmt.Errorf("failed to install LaunchAgent: %w", err)
					}
					fmt.Fprintf(out, "LaunchAgent installed: %s\n", agent.Path())
				}
			} else {
				fmt.Fprintln(out, "Autostart is only managed on macOS; run 'focusgate start' from your session startup.")
			}

			if len(extensionIDs) > 0 {
				host := infra.NewHostManifestManager(cfg.DataDir)
				if err := host.Install(execPath, opts.daemonArgs(), extensionIDs); err != nil {
					return err
				}
				fmt.Fprintf(out, "Native messaging host registered: %s\n", host.Path())
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&extensionIDs, "extension-id", nil, "Browser extension ID allowed to connect (repeatable)")
	return cmd
}

func newUninstallCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the login item and the browser host registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			if runtime.GOOS == "darwin" {
				if err := infra.NewLaunchAgentManager(cfg.DataDir).Uninstall(); err != nil {
					return fmt.Errorf("failed to remove LaunchAgent: %w", err)
				}
			}
			if err := infra.NewHostManifestManager(cfg.DataDir).Uninstall(); err != nil {
				return fmt.Errorf("failed to remove host manifest: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Uninstalled. Data in", cfg.DataDir, "was kept.")
			return nil
		},
	}
}
