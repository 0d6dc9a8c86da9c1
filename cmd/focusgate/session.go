package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
	"github.com/eliteGoblin/focusd/focusgate/internal/usecase"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.handle(usecase.GetStatus{})
			if err != nil {
				return err
			}
			status := res.(domain.Status)

			alive, _ := a.registry.IsAlive()
			d, _ := a.registry.Get()

			if a.json {
				return a.emit(struct {
					domain.Status
					DaemonRunning bool `json:"daemon_running"`
				}{status, alive})
			}

			fmt.Fprintln(a.out, "=== focusgate status ===")
			fmt.Fprintf(a.out, "State:       %s\n", status.State)
			if status.HasGoal {
				done := ""
				if status.GoalCompleted {
					done = " (completed)"
				}
				fmt.Fprintf(a.out, "Goal:        %s%s\n", status.Goal, done)
			} else {
				fmt.Fprintln(a.out, "Goal:        none - set one with 'focusgate goal set'")
			}
			fmt.Fprintf(a.out, "Focus:       %s\n", onOff(status.FocusEnabled))
			fmt.Fprintf(a.out, "Next reset:  %s\n", status.NextResetAt.Format(time.RFC1123))
			fmt.Fprintf(a.out, "Strict mode: %s\n", onOff(status.StrictMode))
			fmt.Fprintln(a.out)
			fmt.Fprintln(a.out, "=== Daemon ===")
			if alive && d != nil {
				fmt.Fprintf(a.out, "Scheduler:   running (PID %d, since %s)\n", d.PID, d.StartedAt.Format(time.RFC3339))
			} else {
				fmt.Fprintln(a.out, "Scheduler:   not running - start with 'focusgate start'")
			}
			return nil
		},
	}
}

// errBlocked signals a blocked URL through the exit status.
var errBlocked = errors.New("url is blocked")

func newCheckCmd(opts *options) *cobra.Command {
	var exitCode bool

	cmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Decide whether a URL may be visited",
		Long:  `Evaluates a URL against the session and the allow-list. Exits non-zero with --exit-code when blocked.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.handle(usecase.Evaluate{URL: args[0]})
			if err != nil {
				return err
			}
			decision := res.(domain.Decision)
			if a.json {
				if err := a.emit(decision); err != nil {
					return err
				}
				if exitCode && !decision.Allowed {
					return errBlocked
				}
				return nil
			}
			verdict := "BLOCKED"
			if decision.Allowed {
				verdict = "ALLOWED"
			}
			fmt.Fprintf(a.out, "%s: %s (%s)\n", verdict, args[0], decision.Reason)
			if exitCode && !decision.Allowed {
				return errBlocked
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with status 1 when the URL is blocked")
	return cmd
}

func newGoalCmd(opts *options) *cobra.Command {
	goalCmd := &cobra.Command{
		Use:   "goal",
		Short: "Set or complete today's goal",
	}

	setCmd := &cobra.Command{
		Use:   "set <text...>",
		Short: "Declare today's goal and unlock browsing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			text := strings.Join(args, " ")
			if _, err := a.handle(usecase.SetGoal{Text: text}); err != nil {
				return err
			}
			a.printf("Goal set: %s\nFocus mode is on; only allow-listed sites are reachable.\n", strings.TrimSpace(text))
			return nil
		},
	}

	completeCmd := &cobra.Command{
		Use:   "complete",
		Short: "Mark today's goal complete and end focus mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.handle(usecase.CompleteGoal{}); err != nil {
				return err
			}
			a.printf("Goal completed. Browsing is unrestricted until the next reset.\n")
			return nil
		},
	}

	goalCmd.AddCommand(setCmd, completeCmd)
	return goalCmd
}

func newFocusCmd(opts *options) *cobra.Command {
	focusCmd := &cobra.Command{
		Use:   "focus",
		Short: "Control focus mode",
	}

	toggleCmd := &cobra.Command{
		Use:   "toggle",
		Short: "Turn focus mode on or off (requires a goal)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.handle(usecase.ToggleFocus{})
			if err != nil {
				return err
			}
			enabled := res.(bool)
			if a.json {
				return a.emit(map[string]bool{"focus_enabled": enabled})
			}
			fmt.Fprintf(a.out, "Focus mode: %s\n", onOff(enabled))
			return nil
		},
	}

	focusCmd.AddCommand(toggleCmd)
	return focusCmd
}

func newSettingsCmd(opts *options) *cobra.Command {
	var (
		resetHour  int
		strictMode bool
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change settings",
		Long: `Without flags, prints the current settings. With --reset-hour or
--strict-mode, updates them. A running daemon re-arms its reset timer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var update usecase.UpdateSettings
			if cmd.Flags().Changed("reset-hour") {
				update.ResetHour = &resetHour
			}
			if cmd.Flags().Changed("strict-mode") {
				update.StrictMode = &strictMode
			}
			if update.ResetHour != nil || update.StrictMode != nil {
				if _, err := a.handle(update); err != nil {
					return err
				}
			}

			settings, err := a.engine.Settings(context.Background())
			if err != nil {
				return err
			}
			if a.json {
				return a.emit(settings)
			}
			fmt.Fprintf(a.out, "Reset hour:  %02d:00\n", settings.ResetHour)
			fmt.Fprintf(a.out, "Strict mode: %s\n", onOff(settings.StrictMode))
			return nil
		},
	}

	cmd.Flags().IntVar(&resetHour, "reset-hour", domain.DefaultResetHour, "Local hour (0-23) at which the day resets")
	cmd.Flags().BoolVar(&strictMode, "strict-mode", true, "Strict mode preference")
	return cmd
}

func newResetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the day now: clear the goal and lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.handle(usecase.ResetDay{}); err != nil {
				return err
			}
			a.printf("Day reset. Set a new goal to unlock browsing.\n")
			return nil
		},
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
