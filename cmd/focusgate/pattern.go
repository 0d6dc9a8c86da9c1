package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
	"github.com/eliteGoblin/focusd/focusgate/internal/policy"
	"github.com/eliteGoblin/focusd/focusgate/internal/usecase"
)

func newPatternCmd(opts *options) *cobra.Command {
	patternCmd := &cobra.Command{
		Use:     "pattern",
		Aliases: []string{"patterns"},
		Short:   "Manage the allow-list",
		Long: `Patterns are globs matched against normalized URLs: scheme and
default port removed, host lowercased. "*" matches within a path
segment, "**" across segments, "?" one character. A pattern ending in
"/**" also matches the bare prefix.

Examples:
  focusgate pattern add "github.com/**"
  focusgate pattern add "*.wikipedia.org/**"
  focusgate pattern test "docs.google.com/**" https://docs.google.com/document/d/x`,
	}

	patternCmd.AddCommand(
		newPatternListCmd(opts),
		newPatternAddCmd(opts),
		newPatternRemoveCmd(opts),
		newPatternEnableCmd(opts, true),
		newPatternEnableCmd(opts, false),
		newPatternTestCmd(opts),
		newPatternSuggestCmd(opts),
		newPatternWhitelistCmd(opts),
	)
	return patternCmd
}

func newPatternListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List allow-list patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.handle(usecase.ListPatterns{})
			if err != nil {
				return err
			}
			patterns := res.([]domain.Pattern)
			if patterns == nil {
				patterns = []domain.Pattern{}
			}
			if a.json {
				return a.emit(patterns)
			}
			if len(patterns) == 0 {
				fmt.Fprintln(a.out, "No patterns. Everything is blocked while focus mode is on.")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPATTERN\tENABLED\tTEMPORARY\tADDED")
			for _, p := range patterns {
				fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%s\n",
					p.ID, p.Raw, p.Enabled, p.Temporary, p.CreatedAt.Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func newPatternAddCmd(opts *options) *cobra.Command {
	var temporary bool

	cmd := &cobra.Command{
		Use:   "add <pattern>",
		Short: "Add a pattern to the allow-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.handle(usecase.AddPattern{Raw: args[0], Temporary: temporary})
			if err != nil {
				return err
			}
			id := res.(string)
			if a.json {
				return a.emit(map[string]string{"id": id})
			}
			fmt.Fprintf(a.out, "Added %s (id %s)\n", args[0], id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&temporary, "temporary", false, "Remove the pattern at the next daily reset")
	return cmd
}

func newPatternRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Remove a pattern by ID",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.handle(usecase.RemovePattern{ID: args[0]}); err != nil {
				return err
			}
			a.printf("Removed %s\n", args[0])
			return nil
		},
	}
}

func newPatternEnableCmd(opts *options, enabled bool) *cobra.Command {
	use, short := "enable <id>", "Enable a pattern"
	if !enabled {
		use, short = "disable <id>", "Disable a pattern without removing it"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.handle(usecase.SetPatternEnabled{ID: args[0], Enabled: enabled}); err != nil {
				return err
			}
			if enabled {
				a.printf("Enabled %s\n", args[0])
			} else {
				a.printf("Disabled %s\n", args[0])
			}
			return nil
		},
	}
}

func newPatternTestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "test <pattern> <url>",
		Short: "Check whether a pattern would match a URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.handle(usecase.TestURL{Raw: args[0], URL: args[1]})
			if err != nil {
				return err
			}
			matches := res.(bool)
			if a.json {
				return a.emit(map[string]any{
					"matches":    matches,
					"normalized": policy.NormalizeURL(args[1]).Full,
				})
			}
			verdict := "does not match"
			if matches {
				verdict = "matches"
			}
			fmt.Fprintf(a.out, "%s %s %s\n", args[0], verdict, policy.NormalizeURL(args[1]).Full)
			return nil
		},
	}
}

func newPatternSuggestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <url>",
		Short: "Suggest patterns that would allow a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.handle(usecase.SuggestPatterns{URL: args[0]})
			if err != nil {
				return err
			}
			suggestions := res.([]string)
			if a.json {
				return a.emit(suggestions)
			}
			for _, s := range suggestions {
				fmt.Fprintln(a.out, s)
			}
			return nil
		},
	}
}

func newPatternWhitelistCmd(opts *options) *cobra.Command {
	var (
		option string
		custom string
	)

	cmd := &cobra.Command{
		Use:   "whitelist <url>",
		Short: "Allow a blocked URL",
		Long: `Derives a pattern from a URL and adds it. Options:
  exact            host and path ("github.com/org/repo")
  domain           the host ("github.com")
  domain-wildcard  subdomains of the host ("*.github.com")
  custom           the pattern given with --custom`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.handle(usecase.AddFromURL{
				URL:    args[0],
				Option: policy.WhitelistOption(option),
				Custom: custom,
			})
			if err != nil {
				return err
			}
			id := res.(string)
			if a.json {
				return a.emit(map[string]string{"id": id})
			}
			fmt.Fprintf(a.out, "Allowed %s (id %s)\n", args[0], id)
			return nil
		},
	}

	cmd.Flags().StringVar(&option, "option", string(policy.OptionDomain), "exact, domain, domain-wildcard or custom")
	cmd.Flags().StringVar(&custom, "custom", "", "Pattern to add with --option custom")
	return cmd
}
