package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
	"github.com/eliteGoblin/focusd/focusgate/internal/infra"
	"github.com/eliteGoblin/focusd/focusgate/internal/usecase"
)

func newExportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export settings and patterns as JSON",
		Long:  `Writes settings and patterns to file, or to stdout when no file is given.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.handle(usecase.Export{})
			if err != nil {
				return err
			}
			bundle := res.(domain.Bundle)

			if len(args) == 0 {
				data, err := infra.EncodeBundle(bundle)
				if err != nil {
					return err
				}
				_, err = a.out.Write(data)
				return err
			}
			if err := infra.WriteBundleFile(args[0], bundle); err != nil {
				return err
			}
			a.printf("Exported %d patterns to %s\n", len(bundle.Patterns), args[0])
			return nil
		},
	}
}

func newImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import settings and patterns from an export",
		Long: `Replaces settings and patterns with those in file ("-" for stdin).
Comments and trailing commas are accepted. The goal and focus state are
left alone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var bundle domain.Bundle
			if args[0] == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				bundle, err = infra.DecodeBundle(data)
				if err != nil {
					return err
				}
			} else {
				bundle, err = infra.ReadBundleFile(args[0])
				if err != nil {
					return err
				}
			}

			if _, err := a.handle(usecase.Import{Bundle: bundle}); err != nil {
				return err
			}
			a.printf("Imported %d patterns\n", len(bundle.Patterns))
			return nil
		},
	}
}

func newClearCmd(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all patterns, settings and the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear all data without --yes")
			}

			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.handle(usecase.ClearAll{}); err != nil {
				return err
			}
			a.printf("All data cleared.\n")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm")
	return cmd
}
