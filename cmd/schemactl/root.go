package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/c360/schemaregistry/compat"
)

// rootOptions holds the global flags.
type rootOptions struct {
	Format      string
	StrictEnums bool
}

var validFormats = []string{formatText, formatJSON}

const (
	formatText = "text"
	formatJSON = "json"
)

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "schemactl",
		Short:         "Offline tooling for registry schema files",
		Long:          "Validate schema files and check version-to-version compatibility without a running registry.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return usageError(fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", formatText, "output format (text|json)")
	cmd.PersistentFlags().BoolVar(&opts.StrictEnums, "strict-enums", false, "treat a newly added enum restriction as breaking")

	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newDiffCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))

	return cmd
}

func (o *rootOptions) checker() *compat.Checker {
	if o.StrictEnums {
		return compat.NewChecker(compat.WithStrictEnums())
	}
	return compat.NewChecker()
}
