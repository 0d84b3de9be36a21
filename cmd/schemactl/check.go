package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/c360/schemaregistry/compat"
	"github.com/c360/schemaregistry/policy"
)

// checkResult is the output of check: the compatibility report plus the
// version policy verdict.
type checkResult struct {
	ID          string        `json:"id"`
	FromVersion string        `json:"from_version"`
	ToVersion   string        `json:"to_version"`
	Report      compat.Report `json:"report"`
	BumpAllowed bool          `json:"bump_allowed"`
	BumpError   string        `json:"bump_error,omitempty"`
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <old> <new>",
		Short: "Check compatibility and the version bump between two schema files",
		Long: `Check whether <new> may follow <old> in the registry.

Exits with status 1 when the version bump is not allowed for the detected
changes, for example breaking changes without a major version bump.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, args[0], args[1])
		},
	}
}

func runCheck(cmd *cobra.Command, opts *rootOptions, oldPath, newPath string) error {
	oldDoc, newDoc, err := loadPair(oldPath, newPath)
	if err != nil {
		return err
	}
	if oldDoc.ID != newDoc.ID {
		return usageError(fmt.Errorf("schema ids differ: '%s' and '%s'", oldDoc.ID, newDoc.ID))
	}

	report := opts.checker().Check(oldDoc, newDoc)
	res := checkResult{
		ID:          newDoc.ID,
		FromVersion: oldDoc.Version,
		ToVersion:   newDoc.Version,
		Report:      report,
		BumpAllowed: true,
	}
	if res.Report.BreakingChanges == nil {
		res.Report.BreakingChanges = []string{}
	}
	bumpErr := policy.CheckBump(oldDoc.Version, newDoc.Version, report.HasBreakingChanges())
	if bumpErr != nil {
		res.BumpAllowed = false
		res.BumpError = bumpErr.Error()
	}

	w := cmd.OutOrStdout()
	if opts.Format == formatJSON {
		if err := writeJSON(w, res); err != nil {
			return err
		}
	} else {
		printCheck(w, res)
	}

	if bumpErr != nil {
		return failure(bumpErr)
	}
	return nil
}

func printCheck(w io.Writer, res checkResult) {
	printf(w, "%s %s -> %s\n", res.ID, res.FromVersion, res.ToVersion)
	printf(w, "compatibility: %s\n", res.Report.Message)
	for _, c := range res.Report.BreakingChanges {
		printf(w, "  - %s\n", c)
	}
	if res.BumpAllowed {
		printf(w, "version bump:  allowed\n")
		return
	}
	printf(w, "version bump:  rejected\n")
	printf(w, "  %s\n", res.BumpError)
}
