package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/schema"
)

// fileResult is the validation outcome of one schema file.
type fileResult struct {
	File   string   `json:"file"`
	ID     string   `json:"id,omitempty"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// validateResult summarizes a validate run.
type validateResult struct {
	Valid   bool         `json:"valid"`
	Total   int          `json:"total"`
	Invalid int          `json:"invalid"`
	Files   []fileResult `json:"files"`
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate every schema file in a directory",
		Long: `Validate every *.json, *.yaml and *.yml file in a directory.

Each file must be a well-formed schema document, and its id must match the
file name with any _v<version> suffix removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, opts *rootOptions, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return usageError(fmt.Errorf("read directory: %w", err))
	}

	res := validateResult{Valid: true, Files: []fileResult{}}
	for _, e := range entries {
		if e.IsDir() || !isSchemaFile(e.Name()) {
			continue
		}
		fr := validateFile(filepath.Join(dir, e.Name()))
		fr.File = e.Name()
		res.Files = append(res.Files, fr)
		res.Total++
		if !fr.Valid {
			res.Invalid++
			res.Valid = false
		}
	}

	w := cmd.OutOrStdout()
	if opts.Format == formatJSON {
		if err := writeJSON(w, res); err != nil {
			return err
		}
	} else {
		printValidate(cmd, dir, res)
	}

	if !res.Valid {
		return failure(fmt.Errorf("%d of %d schema files invalid", res.Invalid, res.Total))
	}
	return nil
}

func validateFile(path string) fileResult {
	doc, err := loadDocument(path)
	if err != nil {
		return fileResult{Errors: []string{err.Error()}}
	}

	fr := fileResult{ID: doc.ID, Valid: true}
	if err := schema.Validate(doc); err != nil {
		fr.Valid = false
		if reasons := errors.Reasons(err); len(reasons) > 0 {
			fr.Errors = append(fr.Errors, reasons...)
		} else {
			fr.Errors = append(fr.Errors, err.Error())
		}
	}
	if want := expectedID(path); doc.ID != want {
		fr.Valid = false
		fr.Errors = append(fr.Errors, fmt.Sprintf("schema id '%s' does not match expected '%s'", doc.ID, want))
	}
	return fr
}

func printValidate(cmd *cobra.Command, dir string, res validateResult) {
	w := cmd.OutOrStdout()
	if res.Total == 0 {
		printf(w, "no schema files found in %s\n", dir)
		return
	}
	for _, fr := range res.Files {
		if fr.Valid {
			printf(w, "ok      %s\n", fr.File)
			continue
		}
		printf(w, "FAILED  %s\n", fr.File)
		for _, e := range fr.Errors {
			printf(w, "        - %s\n", e)
		}
	}
	printf(w, "\n%d files, %d valid, %d invalid\n", res.Total, res.Total-res.Invalid, res.Invalid)
}
