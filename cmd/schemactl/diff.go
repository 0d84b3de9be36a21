package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360/schemaregistry/compat"
)

func newDiffCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Show every change between two schema files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldDoc, newDoc, err := loadPair(args[0], args[1])
			if err != nil {
				return err
			}
			d := compat.Diff(oldDoc, newDoc)
			if opts.Format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			printDiff(cmd.OutOrStdout(), oldDoc.Version, newDoc.Version, d)
			return nil
		},
	}
}

func printDiff(w io.Writer, from, to string, d compat.SchemaDiff) {
	printf(w, "diff %s -> %s\n", from, to)
	if d.Empty() {
		printf(w, "no changes\n")
		return
	}
	printList(w, "added fields", d.AddedFields)
	printList(w, "removed fields", d.RemovedFields)
	printList(w, "modified fields", d.ModifiedFields)
	for _, tc := range d.TypeChanges {
		printf(w, "type change     %s: %s -> %s\n", tc.Field, tc.OldType, tc.NewType)
	}
	for _, ec := range d.EnumChanges {
		printf(w, "enum change     %s: %s -> %s\n", ec.Field, encodeEnum(ec.OldEnum), encodeEnum(ec.NewEnum))
	}
	if rc := d.RequiredChanges; rc != nil {
		printList(w, "now required", rc.Added)
		printList(w, "now optional", rc.Removed)
	}
}

func printList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	printf(w, "%-15s %s\n", label, strings.Join(items, ", "))
}

func encodeEnum(values []any) string {
	raw, err := json.Marshal(values)
	if err != nil {
		return "?"
	}
	return string(raw)
}
