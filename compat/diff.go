package compat

import (
	"github.com/c360/schemaregistry/schema"
)

// TypeChange records a field whose type tag changed.
type TypeChange struct {
	Field   string `json:"field"`
	OldType string `json:"old_type"`
	NewType string `json:"new_type"`
}

// EnumChange records a field whose enum list changed.
type EnumChange struct {
	Field   string `json:"field"`
	OldEnum []any  `json:"old_enum"`
	NewEnum []any  `json:"new_enum"`
}

// RequiredChanges records fields that became required or stopped being required.
type RequiredChanges struct {
	Added   []string `json:"added_required"`
	Removed []string `json:"removed_required"`
}

// SchemaDiff is an audit view of everything that changed between two
// documents, breaking or not. It plays no part in accept/reject decisions.
type SchemaDiff struct {
	AddedFields     []string         `json:"added_fields"`
	RemovedFields   []string         `json:"removed_fields"`
	ModifiedFields  []string         `json:"modified_fields"`
	TypeChanges     []TypeChange     `json:"type_changes"`
	EnumChanges     []EnumChange     `json:"enum_changes"`
	RequiredChanges *RequiredChanges `json:"required_changes,omitempty"`
}

// Empty reports whether nothing changed.
func (d SchemaDiff) Empty() bool {
	return len(d.AddedFields) == 0 &&
		len(d.RemovedFields) == 0 &&
		len(d.ModifiedFields) == 0 &&
		d.RequiredChanges == nil
}

// Diff computes the SchemaDiff between oldDoc and newDoc. Every list is sorted by field name.
func Diff(oldDoc, newDoc *schema.Document) SchemaDiff {
	oldView, newView := view(oldDoc), view(newDoc)
	oldFields, newFields := keys(oldView.props), keys(newView.props)

	diff := SchemaDiff{
		AddedFields:    orEmpty(difference(newFields, oldFields)),
		RemovedFields:  orEmpty(difference(oldFields, newFields)),
		ModifiedFields: []string{},
		TypeChanges:    []TypeChange{},
		EnumChanges:    []EnumChange{},
	}

	for _, name := range intersection(oldFields, newFields) {
		oldSpec, newSpec := oldView.props[name], newView.props[name]
		if oldSpec.Equal(newSpec) {
			continue
		}
		diff.ModifiedFields = append(diff.ModifiedFields, name)

		if oldSpec.Type != newSpec.Type {
			diff.TypeChanges = append(diff.TypeChanges, TypeChange{
				Field:   name,
				OldType: oldSpec.Type,
				NewType: newSpec.Type,
			})
		}

		if (oldSpec.Enum != nil || newSpec.Enum != nil) && !sameValues(oldSpec.Enum, newSpec.Enum) {
			diff.EnumChanges = append(diff.EnumChanges, EnumChange{
				Field:   name,
				OldEnum: orEmptyAny(oldSpec.Enum),
				NewEnum: orEmptyAny(newSpec.Enum),
			})
		}
	}

	added := difference(newView.required, oldView.required)
	removed := difference(oldView.required, newView.required)
	if len(added) > 0 || len(removed) > 0 {
		diff.RequiredChanges = &RequiredChanges{Added: orEmpty(added), Removed: orEmpty(removed)}
	}

	return diff
}

// sameValues compares two enum lists in order.
func sameValues(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if valueKey(a[i]) != valueKey(b[i]) {
			return false
		}
	}
	return true
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyAny(s []any) []any {
	if s == nil {
		return []any{}
	}
	return s
}
