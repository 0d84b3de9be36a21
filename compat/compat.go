// Package compat classifies a schema transition as compatible or breaking.
//
// Check evaluates every rule and reports all findings rather than stopping at
// the first one:
//
//   - a required field that is no longer required
//   - a property that was removed
//   - a type change that is not a safe widening
//   - an enum value that was removed (when both sides declare an enum)
//   - additionalProperties tightened from true to false
//
// Check is pure and total. A nil document, or one with no properties, is
// treated as declaring nothing.
package compat

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/c360/schemaregistry/schema"
)

// Report messages.
const (
	MessageCompatible = "compatible"
	MessageBreaking   = "breaking changes detected"
)

// Report is the outcome of a compatibility check. It is never persisted.
type Report struct {
	Compatible      bool     `json:"compatible"`
	Message         string   `json:"message"`
	BreakingChanges []string `json:"breaking_changes"`
}

// HasBreakingChanges reports whether any breaking change was found.
func (r Report) HasBreakingChanges() bool {
	return len(r.BreakingChanges) > 0
}

// safeWidenings maps a type tag to the tags it may widen to. Both JSON-Schema
// and columnar tags share the table; direction matters.
var safeWidenings = map[string][]string{
	"integer": {"number"},
	"int32":   {"int64", "float64"},
	"int64":   {"float64"},
	"float32": {"float64"},
}

// IsSafeWidening reports whether changing a field from oldType to newType
// accepts every value oldType accepted.
func IsSafeWidening(oldType, newType string) bool {
	for _, t := range safeWidenings[oldType] {
		if t == newType {
			return true
		}
	}
	return false
}

// Option configures a Checker.
type Option func(*Checker)

// WithStrictEnums also flags a field that gains an enum it did not declare
// before. Off by default.
func WithStrictEnums() Option {
	return func(c *Checker) { c.strictEnums = true }
}

// Checker runs compatibility checks.
type Checker struct {
	strictEnums bool
}

// NewChecker creates a Checker.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultChecker = NewChecker()

// Check compares oldDoc against newDoc with the default rules.
func Check(oldDoc, newDoc *schema.Document) Report {
	return defaultChecker.Check(oldDoc, newDoc)
}

// Check compares oldDoc against newDoc and returns every breaking change found.
func (c *Checker) Check(oldDoc, newDoc *schema.Document) Report {
	oldView, newView := view(oldDoc), view(newDoc)

	var changes []string

	for _, name := range difference(oldView.required, newView.required) {
		changes = append(changes, fmt.Sprintf("removed required field: %s", name))
	}

	for _, name := range difference(keys(oldView.props), keys(newView.props)) {
		changes = append(changes, fmt.Sprintf("removed property: %s", name))
	}

	shared := intersection(keys(oldView.props), keys(newView.props))

	for _, name := range shared {
		oldType, newType := oldView.props[name].Type, newView.props[name].Type
		if oldType != newType && !IsSafeWidening(oldType, newType) {
			changes = append(changes, fmt.Sprintf("type change for field %s: %s -> %s",
				name, describeType(oldType), describeType(newType)))
		}
	}

	for _, name := range shared {
		oldEnum, newEnum := oldView.props[name].Enum, newView.props[name].Enum
		switch {
		case len(oldEnum) > 0 && len(newEnum) > 0:
			for _, v := range removedValues(oldEnum, newEnum) {
				changes = append(changes, fmt.Sprintf("removed enum value: %s for field %s", formatValue(v), name))
			}
		case c.strictEnums && len(oldEnum) == 0 && len(newEnum) > 0:
			changes = append(changes, fmt.Sprintf("added enum restriction for field %s", name))
		}
	}

	if oldView.additional && !newView.additional {
		changes = append(changes, "additionalProperties changed from true to false")
	}

	if len(changes) == 0 {
		return Report{Compatible: true, Message: MessageCompatible}
	}
	return Report{Compatible: false, Message: MessageBreaking, BreakingChanges: changes}
}

// docView is the normalized part of a document the rules look at.
type docView struct {
	props      map[string]schema.FieldSpec
	required   []string
	additional bool
}

func view(d *schema.Document) docView {
	if d == nil {
		return docView{}
	}
	return docView{
		props:      d.Properties,
		required:   dedupe(d.RequiredFields),
		additional: d.AllowAdditionalProperties,
	}
}

func keys(m map[string]schema.FieldSpec) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// difference returns the sorted members of a missing from b.
func difference(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	var out []string
	for _, s := range a {
		if !inB[s] {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// intersection returns the sorted members present in both a and b.
func intersection(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	var out []string
	for _, s := range a {
		if inB[s] {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// removedValues returns the values of oldEnum absent from newEnum, in oldEnum order.
// Values compare by their JSON encoding so 1 and "1" stay distinct.
func removedValues(oldEnum, newEnum []any) []any {
	present := make(map[string]bool, len(newEnum))
	for _, v := range newEnum {
		present[valueKey(v)] = true
	}
	var out []any
	seen := make(map[string]bool)
	for _, v := range oldEnum {
		k := valueKey(v)
		if !present[k] && !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

func valueKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return valueKey(v)
}

func describeType(t string) string {
	if t == "" {
		return "none"
	}
	return t
}
