// Package version parses and orders MAJOR.MINOR.PATCH version strings.
package version

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/c360/schemaregistry/errors"
)

// ErrInvalidFormat is returned for any string that is not three dot-separated
// non-negative integers. It matches errors.ErrValidationFailed.
var ErrInvalidFormat = fmt.Errorf("invalid version format: %w", errors.ErrValidationFailed)

// Version is a parsed semantic version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// String returns the canonical MAJOR.MINOR.PATCH form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Parse parses a version string. Missing, extra, signed or non-numeric
// components are rejected.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q must be MAJOR.MINOR.PATCH", ErrInvalidFormat, s)
	}

	var nums [3]int
	for i, p := range parts {
		n, err := parseComponent(p)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q component %d: %v", ErrInvalidFormat, s, i, err)
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func parseComponent(p string) (int, error) {
	if p == "" {
		return 0, fmt.Errorf("empty component")
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-numeric component %q", p)
		}
	}
	return strconv.Atoi(p)
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or 1 comparing (major, minor, patch) lexicographically.
func Compare(a, b Version) int {
	switch {
	case a.Major != b.Major:
		return cmpInt(a.Major, b.Major)
	case a.Minor != b.Minor:
		return cmpInt(a.Minor, b.Minor)
	default:
		return cmpInt(a.Patch, b.Patch)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether v orders before o.
func (v Version) Less(o Version) bool { return Compare(v, o) < 0 }

// CompareStrings parses both strings and compares them.
func CompareStrings(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return Compare(va, vb), nil
}

// SortAscending returns a new slice with the versions in ascending order.
// The sort is stable so duplicates keep their input order.
func SortAscending(versions []string) ([]string, error) {
	type parsed struct {
		raw string
		v   Version
	}

	items := make([]parsed, 0, len(versions))
	for _, s := range versions {
		v, err := Parse(s)
		if err != nil {
			return nil, err
		}
		items = append(items, parsed{raw: s, v: v})
	}

	slices.SortStableFunc(items, func(a, b parsed) int { return Compare(a.v, b.v) })

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.raw
	}
	return out, nil
}

// Max returns the highest version in the list. ok is false for an empty list.
// Malformed entries are skipped.
func Max(versions []string) (max string, ok bool) {
	var best Version
	for _, s := range versions {
		v, err := Parse(s)
		if err != nil {
			continue
		}
		if !ok || Compare(v, best) > 0 {
			best, max, ok = v, s, true
		}
	}
	return max, ok
}
