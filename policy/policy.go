// Package policy decides whether a proposed version number is consistent with
// the compatibility verdict for the change it introduces.
//
// A breaking change must bump the major version. A major bump without any
// breaking change is rejected too, so every major bump is justified by at
// least one breaking change. Minor and patch movement is otherwise
// unconstrained; uniqueness of (id, version) is enforced by the store.
package policy

import (
	"fmt"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/version"
)

// ErrPolicyViolation is returned by CheckBump. It matches errors.ErrValidationFailed.
var ErrPolicyViolation = fmt.Errorf("version bump rejected: %w", errors.ErrValidationFailed)

// ValidateBump reports whether moving from oldVersion to newVersion is allowed
// given whether breaking changes were detected. Malformed versions fail the check.
func ValidateBump(oldVersion, newVersion string, hasBreakingChanges bool) bool {
	return CheckBump(oldVersion, newVersion, hasBreakingChanges) == nil
}

// CheckBump applies the same rule as ValidateBump and explains a rejection.
func CheckBump(oldVersion, newVersion string, hasBreakingChanges bool) error {
	oldV, err := version.Parse(oldVersion)
	if err != nil {
		return fmt.Errorf("%w: current version: %w", ErrPolicyViolation, err)
	}
	newV, err := version.Parse(newVersion)
	if err != nil {
		return fmt.Errorf("%w: proposed version: %w", ErrPolicyViolation, err)
	}

	if hasBreakingChanges {
		if newV.Major > oldV.Major {
			return nil
		}
		return fmt.Errorf("%w: breaking changes require a major version bump from %s, got %s",
			ErrPolicyViolation, oldVersion, newVersion)
	}

	if newV.Major > oldV.Major {
		return fmt.Errorf("%w: major version bump from %s to %s without breaking changes",
			ErrPolicyViolation, oldVersion, newVersion)
	}
	return nil
}
