package tooldef

import (
	"fmt"

	"github.com/blang/semver/v4"
)

// ParseVersion parses a definition version as a semantic version, tolerating
// a leading "v" and missing minor/patch components.
func ParseVersion(version string) (semver.Version, error) {
	v, err := semver.ParseTolerant(version)
	if err != nil {
		return semver.Version{}, fmt.Errorf("ParseVersion %q: %w", version, err)
	}
	return v, nil
}

// SameVersion compares two version strings. When both parse as semantic
// versions they are compared structurally ("1.0" equals "1.0.0"); otherwise
// the raw strings are compared.
func SameVersion(a, b string) bool {
	va, errA := semver.ParseTolerant(a)
	vb, errB := semver.ParseTolerant(b)
	if errA == nil && errB == nil {
		return va.EQ(vb)
	}
	return a == b
}
