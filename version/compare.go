package version

import (
	"strconv"
	"strings"
)

// Compare compares two versions by semver precedence.
//
// Returns -1 if v < other, 0 if equal, 1 if v > other.
// Build metadata is ignored.
func (v *SemVer) Compare(other *SemVer) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, other.Patch); c != 0 {
		return c
	}
	return compareReleaseLabels(v.ReleaseLabels, other.ReleaseLabels)
}

// Equals reports whether two versions have equal precedence.
func (v *SemVer) Equals(other *SemVer) bool {
	return v.Compare(other) == 0
}

// LessThan reports whether v precedes other.
func (v *SemVer) LessThan(other *SemVer) bool {
	return v.Compare(other) < 0
}

// GreaterThan reports whether v follows other.
func (v *SemVer) GreaterThan(other *SemVer) bool {
	return v.Compare(other) > 0
}

// sameCore reports whether both versions share major.minor.patch.
func (v *SemVer) sameCore(other *SemVer) bool {
	return v.Major == other.Major && v.Minor == other.Minor && v.Patch == other.Patch
}

// Max returns the highest version in versions, or nil when empty.
func Max(versions []*SemVer) *SemVer {
	var best *SemVer
	for _, v := range versions {
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	return best
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareReleaseLabels orders prerelease identifiers.
// A release (no labels) sorts after any prerelease of the same core.
func compareReleaseLabels(a, b []string) int {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 0
	case len(a) == 0:
		return 1
	case len(b) == 0:
		return -1
	}

	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareLabel(a[i], b[i]); c != 0 {
			return c
		}
	}

	return compareInt(len(a), len(b))
}

// compareLabel compares identifiers: numeric ones numerically and below
// alphanumeric ones, which compare in ASCII order.
func compareLabel(a, b string) int {
	aNum, bNum := isNumericLabel(a), isNumericLabel(b)

	switch {
	case aNum && bNum:
		an, _ := strconv.Atoi(a)
		bn, _ := strconv.Atoi(b)
		return compareInt(an, bn)
	case aNum:
		return -1
	case bNum:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func isNumericLabel(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
