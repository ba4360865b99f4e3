// Package version provides npm semantic version parsing, range matching and
// the version selection policy used when installing packages.
//
// Example:
//
//	v, err := version.Parse("1.2.3-beta.1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(v.Major, v.Minor, v.Patch) // 1 2 3
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// SemVer represents a published package version.
//
// The format is Major.Minor.Patch[-Prerelease][+Metadata].
type SemVer struct {
	// Major version number
	Major int

	// Minor version number
	Minor int

	// Patch version number
	Patch int

	// ReleaseLabels contains prerelease identifiers (e.g., ["beta", "1"] for "1.0.0-beta.1")
	ReleaseLabels []string

	// Metadata is the build metadata (e.g., "20241019" for "1.0.0+20241019").
	// It does not take part in comparison.
	Metadata string

	// originalString preserves the original version string
	originalString string
}

// String returns the string representation of the version.
func (v *SemVer) String() string {
	if v.originalString != "" {
		return v.originalString
	}
	return v.format()
}

// IsPrerelease reports whether the version carries prerelease labels.
func (v *SemVer) IsPrerelease() bool {
	return len(v.ReleaseLabels) > 0
}

func (v *SemVer) format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)

	if len(v.ReleaseLabels) > 0 {
		b.WriteByte('-')
		b.WriteString(strings.Join(v.ReleaseLabels, "."))
	}

	if v.Metadata != "" {
		b.WriteByte('+')
		b.WriteString(v.Metadata)
	}

	return b.String()
}

// Parse parses a version string into a SemVer.
//
// A leading "v" or "=" is tolerated, as npm does for published versions.
// All three numeric components are required.
//
// Example:
//
//	v, err := Parse("1.0.0-beta.1+build.123")
//	if err != nil {
//	    return err
//	}
func Parse(s string) (*SemVer, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "=")
	trimmed = strings.TrimPrefix(trimmed, "v")
	if trimmed == "" {
		return nil, fmt.Errorf("version string cannot be empty")
	}

	v := &SemVer{
		originalString: trimmed,
	}

	// Split on '+' to extract metadata
	parts := strings.SplitN(trimmed, "+", 2)
	versionPart := parts[0]
	if len(parts) == 2 {
		if parts[1] == "" {
			return nil, fmt.Errorf("empty build metadata: %q", s)
		}
		v.Metadata = parts[1]
	}

	// Split on '-' to extract prerelease labels
	parts = strings.SplitN(versionPart, "-", 2)
	numberPart := parts[0]
	if len(parts) == 2 {
		labels, err := parseReleaseLabels(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid prerelease in %q: %w", s, err)
		}
		v.ReleaseLabels = labels
	}

	numbers := strings.Split(numberPart, ".")
	if len(numbers) != 3 {
		return nil, fmt.Errorf("invalid version format: %q", s)
	}

	var err error
	if v.Major, err = parseNumeric(numbers[0]); err != nil {
		return nil, fmt.Errorf("invalid major version: %q", numbers[0])
	}
	if v.Minor, err = parseNumeric(numbers[1]); err != nil {
		return nil, fmt.Errorf("invalid minor version: %q", numbers[1])
	}
	if v.Patch, err = parseNumeric(numbers[2]); err != nil {
		return nil, fmt.Errorf("invalid patch version: %q", numbers[2])
	}

	return v, nil
}

// MustParse parses a version string and panics on error.
// Use this only when you know the version string is valid.
func MustParse(s string) *SemVer {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// parseNumeric parses a version component, rejecting signs and leading zeros.
func parseNumeric(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty component")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("leading zero in %q", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-numeric component %q", s)
		}
	}
	return strconv.Atoi(s)
}

// parseReleaseLabels splits a prerelease string into identifiers.
func parseReleaseLabels(s string) ([]string, error) {
	if s == "" {
		return nil, fmt.Errorf("empty prerelease")
	}
	labels := strings.Split(s, ".")
	for _, label := range labels {
		if label == "" {
			return nil, fmt.Errorf("empty prerelease identifier")
		}
		for _, r := range label {
			if !isIdentifierRune(r) {
				return nil, fmt.Errorf("invalid character %q in identifier %q", r, label)
			}
		}
	}
	return labels, nil
}

func isIdentifierRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '-'
}
