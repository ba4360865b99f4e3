package version

import (
	"errors"
	"strings"
)

// ErrNoVersions is returned when a package lists no parseable versions.
var ErrNoVersions = errors.New("no parseable versions published")

// Selection is the outcome of choosing a version for a requested range.
type Selection struct {
	// Version is the chosen version.
	Version *SemVer

	// Range is the normalized range the choice was made against.
	Range string

	// Fallback is true when no candidate satisfied the range and the
	// single or highest published version was chosen instead.
	Fallback bool
}

// Candidates parses published version strings, keeping listing order and
// dropping entries that are not dotted versions (tags, timestamps).
func Candidates(published []string) []*SemVer {
	candidates := make([]*SemVer, 0, len(published))
	for _, p := range published {
		if !strings.Contains(p, ".") {
			continue
		}
		v, err := Parse(p)
		if err != nil {
			continue
		}
		candidates = append(candidates, v)
	}
	return candidates
}

// Resolve picks exactly one version of a package for spec.
//
// The first candidate in listing order that satisfies the normalized range
// wins. When none does, a lone version is returned as is and otherwise the
// highest version. ErrNoVersions is returned only when nothing parses.
func Resolve(published []string, distTags map[string]string, spec string) (*SemVer, error) {
	sel, err := Select(published, distTags, spec)
	if err != nil {
		return nil, err
	}
	return sel.Version, nil
}

// Select is Resolve with the details of how the version was chosen.
func Select(published []string, distTags map[string]string, spec string) (Selection, error) {
	candidates := Candidates(published)
	if len(candidates) == 0 {
		return Selection{}, ErrNoVersions
	}

	normalized := Normalize(spec)
	sel := Selection{Range: normalized}

	if normalized == "*" {
		sel.Version = latest(candidates, distTags)
		return sel, nil
	}

	if tagged := lookupTag(candidates, distTags, normalized); tagged != nil {
		sel.Version = tagged
		return sel, nil
	}

	// An unparseable range (git, file or url specs) matches nothing.
	if r, err := ParseRange(normalized); err == nil {
		if match := r.FindFirstMatch(candidates); match != nil {
			sel.Version = match
			return sel, nil
		}
	}

	sel.Fallback = true
	if len(candidates) == 1 {
		sel.Version = candidates[0]
	} else {
		sel.Version = Max(candidates)
	}
	return sel, nil
}

// latest prefers the "latest" dist-tag, then the highest release, then the
// highest version of any kind.
func latest(candidates []*SemVer, distTags map[string]string) *SemVer {
	if tagged := lookupTag(candidates, distTags, "latest"); tagged != nil {
		return tagged
	}

	var best *SemVer
	for _, v := range candidates {
		if v.IsPrerelease() {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best != nil {
		return best
	}
	return Max(candidates)
}

func lookupTag(candidates []*SemVer, distTags map[string]string, tag string) *SemVer {
	target, ok := distTags[tag]
	if !ok {
		return nil
	}
	want, err := Parse(target)
	if err != nil {
		return nil
	}
	for _, v := range candidates {
		if v.Equals(want) {
			return v
		}
	}
	return nil
}
