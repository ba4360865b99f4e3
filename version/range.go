package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is a comparator's relational operator.
type Operator int

const (
	// OpEqual matches a version of equal precedence
	OpEqual Operator = iota
	// OpGreater matches versions above the bound
	OpGreater
	// OpGreaterOrEqual matches versions at or above the bound
	OpGreaterOrEqual
	// OpLess matches versions below the bound
	OpLess
	// OpLessOrEqual matches versions at or below the bound
	OpLessOrEqual
)

// String returns the operator's range syntax.
func (o Operator) String() string {
	switch o {
	case OpGreater:
		return ">"
	case OpGreaterOrEqual:
		return ">="
	case OpLess:
		return "<"
	case OpLessOrEqual:
		return "<="
	default:
		return "="
	}
}

// Comparator is a single bound such as ">=1.2.0".
type Comparator struct {
	Op      Operator
	Version *SemVer
}

// Matches reports whether v satisfies the bound, ignoring prerelease policy.
func (c Comparator) Matches(v *SemVer) bool {
	cmp := v.Compare(c.Version)
	switch c.Op {
	case OpGreater:
		return cmp > 0
	case OpGreaterOrEqual:
		return cmp >= 0
	case OpLess:
		return cmp < 0
	case OpLessOrEqual:
		return cmp <= 0
	default:
		return cmp == 0
	}
}

func (c Comparator) String() string {
	return c.Op.String() + c.Version.String()
}

// Range is a union of comparator sets. A version satisfies the range when it
// satisfies every comparator of at least one set.
//
// Syntax:
//
//	>=1.2.3 <2.0.0   - both bounds (AND)
//	1.2.x, 1.*       - wildcard components
//	1.2 - 2.3.4      - hyphen range, inclusive
//	1.2.3, ^1.2.3    - floor (x ≥ 1.2.3)
//	=1.2.3           - exact
//	a || b           - either
type Range struct {
	Sets [][]Comparator
	raw  string
}

// nothing is a bound no version can satisfy.
var nothing = Comparator{Op: OpLess, Version: &SemVer{ReleaseLabels: []string{"0"}}}

// ParseRange parses a range expression.
func ParseRange(s string) (*Range, error) {
	raw := strings.TrimSpace(s)
	r := &Range{raw: raw}

	for _, alternative := range strings.Split(raw, "||") {
		set, err := parseComparatorSet(strings.TrimSpace(alternative))
		if err != nil {
			return nil, fmt.Errorf("invalid version range %q: %w", s, err)
		}
		r.Sets = append(r.Sets, set)
	}

	return r, nil
}

// Satisfies returns true if the version satisfies this range.
//
// A prerelease only satisfies a set that names a prerelease of the same
// major.minor.patch.
func (r *Range) Satisfies(v *SemVer) bool {
	if v == nil {
		return false
	}
	for _, set := range r.Sets {
		if setSatisfies(set, v) {
			return true
		}
	}
	return false
}

func setSatisfies(set []Comparator, v *SemVer) bool {
	for _, c := range set {
		if !c.Matches(v) {
			return false
		}
	}

	if !v.IsPrerelease() {
		return true
	}

	for _, c := range set {
		if c.Version.IsPrerelease() && c.Version.sameCore(v) {
			return true
		}
	}
	return false
}

// FindFirstMatch returns the first version, in the given order, that
// satisfies the range. Returns nil if none does.
func (r *Range) FindFirstMatch(versions []*SemVer) *SemVer {
	for _, v := range versions {
		if r.Satisfies(v) {
			return v
		}
	}
	return nil
}

// String returns the range as written.
func (r *Range) String() string {
	return r.raw
}

func parseComparatorSet(s string) ([]Comparator, error) {
	if s == "" {
		return nil, nil
	}

	if lo, hi, ok := strings.Cut(s, " - "); ok {
		return parseHyphen(strings.TrimSpace(lo), strings.TrimSpace(hi))
	}

	var set []Comparator
	for _, token := range joinOperators(strings.Fields(s)) {
		comparators, err := parseComparator(token)
		if err != nil {
			return nil, err
		}
		set = append(set, comparators...)
	}
	return set, nil
}

// joinOperators glues a bare operator token to the version that follows it,
// so ">= 1.2.3" reads like ">=1.2.3".
func joinOperators(fields []string) []string {
	out := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if isOperator(f) && i+1 < len(fields) {
			f += fields[i+1]
			i++
		}
		out = append(out, f)
	}
	return out
}

func isOperator(s string) bool {
	switch s {
	case "<", "<=", ">", ">=", "=", "^", "~", "~>":
		return true
	}
	return false
}

func parseHyphen(lo, hi string) ([]Comparator, error) {
	low, err := parsePartial(lo)
	if err != nil {
		return nil, err
	}
	high, err := parsePartial(hi)
	if err != nil {
		return nil, err
	}

	var set []Comparator
	if low.n > 0 {
		set = append(set, Comparator{Op: OpGreaterOrEqual, Version: low.floor()})
	}

	switch high.n {
	case 0:
	case 3:
		set = append(set, Comparator{Op: OpLessOrEqual, Version: high.floor()})
	default:
		set = append(set, Comparator{Op: OpLess, Version: high.ceiling()})
	}
	return set, nil
}

func parseComparator(token string) ([]Comparator, error) {
	op, rest := splitOperator(token)

	p, err := parsePartial(rest)
	if err != nil {
		return nil, err
	}

	switch op {
	case "^", "~", "~>", ">=":
		if p.n == 0 {
			return nil, nil
		}
		return []Comparator{{Op: OpGreaterOrEqual, Version: p.floor()}}, nil

	case ">":
		switch p.n {
		case 0:
			return []Comparator{nothing}, nil
		case 3:
			return []Comparator{{Op: OpGreater, Version: p.floor()}}, nil
		default:
			return []Comparator{{Op: OpGreaterOrEqual, Version: p.ceiling()}}, nil
		}

	case "<":
		if p.n == 0 {
			return []Comparator{nothing}, nil
		}
		return []Comparator{{Op: OpLess, Version: p.floor()}}, nil

	case "<=":
		switch p.n {
		case 0:
			return nil, nil
		case 3:
			return []Comparator{{Op: OpLessOrEqual, Version: p.floor()}}, nil
		default:
			return []Comparator{{Op: OpLess, Version: p.ceiling()}}, nil
		}

	case "=":
		return p.xrange(), nil

	default:
		// A bare version is a floor; explicit wildcards bound it.
		if p.wildcard {
			return p.xrange(), nil
		}
		if p.n == 0 {
			return nil, nil
		}
		return []Comparator{{Op: OpGreaterOrEqual, Version: p.floor()}}, nil
	}
}

func splitOperator(token string) (string, string) {
	for _, op := range []string{"~>", ">=", "<=", ">", "<", "=", "^", "~"} {
		if rest, ok := strings.CutPrefix(token, op); ok {
			return op, strings.TrimSpace(rest)
		}
	}
	return "", token
}

// partialVersion is a version with trailing components possibly omitted or
// wildcarded. n counts the concrete leading components.
type partialVersion struct {
	parts    [3]int
	n        int
	labels   []string
	wildcard bool
}

func parsePartial(s string) (partialVersion, error) {
	var p partialVersion

	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "="), "v")
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return p, nil
	}

	numberPart, pre, hasPre := strings.Cut(s, "-")
	components := strings.Split(numberPart, ".")
	if len(components) > 3 {
		return p, fmt.Errorf("too many version components in %q", s)
	}

	for i, c := range components {
		if c == "x" || c == "X" || c == "*" {
			p.wildcard = true
			break
		}
		value, err := strconv.Atoi(c)
		if err != nil || value < 0 {
			return p, fmt.Errorf("invalid version component %q in %q", c, s)
		}
		p.parts[i] = value
		p.n++
	}

	if hasPre {
		if p.n != 3 {
			return p, fmt.Errorf("prerelease on partial version %q", s)
		}
		labels, err := parseReleaseLabels(pre)
		if err != nil {
			return p, err
		}
		p.labels = labels
	}

	return p, nil
}

// floor is the lowest version the partial names (missing parts are zero).
func (p partialVersion) floor() *SemVer {
	return &SemVer{Major: p.parts[0], Minor: p.parts[1], Patch: p.parts[2], ReleaseLabels: p.labels}
}

// ceiling is the first version above everything the partial names.
func (p partialVersion) ceiling() *SemVer {
	switch p.n {
	case 1:
		return &SemVer{Major: p.parts[0] + 1}
	case 2:
		return &SemVer{Major: p.parts[0], Minor: p.parts[1] + 1}
	default:
		return p.floor()
	}
}

// xrange expands the partial into the bounds of every version it names.
func (p partialVersion) xrange() []Comparator {
	switch p.n {
	case 0:
		return nil
	case 3:
		return []Comparator{{Op: OpEqual, Version: p.floor()}}
	default:
		return []Comparator{
			{Op: OpGreaterOrEqual, Version: p.floor()},
			{Op: OpLess, Version: p.ceiling()},
		}
	}
}
