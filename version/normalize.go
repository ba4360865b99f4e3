package version

import "strings"

const aliasPrefix = "npm:"

// Normalize rewrites a dependency's requested range into the form used for
// selection.
//
// Examples:
//   - "^1.2.3" → ">=1.2.3"
//   - "~1.2.3" → ">=1.2.3"
//   - "2" → "2.0.0"
//   - "" / "x" / "latest" → "*"
//   - "npm:real-name@^2.0.0" → ">=2.0.0"
//   - "1.x || ^3.1.0" → ">=3.1.0"
func Normalize(spec string) string {
	s := strings.TrimSpace(spec)

	if _, rng, ok := SplitAlias(s); ok {
		s = rng
	}

	if i := strings.LastIndex(s, "||"); i >= 0 {
		s = strings.TrimSpace(s[i+2:])
	}

	switch s {
	case "", "*", "x", "X", "latest":
		return "*"
	}

	if rest, ok := strings.CutPrefix(s, "~>"); ok {
		s = ">=" + strings.TrimSpace(rest)
	} else if s[0] == '^' || s[0] == '~' {
		s = ">=" + strings.TrimSpace(s[1:])
	}

	if isDigits(s) {
		s += ".0.0"
	}

	return s
}

// SplitAlias splits a registry alias of the form "npm:<name>@<range>".
// ok is false when spec is not an alias. A missing range yields "*".
func SplitAlias(spec string) (name, rng string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(spec), aliasPrefix)
	if !found {
		return "", spec, false
	}

	// The leading '@' of a scoped name is not a separator.
	at := strings.LastIndex(rest, "@")
	if at <= 0 {
		return rest, "*", true
	}

	rng = rest[at+1:]
	if rng == "" {
		rng = "*"
	}
	return rest[:at], rng, true
}

func isDigits(s string) bool {
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
