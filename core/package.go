// Package core provides the types shared by resolution and installation.
//
// It defines DependencyRequest, the edge of the dependency graph, and the
// Error taxonomy every stage reports failures with.
package core

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/willibrandon/gonpm/version"
)

// npmNameRe matches registry package names, scoped or not. Uppercase is
// accepted because legacy packages (JSONStream) still carry it.
var npmNameRe = regexp.MustCompile(`^(@[A-Za-z0-9-~][A-Za-z0-9-._~]*/)?[A-Za-z0-9-~][A-Za-z0-9-._~]*$`)

// DependencyRequest is a dependency declared by a parent package or by the
// root manifest. Many requests may name the same package.
type DependencyRequest struct {
	// Name is the name the package is installed under
	Name string

	// Range is the requested version range as written by the parent
	Range string

	// Parent is the name of the declaring package ("" for root requests)
	Parent string
}

// NewDependencyRequest creates a request declared by parent.
func NewDependencyRequest(name, rng, parent string) DependencyRequest {
	return DependencyRequest{Name: name, Range: rng, Parent: parent}
}

// Target returns the registry name to resolve and the range to resolve it
// against. For "npm:<name>@<range>" aliases the target differs from Name.
func (r DependencyRequest) Target() (name, rng string) {
	if target, aliasRange, ok := version.SplitAlias(r.Range); ok && target != "" {
		return target, aliasRange
	}
	return r.Name, r.Range
}

// String returns "name@range".
func (r DependencyRequest) String() string {
	return fmt.Sprintf("%s@%s", r.Name, r.Range)
}

// RequestsFrom turns a name → range mapping into requests declared by
// parent, sorted by name so runs are reproducible in logs.
func RequestsFrom(deps map[string]string, parent string) []DependencyRequest {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	requests := make([]DependencyRequest, 0, len(names))
	for _, name := range names {
		requests = append(requests, NewDependencyRequest(name, deps[name], parent))
	}
	return requests
}

// ValidPackageName reports whether name is an acceptable registry name.
func ValidPackageName(name string) bool {
	return len(name) <= 214 && npmNameRe.MatchString(name)
}
