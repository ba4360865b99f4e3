package registry

import (
	"errors"

	"github.com/willibrandon/gonpm/core"
	"github.com/willibrandon/gonpm/version"
)

// PackageIndex is the version listing of one package. It is immutable once
// fetched.
type PackageIndex struct {
	Name string

	// PublishedVersions holds dotted version keys in registry listing order.
	PublishedVersions []string

	// DistTags maps tag names (latest, next, ...) to versions.
	DistTags map[string]string
}

// Select chooses a version for spec and reports how it was chosen.
// A package without parseable versions yields a ResolutionError.
func (p *PackageIndex) Select(spec string) (version.Selection, error) {
	sel, err := version.Select(p.PublishedVersions, p.DistTags, spec)
	if errors.Is(err, version.ErrNoVersions) {
		return sel, core.ResolutionError(p.Name, spec, err)
	}
	return sel, err
}

// Resolve chooses a version for spec.
func (p *PackageIndex) Resolve(spec string) (*version.SemVer, error) {
	sel, err := p.Select(spec)
	if err != nil {
		return nil, err
	}
	return sel.Version, nil
}

// Dist describes where a version's archive lives and how to verify it.
type Dist struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum,omitempty"`
	Integrity string `json:"integrity,omitempty"`

	// FileCount is the number of files in the archive, when the registry
	// declares it.
	FileCount *int `json:"fileCount,omitempty"`
}

// ResolvedPackage is the manifest of one published version. It is
// immutable once fetched.
type ResolvedPackage struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
	Dist            Dist              `json:"dist"`
}

// Requests returns the child requests of p, dependencies first, then
// devDependencies not already named there.
func (p *ResolvedPackage) Requests() []core.DependencyRequest {
	reqs := core.RequestsFrom(p.Dependencies, p.Name)
	for _, dev := range core.RequestsFrom(p.DevDependencies, p.Name) {
		if _, dup := p.Dependencies[dev.Name]; !dup {
			reqs = append(reqs, dev)
		}
	}
	return reqs
}
