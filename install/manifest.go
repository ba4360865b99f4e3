package install

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/willibrandon/gonpm/core"
)

// ManifestFile is the root manifest name.
const ManifestFile = "package.json"

// Manifest is the part of package.json an install reads.
type Manifest struct {
	Path            string            `json:"-"`
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// LoadManifest reads dir/package.json. A missing or malformed file is a
// ManifestError.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.ManifestError(path, "no package.json found", err)
		}
		return nil, core.ManifestError(path, "cannot read package.json", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, core.ManifestError(path, "malformed package.json", err)
	}
	m.Path = path

	for name := range m.Dependencies {
		if !core.ValidPackageName(name) {
			return nil, core.ManifestError(path, "invalid dependency name "+name, nil)
		}
	}
	for name := range m.DevDependencies {
		if !core.ValidPackageName(name) {
			return nil, core.ManifestError(path, "invalid devDependency name "+name, nil)
		}
	}
	return &m, nil
}

// Roots returns the root requests: dependencies, then devDependencies not
// already listed there.
func (m *Manifest) Roots() []core.DependencyRequest {
	roots := core.RequestsFrom(m.Dependencies, "")
	for _, dev := range core.RequestsFrom(m.DevDependencies, "") {
		if _, dup := m.Dependencies[dev.Name]; !dup {
			roots = append(roots, dev)
		}
	}
	return roots
}
