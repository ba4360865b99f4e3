package packaging

import (
	"fmt"
	"path/filepath"
	"strings"
)

// archivePrefix is the top-level directory npm packs every file under.
const archivePrefix = "package"

// PathResolver maps package names and archive entries to locations in a
// flat install root.
type PathResolver struct {
	root string
}

// NewPathResolver creates a resolver for root.
func NewPathResolver(root string) *PathResolver {
	return &PathResolver{root: filepath.Clean(root)}
}

// Root returns the install root.
func (r *PathResolver) Root() string {
	return r.root
}

// InstallPath returns the directory name is installed into. Scoped names
// nest one level: root/@scope/name.
func (r *PathResolver) InstallPath(name string) string {
	return filepath.Join(r.root, filepath.FromSlash(name))
}

// ManifestPath returns the package.json marker of name.
func (r *PathResolver) ManifestPath(name string) string {
	return filepath.Join(r.InstallPath(name), "package.json")
}

// LockPath returns the lock file stem guarding the install of name.
func (r *PathResolver) LockPath(name string) string {
	return filepath.Join(r.root, ".gonpm", "locks", strings.ReplaceAll(name, "/", "+"))
}

// EntryPath maps a tar entry of package name to its destination.
//
// A leading "package" segment becomes the package directory. Any other
// layout is placed below the package directory and immediately repeated
// segments are collapsed, so "estree/index.d.ts" in @types/estree lands
// in @types/estree/index.d.ts. Absolute names and ".." segments return
// ErrInvalidPath.
func (r *PathResolver) EntryPath(name, entry string) (string, error) {
	segments, err := entrySegments(entry)
	if err != nil {
		return "", err
	}

	if segments[0] == archivePrefix {
		return filepath.Join(append([]string{r.InstallPath(name)}, segments[1:]...)...), nil
	}

	full := collapseRepeats(append(strings.Split(name, "/"), segments...))
	return filepath.Join(append([]string{r.root}, full...)...), nil
}

func entrySegments(entry string) ([]string, error) {
	slashed := strings.ReplaceAll(entry, "\\", "/")
	if strings.HasPrefix(slashed, "/") || filepath.VolumeName(entry) != "" {
		return nil, fmt.Errorf("%w: absolute entry %q", ErrInvalidPath, entry)
	}

	var segments []string
	for _, s := range strings.Split(slashed, "/") {
		switch s {
		case "", ".":
			continue
		case "..":
			return nil, fmt.Errorf("%w: %q leaves the package directory", ErrInvalidPath, entry)
		}
		segments = append(segments, s)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty entry %q", ErrInvalidPath, entry)
	}
	return segments, nil
}

// collapseRepeats drops each segment equal to the one before it.
func collapseRepeats(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if len(out) > 0 && out[len(out)-1] == s {
			continue
		}
		out = append(out, s)
	}
	return out
}
