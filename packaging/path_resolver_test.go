package packaging

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestPathResolver_InstallPath(t *testing.T) {
	r := NewPathResolver("/tmp/proj/node_modules")

	tests := []struct {
		name string
		want string
	}{
		{"left-pad", filepath.Join("/tmp/proj/node_modules", "left-pad")},
		{"@types/node", filepath.Join("/tmp/proj/node_modules", "@types", "node")},
	}
	for _, tt := range tests {
		if got := r.InstallPath(tt.name); got != tt.want {
			t.Errorf("InstallPath(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}

	if got := r.LockPath("@types/node"); got != filepath.Join("/tmp/proj/node_modules", ".gonpm", "locks", "@types+node") {
		t.Errorf("LockPath() = %q", got)
	}
}

func TestPathResolver_EntryPath(t *testing.T) {
	root := "/nm"
	r := NewPathResolver(root)

	tests := []struct {
		name    string
		pkg     string
		entry   string
		want    string
		wantErr bool
	}{
		{
			name:  "package prefix rewritten",
			pkg:   "left-pad",
			entry: "package/index.js",
			want:  filepath.Join(root, "left-pad", "index.js"),
		},
		{
			name:  "nested file",
			pkg:   "left-pad",
			entry: "package/lib/a/b.js",
			want:  filepath.Join(root, "left-pad", "lib", "a", "b.js"),
		},
		{
			name:  "prefix only applies to the first segment",
			pkg:   "tar",
			entry: "package/lib/package/x.js",
			want:  filepath.Join(root, "tar", "lib", "package", "x.js"),
		},
		{
			name:  "scoped package without prefix collapses the repeat",
			pkg:   "@types/estree",
			entry: "estree/index.d.ts",
			want:  filepath.Join(root, "@types", "estree", "index.d.ts"),
		},
		{
			name:  "unprefixed layout lands under the package",
			pkg:   "odd",
			entry: "dist/odd.js",
			want:  filepath.Join(root, "odd", "dist", "odd.js"),
		},
		{
			name:  "repeated segments collapse",
			pkg:   "a",
			entry: "a/b/b/c",
			want:  filepath.Join(root, "a", "b", "c"),
		},
		{
			name:  "dot segments ignored",
			pkg:   "a",
			entry: "./package/./x",
			want:  filepath.Join(root, "a", "x"),
		},
		{name: "parent traversal", pkg: "a", entry: "package/../../etc/passwd", wantErr: true},
		{name: "absolute path", pkg: "a", entry: "/etc/passwd", wantErr: true},
		{name: "backslash traversal", pkg: "a", entry: `package\..\..\x`, wantErr: true},
		{name: "empty", pkg: "a", entry: "./", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.EntryPath(tt.pkg, tt.entry)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPath) {
					t.Errorf("EntryPath(%q) error = %v, want ErrInvalidPath", tt.entry, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EntryPath(%q) error = %v", tt.entry, err)
			}
			if got != tt.want {
				t.Errorf("EntryPath(%q) = %q, want %q", tt.entry, got, tt.want)
			}
		})
	}
}
