package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand_Help(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(nil)

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "package.json") {
		t.Errorf("help should describe the tool, got %q", out.String())
	}
}

func TestRootCommand_Version(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "gonpm version ") {
		t.Errorf("unexpected version output %q", out.String())
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"dir", "verbosity", "registry"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("missing persistent flag --%s", name)
		}
	}
	if f := root.PersistentFlags().ShorthandLookup("C"); f == nil || f.Name != "dir" {
		t.Error("-C should be the shorthand of --dir")
	}
}
