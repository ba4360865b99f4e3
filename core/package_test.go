package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDependencyRequestTarget(t *testing.T) {
	tests := []struct {
		name      string
		req       DependencyRequest
		wantName  string
		wantRange string
	}{
		{"plain", NewDependencyRequest("left-pad", "^1.3.0", ""), "left-pad", "^1.3.0"},
		{"alias", NewDependencyRequest("pad", "npm:left-pad@^1.3.0", ""), "left-pad", "^1.3.0"},
		{"scoped alias", NewDependencyRequest("types", "npm:@types/node@18", ""), "@types/node", "18"},
		{"alias without range", NewDependencyRequest("pad", "npm:left-pad", ""), "left-pad", "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, rng := tt.req.Target()
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantRange, rng)
		})
	}
}

func TestRequestsFrom(t *testing.T) {
	reqs := RequestsFrom(map[string]string{"b": "^2.0.0", "a": "1.x"}, "parent")

	assert.Equal(t, []DependencyRequest{
		{Name: "a", Range: "1.x", Parent: "parent"},
		{Name: "b", Range: "^2.0.0", Parent: "parent"},
	}, reqs)
	assert.Empty(t, RequestsFrom(nil, ""))
	assert.Equal(t, "a@1.x", reqs[0].String())
}

func TestValidPackageName(t *testing.T) {
	valid := []string{"left-pad", "@types/node", "lodash.merge", "JSONStream", "a"}
	invalid := []string{"", "..", "../etc", "a/b", "@scope/", ".hidden", "has space"}

	for _, name := range valid {
		assert.True(t, ValidPackageName(name), name)
	}
	for _, name := range invalid {
		assert.False(t, ValidPackageName(name), name)
	}
}
