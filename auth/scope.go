package auth

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Scoped applies an Authenticator only to requests under one registry
// URL, so tarballs served from other hosts never receive the credentials.
type Scoped struct {
	host   string
	prefix string
	inner  Authenticator
}

// ForRegistry scopes inner to registry, a base URL such as
// "https://npm.example.com/api/npm/".
func ForRegistry(registry string, inner Authenticator) (*Scoped, error) {
	u, err := url.Parse(registry)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid registry URL %q", registry)
	}
	return &Scoped{
		host:   strings.ToLower(u.Host),
		prefix: strings.TrimRight(u.Path, "/"),
		inner:  inner,
	}, nil
}

// Matches reports whether req targets the scoped registry.
func (s *Scoped) Matches(req *http.Request) bool {
	if !strings.EqualFold(req.URL.Host, s.host) {
		return false
	}
	p := req.URL.Path
	return s.prefix == "" || p == s.prefix || strings.HasPrefix(p, s.prefix+"/")
}

// Authenticate delegates when req matches the scope.
func (s *Scoped) Authenticate(req *http.Request) error {
	if !s.Matches(req) {
		return nil
	}
	return s.inner.Authenticate(req)
}
