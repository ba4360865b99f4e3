package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// BasicAuthenticator implements HTTP basic authentication.
type BasicAuthenticator struct {
	username string
	password string
}

// NewBasicAuthenticator creates a new basic auth authenticator.
func NewBasicAuthenticator(username, password string) *BasicAuthenticator {
	return &BasicAuthenticator{
		username: username,
		password: password,
	}
}

// ParseLegacyAuth decodes an .npmrc "_auth" value, base64("user:pass").
func ParseLegacyAuth(value string) (*BasicAuthenticator, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("_auth is not base64: %w", err)
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, fmt.Errorf("_auth must encode user:password")
	}
	return NewBasicAuthenticator(user, pass), nil
}

// Authenticate adds the Authorization: Basic header to the request.
func (a *BasicAuthenticator) Authenticate(req *http.Request) error {
	if a.username != "" || a.password != "" {
		req.SetBasicAuth(a.username, a.password)
	}
	return nil
}

// Type returns the authentication type.
func (a *BasicAuthenticator) Type() Type {
	return AuthTypeBasic
}
