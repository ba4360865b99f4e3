// Package auth provides registry credentials in the forms .npmrc carries
// them: "_authToken" bearer tokens and "_auth" / username+password basic
// credentials.
package auth

import (
	"net/http"
)

// Authenticator adds credentials to an outgoing request.
type Authenticator interface {
	// Authenticate adds authentication to the request
	Authenticate(req *http.Request) error
}

// Type represents the type of authentication.
type Type string

const (
	// AuthTypeNone indicates no authentication is required.
	AuthTypeNone Type = "none"
	// AuthTypeBearer indicates an npm auth token.
	AuthTypeBearer Type = "bearer"
	// AuthTypeBasic indicates HTTP basic authentication.
	AuthTypeBasic Type = "basic"
)
