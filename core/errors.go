package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failure.
type ErrorKind int

const (
	// KindManifest - root manifest missing or unparseable
	KindManifest ErrorKind = iota + 1
	// KindResolution - a package index has no parseable versions
	KindResolution
	// KindNetwork - transport failure or unexpected HTTP status
	KindNetwork
	// KindParse - a response body is not the expected document
	KindParse
	// KindExtraction - an archive entry could not be written
	KindExtraction
)

// String returns the kind's name as shown to users.
func (k ErrorKind) String() string {
	switch k {
	case KindManifest:
		return "ManifestError"
	case KindResolution:
		return "ResolutionError"
	case KindNetwork:
		return "NetworkError"
	case KindParse:
		return "ParseError"
	case KindExtraction:
		return "ExtractionError"
	default:
		return "Error"
	}
}

// Error is a classified failure annotated with the node it happened on.
type Error struct {
	Kind    ErrorKind
	Message string

	// Diagnostic context, filled in as the error travels up
	Package string
	Range   string
	Version string
	URL     string
	Path    string

	Err error
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrManifest   = &Error{Kind: KindManifest}
	ErrResolution = &Error{Kind: KindResolution}
	ErrNetwork    = &Error{Kind: KindNetwork}
	ErrParse      = &Error{Kind: KindParse}
	ErrExtraction = &Error{Kind: KindExtraction}
)

// Error implements the error interface.
// Format: "<Kind>: <message> (package x, range y, version z): <cause>"
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	var details []string
	if e.Package != "" {
		details = append(details, "package "+e.Package)
	}
	if e.Range != "" {
		details = append(details, "range "+e.Range)
	}
	if e.Version != "" {
		details = append(details, "version "+e.Version)
	}
	if e.URL != "" {
		details = append(details, "url "+e.URL)
	}
	if e.Path != "" {
		details = append(details, "path "+e.Path)
	}
	if len(details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(details, ", "))
		b.WriteString(")")
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// ManifestError creates a KindManifest error for path.
func ManifestError(path, message string, cause error) *Error {
	return &Error{Kind: KindManifest, Message: message, Path: path, Err: cause}
}

// ResolutionError creates a KindResolution error for a package.
func ResolutionError(pkg, rng string, cause error) *Error {
	return &Error{Kind: KindResolution, Message: "cannot resolve version", Package: pkg, Range: rng, Err: cause}
}

// NetworkError creates a KindNetwork error for a request URL.
func NetworkError(url, message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: message, URL: url, Err: cause}
}

// ParseError creates a KindParse error for a response body from url.
func ParseError(url, message string, cause error) *Error {
	return &Error{Kind: KindParse, Message: message, URL: url, Err: cause}
}

// ExtractionError creates a KindExtraction error for a package.
func ExtractionError(pkg, path, message string, cause error) *Error {
	return &Error{Kind: KindExtraction, Message: message, Package: pkg, Path: path, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Annotate fills in the request and resolved version on the first *Error in
// err's chain without overwriting context already present. Unclassified
// errors are returned unchanged.
func Annotate(err error, req DependencyRequest, resolved string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}

	annotated := *e
	if annotated.Package == "" {
		annotated.Package = req.Name
	}
	if annotated.Range == "" {
		annotated.Range = req.Range
	}
	if annotated.Version == "" {
		annotated.Version = resolved
	}

	if e == err {
		return &annotated
	}
	return fmt.Errorf("%s: %w", req.Name, &annotated)
}
