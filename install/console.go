package install

import "io"

// Console receives user-facing output. The CLI injects its colour console.
type Console interface {
	Printf(format string, args ...any)
	Error(format string, args ...any)
	Warning(format string, args ...any)

	// Write writes raw bytes to Output, serialized with Printf.
	io.Writer

	// Output is the underlying stream, inspected for terminal support.
	Output() io.Writer
}
