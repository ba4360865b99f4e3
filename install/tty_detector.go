package install

import (
	"io"
	"os"

	"golang.org/x/term"
)

// TTYDetector reports whether a writer is an interactive terminal.
// Tests substitute their own.
type TTYDetector interface {
	IsTTY(w io.Writer) bool
	GetSize(w io.Writer) (width, height int, err error)
}

// RealTTYDetector asks the operating system via golang.org/x/term.
type RealTTYDetector struct{}

// IsTTY reports whether w is a terminal file.
func (RealTTYDetector) IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// GetSize returns the terminal's columns and rows.
func (RealTTYDetector) GetSize(w io.Writer) (width, height int, err error) {
	if f, ok := w.(*os.File); ok {
		return term.GetSize(int(f.Fd()))
	}
	return 0, 0, os.ErrInvalid
}

// DefaultTTYDetector is used when Run is not given one.
var DefaultTTYDetector TTYDetector = RealTTYDetector{}
