package output

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Verbosity levels
type Verbosity int

const (
	// VerbosityQuiet shows errors only
	VerbosityQuiet Verbosity = iota
	// VerbosityNormal shows errors, warnings and the install summary (default)
	VerbosityNormal
	// VerbosityDetailed adds the per-package summary
	VerbosityDetailed
	// VerbosityDiagnostic adds every graph transition
	VerbosityDiagnostic
)

// ParseVerbosity maps a --verbosity value to a level. Unknown values are
// treated as normal.
func ParseVerbosity(s string) Verbosity {
	switch s {
	case "q", "quiet", "m", "minimal":
		return VerbosityQuiet
	case "d", "detailed":
		return VerbosityDetailed
	case "diag", "diagnostic":
		return VerbosityDiagnostic
	default:
		return VerbosityNormal
	}
}

// Console writes user-facing output. It implements install.Console.
type Console struct {
	out       io.Writer
	err       io.Writer
	verbosity Verbosity
	mu        sync.Mutex
	colors    bool
}

// NewConsole creates a new console
func NewConsole(out, err io.Writer, verbosity Verbosity) *Console {
	c := &Console{
		out:       out,
		err:       err,
		verbosity: verbosity,
		colors:    IsColorEnabled(),
	}
	if !c.colors {
		DisableColors()
	}
	return c
}

// DefaultConsole creates a console with stdout/stderr and normal verbosity
func DefaultConsole() *Console {
	return NewConsole(os.Stdout, os.Stderr, VerbosityNormal)
}

// SetVerbosity sets the verbosity level
func (c *Console) SetVerbosity(v Verbosity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verbosity = v
}

// GetVerbosity returns the current verbosity level
func (c *Console) GetVerbosity() Verbosity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verbosity
}

// SetColors enables or disables color output
func (c *Console) SetColors(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.colors = enabled
	if enabled {
		EnableColors()
	} else {
		DisableColors()
	}
}

// Colors reports whether color output is on.
func (c *Console) Colors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.colors
}

// Output returns the standard output writer.
func (c *Console) Output() io.Writer {
	return c.out
}

// Write writes p to the standard writer under the same lock as the
// message methods, so raw terminal output never splits a line.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

// Println writes line to output
func (c *Console) Println(a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, a...)
}

// Printf writes formatted output
func (c *Console) Printf(format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, a...)
}

// Success writes success message (green)
func (c *Console) Success(format string, a ...any) {
	c.write(c.out, VerbosityNormal, ColorSuccess, "", format, a...)
}

// Error writes error message (red) to the error stream
func (c *Console) Error(format string, a ...any) {
	c.write(c.err, VerbosityQuiet, ColorError, "Error: ", format, a...)
}

// Warning writes warning message (yellow)
func (c *Console) Warning(format string, a ...any) {
	c.write(c.out, VerbosityNormal, ColorWarning, "Warning: ", format, a...)
}

// Info writes info message (cyan)
func (c *Console) Info(format string, a ...any) {
	c.write(c.out, VerbosityNormal, ColorInfo, "", format, a...)
}

// Detail writes detailed message
func (c *Console) Detail(format string, a ...any) {
	c.write(c.out, VerbosityDetailed, nil, "", format, a...)
}

func (c *Console) write(w io.Writer, min Verbosity, col colorPrinter, prefix, format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.verbosity < min {
		return
	}
	msg := prefix + format
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		msg += "\n"
	}
	if c.colors && col != nil {
		_, _ = col.Fprintf(w, msg, a...)
		return
	}
	_, _ = fmt.Fprintf(w, msg, a...)
}

type colorPrinter interface {
	Fprintf(w io.Writer, format string, a ...any) (int, error)
}
