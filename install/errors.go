package install

import (
	"github.com/fatih/color"
)

// FormatError renders err for the terminal as "Error: <message>", with the
// lead in red when colorize is set. Classified errors already carry their kind in the text.
func FormatError(err error, colorize bool) string {
	if err == nil {
		return ""
	}

	lead := color.New(color.FgRed, color.Bold)
	if colorize {
		lead.EnableColor()
	} else {
		lead.DisableColor()
	}
	return lead.Sprint("Error:") + " " + err.Error()
}
