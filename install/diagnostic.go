package install

import (
	"github.com/willibrandon/gonpm/core/resolver"
	"github.com/willibrandon/gonpm/observability"
)

// progressObserver turns walker transitions into the live status count,
// debug logs and, at diagnostic verbosity, console lines.
type progressObserver struct {
	status  *TerminalStatus
	logger  observability.Logger
	console Console
	verbose bool
}

func (p *progressObserver) OnTransition(e resolver.Event) {
	req := e.Request
	parent := req.Parent
	if parent == "" {
		parent = "root"
	}

	switch e.State {
	case resolver.StateResolving:
		if p.status != nil {
			p.status.PackageClaimed()
		}
		p.logger.Verbose("Resolving {Package}@{Range} for {Parent}", req.Name, req.Range, parent)
		if p.verbose {
			p.console.Printf("  resolve  %s@%s (from %s)\n", req.Name, req.Range, parent)
		}
	case resolver.StateInstalling:
		p.logger.Verbose("Installing {Package}@{Version}", req.Name, e.Version)
	case resolver.StateDone:
		if e.Deduplicated {
			p.logger.Verbose("{Package}@{Range} from {Parent} satisfied by an earlier claim", req.Name, req.Range, parent)
			if p.verbose {
				p.console.Printf("  dedupe   %s@%s (from %s)\n", req.Name, req.Range, parent)
			}
			return
		}
		if p.verbose {
			p.console.Printf("  done     %s@%s\n", req.Name, e.Version)
		}
	case resolver.StateFailed:
		p.logger.Debug("{Package}@{Range} failed: {Error}", req.Name, req.Range, e.Err)
	}
}
