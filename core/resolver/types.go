package resolver

import (
	"github.com/willibrandon/gonpm/core"
)

// State is the lifecycle state of one dependency visit.
type State int

const (
	// StatePending - the request was discovered but not yet claimed
	StatePending State = iota
	// StateResolving - index and manifest are being fetched
	StateResolving
	// StateInstalling - the archive is being installed
	StateInstalling
	// StateExpanding - children are being visited (concurrently with installing)
	StateExpanding
	// StateDone - installed and every child finished, or the name was already claimed
	StateDone
	// StateFailed - the visit or one of its children failed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateResolving:
		return "Resolving"
	case StateInstalling:
		return "Installing"
	case StateExpanding:
		return "Expanding"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Event is a state transition of one request.
type Event struct {
	Request core.DependencyRequest
	State   State

	// Version is set once the request has been resolved.
	Version string

	// Deduplicated is true when the request finished because its name was
	// already claimed by another request.
	Deduplicated bool

	// Err is set for StateFailed.
	Err error
}

// Observer receives state transitions. It is called from many goroutines.
type Observer interface {
	OnTransition(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnTransition calls f(e).
func (f ObserverFunc) OnTransition(e Event) {
	f(e)
}

// Node is one claimed package name and what became of it.
type Node struct {
	// Request is the request that claimed the name.
	Request core.DependencyRequest

	// Version is the installed version ("" until resolved).
	Version string

	// Fallback is true when no published version satisfied the range.
	Fallback bool

	// Skipped is true when the archive was already installed.
	Skipped bool

	// Children lists the names this package requested.
	Children []string
}
