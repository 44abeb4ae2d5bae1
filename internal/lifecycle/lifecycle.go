// Package lifecycle is the Allocated -> Loaded -> Detached state machine
// shared by every engine handle.
package lifecycle

import (
	"github.com/dudu/facelive/internal/errors"
)

// State of an engine handle
type State int

const (
	Allocated State = iota
	Loaded
	Detached
)

func (s State) String() string {
	switch s {
	case Allocated:
		return "allocated"
	case Loaded:
		return "loaded"
	case Detached:
		return "detached"
	}
	return "unknown"
}

// Guard tracks one handle's state. It is not safe for concurrent use;
// callers serialise calls per handle.
type Guard struct {
	state State
}

// State returns the current state
func (g *Guard) State() State {
	return g.state
}

// CanLoad rejects loading a loaded or detached handle
func (g *Guard) CanLoad(op string) error {
	switch g.state {
	case Loaded:
		return errors.NewUsageError(op, "model already loaded")
	case Detached:
		return errors.NewUsageError(op, "handle already deallocated")
	}
	return nil
}

// MarkLoaded moves an allocated handle to Loaded
func (g *Guard) MarkLoaded() {
	if g.state == Allocated {
		g.state = Loaded
	}
}

// Ready admits detect/score calls only on a loaded handle
func (g *Guard) Ready(op string) error {
	switch g.state {
	case Allocated:
		return errors.NewUsageError(op, "model not loaded")
	case Detached:
		return errors.NewUsageError(op, "handle already deallocated")
	}
	return nil
}

// Detach is valid once from any state; a second call is a double free
func (g *Guard) Detach(op string) error {
	if g.state == Detached {
		return errors.NewUsageError(op, "handle already deallocated")
	}
	g.state = Detached
	return nil
}
