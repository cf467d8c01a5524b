package capsulegraph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrContainerDisposed is returned (via panic) by any container entry
// point invoked after Dispose, or after the container has been poisoned
// by a capsule body panic.
var ErrContainerDisposed = errors.New("capsulegraph: container disposed")

// CycleError reports a dependency cycle discovered while a capsule body
// called Get on a capsule already on the active build stack.
type CycleError struct {
	// Path is the chain of capsule names in read order, starting at the
	// capsule that was read again and ending with that same capsule.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("capsulegraph: cyclic dependency detected: %s", strings.Join(e.Path, " -> "))
}

// EffectProtocolError reports a capsule that registered a different
// number of side effects on a later build than it did previously, or
// whose slot type changed between builds.
type EffectProtocolError struct {
	Capsule  string
	Slot     int
	Expected string
	Got      string
}

func (e *EffectProtocolError) Error() string {
	if e.Expected != "" || e.Got != "" {
		return fmt.Sprintf(
			"capsulegraph: effect protocol violation in %s at slot %d: expected %s, got %s",
			e.Capsule, e.Slot, e.Expected, e.Got,
		)
	}
	return fmt.Sprintf(
		"capsulegraph: effect protocol violation in %s: a different number of effects registered than on a previous build (stopped before slot %d)",
		e.Capsule, e.Slot,
	)
}
