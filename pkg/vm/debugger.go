package vm

import (
	"fmt"

	"siskin/pkg/errors"
)

// PauseReason says why the debugger hook was called.
type PauseReason int

const (
	PauseDebuggerStatement PauseReason = iota
	PauseStep
)

func (r PauseReason) String() string {
	if r == PauseStep {
		return "step"
	}
	return "debugger"
}

// DebuggerInfo describes a pause. Position is the zero value when the
// paused code has no source.
type DebuggerInfo struct {
	Reason   PauseReason
	Position errors.Position
	Realm    *Realm
	Depth    int
}

// pause calls the host debugger hook synchronously. The paused statement
// resumes afterwards with its state untouched; a panicking hook becomes a
// Throw completion at this boundary.
func (a *Agent) pause(ctx *ExecutionContext, reason PauseReason) (c *Completion) {
	hook := a.options.OnDebugger
	if hook == nil {
		return nil
	}
	pos, _ := ctx.Position()
	info := DebuggerInfo{Reason: reason, Position: pos, Realm: ctx.Realm, Depth: len(a.stack)}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*errors.AssertionError); ok {
				panic(r)
			}
			a.stepping = false
			c = a.ThrowError(fmt.Sprintf("debugger hook failed: %v", r))
		}
	}()
	a.stepping = hook(info) == DebuggerStep
	return nil
}
