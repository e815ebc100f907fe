package vm

import (
	"sync/atomic"

	"github.com/chazu/symtrace/pkg/bytecode"
)

// FrameHook is called for every function activation before its first
// instruction. A non-nil code is executed in place of the frame's code; nil
// means run the frame unmodified.
type FrameHook func(frame *Frame) (*bytecode.Code, error)

var hookDisabled atomic.Int32

// DisableHook suspends the frame hook process-wide until the returned
// function is called. Calls nest.
func DisableHook() (restore func()) {
	hookDisabled.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			hookDisabled.Add(-1)
		}
	}
}

// HookEnabled reports whether frame hooks currently run.
func HookEnabled() bool {
	return hookDisabled.Load() == 0
}

// SetFrameHook installs the hook, replacing any previous one. Passing nil
// removes it.
func (in *Interpreter) SetFrameHook(h FrameHook) {
	in.hook = h
}

// Hook returns the installed frame hook.
func (in *Interpreter) Hook() FrameHook {
	return in.hook
}
