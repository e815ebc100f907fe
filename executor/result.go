package executor

import (
	"fmt"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/symbolic"
)

// ---------------------------------------------------------------------------
// Result: outcome of translating one frame
// ---------------------------------------------------------------------------

// Outcome identifies whether a translation produced code or gave up.
type Outcome int

const (
	Compiled  Outcome = iota // Code and Guard are set
	BailedOut                // Reason is set; the frame runs unmodified
)

func (o Outcome) String() string {
	if o == Compiled {
		return "compiled"
	}
	return "bailed-out"
}

// Result is what translating a frame produces.
type Result struct {
	Outcome   Outcome
	Code      *bytecode.Code
	Guard     Guard
	GuardText []string
	IR        *symbolic.StatementIR
	Reason    string

	// BreakAt is the instruction the replacement resumes the original code
	// at, or -1 when the whole function was traced.
	BreakAt int
}

func bailOut(reason string) Result {
	return Result{Outcome: BailedOut, Reason: reason, BreakAt: -1}
}

func (r Result) String() string {
	switch {
	case r.Outcome == BailedOut:
		return fmt.Sprintf("bailed-out: %s", r.Reason)
	case r.BreakAt >= 0:
		return fmt.Sprintf("compiled %s, resuming at %d (%s)", r.Code.Name, r.BreakAt, r.Reason)
	}
	return fmt.Sprintf("compiled %s", r.Code.Name)
}
