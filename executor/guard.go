package executor

import (
	"fmt"
	"sort"

	"github.com/chazu/symtrace/vm"
)

// Guard reports whether a frame still matches what a translation assumed.
type Guard func(frame *vm.Frame) bool

type guardEntry struct {
	v     Variable
	check Check
}

// guardRoots returns the variables read from the frame: those marked with
// AddGlobalGuardedVariable and those the IR takes as inputs.
func (g *FunctionGraph) guardRoots() []Variable {
	roots := append([]Variable(nil), g.globalGuards...)
	seen := make(map[int]bool, len(roots))
	for _, v := range roots {
		seen[v.ID()] = true
	}
	for _, sym := range g.IR().AnalyzeInputs() {
		v, ok := g.symVars[sym]
		if !ok || g.innerOut[v.ID()] || seen[v.ID()] {
			continue
		}
		seen[v.ID()] = true
		roots = append(roots, v)
	}
	return roots
}

// guardOrder returns the guarded variables with every variable after the
// variables its tracker reads from. Roots are visited in id order so the
// result is deterministic.
func (g *FunctionGraph) guardOrder() []Variable {
	roots := g.guardRoots()
	sort.Slice(roots, func(i, j int) bool { return roots[i].ID() < roots[j].ID() })

	visited := make(map[int]bool)
	var order []Variable
	var visit func(v Variable)
	visit = func(v Variable) {
		if visited[v.ID()] {
			return
		}
		visited[v.ID()] = true
		for _, in := range v.Tracker().Inputs() {
			visit(in)
		}
		order = append(order, v)
	}
	for _, v := range roots {
		visit(v)
	}
	return order
}

// GuardFn builds the guard of the trace and a readable line per check.
// Derived values are not checked: they follow from the checked inputs.
func (g *FunctionGraph) GuardFn() (Guard, []string) {
	var entries []guardEntry
	var text []string
	for _, v := range g.guardOrder() {
		t := v.Tracker()
		if IsDerived(t) || !t.NeedGuard() {
			continue
		}
		check, desc := v.MakeCheck()
		if check == nil {
			continue
		}
		entries = append(entries, guardEntry{v: v, check: check})
		text = append(text, fmt.Sprintf("%s %s", t, desc))
	}
	guard := func(frame *vm.Frame) (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				log.Warningf("guard panicked: %v", r)
				ok = false
			}
		}()
		for _, e := range entries {
			value, err := e.v.Tracker().Trace(frame)
			if err != nil || !e.check(value) {
				return false
			}
		}
		return true
	}
	return guard, text
}
