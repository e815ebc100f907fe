package bytecode

// ---------------------------------------------------------------------------
// Liveness: which locals may still be read
// ---------------------------------------------------------------------------

// Successors returns the instruction indices control may flow to after i.
func (c *Code) Successors(i int) []int {
	in := c.Instructions[i]
	next := i + 1
	switch {
	case in.Op.IsReturn():
		return nil
	case in.Op == OpJumpAbsolute || in.Op == OpJumpForward:
		return []int{in.JumpTo}
	case in.Op.IsConditionalJump():
		if next < len(c.Instructions) {
			return []int{next, in.JumpTo}
		}
		return []int{in.JumpTo}
	case next < len(c.Instructions):
		return []int{next}
	}
	return nil
}

// LiveVariables returns the locals that may be read, before being
// rebound, by some execution path starting at instruction pc. The result
// is ordered by the code's VarNames.
func LiveVariables(code *Code, pc int) []string {
	n := len(code.Instructions)
	if pc < 0 || pc >= n {
		return nil
	}

	liveIn := make([]map[string]bool, n)
	for i := range liveIn {
		liveIn[i] = map[string]bool{}
	}

	// Iterate to a fixed point; backward order converges fastest.
	for changed := true; changed; {
		changed = false
		for i := n - 1; i >= 0; i-- {
			out := map[string]bool{}
			for _, s := range code.Successors(i) {
				if s < 0 || s >= n {
					continue
				}
				for name := range liveIn[s] {
					out[name] = true
				}
			}

			in := code.Instructions[i]
			switch in.Op {
			case OpLoadFast:
				out[in.Name()] = true
			case OpStoreFast, OpDeleteFast:
				delete(out, in.Name())
			}

			if len(out) != len(liveIn[i]) {
				liveIn[i] = out
				changed = true
				continue
			}
			for name := range out {
				if !liveIn[i][name] {
					liveIn[i] = out
					changed = true
					break
				}
			}
		}
	}

	var live []string
	for _, name := range code.VarNames {
		if liveIn[pc][name] {
			live = append(live, name)
		}
	}
	return live
}
