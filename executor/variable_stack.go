package executor

import "fmt"

// VariableStack is the operand stack of a traced frame. Underflow is a bug
// in the tracer or in the code being traced and panics; executors turn the
// panic into an InnerError.
type VariableStack struct {
	items []Variable
}

func (s *VariableStack) Len() int {
	return len(s.items)
}

func (s *VariableStack) Push(v Variable) {
	s.items = append(s.items, v)
}

func (s *VariableStack) Pop() Variable {
	s.need(1)
	v := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return v
}

// PopN pops n values and returns them in push order.
func (s *VariableStack) PopN(n int) []Variable {
	s.need(n)
	items := append([]Variable(nil), s.items[len(s.items)-n:]...)
	s.items = s.items[:len(s.items)-n]
	return items
}

func (s *VariableStack) Top() Variable {
	return s.Peek(1)
}

// Peek returns the i-th value from the top, 1-based.
func (s *VariableStack) Peek(i int) Variable {
	s.need(i)
	return s.items[len(s.items)-i]
}

// Set replaces the i-th value from the top, 1-based.
func (s *VariableStack) Set(i int, v Variable) {
	s.need(i)
	s.items[len(s.items)-i] = v
}

// Snapshot copies the stack contents, bottom first.
func (s *VariableStack) Snapshot() []Variable {
	return append([]Variable(nil), s.items...)
}

// Restore replaces the stack with a snapshot.
func (s *VariableStack) Restore(items []Variable) {
	s.items = append([]Variable(nil), items...)
}

func (s *VariableStack) need(n int) {
	if len(s.items) < n {
		panic(fmt.Sprintf("stack underflow: need %d, have %d", n, len(s.items)))
	}
}
