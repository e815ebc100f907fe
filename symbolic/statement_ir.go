package symbolic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/symtrace/vm"
)

// StatementKind distinguishes what a statement invokes.
type StatementKind string

const (
	StatementCall   StatementKind = "call"   // a layer applied to its input
	StatementAPI    StatementKind = "api"    // a T module operation
	StatementMethod StatementKind = "method" // a tensor method on its first input
)

// Statement is one captured operation.
type Statement struct {
	Kind    StatementKind      `cbor:"1,keyasint"`
	Name    string             `cbor:"2,keyasint"`
	Inputs  []Operand          `cbor:"3,keyasint,omitempty"`
	Kwargs  map[string]Operand `cbor:"4,keyasint,omitempty"`
	Outputs []Symbol           `cbor:"5,keyasint"`

	// Layer is the callee of a call statement. It is not encoded; the
	// layer's identity is part of Name.
	Layer *vm.Layer `cbor:"-"`
}

// Symbols returns the symbols the statement reads, in operand order.
func (s *Statement) Symbols() []Symbol {
	var syms []Symbol
	for _, in := range s.Inputs {
		syms = in.Symbols(syms)
	}
	for _, k := range sortedOperandKeys(s.Kwargs) {
		syms = s.Kwargs[k].Symbols(syms)
	}
	return syms
}

// Clone returns a deep copy. The layer pointer is shared.
func (s *Statement) Clone() *Statement {
	c := *s
	c.Inputs = make([]Operand, len(s.Inputs))
	for i, in := range s.Inputs {
		c.Inputs[i] = in.Clone()
	}
	if s.Kwargs != nil {
		c.Kwargs = make(map[string]Operand, len(s.Kwargs))
		for k, v := range s.Kwargs {
			c.Kwargs[k] = v.Clone()
		}
	}
	c.Outputs = append([]Symbol(nil), s.Outputs...)
	return &c
}

func (s *Statement) String() string {
	outs := make([]string, len(s.Outputs))
	for i, o := range s.Outputs {
		outs[i] = o.Name
	}
	args := make([]string, 0, len(s.Inputs)+len(s.Kwargs))
	for _, in := range s.Inputs {
		args = append(args, in.String())
	}
	for _, k := range sortedOperandKeys(s.Kwargs) {
		args = append(args, k+"="+s.Kwargs[k].String())
	}
	return fmt.Sprintf("%s = %s %s(%s)", strings.Join(outs, ", "), s.Kind, s.Name, strings.Join(args, ", "))
}

func sortedOperandKeys(m map[string]Operand) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---------------------------------------------------------------------------
// StatementIR
// ---------------------------------------------------------------------------

// StatementIR is an ordered statement list with its declared inputs and
// outputs. Statements are kept in the order they were added.
type StatementIR struct {
	Name       string       `cbor:"1,keyasint"`
	Inputs     []Symbol     `cbor:"2,keyasint,omitempty"`
	Outputs    []Symbol     `cbor:"3,keyasint,omitempty"`
	Statements []*Statement `cbor:"4,keyasint,omitempty"`
}

// NewStatementIR returns an empty IR.
func NewStatementIR(name string) *StatementIR {
	return &StatementIR{Name: name}
}

// AddStatement appends a statement.
func (ir *StatementIR) AddStatement(stmt *Statement) {
	ir.Statements = append(ir.Statements, stmt)
}

// AnalyzeInputs returns the symbols read before any statement produces
// them, in order of first reference.
func (ir *StatementIR) AnalyzeInputs() []Symbol {
	produced := make(map[Symbol]bool)
	seen := make(map[Symbol]bool)
	var inputs []Symbol
	for _, stmt := range ir.Statements {
		for _, sym := range stmt.Symbols() {
			if produced[sym] || seen[sym] {
				continue
			}
			seen[sym] = true
			inputs = append(inputs, sym)
		}
		for _, out := range stmt.Outputs {
			produced[out] = true
		}
	}
	return inputs
}

// AnalyzeOutputs returns the produced symbols that are in live, in the
// order they were produced.
func (ir *StatementIR) AnalyzeOutputs(live []Symbol) []Symbol {
	want := make(map[Symbol]bool, len(live))
	for _, s := range live {
		want[s] = true
	}
	var outputs []Symbol
	for _, stmt := range ir.Statements {
		for _, out := range stmt.Outputs {
			if want[out] {
				outputs = append(outputs, out)
				delete(want, out)
			}
		}
	}
	return outputs
}

// Validate checks that every symbol a statement reads is a declared input
// or the output of an earlier statement, and that every declared output is
// produced.
func (ir *StatementIR) Validate() error {
	defined := make(map[Symbol]bool, len(ir.Inputs))
	for _, s := range ir.Inputs {
		defined[s] = true
	}
	for i, stmt := range ir.Statements {
		for _, sym := range stmt.Symbols() {
			if !defined[sym] {
				return fmt.Errorf("symbolic: %s: statement %d reads undefined symbol %s", ir.Name, i, sym)
			}
		}
		for _, out := range stmt.Outputs {
			defined[out] = true
		}
	}
	for _, out := range ir.Outputs {
		if !defined[out] {
			return fmt.Errorf("symbolic: %s: output %s is never produced", ir.Name, out)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (ir *StatementIR) Clone() *StatementIR {
	c := &StatementIR{
		Name:    ir.Name,
		Inputs:  append([]Symbol(nil), ir.Inputs...),
		Outputs: append([]Symbol(nil), ir.Outputs...),
	}
	if ir.Statements != nil {
		c.Statements = make([]*Statement, len(ir.Statements))
		for i, stmt := range ir.Statements {
			c.Statements[i] = stmt.Clone()
		}
	}
	return c
}

func (ir *StatementIR) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "StatementIR %s\n", ir.Name)
	fmt.Fprintf(&sb, "  inputs:  %s\n", joinSymbols(ir.Inputs))
	fmt.Fprintf(&sb, "  outputs: %s\n", joinSymbols(ir.Outputs))
	for _, stmt := range ir.Statements {
		fmt.Fprintf(&sb, "  %s\n", stmt)
	}
	return sb.String()
}

func joinSymbols(syms []Symbol) string {
	names := make([]string, len(syms))
	for i, s := range syms {
		names[i] = s.Name
	}
	return "(" + strings.Join(names, ", ") + ")"
}
