package symbolic

import (
	"fmt"
	"sync/atomic"

	"github.com/chazu/symtrace/vm"
)

var sirCounter atomic.Int64

// NextSIRName returns a fresh process-unique IR name.
func NextSIRName() string {
	return fmt.Sprintf("SIR_%d", sirCounter.Add(1)-1)
}

// Context owns the IRs of one trace. Statements are appended to the IR on
// top of its stack.
type Context struct {
	stack []*StatementIR
}

// NewContext returns a context with one empty IR.
func NewContext() *Context {
	return &Context{stack: []*StatementIR{NewStatementIR(NextSIRName())}}
}

// TOS returns the IR statements are currently appended to.
func (c *Context) TOS() *StatementIR {
	return c.stack[len(c.stack)-1]
}

// ReplaceTOS swaps the current IR, used to roll back to a snapshot.
func (c *Context) ReplaceTOS(ir *StatementIR) {
	c.stack[len(c.stack)-1] = ir
}

// Push starts a nested IR and returns it.
func (c *Context) Push() *StatementIR {
	ir := NewStatementIR(NextSIRName())
	c.stack = append(c.stack, ir)
	return ir
}

// Pop removes and returns the current IR. The outermost IR is never popped.
func (c *Context) Pop() *StatementIR {
	if len(c.stack) == 1 {
		return c.TOS()
	}
	ir := c.TOS()
	c.stack = c.stack[:len(c.stack)-1]
	return ir
}

// CallAPI records a T module operation.
func (c *Context) CallAPI(name string, inputs []Operand, kwargs map[string]Operand, outputs ...Symbol) {
	c.add(StatementAPI, name, inputs, kwargs, outputs, nil)
}

// CallMethod records a tensor method call; inputs[0] is the receiver.
func (c *Context) CallMethod(name string, inputs []Operand, kwargs map[string]Operand, outputs ...Symbol) {
	c.add(StatementMethod, name, inputs, kwargs, outputs, nil)
}

// CallLayer records the application of a layer.
func (c *Context) CallLayer(layer *vm.Layer, inputs []Operand, outputs ...Symbol) {
	c.add(StatementCall, LayerName(layer), inputs, nil, outputs, layer)
}

// LayerName is the statement name of a layer call.
func LayerName(layer *vm.Layer) string {
	return fmt.Sprintf("%s#%d", layer.Name, layer.ID)
}

func (c *Context) add(kind StatementKind, name string, inputs []Operand, kwargs map[string]Operand, outputs []Symbol, layer *vm.Layer) {
	c.TOS().AddStatement(&Statement{
		Kind:    kind,
		Name:    name,
		Inputs:  inputs,
		Kwargs:  kwargs,
		Outputs: outputs,
		Layer:   layer,
	})
}
