package vm

import (
	"fmt"
	"sync/atomic"

	"github.com/chazu/symtrace/pkg/meta"
)

var layerIDs atomic.Uint64

// Layer is a callable module holding parameters. Calling a layer runs its
// forward operation on the argument.
type Layer struct {
	ID     uint64
	Name   string
	Kind   string
	Weight *Tensor
	Bias   *Tensor
}

// NewLinear returns a linear layer with deterministic initial parameters.
func NewLinear(name string, in, out int) *Layer {
	w := make([]float64, in*out)
	for i := range w {
		w[i] = float64(i%7-3) * 0.1
	}
	b := make([]float64, out)
	for j := range b {
		b[j] = float64(j) * 0.01
	}
	return &Layer{
		ID:     layerIDs.Add(1),
		Name:   name,
		Kind:   "linear",
		Weight: MustTensor(meta.New(meta.Float32, in, out), w),
		Bias:   MustTensor(meta.New(meta.Float32, out), b),
	}
}

func (l *Layer) Call(_ *Interpreter, args []any, kwargs map[string]any) (any, error) {
	if len(args) != 1 || len(kwargs) != 0 {
		return nil, typeErrorf("%s() takes exactly one argument", l.Name)
	}
	return l.Forward(args[0])
}

// Forward applies the layer to x.
func (l *Layer) Forward(x any) (any, error) {
	return CallAPI(l.Kind, l.operands(x), nil)
}

// InferMeta describes the layer output for an input described by x.
func (l *Layer) InferMeta(x meta.MetaInfo) (meta.MetaInfo, error) {
	return InferMetaOf(l.Kind, []any{x, l.Weight.Meta, l.Bias.Meta}, nil)
}

func (l *Layer) operands(x any) []any {
	return []any{x, l.Weight, l.Bias}
}

func (l *Layer) String() string {
	return fmt.Sprintf("<Layer %s #%d>", l.Name, l.ID)
}
