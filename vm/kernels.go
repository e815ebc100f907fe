package vm

import (
	"math"

	"github.com/chazu/symtrace/pkg/meta"
)

// ---------------------------------------------------------------------------
// Kernel registration
// ---------------------------------------------------------------------------

func init() {
	binary := map[string]func(a, b float64) float64{
		"add":          func(a, b float64) float64 { return a + b },
		"subtract":     func(a, b float64) float64 { return a - b },
		"multiply":     func(a, b float64) float64 { return a * b },
		"divide":       func(a, b float64) float64 { return a / b },
		"floor_divide": func(a, b float64) float64 { return math.Floor(a / b) },
		"remainder": func(a, b float64) float64 {
			if b == 0 {
				return math.NaN()
			}
			return a - math.Floor(a/b)*b
		},
		"pow":           math.Pow,
		"maximum":       math.Max,
		"minimum":       math.Min,
		"equal":         boolOp(func(a, b float64) bool { return a == b }),
		"not_equal":     boolOp(func(a, b float64) bool { return a != b }),
		"less":          boolOp(func(a, b float64) bool { return a < b }),
		"less_equal":    boolOp(func(a, b float64) bool { return a <= b }),
		"greater":       boolOp(func(a, b float64) bool { return a > b }),
		"greater_equal": boolOp(func(a, b float64) bool { return a >= b }),
	}
	for name, fn := range binary {
		RegisterAPI(name, elementwiseKernel(name, fn))
	}

	unary := map[string]func(float64) float64{
		"neg":   func(x float64) float64 { return -x },
		"abs":   math.Abs,
		"exp":   math.Exp,
		"log":   math.Log,
		"sqrt":  math.Sqrt,
		"relu":  func(x float64) float64 { return math.Max(x, 0) },
		"tanh":  math.Tanh,
		"clone": func(x float64) float64 { return x },
		"sigmoid": func(x float64) float64 {
			return 1 / (1 + math.Exp(-x))
		},
	}
	for name, fn := range unary {
		RegisterAPI(name, unaryKernel(name, fn))
	}

	for _, name := range []string{"sum", "mean", "max", "min"} {
		RegisterAPI(name, reduceKernel(name))
	}
	RegisterAPI("matmul", matmulKernel)
	RegisterAPI("reshape", reshapeKernel)
	RegisterAPI("transpose", transposeKernel)
	RegisterAPI("concat", concatKernel)
	RegisterAPI("getitem", getitemKernel)
	RegisterAPI("cast", castKernel)
	RegisterAPI("linear", linearKernel)
	for _, name := range []string{"ones", "zeros", "full"} {
		RegisterAPI(name, fillKernel(name))
	}
}

func boolOp(fn func(a, b float64) bool) func(a, b float64) float64 {
	return func(a, b float64) float64 {
		if fn(a, b) {
			return 1
		}
		return 0
	}
}

// operand returns the data and shape of a tensor or scalar operand.
func operand(v any) ([]float64, []int) {
	if t, ok := v.(*Tensor); ok {
		return t.Data, t.Meta.Shape
	}
	f, _, _ := toFloat(v)
	return []float64{f}, nil
}

func tensorArg(name string, args []any, i int) (*Tensor, error) {
	if i >= len(args) {
		return nil, typeErrorf("%s: missing tensor argument %d", name, i)
	}
	t, ok := args[i].(*Tensor)
	if !ok {
		return nil, typeErrorf("%s: expected Tensor, got %s", name, TypeName(args[i]))
	}
	return t, nil
}

func optionalArg(args []any, kwargs map[string]any, i int, name string) any {
	if i < len(args) {
		return args[i]
	}
	return kwargs[name]
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// ---------------------------------------------------------------------------
// Kernels
// ---------------------------------------------------------------------------

func elementwiseKernel(name string, fn func(a, b float64) float64) func([]any, map[string]any) (any, error) {
	return func(args []any, kwargs map[string]any) (any, error) {
		out, err := InferMeta(name, args, kwargs)
		if err != nil {
			return nil, err
		}
		aData, aShape := operand(args[0])
		bData, bShape := operand(args[1])
		n := out.NumElements()
		data := make([]float64, n)
		for i := range data {
			a := aData[broadcastIndex(i, out.Shape, aShape)]
			b := bData[broadcastIndex(i, out.Shape, bShape)]
			data[i] = fn(a, b)
		}
		return NewTensor(out, data)
	}
}

func unaryKernel(name string, fn func(float64) float64) func([]any, map[string]any) (any, error) {
	return func(args []any, kwargs map[string]any) (any, error) {
		out, err := InferMeta(name, args, kwargs)
		if err != nil {
			return nil, err
		}
		x := args[0].(*Tensor)
		data := make([]float64, len(x.Data))
		for i, v := range x.Data {
			data[i] = fn(v)
		}
		return NewTensor(out, data)
	}
}

// reducedAxes returns which axes of a rank-r tensor a reduction collapses.
func reducedAxes(axisArg any, rank int) []bool {
	reduced := make([]bool, rank)
	if axisArg == nil {
		for i := range reduced {
			reduced[i] = true
		}
		return reduced
	}
	axes, ok := meta.AsInts(MetaArg(axisArg))
	if !ok {
		a, _ := meta.AsInt(axisArg)
		axes = []int{a}
	}
	for _, a := range axes {
		if a < 0 {
			a += rank
		}
		reduced[a] = true
	}
	return reduced
}

func reduceKernel(name string) func([]any, map[string]any) (any, error) {
	return func(args []any, kwargs map[string]any) (any, error) {
		out, err := InferMeta(name, args, kwargs)
		if err != nil {
			return nil, err
		}
		x := args[0].(*Tensor)
		reduced := reducedAxes(optionalArg(args, kwargs, 1, "axis"), x.Meta.Rank())

		var keptShape []int
		for i, d := range x.Meta.Shape {
			if !reduced[i] {
				keptShape = append(keptShape, d)
			}
		}
		keptStrides := strides(keptShape)
		inStrides := strides(x.Meta.Shape)

		n := product(keptShape)
		acc := make([]float64, n)
		seen := make([]bool, n)
		for flat, v := range x.Data {
			idx, k := 0, 0
			for d := range x.Meta.Shape {
				if reduced[d] {
					continue
				}
				coord := (flat / inStrides[d]) % x.Meta.Shape[d]
				idx += coord * keptStrides[k]
				k++
			}
			switch {
			case !seen[idx]:
				acc[idx] = v
				seen[idx] = true
			case name == "max":
				acc[idx] = math.Max(acc[idx], v)
			case name == "min":
				acc[idx] = math.Min(acc[idx], v)
			default:
				acc[idx] += v
			}
		}
		if name == "mean" {
			count := float64(len(x.Data) / max(n, 1))
			for i := range acc {
				acc[i] /= count
			}
		}
		if (name == "max" || name == "min") && len(x.Data) == 0 {
			return nil, NewHostError(ValueError, "%s of an empty tensor", name)
		}
		return NewTensor(out, acc)
	}
}

func matmulKernel(args []any, kwargs map[string]any) (any, error) {
	out, err := InferMeta("matmul", args, kwargs)
	if err != nil {
		return nil, err
	}
	a := args[0].(*Tensor)
	b := args[1].(*Tensor)

	as, bs := a.Meta.Shape, b.Meta.Shape
	if len(as) == 1 {
		as = []int{1, as[0]}
	}
	if len(bs) == 1 {
		bs = []int{bs[0], 1}
	}
	m, k, n := as[len(as)-2], as[len(as)-1], bs[len(bs)-1]
	batchA, batchB := as[:len(as)-2], bs[:len(bs)-2]
	batch, _ := meta.BroadcastShapes(batchA, batchB)

	nb := product(batch)
	data := make([]float64, 0, nb*m*n)
	for bi := 0; bi < nb; bi++ {
		offA := broadcastIndex(bi, batch, batchA) * m * k
		offB := broadcastIndex(bi, batch, batchB) * k * n
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				sum := 0.0
				for p := 0; p < k; p++ {
					sum += a.Data[offA+i*k+p] * b.Data[offB+p*n+j]
				}
				data = append(data, sum)
			}
		}
	}
	return NewTensor(out, data)
}

func reshapeKernel(args []any, kwargs map[string]any) (any, error) {
	out, err := InferMeta("reshape", args, kwargs)
	if err != nil {
		return nil, err
	}
	x := args[0].(*Tensor)
	return NewTensor(out, append([]float64(nil), x.Data...))
}

func transposeKernel(args []any, kwargs map[string]any) (any, error) {
	out, err := InferMeta("transpose", args, kwargs)
	if err != nil {
		return nil, err
	}
	x := args[0].(*Tensor)
	rank := x.Meta.Rank()

	perm := make([]int, rank)
	if p := optionalArg(args, kwargs, 1, "perm"); p != nil {
		given, _ := meta.AsInts(MetaArg(p))
		for i, a := range given {
			if a < 0 {
				a += rank
			}
			perm[i] = a
		}
	} else {
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}

	inStrides := strides(x.Meta.Shape)
	outStrides := strides(out.Shape)
	data := make([]float64, len(x.Data))
	for flat := range data {
		src := 0
		for d := 0; d < rank; d++ {
			coord := (flat / outStrides[d]) % out.Shape[d]
			src += coord * inStrides[perm[d]]
		}
		data[flat] = x.Data[src]
	}
	return NewTensor(out, data)
}

func concatKernel(args []any, kwargs map[string]any) (any, error) {
	out, err := InferMeta("concat", args, kwargs)
	if err != nil {
		return nil, err
	}
	var items []any
	switch seq := optionalArg(args, kwargs, 0, "tensors").(type) {
	case *List:
		items = seq.Items
	case *Tuple:
		items = seq.Items
	}
	axis := 0
	if a := optionalArg(args, kwargs, 1, "axis"); a != nil {
		axis, _ = meta.AsInt(a)
	}
	if axis < 0 {
		axis += out.Rank()
	}

	outer := product(out.Shape[:axis])
	data := make([]float64, 0, out.NumElements())
	for o := 0; o < outer; o++ {
		for _, item := range items {
			t := item.(*Tensor)
			inner := product(t.Meta.Shape[axis:])
			data = append(data, t.Data[o*inner:(o+1)*inner]...)
		}
	}
	return NewTensor(out, data)
}

func getitemKernel(args []any, kwargs map[string]any) (any, error) {
	out, err := InferMeta("getitem", args, kwargs)
	if err != nil {
		return nil, err
	}
	x := args[0].(*Tensor)
	idx, _ := meta.AsInt(args[1])
	if idx < 0 {
		idx += x.Meta.Shape[0]
	}
	stride := product(x.Meta.Shape[1:])
	return NewTensor(out, append([]float64(nil), x.Data[idx*stride:(idx+1)*stride]...))
}

func castKernel(args []any, kwargs map[string]any) (any, error) {
	out, err := InferMeta("cast", args, kwargs)
	if err != nil {
		return nil, err
	}
	x := args[0].(*Tensor)
	return NewTensor(out, append([]float64(nil), x.Data...))
}

func linearKernel(args []any, kwargs map[string]any) (any, error) {
	out, err := InferMeta("linear", args, kwargs)
	if err != nil {
		return nil, err
	}
	x := args[0].(*Tensor)
	w := args[1].(*Tensor)
	bias, _ := optionalArg(args, kwargs, 2, "bias").(*Tensor)

	in, outN := w.Meta.Shape[0], w.Meta.Shape[1]
	rows := len(x.Data) / max(in, 1)
	data := make([]float64, rows*outN)
	for r := 0; r < rows; r++ {
		for j := 0; j < outN; j++ {
			sum := 0.0
			for p := 0; p < in; p++ {
				sum += x.Data[r*in+p] * w.Data[p*outN+j]
			}
			if bias != nil {
				sum += bias.Data[j]
			}
			data[r*outN+j] = sum
		}
	}
	return NewTensor(out, data)
}

func fillKernel(name string) func([]any, map[string]any) (any, error) {
	return func(args []any, kwargs map[string]any) (any, error) {
		out, err := InferMeta(name, args, kwargs)
		if err != nil {
			return nil, err
		}
		value := 0.0
		switch name {
		case "ones":
			value = 1
		case "full":
			value, _, _ = toFloat(optionalArg(args, kwargs, 1, "fill_value"))
		}
		return Full(out, value), nil
	}
}
