package meta

import "slices"

func init() {
	for _, op := range []string{"add", "subtract", "multiply", "divide", "floor_divide", "remainder", "pow", "maximum", "minimum"} {
		Register(op, elementwise)
	}
	for _, op := range []string{"equal", "not_equal", "less", "less_equal", "greater", "greater_equal"} {
		Register(op, compare)
	}
	for _, op := range []string{"neg", "abs", "exp", "log", "sqrt", "relu", "tanh", "sigmoid", "clone"} {
		Register(op, unary)
	}
	for _, op := range []string{"sum", "mean", "max", "min"} {
		Register(op, reduce)
	}
	Register("matmul", matmul)
	Register("reshape", reshape)
	Register("transpose", transpose)
	Register("concat", concat)
	Register("getitem", getitem)
	Register("cast", cast)
	Register("linear", linear)
	Register("ones", fill)
	Register("zeros", fill)
	Register("full", fill)
}

// ---------------------------------------------------------------------------
// Operand helpers
// ---------------------------------------------------------------------------

func arg(args []any, kwargs map[string]any, i int, name string) (any, bool) {
	if i < len(args) {
		return args[i], true
	}
	v, ok := kwargs[name]
	return v, ok
}

func asMeta(op string, v any) (MetaInfo, error) {
	m, ok := v.(MetaInfo)
	if !ok {
		return MetaInfo{}, inferErrorf(op, "expected tensor operand, got %T", v)
	}
	return m, nil
}

// AsInt reads an integer operand.
func AsInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	}
	return 0, false
}

// AsInts reads a list of integers from []int, []int64 or []any.
func AsInts(v any) ([]int, bool) {
	switch x := v.(type) {
	case []int:
		return slices.Clone(x), true
	case []int64:
		out := make([]int, len(x))
		for i, d := range x {
			out[i] = int(d)
		}
		return out, true
	case []any:
		out := make([]int, len(x))
		for i, item := range x {
			d, ok := AsInt(item)
			if !ok {
				return nil, false
			}
			out[i] = d
		}
		return out, true
	}
	return nil, false
}

// scalarDType is the dtype a Go scalar takes part in promotion with.
func scalarDType(v any) (DType, bool) {
	switch v.(type) {
	case bool:
		return Bool, true
	case int, int64:
		return Int64, true
	case float64:
		return Float32, true
	}
	return "", false
}

func normalizeAxis(op string, axis, rank int) (int, error) {
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return 0, inferErrorf(op, "axis %d out of range for rank %d", axis, rank)
	}
	return axis, nil
}

// BroadcastShapes returns the shape two operands broadcast to.
func BroadcastShapes(a, b []int) ([]int, bool) {
	n := max(len(a), len(b))
	out := make([]int, n)
	for i := 1; i <= n; i++ {
		da, db := 1, 1
		if i <= len(a) {
			da = a[len(a)-i]
		}
		if i <= len(b) {
			db = b[len(b)-i]
		}
		switch {
		case da == db:
			out[n-i] = da
		case da == 1 || da == Dynamic:
			out[n-i] = db
		case db == 1 || db == Dynamic:
			out[n-i] = da
		default:
			return nil, false
		}
	}
	return out, true
}

// ---------------------------------------------------------------------------
// Rules
// ---------------------------------------------------------------------------

func binaryOperands(op string, args []any) (shape []int, dtype DType, stop bool, err error) {
	if len(args) != 2 {
		return nil, "", false, inferErrorf(op, "expected 2 operands, got %d", len(args))
	}
	shape = []int{}
	stop = true
	tensors := 0
	var scalar DType
	haveScalar := false
	for _, a := range args {
		if m, ok := a.(MetaInfo); ok {
			s, ok := BroadcastShapes(shape, m.Shape)
			if !ok {
				return nil, "", false, inferErrorf(op, "shapes %v and %v do not broadcast", shape, m.Shape)
			}
			shape = s
			if tensors == 0 {
				dtype = m.DType
			} else {
				dtype = Promote(dtype, m.DType)
			}
			stop = stop && m.StopGradient
			tensors++
			continue
		}
		d, ok := scalarDType(a)
		if !ok {
			return nil, "", false, inferErrorf(op, "unsupported operand %T", a)
		}
		if !haveScalar || d.rank() > scalar.rank() {
			scalar = d
		}
		haveScalar = true
	}
	if tensors == 0 {
		return nil, "", false, inferErrorf(op, "no tensor operand")
	}
	// A scalar only lifts the result into a higher category.
	if haveScalar && scalar.rank() > dtype.rank() && !(scalar.IsFloat() && dtype.IsFloat()) {
		dtype = scalar
	}
	return shape, dtype, stop, nil
}

func elementwise(op string, args []any, _ map[string]any) (MetaInfo, error) {
	shape, dtype, stop, err := binaryOperands(op, args)
	if err != nil {
		return MetaInfo{}, err
	}
	if op == "divide" && !dtype.IsFloat() {
		dtype = Float32
	}
	if dtype == Bool && op != "maximum" && op != "minimum" {
		dtype = Int64
	}
	return MetaInfo{Shape: shape, DType: dtype, StopGradient: stop}, nil
}

func compare(op string, args []any, _ map[string]any) (MetaInfo, error) {
	shape, _, _, err := binaryOperands(op, args)
	if err != nil {
		return MetaInfo{}, err
	}
	return MetaInfo{Shape: shape, DType: Bool, StopGradient: true}, nil
}

func unary(op string, args []any, _ map[string]any) (MetaInfo, error) {
	if len(args) != 1 {
		return MetaInfo{}, inferErrorf(op, "expected 1 operand, got %d", len(args))
	}
	m, err := asMeta(op, args[0])
	if err != nil {
		return MetaInfo{}, err
	}
	out := m.Clone()
	switch op {
	case "exp", "log", "sqrt", "tanh", "sigmoid":
		if !out.DType.IsFloat() {
			out.DType = Float32
		}
	case "neg", "abs", "relu":
		if out.DType == Bool {
			return MetaInfo{}, inferErrorf(op, "bad operand type bool")
		}
	}
	return out, nil
}

func reduce(op string, args []any, kwargs map[string]any) (MetaInfo, error) {
	if len(args) == 0 {
		return MetaInfo{}, inferErrorf(op, "missing operand")
	}
	m, err := asMeta(op, args[0])
	if err != nil {
		return MetaInfo{}, err
	}
	keep := false
	if v, ok := arg(args, kwargs, 2, "keepdim"); ok {
		keep, _ = v.(bool)
	}

	reduced := make([]bool, m.Rank())
	axisArg, _ := arg(args, kwargs, 1, "axis")
	switch {
	case axisArg == nil:
		for i := range reduced {
			reduced[i] = true
		}
	default:
		axes, ok := AsInts(axisArg)
		if !ok {
			a, ok := AsInt(axisArg)
			if !ok {
				return MetaInfo{}, inferErrorf(op, "bad axis %v", axisArg)
			}
			axes = []int{a}
		}
		for _, a := range axes {
			n, err := normalizeAxis(op, a, m.Rank())
			if err != nil {
				return MetaInfo{}, err
			}
			reduced[n] = true
		}
	}

	shape := []int{}
	for i, d := range m.Shape {
		switch {
		case !reduced[i]:
			shape = append(shape, d)
		case keep:
			shape = append(shape, 1)
		}
	}

	dtype := m.DType
	switch op {
	case "mean":
		if !dtype.IsFloat() {
			dtype = Float32
		}
	case "sum":
		if dtype == Bool {
			dtype = Int64
		}
	}
	return MetaInfo{Shape: shape, DType: dtype, StopGradient: m.StopGradient}, nil
}

func matmul(op string, args []any, _ map[string]any) (MetaInfo, error) {
	if len(args) != 2 {
		return MetaInfo{}, inferErrorf(op, "expected 2 operands, got %d", len(args))
	}
	a, err := asMeta(op, args[0])
	if err != nil {
		return MetaInfo{}, err
	}
	b, err := asMeta(op, args[1])
	if err != nil {
		return MetaInfo{}, err
	}
	if a.Rank() == 0 || b.Rank() == 0 {
		return MetaInfo{}, inferErrorf(op, "operands must have at least one dimension")
	}

	as, bs := a.Shape, b.Shape
	vecA, vecB := a.Rank() == 1, b.Rank() == 1
	if vecA {
		as = []int{1, as[0]}
	}
	if vecB {
		bs = []int{bs[0], 1}
	}
	k1, k2 := as[len(as)-1], bs[len(bs)-2]
	if k1 != k2 && k1 != Dynamic && k2 != Dynamic {
		return MetaInfo{}, inferErrorf(op, "inner dimensions %d and %d differ", k1, k2)
	}
	batch, ok := BroadcastShapes(as[:len(as)-2], bs[:len(bs)-2])
	if !ok {
		return MetaInfo{}, inferErrorf(op, "batch shapes %v and %v do not broadcast", as[:len(as)-2], bs[:len(bs)-2])
	}
	shape := slices.Clone(batch)
	if !vecA {
		shape = append(shape, as[len(as)-2])
	}
	if !vecB {
		shape = append(shape, bs[len(bs)-1])
	}
	return MetaInfo{
		Shape:        shape,
		DType:        Promote(a.DType, b.DType),
		StopGradient: a.StopGradient && b.StopGradient,
	}, nil
}

func reshape(op string, args []any, kwargs map[string]any) (MetaInfo, error) {
	if len(args) == 0 {
		return MetaInfo{}, inferErrorf(op, "missing operand")
	}
	m, err := asMeta(op, args[0])
	if err != nil {
		return MetaInfo{}, err
	}
	v, _ := arg(args, kwargs, 1, "shape")
	shape, ok := AsInts(v)
	if !ok {
		return MetaInfo{}, inferErrorf(op, "bad shape %v", v)
	}

	infer := -1
	known := 1
	for i, d := range shape {
		switch {
		case d == -1 && infer >= 0:
			return MetaInfo{}, inferErrorf(op, "only one dimension can be inferred")
		case d == -1:
			infer = i
		case d < 0:
			return MetaInfo{}, inferErrorf(op, "bad dimension %d", d)
		default:
			known *= d
		}
	}
	total := m.NumElements()
	if infer >= 0 {
		if total == Dynamic || known == 0 {
			shape[infer] = Dynamic
		} else if total%known != 0 {
			return MetaInfo{}, inferErrorf(op, "cannot reshape %v into %v", m.Shape, shape)
		} else {
			shape[infer] = total / known
		}
	} else if total != Dynamic && total != known {
		return MetaInfo{}, inferErrorf(op, "cannot reshape %v into %v", m.Shape, shape)
	}
	return MetaInfo{Shape: shape, DType: m.DType, StopGradient: m.StopGradient}, nil
}

func transpose(op string, args []any, kwargs map[string]any) (MetaInfo, error) {
	if len(args) == 0 {
		return MetaInfo{}, inferErrorf(op, "missing operand")
	}
	m, err := asMeta(op, args[0])
	if err != nil {
		return MetaInfo{}, err
	}
	var perm []int
	if v, ok := arg(args, kwargs, 1, "perm"); ok && v != nil {
		if perm, ok = AsInts(v); !ok {
			return MetaInfo{}, inferErrorf(op, "bad permutation %v", v)
		}
	} else {
		for i := m.Rank() - 1; i >= 0; i-- {
			perm = append(perm, i)
		}
	}
	if len(perm) != m.Rank() {
		return MetaInfo{}, inferErrorf(op, "permutation %v does not match rank %d", perm, m.Rank())
	}
	seen := make([]bool, m.Rank())
	shape := make([]int, m.Rank())
	for i, p := range perm {
		n, err := normalizeAxis(op, p, m.Rank())
		if err != nil {
			return MetaInfo{}, err
		}
		if seen[n] {
			return MetaInfo{}, inferErrorf(op, "repeated axis %d", p)
		}
		seen[n] = true
		shape[i] = m.Shape[n]
	}
	return MetaInfo{Shape: shape, DType: m.DType, StopGradient: m.StopGradient}, nil
}

func concat(op string, args []any, kwargs map[string]any) (MetaInfo, error) {
	v, _ := arg(args, kwargs, 0, "tensors")
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return MetaInfo{}, inferErrorf(op, "expected a non-empty list of tensors")
	}
	axis := 0
	if a, ok := arg(args, kwargs, 1, "axis"); ok {
		if axis, ok = AsInt(a); !ok {
			return MetaInfo{}, inferErrorf(op, "bad axis %v", a)
		}
	}

	first, err := asMeta(op, items[0])
	if err != nil {
		return MetaInfo{}, err
	}
	axis, err = normalizeAxis(op, axis, first.Rank())
	if err != nil {
		return MetaInfo{}, err
	}
	out := first.Clone()
	for _, item := range items[1:] {
		m, err := asMeta(op, item)
		if err != nil {
			return MetaInfo{}, err
		}
		if m.Rank() != out.Rank() {
			return MetaInfo{}, inferErrorf(op, "rank mismatch %d and %d", out.Rank(), m.Rank())
		}
		for i := range m.Shape {
			if i == axis {
				if out.Shape[i] == Dynamic || m.Shape[i] == Dynamic {
					out.Shape[i] = Dynamic
				} else {
					out.Shape[i] += m.Shape[i]
				}
				continue
			}
			if m.Shape[i] != out.Shape[i] && m.Shape[i] != Dynamic && out.Shape[i] != Dynamic {
				return MetaInfo{}, inferErrorf(op, "dimension %d differs: %d and %d", i, out.Shape[i], m.Shape[i])
			}
		}
		out.DType = Promote(out.DType, m.DType)
		out.StopGradient = out.StopGradient && m.StopGradient
	}
	return out, nil
}

func getitem(op string, args []any, _ map[string]any) (MetaInfo, error) {
	if len(args) != 2 {
		return MetaInfo{}, inferErrorf(op, "expected 2 operands, got %d", len(args))
	}
	m, err := asMeta(op, args[0])
	if err != nil {
		return MetaInfo{}, err
	}
	idx, ok := AsInt(args[1])
	if !ok {
		return MetaInfo{}, inferErrorf(op, "only integer indices are supported, got %T", args[1])
	}
	if m.Rank() == 0 {
		return MetaInfo{}, inferErrorf(op, "cannot index a 0-d tensor")
	}
	if n := m.Shape[0]; n != Dynamic && (idx >= n || idx < -n) {
		return MetaInfo{}, inferErrorf(op, "index %d out of range for dimension %d", idx, n)
	}
	return MetaInfo{Shape: slices.Clone(m.Shape[1:]), DType: m.DType, StopGradient: m.StopGradient}, nil
}

func cast(op string, args []any, kwargs map[string]any) (MetaInfo, error) {
	if len(args) == 0 {
		return MetaInfo{}, inferErrorf(op, "missing operand")
	}
	m, err := asMeta(op, args[0])
	if err != nil {
		return MetaInfo{}, err
	}
	v, _ := arg(args, kwargs, 1, "dtype")
	var dtype DType
	switch d := v.(type) {
	case string:
		dtype = DType(d)
	case DType:
		dtype = d
	}
	if !dtype.Valid() {
		return MetaInfo{}, inferErrorf(op, "unknown dtype %v", v)
	}
	out := m.Clone()
	out.DType = dtype
	return out, nil
}

func linear(op string, args []any, kwargs map[string]any) (MetaInfo, error) {
	if len(args) < 2 {
		return MetaInfo{}, inferErrorf(op, "expected input and weight")
	}
	x, err := asMeta(op, args[0])
	if err != nil {
		return MetaInfo{}, err
	}
	w, err := asMeta(op, args[1])
	if err != nil {
		return MetaInfo{}, err
	}
	if x.Rank() == 0 || w.Rank() != 2 {
		return MetaInfo{}, inferErrorf(op, "bad ranks %d and %d", x.Rank(), w.Rank())
	}
	in := x.Shape[x.Rank()-1]
	if in != w.Shape[0] && in != Dynamic && w.Shape[0] != Dynamic {
		return MetaInfo{}, inferErrorf(op, "input features %d do not match weight %v", in, w.Shape)
	}
	shape := append(slices.Clone(x.Shape[:x.Rank()-1]), w.Shape[1])
	stop := x.StopGradient && w.StopGradient
	if b, ok := arg(args, kwargs, 2, "bias"); ok && b != nil {
		bm, err := asMeta(op, b)
		if err != nil {
			return MetaInfo{}, err
		}
		stop = stop && bm.StopGradient
	}
	return MetaInfo{Shape: shape, DType: Promote(x.DType, w.DType), StopGradient: stop}, nil
}

// fill describes the tensor creation functions ones, zeros and full.
func fill(op string, args []any, kwargs map[string]any) (MetaInfo, error) {
	v, _ := arg(args, kwargs, 0, "shape")
	shape, ok := AsInts(v)
	if !ok {
		return MetaInfo{}, inferErrorf(op, "bad shape %v", v)
	}
	dtype := Float32
	if op == "full" {
		fillValue, ok := arg(args, kwargs, 1, "fill_value")
		if !ok {
			return MetaInfo{}, inferErrorf(op, "missing fill value")
		}
		if d, ok := scalarDType(fillValue); ok {
			dtype = d
		}
	}
	if d, ok := kwargs["dtype"]; ok {
		s, _ := d.(string)
		if !DType(s).Valid() {
			return MetaInfo{}, inferErrorf(op, "unknown dtype %v", d)
		}
		dtype = DType(s)
	}
	return MetaInfo{Shape: shape, DType: dtype, StopGradient: true}, nil
}
