package meta

import (
	"errors"
	"slices"
	"testing"
)

func TestMetaInfoEqual(t *testing.T) {
	a := New(Float32, 2, 3)
	b := New(Float32, 2, 3)
	if !a.Equal(b) {
		t.Error("Expected equal metas")
	}
	if a.Equal(New(Float32, 3, 2)) {
		t.Error("Different shapes compared equal")
	}
	if a.Equal(New(Float64, 2, 3)) {
		t.Error("Different dtypes compared equal")
	}
	if a.Equal(a.WithStopGradient(true)) {
		t.Error("Different stop_gradient compared equal")
	}
}

func TestMetaInfoDynamic(t *testing.T) {
	m := New(Float32, Dynamic, 4)
	if !m.IsDynamic() {
		t.Error("Expected dynamic")
	}
	if m.NumElements() != Dynamic {
		t.Errorf("Expected Dynamic element count, got %d", m.NumElements())
	}
	if got := m.String(); got != "Meta(shape=[?, 4], dtype=float32)" {
		t.Errorf("Unexpected String(): %s", got)
	}
}

func TestInferElementwise(t *testing.T) {
	tests := []struct {
		name string
		op   string
		args []any
		want MetaInfo
	}{
		{"same shape", "add", []any{New(Float32, 2, 3), New(Float32, 2, 3)}, New(Float32, 2, 3)},
		{"broadcast", "multiply", []any{New(Float32, 4, 1), New(Float32, 3)}, New(Float32, 4, 3)},
		{"scalar keeps float", "add", []any{New(Float32, 2), int64(1)}, New(Float32, 2)},
		{"float scalar lifts int", "add", []any{New(Int64, 2), 1.5}, New(Float32, 2)},
		{"promotion", "subtract", []any{New(Float32, 2), New(Float64, 2)}, New(Float64, 2)},
		{"int divide", "divide", []any{New(Int64, 2), int64(2)}, New(Float32, 2)},
		{"dynamic", "add", []any{New(Float32, Dynamic, 3), New(Float32, 5, 3)}, New(Float32, 5, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Infer(tt.op, tt.args, nil)
			if err != nil {
				t.Fatalf("Infer failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestInferShapeErrors(t *testing.T) {
	tests := []struct {
		op   string
		args []any
	}{
		{"add", []any{New(Float32, 2), New(Float32, 3)}},
		{"matmul", []any{New(Float32, 2, 3), New(Float32, 4, 5)}},
		{"reshape", []any{New(Float32, 2, 3), []int{4}}},
		{"getitem", []any{New(Float32, 2), int64(5)}},
		{"nonexistent", nil},
	}
	for _, tt := range tests {
		_, err := Infer(tt.op, tt.args, nil)
		var ie *InferError
		if !errors.As(err, &ie) {
			t.Errorf("%s: expected *InferError, got %v", tt.op, err)
		}
	}
}

func TestInferMatmul(t *testing.T) {
	tests := []struct {
		a, b MetaInfo
		want []int
	}{
		{New(Float32, 2, 3), New(Float32, 3, 4), []int{2, 4}},
		{New(Float32, 3), New(Float32, 3), []int{}},
		{New(Float32, 3), New(Float32, 3, 4), []int{4}},
		{New(Float32, 5, 2, 3), New(Float32, 3, 4), []int{5, 2, 4}},
	}
	for _, tt := range tests {
		got, err := Infer("matmul", []any{tt.a, tt.b}, nil)
		if err != nil {
			t.Fatalf("matmul %s x %s failed: %v", tt.a, tt.b, err)
		}
		if !slices.Equal(got.Shape, tt.want) {
			t.Errorf("matmul %s x %s: expected %v, got %v", tt.a, tt.b, tt.want, got.Shape)
		}
	}
}

func TestInferReductions(t *testing.T) {
	x := New(Int64, 2, 3, 4)

	got, err := Infer("sum", []any{x}, nil)
	if err != nil || len(got.Shape) != 0 {
		t.Errorf("sum over all axes: got %s, %v", got, err)
	}

	got, err = Infer("mean", []any{x}, map[string]any{"axis": int64(1), "keepdim": true})
	if err != nil {
		t.Fatalf("mean failed: %v", err)
	}
	if !slices.Equal(got.Shape, []int{2, 1, 4}) || got.DType != Float32 {
		t.Errorf("Expected [2 1 4] float32, got %s", got)
	}

	got, err = Infer("max", []any{x, []int{-1, 0}}, nil)
	if err != nil {
		t.Fatalf("max failed: %v", err)
	}
	if !slices.Equal(got.Shape, []int{3}) {
		t.Errorf("Expected [3], got %v", got.Shape)
	}
}

func TestInferReshapeTransposeConcat(t *testing.T) {
	x := New(Float32, 2, 6)

	got, err := Infer("reshape", []any{x, []any{int64(3), int64(-1)}}, nil)
	if err != nil || !slices.Equal(got.Shape, []int{3, 4}) {
		t.Errorf("reshape: got %s, %v", got, err)
	}

	got, err = Infer("transpose", []any{x}, nil)
	if err != nil || !slices.Equal(got.Shape, []int{6, 2}) {
		t.Errorf("transpose: got %s, %v", got, err)
	}

	got, err = Infer("concat", []any{[]any{x, New(Float32, 3, 6)}}, nil)
	if err != nil || !slices.Equal(got.Shape, []int{5, 6}) {
		t.Errorf("concat: got %s, %v", got, err)
	}
}

func TestInferLinear(t *testing.T) {
	x := New(Float32, 8, 4)
	w := New(Float32, 4, 2)
	b := New(Float32, 2)
	got, err := Infer("linear", []any{x, w, b}, nil)
	if err != nil {
		t.Fatalf("linear failed: %v", err)
	}
	if !slices.Equal(got.Shape, []int{8, 2}) {
		t.Errorf("Expected [8 2], got %v", got.Shape)
	}
}

func TestInferCompareStopsGradient(t *testing.T) {
	got, err := Infer("less", []any{New(Float32, 3), 0.5}, nil)
	if err != nil {
		t.Fatalf("less failed: %v", err)
	}
	if got.DType != Bool || !got.StopGradient {
		t.Errorf("Expected stop-gradient bool, got %s", got)
	}
}

func TestCacheMemoizes(t *testing.T) {
	c := NewCache()
	args := []any{New(Float32, 2, 3), New(Float32, 3)}

	first, err := c.Infer("add", args, nil)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	second, err := c.Infer("add", []any{New(Float32, 2, 3), New(Float32, 3)}, nil)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("Cached result differs: %s vs %s", first, second)
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d and %d", hits, misses)
	}

	// Callers may not corrupt the cached shape.
	second.Shape[0] = 99
	third, _ := c.Infer("add", args, nil)
	if third.Shape[0] != 2 {
		t.Errorf("Cached shape was mutated: %v", third.Shape)
	}

	// Operands that differ only by kind must not collide.
	if _, err := c.Infer("sum", []any{New(Float32, 3), nil}, nil); err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	got, err := c.Infer("sum", []any{New(Float32, 3), int64(0)}, nil)
	if err != nil || len(got.Shape) != 0 {
		t.Errorf("sum axis 0: got %s, %v", got, err)
	}
	if c.Len() != 3 {
		t.Errorf("Expected 3 cached entries, got %d", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Error("Clear should empty the cache")
	}
}

func TestCacheUncacheableOperands(t *testing.T) {
	type opaque struct{ n int }
	c := NewCache()
	_, err := c.Infer("add", []any{New(Float32, 2), opaque{1}}, nil)
	if err == nil {
		t.Error("Expected error for opaque operand")
	}
	if c.Len() != 0 {
		t.Error("Opaque operands must not be cached")
	}
}
