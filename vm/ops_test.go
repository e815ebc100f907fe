package vm

import (
	"errors"
	"testing"

	"github.com/chazu/symtrace/pkg/meta"
)

func TestBinaryOp(t *testing.T) {
	tests := []struct {
		sym  string
		a, b any
		want any
	}{
		{"+", int64(2), int64(3), int64(5)},
		{"+", int64(2), 0.5, 2.5},
		{"/", int64(7), int64(2), 3.5},
		{"//", int64(-7), int64(2), int64(-4)},
		{"%", int64(-7), int64(2), int64(1)},
		{"**", int64(2), int64(10), int64(1024)},
		{"//", 7.0, 2.0, 3.0},
		{"+", true, int64(1), int64(2)},
		{"+", "ab", "cd", "abcd"},
		{"*", "ab", int64(2), "abab"},
		{"*", int64(2), NewList(int64(1)), NewList(int64(1), int64(1))},
		{"+", NewTuple(int64(1)), NewTuple(int64(2)), NewTuple(int64(1), int64(2))},
	}
	for _, tt := range tests {
		got, err := BinaryOp(tt.sym, tt.a, tt.b)
		if err != nil {
			t.Errorf("%s %s %s: %v", Repr(tt.a), tt.sym, Repr(tt.b), err)
			continue
		}
		if TypeName(got) != TypeName(tt.want) || !Equal(got, tt.want) {
			t.Errorf("%s %s %s: expected %s, got %s", Repr(tt.a), tt.sym, Repr(tt.b), Repr(tt.want), Repr(got))
		}
	}
}

func TestBinaryOpErrors(t *testing.T) {
	tests := []struct {
		sym  string
		a, b any
		kind string
	}{
		{"/", int64(1), int64(0), ZeroDivisionError},
		{"%", 1.0, 0.0, ZeroDivisionError},
		{"-", "a", "b", TypeError},
		{"+", NewList(), NewTuple(), TypeError},
		{"@", int64(1), int64(2), TypeError},
	}
	for _, tt := range tests {
		_, err := BinaryOp(tt.sym, tt.a, tt.b)
		if !errors.Is(err, NewHostError(tt.kind, "")) {
			t.Errorf("%s %s %s: expected %s, got %v", Repr(tt.a), tt.sym, Repr(tt.b), tt.kind, err)
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		sym  string
		a, b any
		want bool
	}{
		{"<", int64(1), 1.5, true},
		{"==", int64(1), 1.0, true},
		{"!=", "a", "b", true},
		{">=", "b", "a", true},
		{"<", NewTuple(int64(1), int64(2)), NewTuple(int64(1), int64(3)), true},
		{"<", NewList(int64(1)), NewList(int64(1), int64(0)), true},
		{"==", NewList(int64(1)), NewTuple(int64(1)), false},
	}
	for _, tt := range tests {
		got, err := Compare(tt.sym, tt.a, tt.b)
		if err != nil {
			t.Errorf("%s %s %s: %v", Repr(tt.a), tt.sym, Repr(tt.b), err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s %s %s: expected %v, got %v", Repr(tt.a), tt.sym, Repr(tt.b), tt.want, got)
		}
	}

	if _, err := Compare("<", "a", int64(1)); !errors.Is(err, NewHostError(TypeError, "")) {
		t.Errorf("Expected TypeError ordering str and int, got %v", err)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{int64(0), false},
		{0.5, true},
		{"", false},
		{NewList(), false},
		{NewTuple(int64(0)), true},
		{NewDict(), false},
		{&Range{Start: 0, Stop: 0, Step: 1}, false},
		{Full(meta.New(meta.Float32), 2), true},
	}
	for _, tt := range tests {
		got, err := Truthy(tt.v)
		if err != nil || got != tt.want {
			t.Errorf("Truthy(%s): expected %v, got %v, %v", Repr(tt.v), tt.want, got, err)
		}
	}

	_, err := Truthy(Full(meta.New(meta.Float32, 2), 1))
	if !errors.Is(err, NewHostError(ValueError, "")) {
		t.Errorf("Expected an ambiguous truth ValueError, got %v", err)
	}
}

func TestDictKeys(t *testing.T) {
	d := NewDict()
	d.Set(int64(1), "int")
	d.Set(1.0, "float")
	d.Set(true, "bool")
	if d.Len() != 1 {
		t.Errorf("Equal numbers should share a key, got %d entries", d.Len())
	}
	if v, _ := d.Get(int64(1)); v != "bool" {
		t.Errorf("Expected the last write to win, got %v", v)
	}
	if keys := d.Keys(); keys[0] != int64(1) {
		t.Errorf("Expected the first key to be kept, got %v", keys)
	}

	if err := d.Set(NewList(), 1); !errors.Is(err, NewHostError(TypeError, "")) {
		t.Errorf("Expected unhashable TypeError, got %v", err)
	}
	if err := d.Set(NewTuple(int64(1), "a"), 1); err != nil {
		t.Errorf("Tuples should be hashable: %v", err)
	}
	if !d.Has(NewTuple(int64(1), "a")) {
		t.Error("Equal tuples should find the same entry")
	}

	d.Delete(int64(1))
	if keys := d.Keys(); len(keys) != 1 {
		t.Errorf("Expected only the tuple key after Delete, got %v", keys)
	}
}

func TestContainsAndLen(t *testing.T) {
	if ok, _ := Contains(NewList(int64(1), "a"), "a"); !ok {
		t.Error("Expected \"a\" in the list")
	}
	if ok, _ := Contains(&Range{Start: 0, Stop: 10, Step: 3}, int64(9)); !ok {
		t.Error("Expected 9 in range(0, 10, 3)")
	}
	if _, err := Contains(int64(1), int64(1)); err == nil {
		t.Error("Expected a TypeError for an int container")
	}
	if n, _ := Len(Full(meta.New(meta.Float32, 4, 2), 0)); n != 4 {
		t.Errorf("Expected len 4, got %d", n)
	}
	if n, _ := Len("héllo"); n != 5 {
		t.Errorf("Expected len 5 counting runes, got %d", n)
	}
}
