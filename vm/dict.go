package vm

import (
	"fmt"
	"math"
	"strings"
)

// Dict is an insertion-ordered mapping.
type Dict struct {
	keys   []any
	values []any
	index  map[any]int
}

// NewDict returns an empty dict.
func NewDict() *Dict {
	return &Dict{index: make(map[any]int)}
}

// DictOf builds a dict from alternating keys and values.
func DictOf(kv ...any) (*Dict, error) {
	d := NewDict()
	for i := 0; i+1 < len(kv); i += 2 {
		if err := d.Set(kv[i], kv[i+1]); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// HashKey maps a hashable value to a comparable Go key. Equal numbers of
// different types map to the same key.
func HashKey(v any) (any, error) {
	switch x := v.(type) {
	case nil, string:
		return x, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case int64:
		return x, nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<62 {
			return int64(x), nil
		}
		return x, nil
	case *Tuple:
		parts := make([]string, len(x.Items))
		for i, item := range x.Items {
			k, err := HashKey(item)
			if err != nil {
				return nil, err
			}
			parts[i] = fmt.Sprintf("%T:%v", k, k)
		}
		return "\x00tuple(" + strings.Join(parts, ",") + ")", nil
	case *List, *Dict:
		return nil, typeErrorf("unhashable type: '%s'", TypeName(v))
	}
	// Remaining values hash by identity.
	return v, nil
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.keys)
}

// Get returns the value stored under key.
func (d *Dict) Get(key any) (any, bool) {
	k, err := HashKey(key)
	if err != nil {
		return nil, false
	}
	i, ok := d.index[k]
	if !ok {
		return nil, false
	}
	return d.values[i], true
}

// Lookup is Get with a KeyError for missing keys.
func (d *Dict) Lookup(key any) (any, error) {
	k, err := HashKey(key)
	if err != nil {
		return nil, err
	}
	i, ok := d.index[k]
	if !ok {
		return nil, NewHostError(KeyError, "%s", Repr(key))
	}
	return d.values[i], nil
}

// Set stores value under key, keeping the position of an existing key.
func (d *Dict) Set(key, value any) error {
	k, err := HashKey(key)
	if err != nil {
		return err
	}
	if i, ok := d.index[k]; ok {
		d.values[i] = value
		return nil
	}
	d.index[k] = len(d.keys)
	d.keys = append(d.keys, key)
	d.values = append(d.values, value)
	return nil
}

// Delete removes key, reporting whether it was present.
func (d *Dict) Delete(key any) bool {
	k, err := HashKey(key)
	if err != nil {
		return false
	}
	i, ok := d.index[k]
	if !ok {
		return false
	}
	d.keys = append(d.keys[:i], d.keys[i+1:]...)
	d.values = append(d.values[:i], d.values[i+1:]...)
	delete(d.index, k)
	for j := i; j < len(d.keys); j++ {
		hk, _ := HashKey(d.keys[j])
		d.index[hk] = j
	}
	return true
}

// Has reports whether key is present.
func (d *Dict) Has(key any) bool {
	_, ok := d.Get(key)
	return ok
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []any {
	return append([]any(nil), d.keys...)
}

// Values returns the values in insertion order.
func (d *Dict) Values() []any {
	return append([]any(nil), d.values...)
}

// Copy returns a shallow copy.
func (d *Dict) Copy() *Dict {
	c := NewDict()
	for i, k := range d.keys {
		_ = c.Set(k, d.values[i])
	}
	return c
}

// Update copies every entry of other into d.
func (d *Dict) Update(other *Dict) {
	for i, k := range other.keys {
		_ = d.Set(k, other.values[i])
	}
}

// StringDict builds a dict from a Go map with sorted keys.
func StringDict(m map[string]any) *Dict {
	d := NewDict()
	for _, k := range sortedKeys(m) {
		_ = d.Set(k, m[k])
	}
	return d
}
