package meta

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
	"github.com/zeebo/xxh3"
)

var log = commonlog.GetLogger("symtrace.meta")

// Rule computes the result description of one operation. Tensor operands
// arrive as MetaInfo; everything else arrives as the plain Go value.
type Rule func(op string, args []any, kwargs map[string]any) (MetaInfo, error)

var (
	rulesMu sync.RWMutex
	rules   = make(map[string]Rule)
)

// Register installs the inference rule for an operation name, replacing any
// previous rule.
func Register(op string, rule Rule) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	rules[op] = rule
}

// Has reports whether an operation has an inference rule.
func Has(op string) bool {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	_, ok := rules[op]
	return ok
}

// Ops returns the registered operation names in sorted order.
func Ops() []string {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Memoized inference
// ---------------------------------------------------------------------------

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("meta: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// keyArg is the encodable form of one operand.
type keyArg struct {
	Kind  uint8     `cbor:"1,keyasint"`
	Meta  *MetaInfo `cbor:"2,keyasint"`
	Value any       `cbor:"3,keyasint"`
	List  []keyArg  `cbor:"4,keyasint"`
}

const (
	keyNone uint8 = iota
	keyMeta
	keyScalar
	keyList
)

type cacheKey struct {
	Op     string            `cbor:"1,keyasint"`
	Args   []keyArg          `cbor:"2,keyasint"`
	Kwargs map[string]keyArg `cbor:"3,keyasint"`
}

type cacheEntry struct {
	encoded []byte
	result  MetaInfo
	err     error
}

// Cache memoizes inference results keyed by the xxh3 hash of the canonical
// CBOR encoding of (op, args, kwargs).
type Cache struct {
	mu      sync.Mutex
	entries map[uint64][]cacheEntry
	hits    int
	misses  int
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uint64][]cacheEntry)}
}

var defaultCache = NewCache()

// Infer runs the rule registered for op, memoizing the result in the
// process-wide cache.
func Infer(op string, args []any, kwargs map[string]any) (MetaInfo, error) {
	return defaultCache.Infer(op, args, kwargs)
}

// ClearCache empties the process-wide inference cache.
func ClearCache() {
	defaultCache.Clear()
}

// CacheStats returns hit and miss counts of the process-wide cache.
func CacheStats() (hits, misses int) {
	return defaultCache.Stats()
}

// Infer runs the rule registered for op, consulting the cache first.
func (c *Cache) Infer(op string, args []any, kwargs map[string]any) (MetaInfo, error) {
	rulesMu.RLock()
	rule, ok := rules[op]
	rulesMu.RUnlock()
	if !ok {
		return MetaInfo{}, inferErrorf(op, "no inference rule")
	}

	encoded, err := encodeKey(op, args, kwargs)
	if err != nil {
		// Operands without a stable encoding are inferred every time.
		log.Debugf("uncacheable operands for %s: %v", op, err)
		return rule(op, args, kwargs)
	}
	h := xxh3.Hash(encoded)

	c.mu.Lock()
	for _, e := range c.entries[h] {
		if bytes.Equal(e.encoded, encoded) {
			c.hits++
			c.mu.Unlock()
			return e.result.Clone(), e.err
		}
	}
	c.misses++
	c.mu.Unlock()

	result, err := rule(op, args, kwargs)
	log.Debugf("infer %s -> %s (err=%v)", op, result, err)

	c.mu.Lock()
	c.entries[h] = append(c.entries[h], cacheEntry{encoded: encoded, result: result.Clone(), err: err})
	c.mu.Unlock()
	return result, err
}

// Clear empties the cache and resets its counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64][]cacheEntry)
	c.hits, c.misses = 0, 0
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, bucket := range c.entries {
		n += len(bucket)
	}
	return n
}

func encodeKey(op string, args []any, kwargs map[string]any) ([]byte, error) {
	key := cacheKey{Op: op, Args: make([]keyArg, len(args))}
	for i, a := range args {
		k, err := toKeyArg(a)
		if err != nil {
			return nil, err
		}
		key.Args[i] = k
	}
	if len(kwargs) > 0 {
		key.Kwargs = make(map[string]keyArg, len(kwargs))
		for name, v := range kwargs {
			k, err := toKeyArg(v)
			if err != nil {
				return nil, err
			}
			key.Kwargs[name] = k
		}
	}
	return cborEncMode.Marshal(key)
}

func toKeyArg(v any) (keyArg, error) {
	switch x := v.(type) {
	case nil:
		return keyArg{Kind: keyNone}, nil
	case MetaInfo:
		m := x.Clone()
		return keyArg{Kind: keyMeta, Meta: &m}, nil
	case bool, string, int64, float64, DType:
		return keyArg{Kind: keyScalar, Value: x}, nil
	case int:
		return keyArg{Kind: keyScalar, Value: int64(x)}, nil
	case []int:
		list := make([]keyArg, len(x))
		for i, d := range x {
			list[i] = keyArg{Kind: keyScalar, Value: int64(d)}
		}
		return keyArg{Kind: keyList, List: list}, nil
	case []any:
		list := make([]keyArg, len(x))
		for i, item := range x {
			k, err := toKeyArg(item)
			if err != nil {
				return keyArg{}, err
			}
			list[i] = k
		}
		return keyArg{Kind: keyList, List: list}, nil
	}
	return keyArg{}, fmt.Errorf("unsupported operand %T", v)
}
