package executor

import (
	"sync"
	"sync/atomic"

	"github.com/chazu/symtrace/pkg/bytecode"
	"github.com/chazu/symtrace/symbolic"
	"github.com/chazu/symtrace/vm"
)

// ---------------------------------------------------------------------------
// Cache: guarded translations per code object
// ---------------------------------------------------------------------------

// Translator turns a frame into a Result. Translate is the default.
type Translator func(frame *vm.Frame, opts Options) (Result, error)

// EventKind classifies cache events.
type EventKind string

const (
	EventHit       EventKind = "hit"
	EventTranslate EventKind = "translate"
	EventSkip      EventKind = "skip"
	EventBailOut   EventKind = "bailout"
)

// Event describes one cache decision.
type Event struct {
	Kind    EventKind
	Code    string
	Reason  string
	BreakAt int
	IR      *symbolic.StatementIR

	// Translated is the code that replaces Code. Set for translate events.
	Translated *bytecode.Code
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits         uint64
	Misses       uint64
	Translations uint64
	Skips        uint64
	BailOuts     uint64
	Entries      int
}

type guardedCode struct {
	guard Guard
	code  *bytecode.Code
}

type cacheEntry struct {
	mu      sync.Mutex
	skip    bool
	reason  string
	guarded []guardedCode
}

// Cache maps code objects to the translations made for them. Each
// translation is reused while its guard holds; code that cannot be
// translated is marked and always runs unmodified.
type Cache struct {
	mu      sync.Mutex
	entries map[*bytecode.Code]*cacheEntry

	translate Translator
	opts      Options
	observer  func(Event)

	hits         atomic.Uint64
	misses       atomic.Uint64
	translations atomic.Uint64
	skips        atomic.Uint64
	bailOuts     atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithTranslator replaces the translation function.
func WithTranslator(t Translator) Option {
	return func(c *Cache) { c.translate = t }
}

// WithOptions sets the options passed to the translator.
func WithOptions(opts Options) Option {
	return func(c *Cache) { c.opts = opts }
}

// WithStrict makes unsupported constructs errors instead of fallbacks.
func WithStrict(strict bool) Option {
	return func(c *Cache) { c.opts.Strict = strict }
}

// WithObserver registers a function called for every cache decision.
func WithObserver(fn func(Event)) Option {
	return func(c *Cache) { c.observer = fn }
}

// NewCache returns an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[*bytecode.Code]*cacheEntry),
		translate: Translate,
		opts:      DefaultOptions(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) entry(code *bytecode.Code) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[code]
	if !ok {
		e = &cacheEntry{}
		c.entries[code] = e
	}
	return e
}

func (c *Cache) observe(ev Event) {
	if c.observer != nil {
		c.observer(ev)
	}
}

// LookupOrTranslate returns the code to run for frame: a cached translation
// whose guard holds, a new translation, or nil to run the frame unmodified.
func (c *Cache) LookupOrTranslate(frame *vm.Frame) (*bytecode.Code, error) {
	code := frame.OriginalCode()
	e := c.entry(code)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.skip {
		c.skips.Add(1)
		c.observe(Event{Kind: EventSkip, Code: code.Name, Reason: e.reason, BreakAt: -1})
		return nil, nil
	}
	for _, gc := range e.guarded {
		if gc.guard(frame) {
			c.hits.Add(1)
			log.Debugf("cache hit for %s", code.Name)
			c.observe(Event{Kind: EventHit, Code: code.Name, BreakAt: -1})
			return gc.code, nil
		}
	}
	c.misses.Add(1)

	restore := vm.DisableHook()
	res, err := c.translate(frame, c.opts)
	restore()
	if err != nil {
		if IsInnerError(err) {
			log.Errorf("translating %s: %v", code.Name, err)
		}
		return nil, err
	}

	if res.Outcome == BailedOut {
		c.bailOuts.Add(1)
		e.skip, e.reason = true, res.Reason
		log.Noticef("%s will run untranslated: %s", code.Name, res.Reason)
		c.observe(Event{Kind: EventBailOut, Code: code.Name, Reason: res.Reason, BreakAt: -1})
		if c.opts.Strict {
			return nil, &UnsupportedError{Reason: res.Reason}
		}
		return nil, nil
	}

	c.translations.Add(1)
	e.guarded = append(e.guarded, guardedCode{guard: res.Guard, code: res.Code})
	log.Infof("translated %s (%d guards, %d cached)", code.Name, len(res.GuardText), len(e.guarded))
	c.observe(Event{Kind: EventTranslate, Code: code.Name, Reason: res.Reason, BreakAt: res.BreakAt, IR: res.IR, Translated: res.Code})
	return res.Code, nil
}

// Stats returns the counters accumulated so far.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Translations: c.translations.Load(),
		Skips:        c.skips.Load(),
		BailOuts:     c.bailOuts.Load(),
		Entries:      n,
	}
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[*bytecode.Code]*cacheEntry)
	c.hits.Store(0)
	c.misses.Store(0)
	c.translations.Store(0)
	c.skips.Store(0)
	c.bailOuts.Store(0)
}
