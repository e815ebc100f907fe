package vm

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chazu/symtrace/pkg/bytecode"
)

// Profiler tracks activation counts per code object to decide when a
// function is hot enough to be worth translating.

// CodeProfile holds profiling data for a single code object.
type CodeProfile struct {
	InvocationCount uint64 // Atomic counter for activations
	hot             atomic.Bool
}

// IsHot reports whether the threshold has been reached.
func (p *CodeProfile) IsHot() bool {
	return p.hot.Load()
}

// Profiler manages profiles for all code objects.
type Profiler struct {
	profiles sync.Map // *bytecode.Code -> *CodeProfile

	// Activations before code counts as hot. A threshold of 0 or 1 makes
	// code hot on its first activation.
	HotThreshold uint64

	// Called once when code becomes hot.
	OnHot func(code *bytecode.Code, profile *CodeProfile)

	hotCount uint64
}

// NewProfiler creates a profiler with the given hot threshold.
func NewProfiler(threshold uint64) *Profiler {
	return &Profiler{HotThreshold: threshold}
}

// RecordInvocation increments the activation count for code and reports
// whether the code is hot after this activation.
func (p *Profiler) RecordInvocation(code *bytecode.Code) bool {
	if code == nil {
		return false
	}

	val, _ := p.profiles.LoadOrStore(code, &CodeProfile{})
	profile := val.(*CodeProfile)

	count := atomic.AddUint64(&profile.InvocationCount, 1)
	if profile.IsHot() {
		return true
	}
	if count >= p.HotThreshold && profile.hot.CompareAndSwap(false, true) {
		atomic.AddUint64(&p.hotCount, 1)
		if p.OnHot != nil {
			p.OnHot(code, profile)
		}
	}
	return profile.IsHot()
}

// GetProfile returns the profile for code, or nil if not tracked.
func (p *Profiler) GetProfile(code *bytecode.Code) *CodeProfile {
	if val, ok := p.profiles.Load(code); ok {
		return val.(*CodeProfile)
	}
	return nil
}

// IsHot returns true if code has reached the hot threshold.
func (p *Profiler) IsHot(code *bytecode.Code) bool {
	profile := p.GetProfile(code)
	return profile != nil && profile.IsHot()
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	TotalCodes       int    // Number of code objects profiled
	HotCodes         int    // Number of hot code objects
	TotalInvocations uint64 // Total activations
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.profiles.Range(func(_, value any) bool {
		profile := value.(*CodeProfile)
		stats.TotalCodes++
		stats.TotalInvocations += atomic.LoadUint64(&profile.InvocationCount)
		if profile.IsHot() {
			stats.HotCodes++
		}
		return true
	})
	return stats
}

// TopCodes returns the n most frequently activated code objects.
func (p *Profiler) TopCodes(n int) []*bytecode.Code {
	type codeCount struct {
		code  *bytecode.Code
		count uint64
	}

	var all []codeCount
	p.profiles.Range(func(key, value any) bool {
		all = append(all, codeCount{key.(*bytecode.Code), atomic.LoadUint64(&value.(*CodeProfile).InvocationCount)})
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].code.Name < all[j].code.Name
	})

	result := make([]*bytecode.Code, 0, n)
	for i := 0; i < n && i < len(all); i++ {
		result = append(result, all[i].code)
	}
	return result
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.profiles.Range(func(key, _ any) bool {
		p.profiles.Delete(key)
		return true
	})
	atomic.StoreUint64(&p.hotCount, 0)
}

// HotCount returns how many code objects have become hot since the last
// Reset.
func (p *Profiler) HotCount() uint64 {
	return atomic.LoadUint64(&p.hotCount)
}
