package vm

import (
	"sync"
	"testing"

	"github.com/chazu/symtrace/pkg/bytecode"
)

func TestProfilerInvocation(t *testing.T) {
	p := NewProfiler(5)
	code := &bytecode.Code{Name: "test"}

	// First invocation
	if p.RecordInvocation(code) {
		t.Error("Code should not be hot after 1 invocation")
	}
	profile := p.GetProfile(code)
	if profile == nil {
		t.Fatal("Profile should exist after invocation")
	}
	if profile.InvocationCount != 1 {
		t.Errorf("Expected 1 invocation, got %d", profile.InvocationCount)
	}

	// Invoke 4 more times (total 5)
	var hot bool
	for i := 0; i < 4; i++ {
		hot = p.RecordInvocation(code)
	}
	if !hot {
		t.Error("Code should become hot at threshold")
	}
	if !p.IsHot(code) {
		t.Error("IsHot should return true")
	}

	// Code stays hot
	if !p.RecordInvocation(code) {
		t.Error("Hot code should stay hot")
	}
}

func TestProfilerOnHotFiresOnce(t *testing.T) {
	p := NewProfiler(2)
	fired := 0
	p.OnHot = func(code *bytecode.Code, profile *CodeProfile) {
		fired++
		if code.Name != "f" {
			t.Errorf("Expected f, got %s", code.Name)
		}
	}
	code := &bytecode.Code{Name: "f"}
	for i := 0; i < 10; i++ {
		p.RecordInvocation(code)
	}
	if fired != 1 {
		t.Errorf("Expected OnHot once, got %d", fired)
	}
	if p.HotCount() != 1 {
		t.Errorf("Expected HotCount 1, got %d", p.HotCount())
	}
}

func TestProfilerZeroThreshold(t *testing.T) {
	p := NewProfiler(0)
	if !p.RecordInvocation(&bytecode.Code{Name: "f"}) {
		t.Error("A zero threshold should make code hot immediately")
	}
	if p.RecordInvocation(nil) {
		t.Error("nil code is never hot")
	}
}

func TestProfilerStats(t *testing.T) {
	p := NewProfiler(3)
	a := &bytecode.Code{Name: "a"}
	b := &bytecode.Code{Name: "b"}
	c := &bytecode.Code{Name: "c"}
	for i := 0; i < 4; i++ {
		p.RecordInvocation(a)
	}
	for i := 0; i < 2; i++ {
		p.RecordInvocation(b)
	}
	p.RecordInvocation(c)

	stats := p.Stats()
	if stats.TotalCodes != 3 {
		t.Errorf("Expected 3 codes, got %d", stats.TotalCodes)
	}
	if stats.HotCodes != 1 {
		t.Errorf("Expected 1 hot code, got %d", stats.HotCodes)
	}
	if stats.TotalInvocations != 7 {
		t.Errorf("Expected 7 invocations, got %d", stats.TotalInvocations)
	}

	top := p.TopCodes(2)
	if len(top) != 2 || top[0] != a || top[1] != b {
		t.Errorf("Expected [a b], got %v", top)
	}

	p.Reset()
	if stats := p.Stats(); stats.TotalCodes != 0 || p.HotCount() != 0 {
		t.Errorf("Expected empty profiler after Reset, got %+v", stats)
	}
}

func TestProfilerConcurrentAccess(t *testing.T) {
	p := NewProfiler(100)
	code := &bytecode.Code{Name: "shared"}
	fired := 0
	var mu sync.Mutex
	p.OnHot = func(*bytecode.Code, *CodeProfile) {
		mu.Lock()
		fired++
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.RecordInvocation(code)
			}
		}()
	}
	wg.Wait()

	if got := p.GetProfile(code).InvocationCount; got != 1000 {
		t.Errorf("Expected 1000 invocations, got %d", got)
	}
	if fired != 1 {
		t.Errorf("Expected OnHot once under contention, got %d", fired)
	}
}
