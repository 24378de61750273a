package trap

import (
	"sync"
	"testing"
)

func testFuncs(base uint64) []FuncInfo {
	return []FuncInfo{
		{
			Start: base, End: base + 10, Index: 0,
			Module: "m", Name: "first",
			Sources: []uint32{100, 101, 102},
			Sites:   []Site{{Offset: 2, Code: Unreachable}},
		},
		{
			Start: base + 10, End: base + 30, Index: 1,
			Module: "m", Name: "second",
			Sources: []uint32{200},
		},
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	base := r.Reserve(30)
	r.Register(base, 30, testFuncs(base))

	f, ok := r.Lookup(base + 1)
	if !ok {
		t.Fatal("lookup inside first function failed")
	}
	if f.Func != "first" || f.FuncIndex != 0 || f.SourceOffset != 101 {
		t.Errorf("frame = %+v", f)
	}

	f, ok = r.Lookup(base + 10)
	if !ok || f.Func != "second" {
		t.Errorf("boundary address resolved to %+v, ok=%v", f, ok)
	}

	// Past the source map: the frame still resolves, offset is zero.
	f, ok = r.Lookup(base + 15)
	if !ok || f.SourceOffset != 0 {
		t.Errorf("unmapped offset: frame=%+v ok=%v", f, ok)
	}

	if _, ok := r.Lookup(0); ok {
		t.Error("address zero must not resolve")
	}
	if _, ok := r.Lookup(base + 30); ok {
		t.Error("end address is exclusive")
	}
}

func TestRegistryCodeAt(t *testing.T) {
	r := NewRegistry()
	base := r.Reserve(30)
	r.Register(base, 30, testFuncs(base))

	code, ok := r.CodeAt(base + 2)
	if !ok || code != Unreachable {
		t.Errorf("CodeAt = %v, ok=%v", code, ok)
	}
	if _, ok := r.CodeAt(base + 3); ok {
		t.Error("offset without a site must not classify")
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	a := r.Reserve(10)
	b := r.Reserve(10)
	r.Register(a, 10, []FuncInfo{{Start: a, End: a + 10, Name: "a"}})
	r.Register(b, 10, []FuncInfo{{Start: b, End: b + 10, Name: "b"}})

	r.Unregister(a)
	if _, ok := r.Lookup(a); ok {
		t.Error("unregistered range still resolves")
	}
	if f, ok := r.Lookup(b); !ok || f.Func != "b" {
		t.Error("surviving range lost")
	}
}

func TestRegistryDisjointRanges(t *testing.T) {
	r := NewRegistry()
	a := r.Reserve(100)
	b := r.Reserve(100)
	if b < a+100 {
		t.Fatalf("overlapping reservations: %#x and %#x", a, b)
	}
	// Unregister does not recycle addresses.
	r.Unregister(a)
	if c := r.Reserve(10); c < b+100 {
		t.Fatalf("reservation reused freed space: %#x", c)
	}
}

func TestRegistryConcurrentLookup(t *testing.T) {
	r := NewRegistry()
	stop := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			base := r.Reserve(10)
			r.Register(base, 10, []FuncInfo{{Start: base, End: base + 10, Name: "f"}})
			r.Unregister(base)
		}
	}()

	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for j := 0; j < 10000; j++ {
				r.Lookup(uint64(0x1000 + j))
			}
		}()
	}

	readers.Wait()
	close(stop)
	<-writerDone
}
