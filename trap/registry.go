package trap

import (
	"sort"
	"sync"
	"sync/atomic"
)

// FuncInfo is the frame metadata an artifact registers for one compiled
// function.
type FuncInfo struct {
	// Start and End bound the function's code addresses, [Start, End).
	Start uint64
	End   uint64
	// Index is the function's index in its module's function space.
	Index uint32
	// Module and Name are the symbolic names used in backtraces.
	Module string
	Name   string
	// Sources maps instruction offsets within the function to byte
	// offsets in the original module binary. May be shorter than the
	// function body; missing entries report a zero source offset.
	Sources []uint32
	// Sites classifies runtime faults by instruction offset, sorted by
	// Offset ascending.
	Sites []Site
}

type region struct {
	start, end uint64
	funcs      []FuncInfo // sorted by Start
}

// Registry resolves code addresses to frame metadata. Registration copies
// and republishes the whole index, so Lookup takes no locks and is safe
// from any goroutine, including one unwinding a fault.
type Registry struct {
	mu       sync.Mutex
	next     uint64
	snapshot atomic.Pointer[[]region]
}

// NewRegistry builds an empty registry. Address zero is never handed out,
// so a zero address always fails lookup.
func NewRegistry() *Registry {
	r := &Registry{next: 0x1000}
	empty := []region{}
	r.snapshot.Store(&empty)
	return r
}

// Reserve allocates size addresses and returns the range base. Ranges are
// never reused, even after Unregister; the address space is 64-bit and
// purely virtual.
func (r *Registry) Reserve(size uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	base := r.next
	r.next += size
	return base
}

// Register publishes frame metadata for a reserved range. funcs must carry
// absolute addresses within [base, base+size) and be sorted by Start.
func (r *Registry) Register(base, size uint64, funcs []FuncInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.snapshot.Load()
	next := make([]region, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, region{start: base, end: base + size, funcs: funcs})
	sort.Slice(next, func(i, j int) bool { return next[i].start < next[j].start })
	r.snapshot.Store(&next)
}

// Unregister removes the range registered at base. Addresses in the range
// stop resolving; lookups racing with removal see either the old or the
// new index, never a partial one.
func (r *Registry) Unregister(base uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.snapshot.Load()
	next := make([]region, 0, len(cur))
	for _, reg := range cur {
		if reg.start != base {
			next = append(next, reg)
		}
	}
	r.snapshot.Store(&next)
}

func (r *Registry) find(pc uint64) (*FuncInfo, uint32, bool) {
	regions := *r.snapshot.Load()
	i := sort.Search(len(regions), func(i int) bool { return regions[i].end > pc })
	if i == len(regions) || pc < regions[i].start {
		return nil, 0, false
	}
	funcs := regions[i].funcs
	j := sort.Search(len(funcs), func(j int) bool { return funcs[j].End > pc })
	if j == len(funcs) || pc < funcs[j].Start {
		return nil, 0, false
	}
	return &funcs[j], uint32(pc - funcs[j].Start), true
}

// Lookup resolves a code address to a backtrace frame.
func (r *Registry) Lookup(pc uint64) (Frame, bool) {
	fi, off, ok := r.find(pc)
	if !ok {
		return Frame{}, false
	}
	f := Frame{Module: fi.Module, Func: fi.Name, FuncIndex: fi.Index}
	if int(off) < len(fi.Sources) {
		f.SourceOffset = fi.Sources[off]
	}
	return f, true
}

// CodeAt reports the trap classification recorded for the instruction at a
// code address, if any.
func (r *Registry) CodeAt(pc uint64) (Code, bool) {
	fi, off, ok := r.find(pc)
	if !ok {
		return 0, false
	}
	sites := fi.Sites
	i := sort.Search(len(sites), func(i int) bool { return sites[i].Offset >= off })
	if i == len(sites) || sites[i].Offset != off {
		return 0, false
	}
	return sites[i].Code, true
}

// The process-wide registry shared by all artifacts.
var global = NewRegistry()

// Reserve allocates a code-address range in the process-wide registry.
func Reserve(size uint64) uint64 { return global.Reserve(size) }

// Register publishes frame metadata in the process-wide registry.
func Register(base, size uint64, funcs []FuncInfo) { global.Register(base, size, funcs) }

// Unregister removes a range from the process-wide registry.
func Unregister(base uint64) { global.Unregister(base) }

// Lookup resolves a code address in the process-wide registry.
func Lookup(pc uint64) (Frame, bool) { return global.Lookup(pc) }

// CodeAt classifies a fault address in the process-wide registry.
func CodeAt(pc uint64) (Code, bool) { return global.CodeAt(pc) }
