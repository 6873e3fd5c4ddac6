package analyzer

import (
	"samply-hotspots/internal/samply"
	"samply-hotspots/internal/symbolize"
)

// Walker reconstructs root-to-leaf symbol sequences for one thread's stack
// ids. It owns two memoization maps (frame id to symbol, stack id to symbol
// sequence) scoped to a single aggregation pass, so walkers must not be
// shared between passes or threads.
type Walker struct {
	resolver *symbolize.Resolver
	thread   *samply.Thread

	frameSyms map[int]string
	stackSyms map[int][]string
}

// NewWalker creates a walker for one thread of the profile.
func NewWalker(resolver *symbolize.Resolver, thread *samply.Thread) *Walker {
	return &Walker{
		resolver:  resolver,
		thread:    thread,
		frameSyms: make(map[int]string),
		stackSyms: make(map[int][]string),
	}
}

// SymbolForFrame resolves a frame id to a symbol name by chasing the
// Frame -> Func -> Resource -> Library chain and looking the frame's address
// up in that library. Any out-of-range link degrades to an unknown or
// library-label placeholder instead of failing.
func (w *Walker) SymbolForFrame(frameID int) string {
	if sym, ok := w.frameSyms[frameID]; ok {
		return sym
	}

	frames := &w.thread.FrameTable
	if frameID < 0 || frameID >= len(frames.Address) || frameID >= len(frames.Func) {
		w.frameSyms[frameID] = symbolize.UnknownSymbol
		return symbolize.UnknownSymbol
	}

	rva := frames.Address[frameID]
	if rva == nil {
		w.frameSyms[frameID] = symbolize.UnknownSymbol
		return symbolize.UnknownSymbol
	}

	libIndex := -1
	funcID := frames.Func[frameID]
	if funcID >= 0 && funcID < len(w.thread.FuncTable.Resource) {
		resourceID := w.thread.FuncTable.Resource[funcID]
		if resourceID >= 0 && resourceID < len(w.thread.ResourceTable.Lib) {
			libIndex = w.thread.ResourceTable.Lib[resourceID]
		}
	}

	sym := w.resolver.Resolve(libIndex, *rva)
	w.frameSyms[frameID] = sym
	return sym
}

// StackSymbols returns the symbol names for stackID ordered root first, leaf
// last. Out-of-range stack or prefix references truncate the walk at that
// point; the truncated result is still cached. The walk is bounded by the
// stack table length, which a prefix chain can only exceed if it contains a
// cycle.
func (w *Walker) StackSymbols(stackID int) []string {
	if syms, ok := w.stackSyms[stackID]; ok {
		return syms
	}

	frames := w.thread.StackTable.Frame
	prefix := w.thread.StackTable.Prefix

	syms := []string{}
	cur := stackID
	for steps := 0; steps < len(frames); steps++ {
		if cur < 0 || cur >= len(frames) {
			break
		}
		syms = append(syms, w.SymbolForFrame(frames[cur]))

		if cur >= len(prefix) {
			break
		}
		parent := prefix[cur]
		if parent == nil || *parent == -1 {
			break
		}
		cur = *parent
	}

	// Collected leaf->root; callers want root->leaf.
	for i, j := 0, len(syms)-1; i < j; i, j = i+1, j-1 {
		syms[i], syms[j] = syms[j], syms[i]
	}

	w.stackSyms[stackID] = syms
	return syms
}
