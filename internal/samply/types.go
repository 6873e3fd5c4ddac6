package samply

// Library is one entry of the profile's libs sequence. A library is
// identified by its position in that sequence; frames reach it through the
// Frame -> Func -> Resource -> Library indirection chain.
type Library struct {
	CodeID     string `json:"codeId"`
	BreakpadID string `json:"breakpadId"`
	DebugName  string `json:"debugName"`
	Name       string `json:"name"`
}

// Samples holds one thread's sample columns. All columns are parallel and
// indexed by sample number. Stack entries may be null in the source document,
// so they decode as pointers; a nil entry means the sample has no stack.
type Samples struct {
	Stack          []*int    `json:"stack"`
	Weight         []*int64  `json:"weight"`
	ThreadCPUDelta []*int64  `json:"threadCPUDelta"`
	TimeDeltas     []float64 `json:"timeDeltas"`
}

// StackTable is the parent-linked stack forest of one thread. Prefix points
// at the parent stack id; nil (or -1) marks a root.
type StackTable struct {
	Prefix []*int `json:"prefix"`
	Frame  []int  `json:"frame"`
}

// FrameTable maps frame ids to a relative virtual address and a func id.
// Address entries may be null when the frame has no native address.
type FrameTable struct {
	Address []*int64 `json:"address"`
	Func    []int    `json:"func"`
}

// FuncTable maps func ids to resource ids.
type FuncTable struct {
	Resource []int `json:"resource"`
}

// ResourceTable maps resource ids to library indices.
type ResourceTable struct {
	Lib []int `json:"lib"`
}

// Thread is one profiled thread with its samples and lookup tables.
type Thread struct {
	Name          string        `json:"name"`
	Samples       Samples       `json:"samples"`
	StackTable    StackTable    `json:"stackTable"`
	FrameTable    FrameTable    `json:"frameTable"`
	FuncTable     FuncTable     `json:"funcTable"`
	ResourceTable ResourceTable `json:"resourceTable"`
}

// Profile is a fully materialized samply (Firefox Profiler format) profile
// document.
type Profile struct {
	Libs    []Library `json:"libs"`
	Threads []Thread  `json:"threads"`
}

// SymbolRange is one record of a module's symbol table: the range
// [RVA, RVA+Size) belongs to the symbol named by string table index Symbol.
// Symbol is nil when the record carries no usable name.
type SymbolRange struct {
	RVA    uint64 `json:"rva"`
	Size   uint64 `json:"size"`
	Symbol *int   `json:"symbol"`
}

// SymsEntry is one module of the symbol side-car. CodeID and DebugName are
// both optional; an entry may be matchable by either, or by neither.
type SymsEntry struct {
	CodeID      string        `json:"code_id"`
	DebugName   string        `json:"debug_name"`
	SymbolTable []SymbolRange `json:"symbol_table"`
}

// SymsDocument is the symbol side-car: a shared string table plus per-module
// symbol entries whose records index into it.
type SymsDocument struct {
	StringTable []string    `json:"string_table"`
	Data        []SymsEntry `json:"data"`
}
