package symbolize

import (
	"fmt"
	"sort"

	"samply-hotspots/internal/samply"
)

// Resolver resolves (library index, rva) pairs from a profile into symbol
// names, using the catalog entries matched to each library. It is immutable
// after construction and safe for concurrent use.
type Resolver struct {
	libs    []samply.Library
	entries []*CatalogEntry
}

// NewResolver matches every profile library against the catalog and returns
// the resolver for the whole run.
func NewResolver(libs []samply.Library, catalog *Catalog) *Resolver {
	return &Resolver{
		libs:    libs,
		entries: catalog.MatchLibraries(libs),
	}
}

// MatchedLibraries reports how many of the profile's libraries found a
// catalog entry.
func (r *Resolver) MatchedLibraries() int {
	n := 0
	for _, entry := range r.entries {
		if entry != nil {
			n++
		}
	}
	return n
}

// LibraryCount returns the number of libraries in the profile.
func (r *Resolver) LibraryCount() int {
	return len(r.libs)
}

// Resolve returns the symbol name covering rva inside the library at
// libIndex. An out-of-range library index yields UnknownSymbol. A library
// without a matched catalog entry, or an rva outside every known range,
// yields a "<display-name> @ 0x<rva>" label instead. Ranges are half-open,
// so an rva equal to a range's end belongs to the next range, if any.
func (r *Resolver) Resolve(libIndex int, rva int64) string {
	if libIndex < 0 || libIndex >= len(r.libs) {
		return UnknownSymbol
	}

	entry := r.entries[libIndex]
	if entry == nil {
		return r.fallbackLabel(libIndex, nil, rva)
	}

	if rva >= 0 {
		addr := uint64(rva)
		// Greatest start <= addr.
		i := sort.Search(len(entry.Starts), func(i int) bool {
			return entry.Starts[i] > addr
		}) - 1
		if i >= 0 && addr < entry.Ends[i] {
			return entry.Names[i]
		}
	}

	return r.fallbackLabel(libIndex, entry, rva)
}

func (r *Resolver) fallbackLabel(libIndex int, entry *CatalogEntry, rva int64) string {
	lib := r.libs[libIndex]
	name := lib.DebugName
	if name == "" {
		name = lib.Name
	}
	if name == "" && entry != nil {
		name = entry.DebugName
	}
	if name == "" {
		name = fmt.Sprintf("lib%d", libIndex)
	}
	return fmt.Sprintf("%s @ 0x%x", name, rva)
}
