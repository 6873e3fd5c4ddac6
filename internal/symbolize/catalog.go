package symbolize

import (
	"sort"
	"strings"

	"samply-hotspots/internal/samply"
)

// UnknownSymbol is the placeholder name used whenever a frame cannot be
// resolved at all (bad library index, missing address, bad string index).
const UnknownSymbol = "UNKNOWN"

// CatalogEntry is one module of the symbol catalog: its identifying keys plus
// flattened symbol ranges, sorted ascending by start address. Ranges are
// half-open [Starts[i], Ends[i]) and Names is parallel to both.
type CatalogEntry struct {
	CodeID    string
	DebugName string
	Starts    []uint64
	Ends      []uint64
	Names     []string
}

// Catalog holds every symbol entry of a side-car document plus the two lookup
// indices used to match profile libraries. Immutable after BuildCatalog.
type Catalog struct {
	Entries []*CatalogEntry

	byCodeID map[string]*CatalogEntry
	byName   map[string]*CatalogEntry
}

// BuildCatalog flattens a symbol side-car document into a catalog. Symbol
// string indices that are missing or out of range resolve to UnknownSymbol;
// an entry lacking both code id and debug name is kept in Entries but is not
// reachable through either index.
func BuildCatalog(doc *samply.SymsDocument) *Catalog {
	c := &Catalog{
		byCodeID: make(map[string]*CatalogEntry),
		byName:   make(map[string]*CatalogEntry),
	}

	for _, src := range doc.Data {
		entry := &CatalogEntry{
			CodeID:    src.CodeID,
			DebugName: src.DebugName,
		}

		ranges := make([]samply.SymbolRange, len(src.SymbolTable))
		copy(ranges, src.SymbolTable)
		sort.SliceStable(ranges, func(i, j int) bool {
			return ranges[i].RVA < ranges[j].RVA
		})

		entry.Starts = make([]uint64, len(ranges))
		entry.Ends = make([]uint64, len(ranges))
		entry.Names = make([]string, len(ranges))
		for i, r := range ranges {
			entry.Starts[i] = r.RVA
			entry.Ends[i] = r.RVA + r.Size
			entry.Names[i] = symbolName(doc.StringTable, r.Symbol)
		}

		if src.CodeID != "" {
			key := strings.ToUpper(src.CodeID)
			c.byCodeID[key] = entry
			// Common breakpad form: code id with a trailing 0.
			c.byCodeID[key+"0"] = entry
		}
		if src.DebugName != "" {
			c.byName[src.DebugName] = entry
		}

		c.Entries = append(c.Entries, entry)
	}

	return c
}

func symbolName(stringTable []string, index *int) string {
	if index == nil || *index < 0 || *index >= len(stringTable) {
		return UnknownSymbol
	}
	return stringTable[*index]
}

// MatchLibraries maps each profile library to its catalog entry, in library
// order. The fallback chain per library: code id (exact, then with the
// trailing pad digit stripped), breakpad id (same two forms), debug name,
// name. First match wins; an unmatched library gets a nil entry.
func (c *Catalog) MatchLibraries(libs []samply.Library) []*CatalogEntry {
	entries := make([]*CatalogEntry, len(libs))
	for i, lib := range libs {
		entries[i] = c.matchLibrary(lib)
	}
	return entries
}

func (c *Catalog) matchLibrary(lib samply.Library) *CatalogEntry {
	for _, key := range []string{lib.CodeID, lib.BreakpadID} {
		if key == "" {
			continue
		}
		k := strings.ToUpper(key)
		if entry, ok := c.byCodeID[k]; ok {
			return entry
		}
		if strings.HasSuffix(k, "0") {
			if entry, ok := c.byCodeID[k[:len(k)-1]]; ok {
				return entry
			}
		}
	}
	for _, key := range []string{lib.DebugName, lib.Name} {
		if key == "" {
			continue
		}
		if entry, ok := c.byName[key]; ok {
			return entry
		}
	}
	return nil
}
