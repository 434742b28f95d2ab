package analysis

import (
	"sync"

	"github.com/ianlancetaylor/demangle"

	"csa/internal/pex"
)

// ExportSymbol is a native export with its demangled name.
type ExportSymbol struct {
	Name      string `json:"name"`
	Demangled string `json:"demangled,omitempty"`
	Ordinal   uint32 `json:"ordinal"`
	RVA       uint32 `json:"rva"`
	Forwarder string `json:"forwarder,omitempty"`
}

// symbolCache memoises demangled names; mixed-mode images often export
// the same mangled templates from several modules.
type symbolCache struct {
	mu            sync.RWMutex
	demangleCache map[string]string
	hits          int
}

var cache = &symbolCache{
	demangleCache: make(map[string]string),
}

// CachedDemangle demangles an Itanium or Rust symbol. Names that are not
// mangled are returned unchanged.
func CachedDemangle(mangled string) string {
	cache.mu.RLock()
	if cached, exists := cache.demangleCache[mangled]; exists {
		cache.mu.RUnlock()
		cache.mu.Lock()
		cache.hits++
		cache.mu.Unlock()
		return cached
	}
	cache.mu.RUnlock()

	demangled := demangle.Filter(mangled, demangle.NoClones)

	cache.mu.Lock()
	cache.demangleCache[mangled] = demangled
	cache.mu.Unlock()
	return demangled
}

// DemangleCacheStats returns the number of cached symbols and cache hits.
func DemangleCacheStats() (symbols, hits int) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	return len(cache.demangleCache), cache.hits
}

// ScanExports lists the image's named exports with demangled names.
func ScanExports(im *pex.Image) ([]ExportSymbol, error) {
	exports, err := im.Exports()
	if err != nil {
		return nil, err
	}
	out := make([]ExportSymbol, 0, len(exports))
	for _, e := range exports {
		sym := ExportSymbol{
			Name:      EscapeUnprintable([]byte(e.Name)),
			Ordinal:   e.Ordinal,
			RVA:       e.RVA,
			Forwarder: e.Forwarder,
		}
		if d := CachedDemangle(e.Name); d != e.Name {
			sym.Demangled = d
		}
		out = append(out, sym)
	}
	return out, nil
}
