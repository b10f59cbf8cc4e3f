package reference

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"
)

//go:embed catalog.json
var builtinCatalog []byte

var (
	builtinOnce  sync.Once
	builtinStore *MemoryStore
	builtinErr   error
)

// Builtin returns the catalogue compiled into the binary. It is loaded once
// per process.
func Builtin() (*MemoryStore, error) {
	builtinOnce.Do(func() {
		entries, err := DecodeJSON(bytes.NewReader(builtinCatalog))
		if err != nil {
			builtinErr = fmt.Errorf("builtin catalogue: %w", err)
			return
		}
		builtinStore, builtinErr = NewMemoryStore(entries)
	})
	return builtinStore, builtinErr
}
