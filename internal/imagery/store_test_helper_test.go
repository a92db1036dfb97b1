package imagery

import (
	"testing"

	"github.com/rockyterrain/rocky/internal/cachestore"
)

func newTempStore(t *testing.T) (*cachestore.Store, error) {
	t.Helper()
	return cachestore.Open(16, ":memory:")
}
