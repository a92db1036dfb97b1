package geometry

import (
	"sync"
	"testing"

	"github.com/rockyterrain/rocky/internal/profile"
)

// TestGetPooledGeometrySameShapeAcrossX verifies spec.md's core identity
// guarantee for the geometry pool: in a geographic profile, two tiles at the
// same (LOD, TileY) but different X share a mesh, since longitude doesn't
// change the tile's local-space shape at a fixed latitude row.
func TestGetPooledGeometrySameShapeAcrossX(t *testing.T) {
	p := profile.WellKnownProfile("global-geodetic")
	keyA := profile.New(4, 3, 5, p)
	keyB := profile.New(4, 9, 5, p)

	pool := NewPool()
	settings := Settings{TileSize: 9, SkirtRatio: 0.02, EnableMorph: true}

	gA, err := pool.GetPooledGeometry(keyA, settings)
	if err != nil {
		t.Fatalf("GetPooledGeometry(A): %v", err)
	}
	gB, err := pool.GetPooledGeometry(keyB, settings)
	if err != nil {
		t.Fatalf("GetPooledGeometry(B): %v", err)
	}

	if gA != gB {
		t.Fatalf("expected identical *SharedGeometry for same (LOD, TileY), got distinct pointers %p != %p", gA, gB)
	}
}

// TestGetPooledGeometryConcurrentBuildsOnce drives many goroutines at two
// TileKeys sharing a shape Key and asserts the singleflight gate lets exactly
// one build happen and every caller observes the same object identity.
func TestGetPooledGeometryConcurrentBuildsOnce(t *testing.T) {
	p := profile.WellKnownProfile("global-geodetic")
	keyA := profile.New(6, 1, 20, p)
	keyB := profile.New(6, 40, 20, p)

	pool := NewPool()
	settings := Settings{TileSize: 9, SkirtRatio: 0, EnableMorph: false}

	const n = 16
	results := make([]*SharedGeometry, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tk := keyA
			if i%2 == 1 {
				tk = keyB
			}
			g, err := pool.GetPooledGeometry(tk, settings)
			if err != nil {
				t.Errorf("GetPooledGeometry: %v", err)
				return
			}
			results[i] = g
		}(i)
	}
	wg.Wait()

	first := results[0]
	if first == nil {
		t.Fatal("expected a non-nil geometry")
	}
	for i, g := range results {
		if g != first {
			t.Errorf("result[%d] = %p, want %p (same shared geometry)", i, g, first)
		}
	}

	if got := pool.cacheLen(); got != 1 {
		t.Errorf("cache holds %d shape keys, want 1", got)
	}
}

// TestGetPooledGeometryDifferentTileYBuildsSeparately confirms TileY is part
// of the shape key in a geographic profile: different latitude rows must not
// share a mesh, since the projected cell shape varies with latitude.
func TestGetPooledGeometryDifferentTileYBuildsSeparately(t *testing.T) {
	p := profile.WellKnownProfile("global-geodetic")
	keyRow0 := profile.New(4, 0, 0, p)
	keyRow1 := profile.New(4, 0, 1, p)

	pool := NewPool()
	settings := Settings{TileSize: 9, SkirtRatio: 0, EnableMorph: false}

	g0, err := pool.GetPooledGeometry(keyRow0, settings)
	if err != nil {
		t.Fatalf("GetPooledGeometry(row0): %v", err)
	}
	g1, err := pool.GetPooledGeometry(keyRow1, settings)
	if err != nil {
		t.Fatalf("GetPooledGeometry(row1): %v", err)
	}

	if g0 == g1 {
		t.Fatal("expected distinct geometries for different TileY in a geographic profile")
	}
}

func (p *Pool) cacheLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache)
}

func TestGetNumSkirtElements(t *testing.T) {
	for _, n := range []int{2, 5, 9, 17} {
		if got, want := getNumSkirtElements(n), (n-1)*4; got != want {
			t.Errorf("getNumSkirtElements(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestCreateIndicesSkirtStaysInBounds(t *testing.T) {
	const n = 9
	idx := createIndices(n, true)

	maxAllowed := uint32(n*n + getNumSkirtElements(n) + 4 - 1)
	for i, v := range idx {
		if v > maxAllowed {
			t.Fatalf("index[%d] = %d exceeds skirt ring bound %d", i, v, maxAllowed)
		}
	}
}
