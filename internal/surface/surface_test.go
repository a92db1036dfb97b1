package surface

import (
	"image"
	"image/color"
	"testing"

	"github.com/rockyterrain/rocky/internal/ellipsoid"
	"github.com/rockyterrain/rocky/internal/geometry"
	"github.com/rockyterrain/rocky/internal/imagery"
	"github.com/rockyterrain/rocky/internal/profile"
)

func TestNewSurfaceClonesSharedGeometry(t *testing.T) {
	p := profile.WellKnownProfile("global-geodetic")
	key := profile.New(2, 1, 0, p)
	pool := geometry.NewPool()
	shared, err := pool.GetPooledGeometry(key, geometry.Settings{TileSize: 5, SkirtRatio: 0.1, EnableMorph: false})
	if err != nil {
		t.Fatalf("building geometry: %v", err)
	}

	e := ellipsoid.WGS84()
	s := New(key, shared, e)

	if len(s.Positions) != len(shared.Positions) {
		t.Fatalf("expected %d positions, got %d", len(shared.Positions), len(s.Positions))
	}
	// Mutating the surface's copy must not affect the pooled geometry.
	s.Positions[0] = ellipsoid.Vec3{X: 999, Y: 999, Z: 999}
	if shared.Positions[0] == s.Positions[0] {
		t.Error("expected Surface's position copy to be independent of the shared geometry")
	}
}

func TestApplyElevationRasterMovesUnflaggedVertices(t *testing.T) {
	p := profile.WellKnownProfile("global-geodetic")
	key := profile.New(2, 1, 0, p)
	pool := geometry.NewPool()
	shared, err := pool.GetPooledGeometry(key, geometry.Settings{TileSize: 5, SkirtRatio: 0, EnableMorph: false})
	if err != nil {
		t.Fatalf("building geometry: %v", err)
	}

	e := ellipsoid.WGS84()
	s := New(key, shared, e)

	before := append([]ellipsoid.Vec3(nil), s.Positions...)

	raster := solidRaster(200)
	s.ApplyElevationRaster(raster, 1, 0, 1, 0)

	changed := false
	for i := range s.Positions {
		if s.Positions[i] != before[i] {
			changed = true
		}
		if !s.HasElevation[i] {
			t.Fatalf("expected vertex %d to be tagged HasElevation after apply", i)
		}
	}
	if !changed {
		t.Error("expected at least one vertex to move after applying a non-zero elevation raster")
	}

	// Re-applying must not move already-tagged vertices again.
	afterFirst := append([]ellipsoid.Vec3(nil), s.Positions...)
	s.ApplyElevationRaster(solidRaster(5000), 1, 0, 1, 0)
	for i := range s.Positions {
		if s.Positions[i] != afterFirst[i] {
			t.Errorf("vertex %d moved on a second apply despite already being tagged", i)
		}
	}
}

func TestHorizonCullerVisibleFromFarAbove(t *testing.T) {
	p := profile.WellKnownProfile("global-geodetic")
	key := profile.New(0, 0, 0, p)
	pool := geometry.NewPool()
	shared, err := pool.GetPooledGeometry(key, geometry.Settings{TileSize: 5, SkirtRatio: 0, EnableMorph: false})
	if err != nil {
		t.Fatalf("building geometry: %v", err)
	}

	e := ellipsoid.WGS84()
	s := New(key, shared, e)

	// A point far outside the ellipsoid, roughly above the tile's own
	// bounds, should see the tile.
	far := ellipsoid.Vec3{X: s.LocalBounds.Center().X, Y: s.LocalBounds.Center().Y, Z: e.RadiusEquator() * 10}
	if !s.HorizonCuller.IsVisible(far) {
		t.Error("expected tile to be visible from a point far above it")
	}
}

func solidRaster(value uint16) imagery.GeoImage {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	c := color.RGBA{R: byte(value >> 8), G: byte(value), B: 0, A: 255}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return imagery.GeoImage{Image: img}
}
