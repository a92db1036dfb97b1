package selection

import (
	"testing"

	"github.com/rockyterrain/rocky/internal/ellipsoid"
	"github.com/rockyterrain/rocky/internal/profile"
)

func TestPolarClipSymmetric(t *testing.T) {
	p := profile.WellKnownProfile("global-geodetic")
	e := ellipsoid.WGS84()

	info := Build(0, 10, p, e, 7.0, true)

	_, numHigh := p.GetNumTiles(10)
	kEquator := profile.New(10, 0, numHigh/2, p)
	visAtEquatorRow, _, _ := info.Get(kEquator)
	if visAtEquatorRow == 0 {
		t.Error("expected equatorial rows to remain valid at LOD 10")
	}

	// Both pole rows must be clipped: the valid band is mirrored about the equator.
	for _, y := range []int{0, numHigh - 1} {
		kPole := profile.New(10, 0, y, p)
		if visAtPoleRow, _, _ := info.Get(kPole); visAtPoleRow != 0 {
			t.Errorf("expected pole row %d to be clipped at LOD 10", y)
		}
	}
}

func TestVisibilityRangeDecreasesWithLOD(t *testing.T) {
	p := profile.WellKnownProfile("spherical-mercator")
	e := ellipsoid.WGS84()
	info := Build(0, 5, p, e, 7.0, false)

	prevRange := -1.0
	for lod := 0; lod <= 5; lod++ {
		k := profile.New(lod, 0, 0, p)
		visRange, _, _ := info.Get(k)
		if prevRange >= 0 && visRange >= prevRange {
			t.Errorf("visibility range did not decrease at LOD %d: %v >= %v", lod, visRange, prevRange)
		}
		prevRange = visRange
	}
}
