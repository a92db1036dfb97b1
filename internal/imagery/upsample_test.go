package imagery

import (
	"image"
	"image/color"
	"testing"

	"github.com/rockyterrain/rocky/internal/profile"
)

func TestFractalUpsampleDeterministic(t *testing.T) {
	p := profile.WellKnownProfile("global-geodetic")
	parentKey := profile.New(3, 1, 1, p)
	childKey := parentKey.CreateChildKey(2)

	parent := solidGeoImage(parentKey.GetExtent(), 16, color.RGBA{R: 100, G: 150, B: 200, A: 255})

	a := FractalUpsample(parent, childKey, 16, nil)
	b := FractalUpsample(parent, childKey, 16, nil)

	if !a.Valid() || !b.Valid() {
		t.Fatal("expected valid upsampled images")
	}
	if !imagesEqual(a.Image, b.Image) {
		t.Error("expected identical output for identical input (deterministic PRNG seed)")
	}
}

func TestFractalUpsampleCancellation(t *testing.T) {
	p := profile.WellKnownProfile("global-geodetic")
	parentKey := profile.New(3, 1, 1, p)
	childKey := parentKey.CreateChildKey(0)
	parent := solidGeoImage(parentKey.GetExtent(), 16, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	out := FractalUpsample(parent, childKey, 16, func() bool { return true })
	if out.Valid() {
		t.Error("expected cancellation to yield an invalid image")
	}
}

func TestFractalUpsampleInvalidParent(t *testing.T) {
	p := profile.WellKnownProfile("global-geodetic")
	childKey := profile.New(1, 0, 0, p)
	out := FractalUpsample(Invalid(), childKey, 16, nil)
	if out.Valid() {
		t.Error("expected invalid parent to produce an invalid image")
	}
}

func imagesEqual(a, b *image.RGBA) bool {
	if a.Bounds() != b.Bounds() {
		return false
	}
	ba := a.Bounds()
	for y := ba.Min.Y; y < ba.Max.Y; y++ {
		for x := ba.Min.X; x < ba.Max.X; x++ {
			if a.RGBAAt(x, y) != b.RGBAAt(x, y) {
				return false
			}
		}
	}
	return true
}
