// Package imagery implements GeoImage, ImageMosaic, and the ImageLayer read
// pipeline: the hardest subsystem in rocky (spec.md §4.E/4.F), grounded on
// original_source/src/rocky/ImageLayer.cpp and ImageMosaic.cpp.
package imagery

import (
	"image"
	"image/color"

	"github.com/rockyterrain/rocky/internal/profile"
	"github.com/rockyterrain/rocky/internal/srs"
)

// GeoImage pairs a raster with the extent it covers.
type GeoImage struct {
	Image    *image.RGBA
	Extent   profile.Extent
	Coverage bool // coverage rasters never blend; crop uses nearest-neighbor
}

// Invalid returns the zero-value GeoImage used for failed reads.
func Invalid() GeoImage { return GeoImage{} }

// Valid reports whether the image carries actual data.
func (g GeoImage) Valid() bool { return g.Image != nil }

// CropTo crops g to target, resampling with nearest-neighbor for coverage
// rasters and bilinear otherwise, producing an outW x outH raster.
func (g GeoImage) CropTo(target profile.Extent, outW, outH int) GeoImage {
	if !g.Valid() {
		return Invalid()
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	srcBounds := g.Image.Bounds()

	// Map target extent pixels back into g's pixel space.
	sx := func(x int) float64 {
		u := (target.XMin + (target.Width())*(float64(x)+0.5)/float64(outW) - g.Extent.XMin) / g.Extent.Width()
		return u * float64(srcBounds.Dx())
	}
	sy := func(y int) float64 {
		// Image Y grows downward; extent Y grows upward.
		v := (g.Extent.YMax - (target.YMax-(target.Height())*(float64(y)+0.5)/float64(outH))) / g.Extent.Height()
		return v * float64(srcBounds.Dy())
	}

	for y := 0; y < outH; y++ {
		fy := sy(y)
		for x := 0; x < outW; x++ {
			fx := sx(x)
			var c color.RGBA
			if g.Coverage {
				c = nearestSample(g.Image, fx, fy)
			} else {
				c = bilinearSample(g.Image, fx, fy)
			}
			dst.SetRGBA(x, y, c)
		}
	}

	return GeoImage{Image: dst, Extent: target, Coverage: g.Coverage}
}

// ReprojectTo reprojects g into target's SRS at outW x outH, clipped to
// targetExtent, sampling with nearestSample (coverage) or bilinearSample
// (otherwise) once pixel centers have been inverse-projected into source
// space.
func (g GeoImage) ReprojectTo(targetExtent profile.Extent, outW, outH int) GeoImage {
	if !g.Valid() {
		return Invalid()
	}
	if g.Extent.SRS == nil || targetExtent.SRS == nil || g.Extent.SRS.IsHorizEquivalentTo(targetExtent.SRS) {
		return g.CropTo(targetExtent, outW, outH)
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	srcBounds := g.Image.Bounds()

	for y := 0; y < outH; y++ {
		v := 1.0 - (float64(y)+0.5)/float64(outH)
		wy := targetExtent.YMin + v*targetExtent.Height()
		for x := 0; x < outW; x++ {
			u := (float64(x) + 0.5) / float64(outW)
			wx := targetExtent.XMin + u*targetExtent.Width()

			pts, err := targetExtent.SRS.Transform(
				[]srs.Point3{{X: wx, Y: wy}}, g.Extent.SRS)
			if err != nil || len(pts) == 0 {
				continue
			}

			su := (pts[0].X - g.Extent.XMin) / g.Extent.Width()
			sv := 1.0 - (pts[0].Y-g.Extent.YMin)/g.Extent.Height()
			fx := su * float64(srcBounds.Dx())
			fy := sv * float64(srcBounds.Dy())

			var c color.RGBA
			if g.Coverage {
				c = nearestSample(g.Image, fx, fy)
			} else {
				c = bilinearSample(g.Image, fx, fy)
			}
			dst.SetRGBA(x, y, c)
		}
	}

	return GeoImage{Image: dst, Extent: targetExtent, Coverage: g.Coverage}
}

func nearestSample(img *image.RGBA, fx, fy float64) color.RGBA {
	x := clampInt(int(fx), 0, img.Bounds().Dx()-1)
	y := clampInt(int(fy), 0, img.Bounds().Dy()-1)
	return img.RGBAAt(img.Bounds().Min.X+x, img.Bounds().Min.Y+y)
}

func bilinearSample(img *image.RGBA, fx, fy float64) color.RGBA {
	b := img.Bounds()
	x0 := clampInt(int(fx), 0, b.Dx()-1)
	y0 := clampInt(int(fy), 0, b.Dy()-1)
	x1 := clampInt(x0+1, 0, b.Dx()-1)
	y1 := clampInt(y0+1, 0, b.Dy()-1)

	tx := fx - float64(x0)
	ty := fy - float64(y0)

	c00 := img.RGBAAt(b.Min.X+x0, b.Min.Y+y0)
	c10 := img.RGBAAt(b.Min.X+x1, b.Min.Y+y0)
	c01 := img.RGBAAt(b.Min.X+x0, b.Min.Y+y1)
	c11 := img.RGBAAt(b.Min.X+x1, b.Min.Y+y1)

	lerpChan := func(a, b uint8, t float64) uint8 {
		return uint8(float64(a)*(1-t) + float64(b)*t)
	}
	top := color.RGBA{
		R: lerpChan(c00.R, c10.R, tx), G: lerpChan(c00.G, c10.G, tx),
		B: lerpChan(c00.B, c10.B, tx), A: lerpChan(c00.A, c10.A, tx),
	}
	bot := color.RGBA{
		R: lerpChan(c01.R, c11.R, tx), G: lerpChan(c01.G, c11.G, tx),
		B: lerpChan(c01.B, c11.B, tx), A: lerpChan(c01.A, c11.A, tx),
	}
	return color.RGBA{
		R: lerpChan(top.R, bot.R, ty), G: lerpChan(top.G, bot.G, ty),
		B: lerpChan(top.B, bot.B, ty), A: lerpChan(top.A, bot.A, ty),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
