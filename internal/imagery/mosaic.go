// ImageMosaic pastes a set of same-profile tile pieces into one raster
// spanning their union extent (spec.md §4.F), grounded on
// original_source/src/rocky/ImageMosaic.cpp.
package imagery

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/rockyterrain/rocky/internal/profile"
)

// Piece is one (image, key) contribution to a mosaic; all pieces are
// assumed to share a profile.
type Piece struct {
	Image GeoImage
	Key   profile.TileKey
}

// Mosaic pastes pieces into a single contiguous raster, transparent where
// unfilled, per §4.F: Y is flipped because tile Y grows southward while
// image Y grows downward.
func Mosaic(pieces []Piece) GeoImage {
	if len(pieces) == 0 {
		return Invalid()
	}

	minX, maxX := pieces[0].Key.X, pieces[0].Key.X
	minY, maxY := pieces[0].Key.Y, pieces[0].Key.Y
	for _, p := range pieces[1:] {
		if p.Key.X < minX {
			minX = p.Key.X
		}
		if p.Key.X > maxX {
			maxX = p.Key.X
		}
		if p.Key.Y < minY {
			minY = p.Key.Y
		}
		if p.Key.Y > maxY {
			maxY = p.Key.Y
		}
	}

	var firstValid *GeoImage
	for i := range pieces {
		if pieces[i].Image.Valid() {
			firstValid = &pieces[i].Image
			break
		}
	}
	if firstValid == nil {
		return Invalid()
	}
	w := firstValid.Image.Bounds().Dx()
	h := firstValid.Image.Bounds().Dy()

	outW := (maxX - minX + 1) * w
	outH := (maxY - minY + 1) * h
	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))

	// Clear to (1,1,1,0) per spec: "transparent-white where unfilled".
	fill := color.RGBA{R: 1, G: 1, B: 1, A: 0}
	for y := 0; y < outH; y++ {
		for x := 0; x < outW; x++ {
			dst.SetRGBA(x, y, fill)
		}
	}

	p := pieces[0].Key.Profile
	tileW, tileH := p.GetTileDimensions(pieces[0].Key.LOD)

	for _, piece := range pieces {
		if !piece.Image.Valid() {
			continue
		}
		destX := (piece.Key.X - minX) * w
		destY := (maxY - piece.Key.Y) * h
		blit(dst, piece.Image.Image, destX, destY)
	}

	ext := profile.Extent{
		SRS:  p.SRS,
		XMin: p.Extent.XMin + float64(minX)*tileW,
		YMax: p.Extent.YMax - float64(minY)*tileH,
		XMax: p.Extent.XMin + float64(maxX+1)*tileW,
		YMin: p.Extent.YMax - float64(maxY+1)*tileH,
	}

	return GeoImage{Image: dst, Extent: ext, Coverage: firstValid.Coverage}
}

// blit copies src into dst at (destX, destY) without resampling, using
// x/image/draw's Src op (a straight overwrite, since every piece already
// occupies exactly one tile's worth of destination pixels).
func blit(dst, src *image.RGBA, destX, destY int) {
	b := src.Bounds()
	r := image.Rect(destX, destY, destX+b.Dx(), destY+b.Dy())
	draw.Draw(dst, r, src, b.Min, draw.Src)
}
