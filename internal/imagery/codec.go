package imagery

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/rockyterrain/rocky/internal/profile"
)

// encodeGeoImage serializes a GeoImage to a flat byte buffer for
// cachestore.Store: a fixed header (width, height, extent corners,
// coverage flag) followed by raw RGBA pixels. The layer's own Profile is
// reattached on decode rather than round-tripped, since every entry in one
// layer's cache shares that Profile.
func encodeGeoImage(g GeoImage) []byte {
	if !g.Valid() {
		return nil
	}
	b := g.Image.Bounds()
	w, h := b.Dx(), b.Dy()

	const headerLen = 4 + 4 + 8*4 + 1
	buf := make([]byte, headerLen+w*h*4)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(w))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h))
	putFloat64(buf[8:16], g.Extent.XMin)
	putFloat64(buf[16:24], g.Extent.YMin)
	putFloat64(buf[24:32], g.Extent.XMax)
	putFloat64(buf[32:40], g.Extent.YMax)
	if g.Coverage {
		buf[40] = 1
	}

	copy(buf[headerLen:], g.Image.Pix[:w*h*4])
	return buf
}

// decodeGeoImage reverses encodeGeoImage, attaching p as the decoded
// image's SRS.
func decodeGeoImage(data []byte, p *profile.Profile) (GeoImage, bool) {
	const headerLen = 4 + 4 + 8*4 + 1
	if len(data) < headerLen {
		return GeoImage{}, false
	}

	w := int(binary.LittleEndian.Uint32(data[0:4]))
	h := int(binary.LittleEndian.Uint32(data[4:8]))
	if w <= 0 || h <= 0 || len(data) != headerLen+w*h*4 {
		return GeoImage{}, false
	}

	ext := profile.Extent{
		XMin: getFloat64(data[8:16]),
		YMin: getFloat64(data[16:24]),
		XMax: getFloat64(data[24:32]),
		YMax: getFloat64(data[32:40]),
	}
	if p != nil {
		ext.SRS = p.SRS
	}
	coverage := data[40] == 1

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, data[headerLen:])

	return GeoImage{Image: img, Extent: ext, Coverage: coverage}, true
}

func putFloat64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

func getFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
