// ImageLayer implements the read pipeline described in spec.md §4.E,
// grounded on original_source/src/rocky/ImageLayer.cpp's createImage /
// assembleImage / upsample split. It layers a single-flight build gate and a
// two-tier cache lookup on top of a source-specific CreateImageImplementation
// hook, then falls back to a cross-profile assemble (GetIntersectingKeys,
// recursive reads, ancestor crop, Mosaic, reproject) when the requested key's
// profile doesn't match the layer's own.
package imagery

import (
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rockyterrain/rocky/internal/cachestore"
	"github.com/rockyterrain/rocky/internal/iocontrol"
	"github.com/rockyterrain/rocky/internal/layer"
	"github.com/rockyterrain/rocky/internal/profile"
	"github.com/rockyterrain/rocky/internal/status"
)

// ImageLayer is a Layer specialized to produce GeoImage tiles.
type ImageLayer struct {
	*layer.Layer

	Profile      *profile.Profile
	TileSize     int
	MinDataLevel int
	MaxDataLevel int
	Upsample     bool
	Coverage     bool

	Cache *cachestore.Store

	// CreateImageImplementation is the source-specific hook (file, S3,
	// GeoTIFF, ...) that actually produces a GeoImage for a key already
	// known to lie within this layer's own Profile and data-level range.
	CreateImageImplementation func(key profile.TileKey, io *iocontrol.IOControl) iocontrol.IOResult[GeoImage]

	group singleflight.Group
}

// NewImageLayer constructs an unopened ImageLayer.
func NewImageLayer(name string, p *profile.Profile, tileSize int) *ImageLayer {
	return &ImageLayer{
		Layer:        layer.New(name),
		Profile:      p,
		TileSize:     tileSize,
		MinDataLevel: 0,
		MaxDataLevel: 30,
	}
}

// OpenImplementation satisfies layer.OpenCloser. A Profile and a read hook
// are required for the layer to ever produce data.
func (l *ImageLayer) OpenImplementation() status.Status {
	if l.Profile == nil {
		return status.Error(status.ConfigurationError, "ImageLayer has no Profile")
	}
	if l.CreateImageImplementation == nil {
		return status.Error(status.ConfigurationError, "ImageLayer has no CreateImageImplementation")
	}
	return status.OKStatus()
}

// CloseImplementation satisfies layer.OpenCloser; ImageLayer holds no
// resources of its own beyond the cache, which outlives Close.
func (l *ImageLayer) CloseImplementation() status.Status {
	return status.OKStatus()
}

// CreateImage produces the tile at key, per spec.md §4.E: a not-open/
// out-of-range check, a single-flight gate so concurrent callers asking for
// the same key share one build, a cache lookup, a fast path (optionally
// fractal-upsampled) when key shares this layer's Profile, and an assemble
// path (§4.E.2) otherwise.
func (l *ImageLayer) CreateImage(key profile.TileKey, io *iocontrol.IOControl) iocontrol.IOResult[GeoImage] {
	if !l.IsOpen() {
		return iocontrol.Fail[GeoImage](iocontrol.ResultServerError)
	}
	if !key.Valid() {
		return iocontrol.Fail[GeoImage](iocontrol.ResultReaderError)
	}
	if io != nil && io.IsCanceled() {
		return iocontrol.Fail[GeoImage](iocontrol.ResultCanceled)
	}

	cacheKey := l.cacheKeyFor(key)
	policy := l.CachePolicy

	if policy.IsCacheReadable() {
		if entry, ok := l.cacheGet(cacheKey); ok {
			if !policy.IsExpired(entry.lastModified, nowOrZero()) {
				return iocontrol.IOResult[GeoImage]{Value: entry.image, Code: iocontrol.ResultOK, FromCache: true, LastModifiedTime: entry.lastModified}
			}
		}
		if policy.IsCacheOnly() {
			return iocontrol.Fail[GeoImage](iocontrol.ResultNotFound)
		}
	}

	v, _, _ := l.group.Do(cacheKey, func() (interface{}, error) {
		return l.build(key, io), nil
	})
	result := v.(iocontrol.IOResult[GeoImage])

	if result.Succeeded() && policy.IsCacheWriteable() {
		l.cachePut(cacheKey, cacheEntry{image: result.Value, lastModified: time.Now()})
	}

	return result
}

// build performs the actual fast-path or assemble-path work, unguarded by
// the single-flight gate (the gate itself lives in CreateImage).
func (l *ImageLayer) build(key profile.TileKey, io *iocontrol.IOControl) iocontrol.IOResult[GeoImage] {
	if key.Profile != nil && l.Profile != nil && key.Profile.IsHorizEquivalentTo(l.Profile) {
		return l.buildFastPath(key, io)
	}
	return l.buildAssemblePath(key, io)
}

// buildFastPath handles a key already expressed in this layer's own
// Profile: in-range levels go straight to the source hook; levels beyond
// MaxDataLevel are either fractal-upsampled from an ancestor (if Upsample is
// set) or reported missing.
func (l *ImageLayer) buildFastPath(key profile.TileKey, io *iocontrol.IOControl) iocontrol.IOResult[GeoImage] {
	if key.LOD < l.MinDataLevel {
		return iocontrol.Fail[GeoImage](iocontrol.ResultNotFound)
	}
	if key.LOD <= l.MaxDataLevel {
		return l.CreateImageImplementation(key, io)
	}
	if !l.Upsample {
		return iocontrol.Fail[GeoImage](iocontrol.ResultNotFound)
	}

	parentKey := key.CreateParentKey()
	if !parentKey.Valid() {
		return iocontrol.Fail[GeoImage](iocontrol.ResultNotFound)
	}
	parentResult := l.CreateImage(parentKey, io)
	if !parentResult.Succeeded() {
		return iocontrol.Propagate[GeoImage, GeoImage](parentResult)
	}

	if io != nil && io.IsCanceled() {
		return iocontrol.Fail[GeoImage](iocontrol.ResultCanceled)
	}

	upsampled := FractalUpsample(parentResult.Value, key, l.TileSize, cancelFunc(io))
	if !upsampled.Valid() {
		return iocontrol.Fail[GeoImage](iocontrol.ResultCanceled)
	}
	return iocontrol.OK(upsampled)
}

// buildAssemblePath handles a key expressed in a foreign profile/LOD: it
// finds the tiles in this layer's own Profile that cover key's extent,
// reads each (falling back to a coarser ancestor crop on a miss), mosaics
// the pieces, and reprojects the mosaic into key's extent (spec §4.E.2).
func (l *ImageLayer) buildAssemblePath(key profile.TileKey, io *iocontrol.IOControl) iocontrol.IOResult[GeoImage] {
	requestExtent := key.GetExtent()
	localLOD := l.Profile.GetEquivalentLOD(key.Profile, key.LOD)
	if localLOD > l.MaxDataLevel {
		localLOD = l.MaxDataLevel
	}

	pieceKeys := profile.GetIntersectingKeysForExtent(requestExtent, localLOD, l.Profile)
	if len(pieceKeys) == 0 {
		return iocontrol.Fail[GeoImage](iocontrol.ResultNotFound)
	}

	var pieces []Piece
	anyValid := false
	for _, pk := range pieceKeys {
		if io != nil && io.IsCanceled() {
			return iocontrol.Fail[GeoImage](iocontrol.ResultCanceled)
		}
		img := l.readWithAncestorFallback(pk, io)
		pieces = append(pieces, Piece{Image: img, Key: pk})
		if img.Valid() {
			anyValid = true
		}
	}
	if !anyValid {
		return iocontrol.Fail[GeoImage](iocontrol.ResultNotFound)
	}

	mosaic := Mosaic(pieces)
	if !mosaic.Valid() {
		return iocontrol.Fail[GeoImage](iocontrol.ResultNotFound)
	}

	reprojected := mosaic.ReprojectTo(requestExtent, l.TileSize, l.TileSize)
	if !reprojected.Valid() {
		return iocontrol.Fail[GeoImage](iocontrol.ResultNotFound)
	}
	return iocontrol.OK(reprojected)
}

// readWithAncestorFallback reads pk through the normal fast path, and on a
// miss walks up to successively coarser ancestors (down to MinDataLevel),
// cropping the first hit back down to pk's own extent.
func (l *ImageLayer) readWithAncestorFallback(pk profile.TileKey, io *iocontrol.IOControl) GeoImage {
	result := l.CreateImage(pk, io)
	if result.Succeeded() {
		return result.Value
	}

	targetExtent := pk.GetExtent()
	for ancestor := pk.CreateParentKey(); ancestor.Valid() && ancestor.LOD >= l.MinDataLevel; ancestor = ancestor.CreateParentKey() {
		ar := l.CreateImage(ancestor, io)
		if ar.Succeeded() {
			return ar.Value.CropTo(targetExtent, l.TileSize, l.TileSize)
		}
	}
	return Invalid()
}

type cacheEntry struct {
	image        GeoImage
	lastModified time.Time
}

// cacheKeyFor joins the layer's revision, a signature of its Profile (the
// hash of the Profile's LOD-0 key), and the tile key's own hash into one
// "rev-sig-hash" string; the three values are not XOR-combined.
func (l *ImageLayer) cacheKeyFor(key profile.TileKey) string {
	rev := l.Revision()
	var profileSig uint64
	if l.Profile != nil {
		profileSig = profile.New(0, 0, 0, l.Profile).Hash()
	}
	return fmt.Sprintf("%d-%d-%d", rev, profileSig, key.Hash())
}

// cacheGet and cachePut bridge the GeoImage this layer works with against
// the byte-oriented cachestore.Store, which is shared across layer kinds
// and backed by SQLite: a GeoImage round-trips through encodeGeoImage /
// decodeGeoImage. When no Store is configured the cache is a no-op.
func (l *ImageLayer) cacheGet(key string) (cacheEntry, bool) {
	if l.Cache == nil {
		return cacheEntry{}, false
	}
	entry, ok := l.Cache.Get(key)
	if !ok {
		return cacheEntry{}, false
	}
	img, ok := decodeGeoImage(entry.Data, l.Profile)
	if !ok {
		return cacheEntry{}, false
	}
	return cacheEntry{image: img, lastModified: entry.LastModified}, true
}

func (l *ImageLayer) cachePut(key string, entry cacheEntry) {
	if l.Cache == nil {
		return
	}
	_ = l.Cache.Put(key, cachestore.Entry{
		Data:         encodeGeoImage(entry.image),
		ContentType:  "application/x-rocky-geoimage",
		LastModified: entry.lastModified,
	})
}

func nowOrZero() time.Time { return time.Now() }

func cancelFunc(io *iocontrol.IOControl) func() bool {
	if io == nil {
		return nil
	}
	return io.IsCanceled
}
