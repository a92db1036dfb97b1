// Package selection implements SelectionInfo: the per-LOD visibility range
// and morph band table that drives view-dependent subdivision, including
// the polar-subdivision restriction (spec.md §4.G), grounded verbatim on
// original_source/src/rocky_vsg/SelectionInfo.cpp.
package selection

import (
	"math"

	"github.com/rockyterrain/rocky/internal/ellipsoid"
	"github.com/rockyterrain/rocky/internal/profile"
)

const morphStartRatio = 0.66

// polarStartLOD is the LOD at which polar restriction begins to apply.
const polarStartLOD = 6

// lodEntry is one row of the per-LOD table.
type lodEntry struct {
	visibilityRange        float64
	morphStart, morphEnd   float64
	minValidTY, maxValidTY int // -1,-1 means "no restriction"
}

// Info is the built per-LOD table for one (profile, firstLOD..maxLOD) pair.
type Info struct {
	firstLOD, maxLOD int
	lods             []lodEntry
}

// Build constructs the table for LODs [firstLOD, maxLOD] against profile,
// using ellipsoid e for metric/angular conversions. mtrf is the
// meters-to-range factor (a pixel-error-derived constant supplied by the
// viewer); restrictPolar enables the polar TY-band clipping.
func Build(firstLOD, maxLOD int, p *profile.Profile, e *ellipsoid.Ellipsoid, mtrf float64, restrictPolar bool) *Info {
	info := &Info{firstLOD: firstLOD, maxLOD: maxLOD}
	n := maxLOD - firstLOD + 1
	if n < 0 {
		n = 0
	}
	info.lods = make([]lodEntry, n)
	for i := range info.lods {
		info.lods[i].minValidTY, info.lods[i].maxValidTY = -1, -1
	}

	isGeographic := p.SRS.Domain == 0 // srs.Geographic == 0

	for lod := firstLOD; lod <= maxLOD; lod++ {
		centerRadius := tileBoundingRadius(lod, p, e)
		visRange := centerRadius * mtrf * 2.0 * (1.0 / 1.405)
		info.at(lod).visibilityRange = visRange
	}

	prevEnd := 0.0
	for lod := maxLOD; lod >= firstLOD; lod-- {
		entry := info.at(lod)
		entry.morphEnd = entry.visibilityRange
		entry.morphStart = prevEnd + (entry.visibilityRange-prevEnd)*morphStartRatio
		prevEnd = entry.morphEnd
	}

	if restrictPolar && isGeographic {
		for lod := polarStartLOD; lod <= maxLOD; lod++ {
			info.restrictPolarForLOD(lod, p, e)
		}
	}

	return info
}

func (info *Info) at(lod int) *lodEntry {
	return &info.lods[lod-info.firstLOD]
}

// tileBoundingRadius returns the bounding-circle radius in meters of a tile
// near the profile center at the given LOD.
func tileBoundingRadius(lod int, p *profile.Profile, e *ellipsoid.Ellipsoid) float64 {
	numWide, numHigh := p.GetNumTiles(lod)
	centerKey := profile.New(lod, numWide/2, numHigh/2, p)
	ext := centerKey.GetExtent()

	lat := (ext.YMin + ext.YMax) / 2
	widthMeters := e.LongitudinalDegreesToMeters(ext.Width(), lat)
	heightMeters := metersPerDegree(e) * ext.Height()

	// Bounding-circle radius of a widthMeters x heightMeters rectangle.
	return 0.5 * math.Hypot(widthMeters, heightMeters)
}

func metersPerDegree(e *ellipsoid.Ellipsoid) float64 {
	return e.LongitudinalDegreesToMeters(1, 0)
}

// restrictPolarForLOD computes the minimum width/height aspect ratio for
// this LOD (linearly interpolated 0.1 at LOD 6 to 0.4 at maxLOD) and walks
// rows from the equator toward the pole to find the valid TY band.
func (info *Info) restrictPolarForLOD(lod int, p *profile.Profile, e *ellipsoid.Ellipsoid) {
	_, ty := p.GetNumTiles(lod)

	lodT := 0.0
	if info.maxLOD > polarStartLOD {
		lodT = float64(lod-polarStartLOD) / float64(info.maxLOD-polarStartLOD)
	}
	startAR, endAR := 0.1, 0.4
	minAR := startAR + lodT*(endAR-startAR)

	metersPerEqDeg := metersPerDegree(e)

	y := ty / 2
	for ; y >= 0; y-- {
		key := profile.New(lod, 0, y, p)
		ext := key.GetExtent()
		lat := (ext.YMin + ext.YMax) / 2
		widthMeters := e.LongitudinalDegreesToMeters(1, lat) / metersPerEqDeg
		ar := widthMeters // height is implicitly 1 degree-equivalent; ratio against unit height
		if ar < minAR {
			break
		}
	}

	minValidTY := y + 1
	maxValidTY := (ty - 1) - (y + 1)
	info.at(lod).minValidTY = minValidTY
	info.at(lod).maxValidTY = maxValidTY
}

// Get returns the visibility range, morph start and morph end for key. If
// key's Y lies outside its LOD's valid polar band, all three are zero.
func (info *Info) Get(key profile.TileKey) (visRange, morphStart, morphEnd float64) {
	if key.LOD < info.firstLOD || key.LOD > info.maxLOD {
		return 0, 0, 0
	}
	entry := info.at(key.LOD)
	if entry.minValidTY >= 0 {
		if key.Y < entry.minValidTY || key.Y > entry.maxValidTY {
			return 0, 0, 0
		}
	}
	return entry.visibilityRange, entry.morphStart, entry.morphEnd
}
