// Package surface implements the per-tile consumer of a GeometryPool mesh
// (spec.md §4.I), grounded on
// original_source/src/rocky_vsg/SurfaceNode.h: a local transform, a
// SharedGeometry reference, elevation-raster application, child-sphere LOD
// probes, and a horizon culler volume. SurfaceNode's VSG scene-graph base
// (vsg::MatrixTransform) has no Go analogue in this module, so Surface is a
// plain value rather than a graph node; the geometry/culling math it held is
// kept in full.
package surface

import (
	"math"

	"github.com/rockyterrain/rocky/internal/ellipsoid"
	"github.com/rockyterrain/rocky/internal/geometry"
	"github.com/rockyterrain/rocky/internal/imagery"
	"github.com/rockyterrain/rocky/internal/profile"
)

// Vec3 aliases the shared 3-vector type used across ellipsoid/geometry.
type Vec3 = ellipsoid.Vec3

// Vec3's own arithmetic methods are unexported (ellipsoid has no
// general-purpose linear algebra dependency, see DESIGN.md), so this
// package keeps its own small set of free-function equivalents.
func vadd(a, b Vec3) Vec3      { return Vec3{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z} }
func vsub(a, b Vec3) Vec3      { return Vec3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z} }
func vscale(a Vec3, s float64) Vec3 { return Vec3{X: a.X * s, Y: a.Y * s, Z: a.Z * s} }
func vdot(a, b Vec3) float64   { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func vlength(a Vec3) float64   { return math.Sqrt(vdot(a, a)) }

// Bounds is an axis-aligned box in the tile's local coordinate frame.
type Bounds struct {
	Min, Max Vec3
}

func emptyBounds() Bounds {
	inf := math.Inf(1)
	return Bounds{
		Min: Vec3{X: inf, Y: inf, Z: inf},
		Max: Vec3{X: -inf, Y: -inf, Z: -inf},
	}
}

func (b *Bounds) expand(p Vec3) {
	if p.X < b.Min.X {
		b.Min.X = p.X
	}
	if p.Y < b.Min.Y {
		b.Min.Y = p.Y
	}
	if p.Z < b.Min.Z {
		b.Min.Z = p.Z
	}
	if p.X > b.Max.X {
		b.Max.X = p.X
	}
	if p.Y > b.Max.Y {
		b.Max.Y = p.Y
	}
	if p.Z > b.Max.Z {
		b.Max.Z = p.Z
	}
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Vec3 {
	return Vec3{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2, Z: (b.Min.Z + b.Max.Z) / 2}
}

// HorizonCuller answers "could this tile be visible given the ellipsoid
// horizon as seen from a viewpoint", tracking the four upper corners of the
// tile's local bounding box in world space (SurfaceNode::HorizonTileCuller).
type HorizonCuller struct {
	points    [4]Vec3
	ellipsoid *ellipsoid.Ellipsoid
}

// Set reconfigures the culler from the world-space positions of the upper
// face of the local bounding box.
func (h *HorizonCuller) Set(e *ellipsoid.Ellipsoid, upperCorners [4]Vec3) {
	h.ellipsoid = e
	h.points = upperCorners
}

// IsVisible reports whether any of the tracked corners could be visible
// from the given world-space eye point, using the standard horizon-culling
// test in unit-sphere (ellipsoid-normalized) space: a point p is below the
// horizon as seen from eye if the eye-to-p vector's component beyond the
// tangent point exceeds the remaining distance to the ellipsoid's horizon
// circle.
func (h *HorizonCuller) IsVisible(from Vec3) bool {
	if h.ellipsoid == nil {
		return true
	}
	re := h.ellipsoid.RadiusEquator()
	if re <= 0 {
		return true
	}
	// Scale into unit-sphere space so the ellipsoid becomes a unit sphere;
	// an exact ellipsoidal horizon test reduces to a spherical one there.
	toUnit := func(v Vec3) Vec3 {
		return Vec3{X: v.X / re, Y: v.Y / re, Z: v.Z / h.ellipsoid.RadiusPolar()}
	}

	vp := toUnit(from)
	vpLen2 := vdot(vp, vp)
	if vpLen2 <= 1.0 {
		// Eye is inside or on the ellipsoid: cannot cull anything.
		return true
	}
	vpLen := math.Sqrt(vpLen2)
	// cosAlpha is the cosine of the half-angle of the cone of visibility
	// from vp to the unit sphere's horizon circle.
	cosAlpha := 1.0 / vpLen

	for _, p := range h.points {
		up := toUnit(p)
		diff := vsub(up, vp)
		d := vlength(diff)
		if d == 0 {
			return true
		}
		cosTheta := -vdot(vscale(diff, 1/d), vp) / vpLen
		if cosTheta >= cosAlpha {
			return true
		}
	}
	return false
}

// Surface is the per-tile consumer of a shape-only SharedGeometry: it adds
// the local-to-world transform, an elevation-displaced copy of the shared
// positions/normals, 32 child-sphere LOD probes, and a horizon culler.
type Surface struct {
	TileKey  profile.TileKey
	Shared   *geometry.SharedGeometry // shape-only; never mutated in place
	Ellipsoid *ellipsoid.Ellipsoid

	// Positions/Normals start as a copy of Shared's and are mutated by
	// ApplyElevationRaster; HasElevation tracks which vertices have
	// already received a real elevation sample (spec.md §4.I: "already-
	// tagged ones are not" updated again).
	Positions    []Vec3
	Normals      []Vec3
	HasElevation []bool

	ElevationRaster imagery.GeoImage
	ScaleU, BiasU   float64
	ScaleV, BiasV   float64

	LocalBounds   Bounds
	ChildSpheres  [32]Sphere
	HorizonCuller HorizonCuller
}

// Sphere is a bounding sphere used for the cheap child-range LOD probes.
type Sphere struct {
	Center Vec3
	Radius float64
}

// New builds a Surface for key from a pooled shared geometry, cloning its
// positions/normals into a mutable per-tile copy.
func New(key profile.TileKey, shared *geometry.SharedGeometry, e *ellipsoid.Ellipsoid) *Surface {
	s := &Surface{
		TileKey:      key,
		Shared:       shared,
		Ellipsoid:    e,
		Positions:    append([]Vec3(nil), shared.Positions...),
		Normals:      append([]Vec3(nil), shared.Normals...),
		HasElevation: make([]bool, len(shared.Positions)),
	}
	s.recomputeChildSpheres()
	s.recomputeBounds()
	return s
}

// ApplyElevationRaster mutates every vertex not already tagged HAS_ELEVATION
// by sampling raster bilinearly at (u*scaleU+biasU, v*scaleV+biasV) — where
// (u, v) is recovered from the vertex's stored UV — and displacing the
// position along its normal by the sampled value (spec.md §4.I). After
// mutation the local bounding box and horizon-culler volume are recomputed.
func (s *Surface) ApplyElevationRaster(raster imagery.GeoImage, scaleU, biasU, scaleV, biasV float64) {
	s.ElevationRaster = raster
	s.ScaleU, s.BiasU, s.ScaleV, s.BiasV = scaleU, biasU, scaleV, biasV

	for i := range s.Positions {
		if s.HasElevation[i] {
			continue
		}
		uv := s.Shared.UVs[i]
		su := uv.X*scaleU + biasU
		sv := uv.Y*scaleV + biasV
		h := sampleElevationBilinear(raster, su, sv)

		s.Positions[i] = vadd(s.Positions[i], vscale(s.Normals[i], h))
		s.HasElevation[i] = true
	}

	s.recomputeBounds()
}

// sampleElevationBilinear reads the R and G channels of raster as a 16-bit
// value (R high byte) offset by 32768, in meters, bilinearly interpolated at
// normalized (u, v).
func sampleElevationBilinear(raster imagery.GeoImage, u, v float64) float64 {
	if !raster.Valid() {
		return 0
	}
	b := raster.Image.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	fx := clamp01(u) * float64(w-1)
	fy := (1 - clamp01(v)) * float64(h-1)

	x0 := int(fx)
	y0 := int(fy)
	x1 := clampInt(x0+1, 0, w-1)
	y1 := clampInt(y0+1, 0, h-1)
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	sample := func(x, y int) float64 {
		c := raster.Image.RGBAAt(b.Min.X+x, b.Min.Y+y)
		// Elevation is encoded across R/G as a 16-bit value centered at
		// 32768 representing meters, matching the teacher's COG-derived
		// single/double-band encodings in internal/cog.
		raw := int(c.R)<<8 | int(c.G)
		return float64(raw) - 32768
	}

	top := sample(x0, y0)*(1-tx) + sample(x1, y0)*tx
	bot := sample(x0, y1)*(1-tx) + sample(x1, y1)*tx
	return top*(1-ty) + bot*ty
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
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

// recomputeBounds rebuilds LocalBounds and the horizon culler's tracked
// corners from the current Positions.
func (s *Surface) recomputeBounds() {
	b := emptyBounds()
	for _, p := range s.Positions {
		b.expand(p)
	}
	s.LocalBounds = b

	upper := [4]Vec3{
		{X: b.Min.X, Y: b.Min.Y, Z: b.Max.Z},
		{X: b.Max.X, Y: b.Min.Y, Z: b.Max.Z},
		{X: b.Min.X, Y: b.Max.Y, Z: b.Max.Z},
		{X: b.Max.X, Y: b.Max.Y, Z: b.Max.Z},
	}
	s.HorizonCuller.Set(s.Ellipsoid, upper)
}

// recomputeChildSpheres fills the 32 child-sphere slots used for cheap LOD
// distance probes from the parent box subdivided into 4 quadrants. All 8
// slots of a quadrant hold the same sphere: the quadrant box's center, with
// the distance to its max corner as radius. The quadrant corners themselves
// are not sampled.
func (s *Surface) recomputeChildSpheres() {
	b := emptyBounds()
	for _, p := range s.Positions {
		b.expand(p)
	}
	if b.Min.X > b.Max.X {
		return
	}
	cx, cy := (b.Min.X+b.Max.X)/2, (b.Min.Y+b.Max.Y)/2

	quadrantBounds := [4]Bounds{
		{Min: Vec3{X: b.Min.X, Y: b.Min.Y, Z: b.Min.Z}, Max: Vec3{X: cx, Y: cy, Z: b.Max.Z}},
		{Min: Vec3{X: cx, Y: b.Min.Y, Z: b.Min.Z}, Max: Vec3{X: b.Max.X, Y: cy, Z: b.Max.Z}},
		{Min: Vec3{X: b.Min.X, Y: cy, Z: b.Min.Z}, Max: Vec3{X: cx, Y: b.Max.Y, Z: b.Max.Z}},
		{Min: Vec3{X: cx, Y: cy, Z: b.Min.Z}, Max: Vec3{X: b.Max.X, Y: b.Max.Y, Z: b.Max.Z}},
	}

	idx := 0
	for _, qb := range quadrantBounds {
		center := qb.Center()
		radius := vlength(vsub(center, qb.Max))
		for j := 0; j < 8; j++ {
			s.ChildSpheres[idx] = Sphere{Center: center, Radius: radius}
			idx++
		}
	}
}
