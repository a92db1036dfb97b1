// Package srs implements the spatial-reference-system abstraction: identity
// by textual definition, an embedded ellipsoid, pairwise transforms, and a
// local-tangent-plane variant cached around a geodetic origin.
package srs

import (
	"fmt"

	"github.com/rockyterrain/rocky/internal/coord"
	"github.com/rockyterrain/rocky/internal/ellipsoid"
)

// Domain classifies the kind of coordinate space an SRS represents.
type Domain int

const (
	Geographic Domain = iota
	Projected
	Geocentric
	TangentPlane
)

func (d Domain) String() string {
	switch d {
	case Geographic:
		return "geographic"
	case Projected:
		return "projected"
	case Geocentric:
		return "geocentric"
	case TangentPlane:
		return "tangent-plane"
	default:
		return "unknown"
	}
}

// SRS identifies a coordinate space: a textual definition, a domain, an
// embedded ellipsoid, and (for Projected) a concrete projection backend
// adapted from the teacher's internal/coord package.
type SRS struct {
	Def       string
	Domain    Domain
	Ellipsoid *ellipsoid.Ellipsoid
	Proj      coord.Projection // only set when Domain == Projected

	// tangent-plane fields; only set when Domain == TangentPlane
	originLon, originLat, originAlt float64
	local2world                     [4][4]float64
	world2local                     [4][4]float64
}

// NewGeographic returns the standard WGS84 geographic (lon/lat/height) SRS.
func NewGeographic() *SRS {
	return &SRS{Def: "epsg:4326", Domain: Geographic, Ellipsoid: ellipsoid.WGS84()}
}

// NewGeocentric returns the WGS84 ECEF SRS.
func NewGeocentric() *SRS {
	return &SRS{Def: "geocentric", Domain: Geocentric, Ellipsoid: ellipsoid.WGS84()}
}

// NewProjected returns a projected SRS backed by a coord.Projection (e.g.
// Web Mercator or Swiss LV95), generalizing the teacher's direct use of
// those projections to the SRS abstraction the engine needs.
func NewProjected(def string, proj coord.Projection) *SRS {
	return &SRS{Def: def, Domain: Projected, Ellipsoid: ellipsoid.WGS84(), Proj: proj}
}

// NewTangentPlane returns a local tangent-plane SRS centered at the given
// geodetic origin (degrees, degrees, meters), with the local<->world 4x4
// cached at construction time exactly as LocalTangentPlane.cpp does.
func NewTangentPlane(originLon, originLat, originAlt float64) *SRS {
	e := ellipsoid.WGS84()
	xyz := e.GeodeticToGeocentric(originLon, originLat, originAlt)
	frame := e.LocalFrame(xyz)

	l2w := localToWorldMatrix(frame)
	w2l := invertAffine(l2w)

	return &SRS{
		Def:         fmt.Sprintf("tangent-plane:%g,%g,%g", originLon, originLat, originAlt),
		Domain:      TangentPlane,
		Ellipsoid:   e,
		originLon:   originLon,
		originLat:   originLat,
		originAlt:   originAlt,
		local2world: l2w,
		world2local: w2l,
	}
}

func localToWorldMatrix(f ellipsoid.Frame) [4][4]float64 {
	return [4][4]float64{
		{f.East.X, f.North.X, f.Up.X, f.Origin.X},
		{f.East.Y, f.North.Y, f.Up.Y, f.Origin.Y},
		{f.East.Z, f.North.Z, f.Up.Z, f.Origin.Z},
		{0, 0, 0, 1},
	}
}

func invertAffine(m [4][4]float64) [4][4]float64 {
	// m is a rotation (orthonormal columns) plus translation; the inverse
	// of such an affine transform is R^T, -R^T*t.
	var inv [4][4]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			inv[r][c] = m[c][r]
		}
	}
	for r := 0; r < 3; r++ {
		inv[r][3] = -(inv[r][0]*m[0][3] + inv[r][1]*m[1][3] + inv[r][2]*m[2][3])
	}
	inv[3] = [4]float64{0, 0, 0, 1}
	return inv
}

func apply(m [4][4]float64, x, y, z float64) (float64, float64, float64) {
	return m[0][0]*x + m[0][1]*y + m[0][2]*z + m[0][3],
		m[1][0]*x + m[1][1]*y + m[1][2]*z + m[1][3],
		m[2][0]*x + m[2][1]*y + m[2][2]*z + m[2][3]
}

// IsHorizEquivalentTo reports horizontal (ignoring vertical datum)
// equivalence between two SRS values.
func (s *SRS) IsHorizEquivalentTo(other *SRS) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil {
		return false
	}
	if s.Domain != other.Domain {
		return false
	}
	if s.Domain == TangentPlane {
		return s.originLon == other.originLon && s.originLat == other.originLat
	}
	return s.Def == other.Def
}

// GeographicSRS returns the geographic peer used as the intermediate space
// for transforms between otherwise-unrelated SRS values.
func (s *SRS) GeographicSRS() *SRS {
	return NewGeographic()
}

// Point3 is a 3D coordinate in some SRS's native units.
type Point3 struct{ X, Y, Z float64 }

// Transform converts points from s to target, routing through geographic
// lon/lat/height as the common intermediate space (as the original engine's
// preTransform/postTransform pipeline does for LTP and projected SRS).
func (s *SRS) Transform(points []Point3, target *SRS) ([]Point3, error) {
	if s.IsHorizEquivalentTo(target) {
		out := make([]Point3, len(points))
		copy(out, points)
		return out, nil
	}

	geo := make([]Point3, len(points))
	for i, p := range points {
		lon, lat, h, err := s.toGeographic(p)
		if err != nil {
			return nil, err
		}
		geo[i] = Point3{lon, lat, h}
	}

	out := make([]Point3, len(points))
	for i, p := range geo {
		x, y, z, err := target.fromGeographic(p)
		if err != nil {
			return nil, err
		}
		out[i] = Point3{x, y, z}
	}
	return out, nil
}

func (s *SRS) toGeographic(p Point3) (lon, lat, h float64, err error) {
	switch s.Domain {
	case Geographic:
		return p.X, p.Y, p.Z, nil
	case Geocentric:
		lon, lat, h = s.Ellipsoid.GeocentricToGeodetic(ellipsoid.Vec3{X: p.X, Y: p.Y, Z: p.Z})
		return lon, lat, h, nil
	case Projected:
		if s.Proj == nil {
			return 0, 0, 0, fmt.Errorf("srs: projected SRS %q has no projection backend", s.Def)
		}
		lon, lat = s.Proj.ToWGS84(p.X, p.Y)
		return lon, lat, p.Z, nil
	case TangentPlane:
		wx, wy, wz := apply(s.local2world, p.X, p.Y, p.Z)
		lon, lat, h = s.Ellipsoid.GeocentricToGeodetic(ellipsoid.Vec3{X: wx, Y: wy, Z: wz})
		return lon, lat, h, nil
	default:
		return 0, 0, 0, fmt.Errorf("srs: unknown domain %v", s.Domain)
	}
}

func (s *SRS) fromGeographic(p Point3) (x, y, z float64, err error) {
	lon, lat, h := p.X, p.Y, p.Z
	switch s.Domain {
	case Geographic:
		return lon, lat, h, nil
	case Geocentric:
		v := s.Ellipsoid.GeodeticToGeocentric(lon, lat, h)
		return v.X, v.Y, v.Z, nil
	case Projected:
		if s.Proj == nil {
			return 0, 0, 0, fmt.Errorf("srs: projected SRS %q has no projection backend", s.Def)
		}
		x, y = s.Proj.FromWGS84(lon, lat)
		return x, y, h, nil
	case TangentPlane:
		world := s.Ellipsoid.GeodeticToGeocentric(lon, lat, h)
		x, y, z = apply(s.world2local, world.X, world.Y, world.Z)
		return x, y, z, nil
	default:
		return 0, 0, 0, fmt.Errorf("srs: unknown domain %v", s.Domain)
	}
}
