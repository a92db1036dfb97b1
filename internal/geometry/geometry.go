// Package geometry implements GeometryPool: a deduplicated, shape-keyed
// tile surface mesh cache with a shared index buffer, skirts, and
// morph-neighbor vertices (spec.md §4.H), grounded verbatim on
// original_source/src/rocky_vsg/GeometryPool.cpp.
package geometry

import (
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/rockyterrain/rocky/internal/ellipsoid"
	"github.com/rockyterrain/rocky/internal/profile"
	"github.com/rockyterrain/rocky/internal/srs"
)

// Vertex flags packed into the UV marker (Z component).
const (
	FlagVisible      = 1 << 0
	FlagSkirt        = 1 << 1
	FlagHasElevation = 1 << 2
)

// Key is the shape-only cache key: two tiles with the same LOD and tile
// size produce identical local-space meshes in a projected profile; in a
// geographic profile the mesh varies with latitude, so TileY is included
// only for geographic profiles. X is never part of the key.
type Key struct {
	LOD      int
	TileY    int // 0 when the profile is not geographic
	TileSize int
}

func (k Key) String() string { return fmt.Sprintf("%d/%d/%d", k.LOD, k.TileY, k.TileSize) }

// KeyForTileKey derives the shape Key for a given tile address.
func KeyForTileKey(tk profile.TileKey, tileSize int) Key {
	y := 0
	if tk.Profile.SRS.Domain == srs.Geographic {
		y = tk.Y
	}
	return Key{LOD: tk.LOD, TileY: y, TileSize: tileSize}
}

// Vec3 is a plain 3-vector used for mesh data (position/normal).
type Vec3 = ellipsoid.Vec3

// SharedGeometry is one cached tile mesh: vertex arrays plus an optional
// morph-neighbor parallel array, and a shared index buffer reused across
// every shape with the same tileSize and the same skirts-on/off choice.
type SharedGeometry struct {
	Positions []Vec3
	Normals   []Vec3
	UVs       []Vec3 // Z is the marker bitmask described above

	MorphPositions []Vec3 // nil when morphing disabled
	MorphNormals   []Vec3

	Indices []uint32 // shared across all shapes built with the same settings
}

// Settings parameterizes mesh construction.
type Settings struct {
	TileSize    int     // N, typically 17
	SkirtRatio  float64 // 0 disables skirts
	EnableMorph bool
}

// indexCache memoizes the shape-independent index buffer per (N, hasSkirt).
type indexKey struct {
	n          int
	hasSkirt   bool
}

// Pool caches SharedGeometry by shape Key, serializing concurrent builds of
// the same key via a singleflight gate while allowing independent keys to
// build concurrently (spec.md §4.H / §5).
type Pool struct {
	mu    sync.Mutex
	cache map[Key]*SharedGeometry

	indexMu    sync.Mutex
	indexCache map[indexKey][]uint32

	group singleflight.Group
}

// NewPool returns an empty geometry pool.
func NewPool() *Pool {
	return &Pool{
		cache:      make(map[Key]*SharedGeometry),
		indexCache: make(map[indexKey][]uint32),
	}
}

// GetPooledGeometry returns the shared mesh for tk's shape, building it (at
// most once across concurrent callers for the same shape key) if absent.
func (p *Pool) GetPooledGeometry(tk profile.TileKey, settings Settings) (*SharedGeometry, error) {
	key := KeyForTileKey(tk, settings.TileSize)

	p.mu.Lock()
	if g, ok := p.cache[key]; ok {
		p.mu.Unlock()
		return g, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do(key.String(), func() (any, error) {
		p.mu.Lock()
		if g, ok := p.cache[key]; ok {
			p.mu.Unlock()
			return g, nil
		}
		p.mu.Unlock()

		g, err := p.buildGeometry(tk, settings)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.cache[key] = g
		p.mu.Unlock()
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SharedGeometry), nil
}

// Clear empties both caches.
func (p *Pool) Clear() {
	p.mu.Lock()
	p.cache = make(map[Key]*SharedGeometry)
	p.mu.Unlock()
	p.indexMu.Lock()
	p.indexCache = make(map[indexKey][]uint32)
	p.indexMu.Unlock()
}

// getNumSkirtElements returns the number of distinct perimeter vertices of
// an N x N grid: N-1 per edge, 4 edges.
func getNumSkirtElements(n int) int {
	return (n - 1) * 4
}

// getMorphNeighborIndexOffset implements the neighbor-vertex lookup rule
// from GeometryPool.cpp: offset(col,row,N) = (col odd && row odd) -> N+2;
// row odd -> N+1; col odd -> 2; else 1.
func getMorphNeighborIndexOffset(col, row, n int) int {
	colOdd := col%2 == 1
	rowOdd := row%2 == 1
	switch {
	case colOdd && rowOdd:
		return n + 2
	case rowOdd:
		return n + 1
	case colOdd:
		return 2
	default:
		return 1
	}
}

// locatorUnitToWorld maps unit tile coordinates (u,v) in [0,1]^2, plus a
// normalized height h in [0,1] representing "at the surface" vs "above the
// surface" (used to compute normals), into geocentric world space.
func locatorUnitToWorld(tk profile.TileKey, e *ellipsoid.Ellipsoid, u, v, h float64) Vec3 {
	ext := tk.GetExtent()
	x := ext.XMin + u*ext.Width()
	y := ext.YMin + v*ext.Height()

	if tk.Profile.SRS.Domain == srs.Geographic {
		return e.GeodeticToGeocentric(x, y, h)
	}
	// Projected: local space is just the extent-scaled plane, with height
	// along Z, mirroring the original's non-geographic locator.
	return Vec3{X: x, Y: y, Z: h}
}

func (p *Pool) buildGeometry(tk profile.TileKey, settings Settings) (*SharedGeometry, error) {
	n := settings.TileSize
	if n < 2 {
		return nil, fmt.Errorf("geometry: tile size must be >= 2, got %d", n)
	}
	e := ellipsoid.WGS84()

	// Locator world position at the tile centroid, used as the local frame
	// origin that every vertex is expressed relative to.
	centroid := locatorUnitToWorld(tk, e, 0.5, 0.5, 0)
	frame := e.LocalFrame(centroid)

	toLocal := func(world Vec3) Vec3 {
		d := Vec3{X: world.X - frame.Origin.X, Y: world.Y - frame.Origin.Y, Z: world.Z - frame.Origin.Z}
		return Vec3{
			X: d.X*frame.East.X + d.Y*frame.East.Y + d.Z*frame.East.Z,
			Y: d.X*frame.North.X + d.Y*frame.North.Y + d.Z*frame.North.Z,
			Z: d.X*frame.Up.X + d.Y*frame.Up.Y + d.Z*frame.Up.Z,
		}
	}

	g := &SharedGeometry{}
	hasSkirt := settings.SkirtRatio > 0

	// Surface grid.
	for row := 0; row < n; row++ {
		v := float64(row) / float64(n-1)
		for col := 0; col < n; col++ {
			u := float64(col) / float64(n-1)

			worldSurface := locatorUnitToWorld(tk, e, u, v, 0)
			worldAbove := locatorUnitToWorld(tk, e, u, v, 1)

			pos := toLocal(worldSurface)
			above := toLocal(worldAbove)
			normal := sub(above, pos)
			normal = normalize(normal)

			marker := float64(FlagVisible)
			g.Positions = append(g.Positions, pos)
			g.Normals = append(g.Normals, normal)
			g.UVs = append(g.UVs, Vec3{X: u, Y: v, Z: marker})

			if settings.EnableMorph {
				offset := getMorphNeighborIndexOffset(col, row, n)
				idx := len(g.Positions) - offset
				if idx >= 0 && idx < len(g.Positions) {
					g.MorphPositions = append(g.MorphPositions, g.Positions[idx])
					g.MorphNormals = append(g.MorphNormals, g.Normals[idx])
				} else {
					g.MorphPositions = append(g.MorphPositions, pos)
					g.MorphNormals = append(g.MorphNormals, normal)
				}
			}
		}
	}

	if hasSkirt {
		radius := boundingRadius(g.Positions)
		height := radius * settings.SkirtRatio
		addSkirt(g, n, height, toLocal, tk, e, settings.EnableMorph)
	}

	idxKey := indexKey{n: n, hasSkirt: hasSkirt}
	p.indexMu.Lock()
	indices, ok := p.indexCache[idxKey]
	if !ok {
		indices = createIndices(n, hasSkirt)
		p.indexCache[idxKey] = indices
	}
	p.indexMu.Unlock()
	g.Indices = indices

	return g, nil
}

func sub(a, b Vec3) Vec3 { return Vec3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z} }

func normalize(v Vec3) Vec3 {
	l := lengthOf(v)
	if l == 0 {
		return v
	}
	return Vec3{X: v.X / l, Y: v.Y / l, Z: v.Z / l}
}

func lengthOf(v Vec3) float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func boundingRadius(positions []Vec3) float64 {
	var maxR float64
	for _, p := range positions {
		r := lengthOf(p)
		if r > maxR {
			maxR = r
		}
	}
	return maxR
}

// addSkirt extrudes a second ring of vertices along the tile perimeter in
// the order south -> east -> north -> west, at a downward depth of height
// along each vertex's outward normal, marking them FlagSkirt.
func addSkirt(g *SharedGeometry, n int, height float64, toLocal func(Vec3) Vec3, tk profile.TileKey, e *ellipsoid.Ellipsoid, morph bool) {
	addSkirtForIndex := func(idx int) {
		pos := g.Positions[idx]
		normal := g.Normals[idx]
		uv := g.UVs[idx]
		skirted := Vec3{X: pos.X - normal.X*height, Y: pos.Y - normal.Y*height, Z: pos.Z - normal.Z*height}

		g.Positions = append(g.Positions, skirted)
		g.Normals = append(g.Normals, normal)
		g.UVs = append(g.UVs, Vec3{X: uv.X, Y: uv.Y, Z: float64(FlagSkirt)})

		if morph {
			g.MorphPositions = append(g.MorphPositions, g.MorphPositions[idx])
			g.MorphNormals = append(g.MorphNormals, g.MorphNormals[idx])
		}
	}

	// south row (row 0), west -> east
	for col := 0; col < n; col++ {
		addSkirtForIndex(col)
	}
	// east column (col n-1), south -> north
	for row := 0; row < n; row++ {
		addSkirtForIndex(row*n + (n - 1))
	}
	// north row (row n-1), east -> west
	for col := n - 1; col >= 0; col-- {
		addSkirtForIndex((n-1)*n + col)
	}
	// west column (col 0), north -> south
	for row := n - 1; row >= 0; row-- {
		addSkirtForIndex(row * n)
	}
}

// createIndices builds the shape-independent index buffer for an N x N grid
// with (or without) a skirt ring: two triangles per surface cell, plus two
// triangles per skirt edge segment. Depends only on N and whether skirts are
// present, so it is built once and shared across every shape-keyed geometry
// with the same settings.
func createIndices(n int, hasSkirt bool) []uint32 {
	var idx []uint32

	for row := 0; row < n-1; row++ {
		for col := 0; col < n-1; col++ {
			i00 := uint32(row*n + col)
			i10 := uint32(row*n + col + 1)
			i01 := uint32((row+1)*n + col)
			i11 := uint32((row+1)*n + col + 1)

			idx = append(idx, i00, i10, i01)
			idx = append(idx, i10, i11, i01)
		}
	}

	if hasSkirt {
		surfaceCount := n * n
		// perimeter is the total skirt-ring vertex count addSkirt produced
		// (4 edges of n vertices each); triangle generation must never index
		// past skirtBase+perimeter into whatever vertices follow the skirt ring.
		perimeter := getNumSkirtElements(n) + 4
		skirtBase := surfaceCount
		skirtEnd := skirtBase + perimeter

		addSkirtTriangles := func(surfaceStart, skirtStart, count int) {
			for i := 0; i < count-1; i++ {
				if skirtStart+i+1 >= skirtEnd {
					break
				}
				s0 := uint32(surfaceStart + i)
				s1 := uint32(surfaceStart + i + 1)
				k0 := uint32(skirtStart + i)
				k1 := uint32(skirtStart + i + 1)
				idx = append(idx, s0, s1, k0)
				idx = append(idx, s1, k1, k0)
			}
		}

		// south row
		addSkirtTriangles(0, skirtBase, n)
		// east column
		addSkirtTriangles2 := func(surfaceIdx func(int) int, skirtStart, count int) {
			for i := 0; i < count-1; i++ {
				if skirtStart+i+1 >= skirtEnd {
					break
				}
				s0 := uint32(surfaceIdx(i))
				s1 := uint32(surfaceIdx(i + 1))
				k0 := uint32(skirtStart + i)
				k1 := uint32(skirtStart + i + 1)
				idx = append(idx, s0, s1, k0)
				idx = append(idx, s1, k1, k0)
			}
		}
		addSkirtTriangles2(func(i int) int { return i*n + (n - 1) }, skirtBase+n, n)
		addSkirtTriangles2(func(i int) int { return (n-1)*n + (n - 1 - i) }, skirtBase+2*n, n)
		addSkirtTriangles2(func(i int) int { return (n-1-i)*n + 0 }, skirtBase+3*n, n)
	}

	return idx
}
