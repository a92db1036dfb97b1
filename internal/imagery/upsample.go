// Fractal upsampling: a deterministic 3-pass diamond-square refinement of a
// parent tile into a child tile's workspace (spec.md §4.E.1), grounded on
// original_source/src/rocky/ImageLayer.cpp's upsample algorithm. The PRNG is
// seeded from the child key's hash so two independent upsamples of the same
// key produce identical bytes (spec.md Design Notes §9, Open Question a).
package imagery

import (
	"image"
	"image/color"
	"math/rand/v2"

	"github.com/rockyterrain/rocky/internal/profile"
)

// FractalUpsample builds a tileSize x tileSize image for key from parent,
// which must cover key's parent extent. isCanceled, when non-nil, is polled
// after each workspace row that a pass visits.
func FractalUpsample(parent GeoImage, key profile.TileKey, tileSize int, isCanceled func() bool) GeoImage {
	if !parent.Valid() {
		return Invalid()
	}

	ws := tileSize + 3
	workspace := make([][]color.RGBA, ws)
	for i := range workspace {
		workspace[i] = make([]color.RGBA, ws)
	}

	quadrant := key.GetQuadrant()
	// Scale/bias mapping key-space (s,t) in [0, tileSize+3) onto the
	// parent's pixel space: the child occupies one quadrant of the parent.
	offsetS, offsetT := 0, 0
	switch quadrant {
	case 1:
		offsetS = tileSize / 2
	case 2:
		offsetT = tileSize / 2
	case 3:
		offsetS = tileSize / 2
		offsetT = tileSize / 2
	}

	parentBounds := parent.Image.Bounds()
	readMeta := func(s, t int) color.RGBA {
		px := clampInt((s-2)/2+offsetS, 0, parentBounds.Dx()-1)
		py := clampInt((t-2)/2+offsetT, 0, parentBounds.Dy()-1)
		return parent.Image.RGBAAt(parentBounds.Min.X+px, parentBounds.Min.Y+py)
	}

	seed := key.Hash()
	rng := rand.New(rand.NewPCG(seed, seed))

	// Pass 1: seed even-indexed cells.
	for t := 0; t < ws; t += 2 {
		for s := 0; s < ws; s += 2 {
			workspace[t][s] = readMeta(s, t)
		}
		if isCanceled != nil && isCanceled() {
			return Invalid()
		}
	}

	avg := func(colors ...color.RGBA) color.RGBA {
		var r, g, b, a int
		for _, c := range colors {
			r += int(c.R)
			g += int(c.G)
			b += int(c.B)
			a += int(c.A)
		}
		n := len(colors)
		return color.RGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n), A: uint8(a / n)}
	}

	pick := func(candidates []color.RGBA) color.RGBA {
		if len(candidates) == 0 {
			return color.RGBA{}
		}
		return candidates[rng.IntN(len(candidates))]
	}

	// Pass 2: diamond — odd/odd cells from the four diagonal neighbors.
	for t := 1; t < ws; t += 2 {
		for s := 1; s < ws; s += 2 {
			var neighbors []color.RGBA
			if s-1 >= 0 && t-1 >= 0 {
				neighbors = append(neighbors, workspace[t-1][s-1])
			}
			if s+1 < ws && t-1 >= 0 {
				neighbors = append(neighbors, workspace[t-1][s+1])
			}
			if s-1 >= 0 && t+1 < ws {
				neighbors = append(neighbors, workspace[t+1][s-1])
			}
			if s+1 < ws && t+1 < ws {
				neighbors = append(neighbors, workspace[t+1][s+1])
			}
			workspace[t][s] = diamondOrSquareChoice(neighbors, avg, pick)
		}
		if isCanceled != nil && isCanceled() {
			return Invalid()
		}
	}

	// Pass 3: square — cells where exactly one of (s,t) is odd, from the
	// four axis-aligned neighbors.
	for t := 0; t < ws; t++ {
		for s := 0; s < ws; s++ {
			sOdd, tOdd := s%2 == 1, t%2 == 1
			if sOdd == tOdd {
				continue // handled in pass 1 or 2
			}
			var neighbors []color.RGBA
			if s-1 >= 0 {
				neighbors = append(neighbors, workspace[t][s-1])
			}
			if s+1 < ws {
				neighbors = append(neighbors, workspace[t][s+1])
			}
			if t-1 >= 0 {
				neighbors = append(neighbors, workspace[t-1][s])
			}
			if t+1 < ws {
				neighbors = append(neighbors, workspace[t+1][s])
			}
			workspace[t][s] = diamondOrSquareChoice(neighbors, avg, pick)
		}
		if isCanceled != nil && isCanceled() {
			return Invalid()
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	for y := 0; y < tileSize; y++ {
		for x := 0; x < tileSize; x++ {
			out.SetRGBA(x, y, workspace[y][x])
		}
	}

	return GeoImage{Image: out, Extent: key.GetExtent(), Coverage: parent.Coverage}
}

// diamondOrSquareChoice preserves a "three-of-a-kind" or opposite-diagonal
// continuation among neighbors when one is clearly dominant; otherwise it
// falls back to a uniform random pick among the neighbor values.
func diamondOrSquareChoice(neighbors []color.RGBA, avg func(...color.RGBA) color.RGBA, pick func([]color.RGBA) color.RGBA) color.RGBA {
	if len(neighbors) == 0 {
		return color.RGBA{}
	}
	if len(neighbors) == 4 {
		counts := map[color.RGBA]int{}
		for _, c := range neighbors {
			counts[c]++
		}
		for c, n := range counts {
			if n >= 3 {
				return c
			}
		}
		if neighbors[0] == neighbors[2] || neighbors[1] == neighbors[3] {
			return avg(neighbors...)
		}
	}
	return pick(neighbors)
}
