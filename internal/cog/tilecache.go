package cog

import (
	"image"
	"sync"
)

// tileKey identifies a tile within a specific source reader and IFD level.
// Readers are keyed by their numeric ID rather than path: renderTile and
// renderTileTerrarium call Get/Put once per output pixel, and comparing ints
// is cheaper than comparing the backing file path on every cache probe.
type tileKey struct {
	id    int
	level int
	col   int
	row   int
}

// TileCache provides an LRU-like cache for decoded COG tiles.
// This prevents re-reading and re-decoding the same source tiles
// when multiple output pixels map to the same source tile.
type TileCache struct {
	mu      sync.Mutex
	cache   map[tileKey]*cacheEntry
	order   []tileKey
	maxSize int
}

type cacheEntry struct {
	img image.Image
}

// NewTileCache creates a tile cache with the given maximum number of entries.
func NewTileCache(maxEntries int) *TileCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &TileCache{
		cache:   make(map[tileKey]*cacheEntry, maxEntries),
		order:   make([]tileKey, 0, maxEntries),
		maxSize: maxEntries,
	}
}

// Get retrieves a tile from the cache. Returns nil if not found.
func (tc *TileCache) Get(id, level, col, row int) image.Image {
	key := tileKey{id: id, level: level, col: col, row: row}
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if entry, ok := tc.cache[key]; ok {
		return entry.img
	}
	return nil
}

// Put stores a tile in the cache, evicting the oldest entry if full.
func (tc *TileCache) Put(id, level, col, row int, img image.Image) {
	key := tileKey{id: id, level: level, col: col, row: row}
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, ok := tc.cache[key]; ok {
		return // already cached
	}

	// Evict if full.
	for len(tc.cache) >= tc.maxSize && len(tc.order) > 0 {
		oldest := tc.order[0]
		tc.order = tc.order[1:]
		delete(tc.cache, oldest)
	}

	tc.cache[key] = &cacheEntry{img: img}
	tc.order = append(tc.order, key)
}

// CachedReader wraps a Reader with a tile cache.
type CachedReader struct {
	*Reader
	cache *TileCache
}

// NewCachedReader wraps a Reader with shared tile cache.
func NewCachedReader(r *Reader, cache *TileCache) *CachedReader {
	return &CachedReader{Reader: r, cache: cache}
}

// ReadTileCached reads a tile, using the cache if available.
func (cr *CachedReader) ReadTileCached(level, col, row int) (image.Image, error) {
	if img := cr.cache.Get(cr.ID(), level, col, row); img != nil {
		return img, nil
	}

	img, err := cr.Reader.ReadTile(level, col, row)
	if err != nil {
		return nil, err
	}

	cr.cache.Put(cr.ID(), level, col, row, img)
	return img, nil
}

// floatCacheEntry holds a decoded float32 tile along with its pixel width,
// needed to turn a flat sample index back into (localX, localY).
type floatCacheEntry struct {
	data []float32
	w    int
}

// FloatTileCache is TileCache's counterpart for terrarium/elevation sources,
// which decode to []float32 samples instead of image.Image.
type FloatTileCache struct {
	mu      sync.Mutex
	cache   map[tileKey]*floatCacheEntry
	order   []tileKey
	maxSize int
}

// NewFloatTileCache creates a float tile cache with the given maximum number
// of entries.
func NewFloatTileCache(maxEntries int) *FloatTileCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &FloatTileCache{
		cache:   make(map[tileKey]*floatCacheEntry, maxEntries),
		order:   make([]tileKey, 0, maxEntries),
		maxSize: maxEntries,
	}
}

// Get retrieves a float tile's samples and row width from the cache.
// The bool reports whether the tile was found.
func (tc *FloatTileCache) Get(id, level, col, row int) ([]float32, int, bool) {
	key := tileKey{id: id, level: level, col: col, row: row}
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if entry, ok := tc.cache[key]; ok {
		return entry.data, entry.w, true
	}
	return nil, 0, false
}

// Put stores a float tile's samples in the cache, evicting the oldest entry
// if full. Only the row width is retained; h is accepted for symmetry with
// ReadFloatTile's return shape but isn't needed by the sample-index math in
// readFloatPixelCached.
func (tc *FloatTileCache) Put(id, level, col, row int, data []float32, w, h int) {
	key := tileKey{id: id, level: level, col: col, row: row}
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, ok := tc.cache[key]; ok {
		return
	}

	for len(tc.cache) >= tc.maxSize && len(tc.order) > 0 {
		oldest := tc.order[0]
		tc.order = tc.order[1:]
		delete(tc.cache, oldest)
	}

	tc.cache[key] = &floatCacheEntry{data: data, w: w}
	tc.order = append(tc.order, key)
}
