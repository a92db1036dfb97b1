// Package layermap implements Map: the ordered layer collection with
// RW-locked mutations and revision-tracked add/insert/remove/move (spec.md
// §4.D). Named layermap, not map, to avoid colliding with Go's builtin.
package layermap

import (
	"sync"

	"github.com/rockyterrain/rocky/internal/layer"
	"github.com/rockyterrain/rocky/internal/signal"
)

// ChangeEvent is delivered to Map callbacks after a mutation is committed
// and the write lock released.
type ChangeEvent struct {
	Layer    *layer.Layer
	Index    int
	Revision uint64
}

// Map holds an ordered sequence of layers behind a read/write lock.
type Map struct {
	OnChanged *signal.Signal[ChangeEvent]

	mu       sync.RWMutex
	layers   []*layer.Layer
	revision uint64
}

// New returns an empty Map.
func New() *Map {
	return &Map{OnChanged: signal.New[ChangeEvent]()}
}

// AddLayer appends l. Duplicate insertion (same UID) is a no-op.
func (m *Map) AddLayer(l *layer.Layer) {
	m.mu.Lock()
	if m.indexOfLocked(l.UID) >= 0 {
		m.mu.Unlock()
		return
	}
	m.layers = append(m.layers, l)
	idx := len(m.layers) - 1
	m.revision++
	rev := m.revision
	m.mu.Unlock()

	m.OnChanged.Fire(ChangeEvent{Layer: l, Index: idx, Revision: rev})
}

// InsertLayer inserts l at index, clamping to [0, size]. Duplicate
// insertion is a no-op.
func (m *Map) InsertLayer(l *layer.Layer, index int) {
	m.mu.Lock()
	if m.indexOfLocked(l.UID) >= 0 {
		m.mu.Unlock()
		return
	}
	if index < 0 {
		index = 0
	}
	if index > len(m.layers) {
		index = len(m.layers)
	}
	m.layers = append(m.layers, nil)
	copy(m.layers[index+1:], m.layers[index:])
	m.layers[index] = l
	m.revision++
	rev := m.revision
	m.mu.Unlock()

	m.OnChanged.Fire(ChangeEvent{Layer: l, Index: index, Revision: rev})
}

// RemoveLayer removes l. Removing a non-member is a no-op.
func (m *Map) RemoveLayer(l *layer.Layer) {
	m.mu.Lock()
	idx := m.indexOfLocked(l.UID)
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	m.layers = append(m.layers[:idx], m.layers[idx+1:]...)
	m.revision++
	rev := m.revision
	m.mu.Unlock()

	m.OnChanged.Fire(ChangeEvent{Layer: l, Index: idx, Revision: rev})
}

// MoveLayer relocates l to newIndex, clamping to [0, size-1].
func (m *Map) MoveLayer(l *layer.Layer, newIndex int) {
	m.mu.Lock()
	idx := m.indexOfLocked(l.UID)
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(m.layers)-1 {
		newIndex = len(m.layers) - 1
	}
	m.layers = append(m.layers[:idx], m.layers[idx+1:]...)
	m.layers = append(m.layers, nil)
	copy(m.layers[newIndex+1:], m.layers[newIndex:])
	m.layers[newIndex] = l
	m.revision++
	rev := m.revision
	m.mu.Unlock()

	m.OnChanged.Fire(ChangeEvent{Layer: l, Index: newIndex, Revision: rev})
}

// Clear removes every layer.
func (m *Map) Clear() {
	m.mu.Lock()
	m.layers = nil
	m.revision++
	rev := m.revision
	m.mu.Unlock()

	m.OnChanged.Fire(ChangeEvent{Layer: nil, Index: -1, Revision: rev})
}

func (m *Map) indexOfLocked(uid string) int {
	for i, l := range m.layers {
		if l.UID == uid {
			return i
		}
	}
	return -1
}

// GetLayers snapshots the layer sequence under the read lock, returning
// layers matching predicate (or all layers if predicate is nil) along with
// the revision observed at that snapshot.
func (m *Map) GetLayers(predicate func(*layer.Layer) bool) ([]*layer.Layer, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*layer.Layer, 0, len(m.layers))
	for _, l := range m.layers {
		if predicate == nil || predicate(l) {
			out = append(out, l)
		}
	}
	return out, m.revision
}

// Revision returns the current revision without snapshotting layers.
func (m *Map) Revision() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revision
}
