// Package layer implements the Layer lifecycle state machine: open/close,
// revision counting, status, and the observer Signals fired outside the
// lock (spec.md §4.C), flattened from the original's deep Layer ->
// TileLayer -> ImageLayer -> driver inheritance into a single value plus a
// capability interface (spec.md Design Notes §9, "Deep inheritance").
package layer

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rockyterrain/rocky/internal/iocontrol"
	"github.com/rockyterrain/rocky/internal/signal"
	"github.com/rockyterrain/rocky/internal/status"
)

// State is a point in the Closed -> Opening -> Open -> Closing -> Closed
// lifecycle.
type State int

const (
	Closed State = iota
	Opening
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// OpenCloser is implemented by the concrete data-source kind (e.g.
// ImageLayer) to supply the actual open/close behavior the state machine
// sequences around.
type OpenCloser interface {
	OpenImplementation() status.Status
	CloseImplementation() status.Status
}

// Layer is the flattened base shared by every data-source kind. Concrete
// kinds embed *Layer and implement OpenCloser.
type Layer struct {
	UID              string
	Name             string
	Attribution      string
	OpenAutomatically bool
	CachePolicy      iocontrol.CachePolicy
	L2CacheSize      int

	OnOpened *signal.Signal[*Layer]
	OnClosed *signal.Signal[*Layer]

	mu       sync.RWMutex
	state    State
	revision uint64
	st       status.Status
}

// New constructs a Layer in the Closed state with a fresh UID, matching the
// field defaults set in Layer::construct.
func New(name string) *Layer {
	return &Layer{
		UID:               uuid.NewString(),
		Name:              name,
		OpenAutomatically: true,
		revision:          1,
		st:                status.Error(status.ResourceUnavailable, "Layer closed"),
		OnOpened:          signal.New[*Layer](),
		OnClosed:          signal.New[*Layer](),
	}
}

// Status returns the last-recorded status. It takes the read lock, so it is
// not lock-free; the value may be stale by the time the caller acts on it.
func (l *Layer) Status() status.Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st
}

// State returns the current lifecycle state.
func (l *Layer) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Revision returns the current revision counter.
func (l *Layer) Revision() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.revision
}

// IsOpen reports whether the layer is open and its status is OK — the
// isOpen <=> status.ok invariant from spec.md §3.
func (l *Layer) IsOpen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == Open && l.st.Ok()
}

// bumpRevisionLocked is the only way to publish a mutation to readers (spec.md
// §4.C). Safe to call while holding the write path of Open/Close; the
// caller must already hold mu for writing.
func (l *Layer) bumpRevisionLocked() {
	l.revision++
}

// Open is idempotent: calling it on an already-open layer just returns the
// current status without re-invoking OpenImplementation.
func (l *Layer) Open(impl OpenCloser) status.Status {
	l.mu.Lock()
	if l.state == Open {
		st := l.st
		l.mu.Unlock()
		return st
	}
	if l.state == Closing {
		st := status.Error(status.ServiceUnavailable, "layer is closing")
		l.st = st
		l.mu.Unlock()
		return st
	}
	l.state = Opening
	l.mu.Unlock()

	st := impl.OpenImplementation()

	l.mu.Lock()
	l.st = st
	if st.Ok() {
		l.state = Open
	} else {
		l.state = Closed
	}
	l.bumpRevisionLocked()
	l.mu.Unlock()

	l.OnOpened.Fire(l)
	return st
}

// Close mirrors Open: closing while Opening is disallowed and reports
// ServiceUnavailable (spec.md §4.C).
func (l *Layer) Close(impl OpenCloser) status.Status {
	l.mu.Lock()
	if l.state == Opening {
		st := status.Error(status.ServiceUnavailable, "layer is opening")
		l.mu.Unlock()
		return st
	}
	if l.state == Closed {
		st := l.st
		l.mu.Unlock()
		return st
	}
	l.state = Closing
	l.mu.Unlock()

	_ = impl.CloseImplementation()

	closedStatus := status.Error(status.ResourceUnavailable, "Layer closed")

	l.mu.Lock()
	l.state = Closed
	l.st = closedStatus
	l.bumpRevisionLocked()
	l.mu.Unlock()

	l.OnClosed.Fire(l)
	return closedStatus
}

// Reopen closes the layer if it is open, runs mutate, and reopens it. Close,
// mutate and Open are separate steps with no lock held across them, so the
// sequence is not atomic with respect to other callers, and an open layer's
// revision is bumped twice (once by Close, once by Open).
func (l *Layer) Reopen(impl OpenCloser, mutate func()) status.Status {
	wasOpen := l.IsOpen()
	if wasOpen {
		l.Close(impl)
	}
	mutate()
	if wasOpen {
		return l.Open(impl)
	}
	return l.Status()
}
