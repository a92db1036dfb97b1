// Package engine provides the explicit, passed-by-reference value that
// replaces the original implementation's process-wide settings and clock
// globals (spec.md Design Notes §9). Observer callbacks are not held here;
// each Layer and Map owns its own signal.Signal fields.
package engine

import (
	"time"

	"github.com/rockyterrain/rocky/internal/config"
)

// Engine bundles everything that would otherwise be reached through a
// package-level global: shared settings and a clock seam for deterministic
// testing of expiry-sensitive code (CachePolicy.IsExpired and friends).
type Engine struct {
	Settings *config.Settings
	Clock    func() time.Time
}

// New returns an Engine with default settings and a real wall clock.
func New() *Engine {
	return &Engine{
		Settings: config.NewSettings(),
		Clock:    time.Now,
	}
}

// Now returns the engine's current time, honoring a test-injected Clock.
func (e *Engine) Now() time.Time {
	if e == nil || e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}
