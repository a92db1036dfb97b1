// Package config implements the recursive Config tree used for
// domain-object serialization (CachePolicy, ImageLayer options, etc.) and a
// Settings wrapper around viper for process-wide configuration.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is a recursive key/value node, analogous to an in-memory JSON
// document, matching the original engine's rocky::Config.
type Config struct {
	Referrer string
	values   map[string]any
}

// New returns an empty Config rooted at referrer (used to resolve relative
// paths found within the tree, e.g. a cache directory given relative to the
// file that declared it).
func New(referrer string) *Config {
	return &Config{Referrer: referrer, values: make(map[string]any)}
}

// Set stores a value under key.
func (c *Config) Set(key string, value any) { c.values[key] = value }

// Get reads a typed value, returning ok=false if key is absent or the
// stored value is not assignable to T.
func Get[T any](c *Config, key string) (T, bool) {
	var zero T
	raw, ok := c.values[key]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// GetOr reads a typed value, falling back to def when absent or mistyped.
func GetOr[T any](c *Config, key string, def T) T {
	if v, ok := Get[T](c, key); ok {
		return v
	}
	return def
}

// Child returns a nested Config tree stored under key, or nil.
func (c *Config) Child(key string) *Config {
	raw, ok := c.values[key]
	if !ok {
		return nil
	}
	child, ok := raw.(*Config)
	if !ok {
		return nil
	}
	return child
}

// SetChild stores a nested Config tree under key, inheriting the parent's
// referrer unless child already has one.
func (c *Config) SetChild(key string, child *Config) {
	if child.Referrer == "" {
		child.Referrer = c.Referrer
	}
	c.values[key] = child
}

// ResolvePath resolves a possibly-relative path value against Referrer.
func (c *Config) ResolvePath(value string) string {
	if filepath.IsAbs(value) || c.Referrer == "" {
		return value
	}
	return filepath.Join(filepath.Dir(c.Referrer), value)
}

// Decode decodes this Config's flat values into a typed struct via
// mapstructure, the one place the ambient stack leans on reflection-based
// decoding rather than hand-written per-type code (see SPEC_FULL.md §9).
func (c *Config) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "config",
	})
	if err != nil {
		return fmt.Errorf("config: building decoder: %w", err)
	}
	return dec.Decode(c.values)
}

// ToConfig/FromConfig is the per-type round-trip contract; domain types
// implement these interfaces so they can be nested as Config children.
type ToConfigurable interface {
	ToConfig() *Config
}

type FromConfigurable interface {
	FromConfig(*Config) error
}

// Settings wraps viper as the process-wide settings store (file/env/flag
// layering), separate from the domain-object Config tree above.
type Settings struct {
	v *viper.Viper
}

// NewSettings returns an empty Settings instance with ROCKY_-prefixed env
// var binding enabled.
func NewSettings() *Settings {
	v := viper.New()
	v.SetEnvPrefix("ROCKY")
	v.AutomaticEnv()
	return &Settings{v: v}
}

// LoadFile merges a config file (yaml/json/toml, detected by extension)
// into the settings.
func (s *Settings) LoadFile(path string) error {
	s.v.SetConfigFile(path)
	if err := s.v.MergeInConfig(); err != nil {
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

// GetString/GetInt/GetBool delegate to viper's typed accessors.
func (s *Settings) GetString(key string) string { return s.v.GetString(key) }
func (s *Settings) GetInt(key string) int       { return s.v.GetInt(key) }
func (s *Settings) GetBool(key string) bool     { return s.v.GetBool(key) }

// Set stores an override, taking precedence over file/env values.
func (s *Settings) Set(key string, value any) { s.v.Set(key, value) }
