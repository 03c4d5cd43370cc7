package engine

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ConfigError reports an invalid Config, surfaced from Open before any
// directory is touched.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("engine: invalid config field %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DefaultReadHandlePoolSize is the pool size used when Config does not
// override it (§4.5).
const DefaultReadHandlePoolSize = 8

// LevelCount is the fixed number of levels, L, named in §3.
const LevelCount = 5

// Config carries the engine's required and ambient settings. Build one
// with Open's functional options rather than constructing it directly.
type Config struct {
	BasePath           string
	MemtableLimitBytes int
	SstableLevelLimit  int
	ReadHandlePoolSize int
	Logger             zerolog.Logger
}

// Option configures a Config, matching the teacher's
// DiskSegmentManagerOption idiom.
type Option func(*Config)

// WithMemtableLimitBytes sets the byte threshold that triggers a
// memtable freeze and flush.
func WithMemtableLimitBytes(n int) Option {
	return func(c *Config) { c.MemtableLimitBytes = n }
}

// WithSstableLevelLimit sets the table-count threshold that triggers
// compaction for a level.
func WithSstableLevelLimit(n int) Option {
	return func(c *Config) { c.SstableLevelLimit = n }
}

// WithReadHandlePoolSize overrides the per-table read handle pool size.
func WithReadHandlePoolSize(n int) Option {
	return func(c *Config) { c.ReadHandlePoolSize = n }
}

// WithLogger overrides the default disabled logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

func newConfig(basePath string, opts ...Option) Config {
	cfg := Config{
		BasePath:           basePath,
		ReadHandlePoolSize: DefaultReadHandlePoolSize,
		Logger:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c Config) validate() error {
	if c.BasePath == "" {
		return &ConfigError{Field: "BasePath", Err: fmt.Errorf("must not be empty")}
	}
	if c.MemtableLimitBytes <= 0 {
		return &ConfigError{Field: "MemtableLimitBytes", Err: fmt.Errorf("must be > 0")}
	}
	if c.SstableLevelLimit <= 0 {
		return &ConfigError{Field: "SstableLevelLimit", Err: fmt.Errorf("must be > 0")}
	}
	if c.ReadHandlePoolSize <= 0 {
		return &ConfigError{Field: "ReadHandlePoolSize", Err: fmt.Errorf("must be > 0")}
	}
	return nil
}
