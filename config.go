package bincodec

import "go.uber.org/zap"

const (
	// DefaultInitialBufferSize is the starting capacity of pooled buffers.
	DefaultInitialBufferSize = 2048
	// DefaultMaxPooledBufferSize caps the capacity of buffers returned to the pool.
	DefaultMaxPooledBufferSize = 1 << 20
)

// Config holds the settings of a Registry.
type Config struct {
	// InitialBufferSize is the capacity of newly allocated pooled buffers.
	InitialBufferSize int
	// MaxPooledBufferSize drops buffers that grew beyond it instead of pooling them.
	MaxPooledBufferSize int
	// RejectTrailingData makes Unmarshal fail when bytes remain after the value.
	RejectTrailingData bool
	// Logger receives registration events. Nil follows the package logger.
	Logger *zap.Logger
}

// DefaultConfig returns the settings used when NewRegistry is given nil.
func DefaultConfig() *Config {
	return &Config{
		InitialBufferSize:   DefaultInitialBufferSize,
		MaxPooledBufferSize: DefaultMaxPooledBufferSize,
	}
}

// WithLogger sets the logger and returns the config for chaining.
func (c *Config) WithLogger(l *zap.Logger) *Config {
	c.Logger = l
	return c
}

// normalize fills zero fields with defaults.
func (c *Config) normalize() *Config {
	out := DefaultConfig()
	if c == nil {
		return out
	}
	*out = *c
	if out.InitialBufferSize <= 0 {
		out.InitialBufferSize = DefaultInitialBufferSize
	}
	if out.MaxPooledBufferSize <= 0 {
		out.MaxPooledBufferSize = DefaultMaxPooledBufferSize
	}
	if out.MaxPooledBufferSize < out.InitialBufferSize {
		out.MaxPooledBufferSize = out.InitialBufferSize
	}
	return out
}
