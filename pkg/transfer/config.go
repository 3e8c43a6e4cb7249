package transfer

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultChunkSize = 16 * 1024
	MaxChunkSize     = 64 * 1024
	MinChunkSize     = 1024

	DefaultRetryInterval     = 20 * time.Millisecond
	DefaultCompletionTimeout = 30 * time.Second

	// MaxTextBytes keeps a text frame within one data channel message.
	MaxTextBytes = 60 * 1024
)

// Config holds the tunables of one transfer.
type Config struct {
	ChunkSize         int
	RetryInterval     time.Duration
	CompletionTimeout time.Duration
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		ChunkSize:         DefaultChunkSize,
		RetryInterval:     DefaultRetryInterval,
		CompletionTimeout: DefaultCompletionTimeout,
	}
}

// Validate checks if the configuration values are valid
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.New("chunk_size must be positive")
	}
	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("chunk_size must be between %d and %d", MinChunkSize, MaxChunkSize)
	}
	if c.RetryInterval <= 0 {
		return errors.New("retry_interval must be positive")
	}
	if c.CompletionTimeout <= 0 {
		return errors.New("completion_timeout must be positive")
	}
	return nil
}
