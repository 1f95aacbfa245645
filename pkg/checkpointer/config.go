package checkpointer

import "time"

// Config holds the configuration for checkpoint writes.
type Config struct {
	WriteTimeout time.Duration `env:"CHECKPOINT_WRITE_TIMEOUT" envDefault:"1s"`   // Timeout for each checkpoint write operation
	MaxRetries   int           `env:"CHECKPOINT_MAX_RETRIES" envDefault:"3"`      // Maximum number of retry attempts for failed writes
	RetryBackoff time.Duration `env:"CHECKPOINT_RETRY_BACKOFF" envDefault:"300ms"` // Backoff duration between retry attempts
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 1 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 300 * time.Millisecond,
	}
}
