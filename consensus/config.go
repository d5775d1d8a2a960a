package consensus

import "time"

// Config holds the engine's recognized, named, defaulted options (§6.3).
type Config struct {
	CleanupInterval   time.Duration
	SyncRetryInterval time.Duration
	PhasesToKeep      uint64
	VoteTimeout       time.Duration
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		CleanupInterval:   30 * time.Second,
		SyncRetryInterval: 2 * time.Second,
		PhasesToKeep:      100,
		VoteTimeout:       500 * time.Millisecond,
	}
}

// Option configures an Engine at construction, in the functional-options
// style used throughout this repository's components.
type Option func(*Config)

func WithCleanupInterval(d time.Duration) Option {
	return func(c *Config) { c.CleanupInterval = d }
}

func WithSyncRetryInterval(d time.Duration) Option {
	return func(c *Config) { c.SyncRetryInterval = d }
}

func WithPhasesToKeep(n uint64) Option {
	return func(c *Config) { c.PhasesToKeep = n }
}

func WithVoteTimeout(d time.Duration) Option {
	return func(c *Config) { c.VoteTimeout = d }
}
