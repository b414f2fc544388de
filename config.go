package isopool

import (
	"runtime"
	"time"
)

// Config controls pool and per-isolate behavior. It is a plain struct —
// parsing it from a file, environment, or CLI flags is the caller's
// concern and outside this package.
type Config struct {
	// Workers is the number of isolate worker threads. Zero means
	// runtime.NumCPU(). Once a Pool has been constructed, changing this
	// field has no effect: the engine platform is a process-wide
	// singleton and cannot be reinitialized with a different thread
	// count (spec.md §4.1).
	Workers int

	// MemoryLimitMB is accepted but not enforced: every isolate runs
	// with the engine's default heap limits whatever its value.
	MemoryLimitMB int

	// ModuleLoadTimeout bounds how long a single module load may run
	// inside a worker's event loop before it is abandoned (spec.md §4.2).
	ModuleLoadTimeout time.Duration

	// EventLoopSlice bounds a single pump of a worker's engine event
	// loop when completers are pending (spec.md §4.2).
	EventLoopSlice time.Duration

	// LockAcquireAttempts and LockAcquireBackoff configure
	// transaction_begin's retry loop (spec.md §4.5).
	LockAcquireAttempts int
	LockAcquireBackoff  time.Duration
	LockAcquireTimeout  time.Duration

	// DataDir is where persisted runtime assets (trailbase.js,
	// trailbase.d.ts) are written. Empty disables asset persistence.
	DataDir string
}

// WithDefaults returns a copy of cfg with zero-valued fields replaced by
// their defaults.
func (cfg Config) WithDefaults() Config {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
		if cfg.Workers < 1 {
			cfg.Workers = 1
		}
	}
	if cfg.ModuleLoadTimeout <= 0 {
		cfg.ModuleLoadTimeout = 1 * time.Second
	}
	if cfg.EventLoopSlice <= 0 {
		cfg.EventLoopSlice = 25 * time.Millisecond
	}
	if cfg.LockAcquireAttempts <= 0 {
		cfg.LockAcquireAttempts = 200
	}
	if cfg.LockAcquireBackoff <= 0 {
		cfg.LockAcquireBackoff = 400 * time.Microsecond
	}
	if cfg.LockAcquireTimeout <= 0 {
		// The overall budget is the retry loop's own ceiling
		// (attempts*backoff, ~0.1s with the defaults above), not a
		// separate short-lived cap: spec.md §4.5's "succeeds within
		// O(100ms) once the holder is cleared" only holds if the
		// deadline actually covers every attempt the loop is allowed
		// to make.
		cfg.LockAcquireTimeout = time.Duration(cfg.LockAcquireAttempts) * cfg.LockAcquireBackoff
	}
	return cfg
}
