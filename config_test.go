package isopool

import (
	"testing"
	"time"
)

func TestConfigWithDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.Workers < 1 {
		t.Errorf("expected at least 1 worker, got %d", cfg.Workers)
	}
	if cfg.ModuleLoadTimeout <= 0 {
		t.Error("expected a positive default module load timeout")
	}
	if cfg.EventLoopSlice <= 0 {
		t.Error("expected a positive default event loop slice")
	}
	if cfg.LockAcquireAttempts <= 0 {
		t.Error("expected a positive default lock acquire attempt count")
	}
}

func TestConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{Workers: 3}.WithDefaults()
	if cfg.Workers != 3 {
		t.Errorf("expected explicit Workers to be preserved, got %d", cfg.Workers)
	}
}

func TestConfigWithDefaultsLockTimeoutCoversFullRetryBudget(t *testing.T) {
	cfg := Config{}.WithDefaults()
	want := time.Duration(cfg.LockAcquireAttempts) * cfg.LockAcquireBackoff
	if cfg.LockAcquireTimeout != want {
		t.Errorf("LockAcquireTimeout = %s, want %s (attempts*backoff)", cfg.LockAcquireTimeout, want)
	}
}
