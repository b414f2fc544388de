package isopool

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBundleGuestModuleTransformsExports(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "entry.js")
	if err := os.WriteFile(entry, []byte(`export function handler() { return 1; }`), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := BundleGuestModule(entry)
	if err != nil {
		t.Fatal(err)
	}
	if out == "" {
		t.Fatal("expected non-empty bundled output")
	}
}

func TestBundleGuestModuleMissingFile(t *testing.T) {
	if _, err := BundleGuestModule("/nonexistent/entry.js"); err == nil {
		t.Fatal("expected error for missing entry file")
	}
}

func TestPersistTrailbaseTypingsWritesFiles(t *testing.T) {
	dir := t.TempDir()
	if err := PersistTrailbaseTypings(Config{DataDir: dir}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"trailbase.js", "trailbase.d.ts"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to be written: %v", name, err)
		}
	}
}

func TestPersistTrailbaseTypingsNoopWithoutDataDir(t *testing.T) {
	if err := PersistTrailbaseTypings(Config{}); err != nil {
		t.Fatalf("expected no error with empty DataDir, got %v", err)
	}
}
