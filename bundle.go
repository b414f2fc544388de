package isopool

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed assets/trailbase.js
var trailbaseJS string

//go:embed assets/trailbase.d.ts
var trailbaseDTS string

// installTrailbaseGlobals runs the embedded bootstrap script directly in
// eng's context, installing query/execute/transaction as globals backed
// by the __db_* primitives DatabaseBridge.install binds first. It is not
// loaded through the Loader like guest modules are: bootstrap globals
// must exist before any guest module's top-level code runs, and a
// module load only happens once a caller names one, which is too late.
func installTrailbaseGlobals(eng *Engine) error {
	_, err := eng.ctx.RunScript(trailbaseJS, "trailbase:bootstrap")
	return err
}

// PersistTrailbaseTypings writes trailbase.js and trailbase.d.ts under
// cfg.DataDir so an editor working on guest source outside the runtime
// gets type hints and inline documentation for the globals
// installTrailbaseGlobals installs at runtime. It is a convenience for
// host embedders and is never read back by the engine itself; a no-op
// if cfg.DataDir is empty.
func PersistTrailbaseTypings(cfg Config) error {
	if cfg.DataDir == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("isopool: creating data dir %q: %w", cfg.DataDir, err)
	}
	if err := os.WriteFile(filepath.Join(cfg.DataDir, "trailbase.js"), []byte(trailbaseJS), 0o644); err != nil {
		return fmt.Errorf("isopool: writing trailbase.js: %w", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.DataDir, "trailbase.d.ts"), []byte(trailbaseDTS), 0o644); err != nil {
		return fmt.Errorf("isopool: writing trailbase.d.ts: %w", err)
	}
	return nil
}

// BundleGuestModule reads a guest entry point file and transforms it
// into a single self-contained IIFE source that assigns the entry's
// exports to the global __entry, the same esbuild-based approach the
// teacher uses for _worker.js entry points, generalized to an arbitrary
// entry path instead of a fixed Cloudflare-Workers deploy layout. The
// output is a plain script, not ES module source: Loader.Register expects
// module source, which LoadModule wraps again. It does not resolve imports across
// files: a guest entry point is expected to reference only the globals
// installTrailbaseGlobals provides, not ES module specifiers.
func BundleGuestModule(entryPath string) (string, error) {
	source, err := os.ReadFile(entryPath)
	if err != nil {
		return "", fmt.Errorf("isopool: reading %q: %w", entryPath, err)
	}
	return wrapESModule(string(source), "__entry")
}
