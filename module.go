package isopool

import (
	"fmt"
	"sync"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// ModuleHandle is a loaded module's handle. It is unique to the worker
// (and therefore the isolate) that loaded it; handles are never portable
// between workers (spec.md §3).
type ModuleHandle struct {
	Ref ModuleRef
	// global is the name of the globalThis property holding the
	// module's exports object inside the owning isolate.
	global string
}

// Loader resolves a ModuleRef to JS source. It backs the `trailbase:`
// scheme spec.md §6 names, plus any other host-registered module; schemes
// it doesn't recognize fall through to Fallback, if set.
type Loader struct {
	mu       sync.RWMutex
	sources  map[ModuleRef]string
	Fallback func(ref ModuleRef) (string, error)
}

// NewLoader creates an empty Loader. Register host modules with Register.
func NewLoader() *Loader {
	return &Loader{sources: make(map[ModuleRef]string)}
}

// Register makes source available under ref (e.g. "trailbase:main").
func (l *Loader) Register(ref ModuleRef, source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[ref] = source
}

// Resolve returns the source for ref, consulting Fallback if ref was never
// registered directly.
func (l *Loader) Resolve(ref ModuleRef) (string, error) {
	l.mu.RLock()
	src, ok := l.sources[ref]
	l.mu.RUnlock()
	if ok {
		return src, nil
	}
	if l.Fallback != nil {
		return l.Fallback(ref)
	}
	return "", fmt.Errorf("isopool: no module registered for %q", ref)
}

// wrapESModule transforms an ES module source into an IIFE assigned to
// the given global name, so the engine can invoke exported functions as
// plain properties without needing native ESM support wired through the
// embedding API. Grounded in the teacher's esbuild-based wrapESModule.
func wrapESModule(source, global string) (string, error) {
	result := esbuild.Transform(source, esbuild.TransformOptions{
		Format:     esbuild.FormatIIFE,
		GlobalName: global,
		Target:     esbuild.ESNext,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("isopool: transforming module: %v", msgs)
	}
	code := string(result.Code)
	// esbuild nests a default export under .default; unwrap so guest
	// top-level functions (fetch/scheduled/named exports) sit directly
	// on the global, matching how Message continuations look them up.
	code += fmt.Sprintf("if(%s&&%s.default){var __d=%s.default;for(var __k in __d){%s[__k]=__d[__k];}}\n",
		global, global, global, global)
	return code, nil
}
