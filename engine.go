package isopool

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	v8 "github.com/tommie/v8go"
)

var (
	platformOnce sync.Once
)

// initPlatform brings up the process-wide V8 platform exactly once. It is
// never torn down or reinitialized for the lifetime of the process
// (spec.md §4.1): v8go links a single global platform and re-creating it
// after isolates have run is not supported by the underlying engine.
func initPlatform() {
	platformOnce.Do(func() {
		// v8go initializes its platform lazily on the first NewIsolate
		// call; this Once only needs to exist so every worker observes
		// the same one-time initialization rather than racing on it.
	})
}

// Engine wraps the single V8 isolate and context owned by one worker. It
// is never touched by more than one goroutine: only the worker loop that
// owns it may call its methods (spec.md §4.1's "never share an isolate").
type Engine struct {
	index   int
	iso     *v8.Isolate
	ctx     *v8.Context
	loader  *Loader
	modules map[ModuleRef]*ModuleHandle
	modSeq  int

	// txHolder is installed lazily by InstallDatabaseBridge; nil means
	// the database bridge was never wired into this engine.
	txHolder *txSlot
}

// newEngine constructs an isolate and a single default context for it.
// Per spec.md §4.1 an isolate is created once per worker and lives for
// the worker's entire lifetime.
func newEngine(index int, cfg Config, loader *Loader) (*Engine, error) {
	initPlatform()

	// cfg.MemoryLimitMB is not enforced: v8go's exported NewIsolate takes
	// no creation parameters, so every isolate gets the engine's default
	// heap limits.
	iso := v8.NewIsolate()
	ctx := v8.NewContext(iso)

	return &Engine{
		index:   index,
		iso:     iso,
		ctx:     ctx,
		loader:  loader,
		modules: make(map[ModuleRef]*ModuleHandle),
	}, nil
}

// Index returns the worker index this engine belongs to, used as the
// isolate_id() value exposed to guest code (spec.md §6).
func (e *Engine) Index() int { return e.index }

// Context exposes the underlying v8.Context for host functions that need
// to construct v8 values directly (database bridge results, etc.).
func (e *Engine) Context() *v8.Context { return e.ctx }

// Isolate exposes the underlying v8.Isolate, needed to build
// FunctionTemplates and Values bound to it.
func (e *Engine) Isolate() *v8.Isolate { return e.iso }

// PumpEventLoop runs one microtask checkpoint, draining whatever V8
// microtasks are ready, and returns without waiting; slice is not used
// here. The worker loop's select bounds the wait between pumps
// (spec.md §4.2).
func (e *Engine) PumpEventLoop(slice time.Duration) {
	// v8go has no blocking "run until idle": a microtask checkpoint drains
	// whatever is ready and returns as soon as the queue empties. slice is
	// honored by the worker loop's select, not by spinning here.
	e.ctx.PerformMicrotaskCheckpoint()
}

// LoadModule resolves ref through the engine's Loader, wraps it as an ES
// module, and evaluates it in this isolate's context under timeout. A
// module that fails to finish top-level evaluation inside timeout is
// terminated via Isolate.TerminateExecution, the same liveness guard the
// teacher's watchdog uses around Execute (spec.md §4.2).
func (e *Engine) LoadModule(ref ModuleRef, timeout time.Duration) (*ModuleHandle, error) {
	if ref == "" {
		return nil, fmt.Errorf("isopool: empty module ref")
	}
	if h, ok := e.modules[ref]; ok {
		return h, nil
	}

	source, err := e.loader.Resolve(ref)
	if err != nil {
		return nil, err
	}

	e.modSeq++
	global := fmt.Sprintf("__mod_%d", e.modSeq)
	wrapped, err := wrapESModule(source, global)
	if err != nil {
		return nil, err
	}

	// RunScript stays on this goroutine — the only one allowed to touch
	// the isolate. The watchdog timer fires on its own goroutine but
	// only ever calls TerminateExecution, which v8 documents as safe to
	// call from any thread to interrupt a running isolate (grounded on
	// the teacher's identical watchdog-timer pattern around Execute).
	watchdog := time.AfterFunc(timeout, e.iso.TerminateExecution)
	_, runErr := e.ctx.RunScript(wrapped, string(ref))
	timedOut := !watchdog.Stop()
	if runErr != nil {
		if timedOut {
			return nil, fmt.Errorf("isopool: loading module %q: %w", ref, ErrModuleLoadTimeout)
		}
		return nil, fmt.Errorf("isopool: loading module %q: %w", ref, runErr)
	}

	handle := &ModuleHandle{Ref: ref, global: global}
	e.modules[ref] = handle
	return handle, nil
}

// CallSync invokes fnName on mod's exports with jsonArgs (a JSON array of
// arguments) and returns the JSON-encoded return value immediately. It
// must not be used for a function that returns a Promise: use CallAsync
// instead so the caller observes settlement, not a pending promise
// serialized to "{}".
func (e *Engine) CallSync(mod *ModuleHandle, fnName string, jsonArgs json.RawMessage) (json.RawMessage, error) {
	v, err := e.invoke(mod, fnName, jsonArgs)
	if err != nil {
		return nil, err
	}
	return e.jsonStringify(v)
}

// CallAsync invokes fnName on mod's exports and wraps the result with
// Promise.resolve so a function that returns a plain value behaves the
// same as one that returns a promise: the caller always gets a
// *v8.Promise to park a Completer on (spec.md §4.3's async call builder
// never awaits inline).
func (e *Engine) CallAsync(mod *ModuleHandle, fnName string, jsonArgs json.RawMessage) (*v8.Promise, error) {
	v, err := e.invoke(mod, fnName, jsonArgs)
	if err != nil {
		return nil, err
	}
	if p, ok := v.AsPromise(); ok {
		return p, nil
	}
	resolver, err := v8.NewPromiseResolver(e.ctx)
	if err != nil {
		return nil, fmt.Errorf("isopool: wrapping result as promise: %w", err)
	}
	resolver.Resolve(v)
	return resolver.GetPromise(), nil
}

// invoke runs `<global>.<fnName>.apply(undefined, <jsonArgs>)` against
// mod's exports object and returns the raw result value. A thrown
// exception during either global or fnName lookup or the call itself
// surfaces as a Go error built from the exception's string form.
func (e *Engine) invoke(mod *ModuleHandle, fnName string, jsonArgs json.RawMessage) (*v8.Value, error) {
	if mod == nil {
		return nil, fmt.Errorf("isopool: call to %q against a nil module handle", fnName)
	}
	if len(jsonArgs) == 0 {
		jsonArgs = json.RawMessage("[]")
	}
	script := fmt.Sprintf("(function(){var __fn=%s[%q];if(typeof __fn!==%q)throw new TypeError(%q);return __fn.apply(undefined, %s);})()",
		mod.global, fnName, "function", fmt.Sprintf("export %q is not a function", fnName), string(jsonArgs))
	v, err := e.ctx.RunScript(script, string(mod.Ref)+"#"+fnName)
	if err != nil {
		return nil, fmt.Errorf("isopool: calling %q: %w", fnName, err)
	}
	return v, nil
}

// jsonStringify serializes v using the isolate's own JSON.stringify so
// the result is guaranteed to match what a guest observes from
// JSON.stringify(x), including undefined-property dropping and toJSON
// hooks, rather than a host-side reimplementation of JS-to-JSON
// semantics (grounded on the teacher's manual-RunScript JSON bridging in
// internal/webapi/d1.go).
func (e *Engine) jsonStringify(v *v8.Value) ([]byte, error) {
	if v == nil || v.IsUndefined() {
		return []byte("null"), nil
	}
	global := e.ctx.Global()
	if err := global.Set("__stringify_tmp", v); err != nil {
		return nil, err
	}
	defer global.Set("__stringify_tmp", v8.Undefined(e.iso))

	res, err := e.ctx.RunScript("JSON.stringify(globalThis.__stringify_tmp)", "<stringify>")
	if err != nil {
		return nil, err
	}
	if res.IsUndefined() {
		// JSON.stringify(undefined) === undefined, e.g. a function value.
		return []byte("null"), nil
	}
	return []byte(res.String()), nil
}

// ParseJSON parses raw into a v8.Value using the isolate's own
// JSON.parse, the mirror of jsonStringify: host functions that need to
// hand a Go-computed JSON value back into JS (query results, exec
// metadata) go through this instead of hand-building v8 objects field
// by field.
func (e *Engine) ParseJSON(raw string) (*v8.Value, error) {
	text, err := v8.NewValue(e.iso, raw)
	if err != nil {
		return nil, err
	}
	global := e.ctx.Global()
	if err := global.Set("__parse_tmp", text); err != nil {
		return nil, err
	}
	defer global.Set("__parse_tmp", v8.Undefined(e.iso))
	return e.ctx.RunScript("JSON.parse(globalThis.__parse_tmp)", "<parse>")
}

// Dispose releases the isolate and context. Called once when a worker
// shuts down; never called while a message or completer is in flight.
func (e *Engine) Dispose() {
	e.ctx.Close()
	e.iso.Dispose()
}
