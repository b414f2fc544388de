package isopool

// ModuleRef names a module to load before a continuation runs. The name
// is resolved by the worker's Loader (module.go); "" means no module load
// is needed and the continuation runs against whatever is already loaded.
type ModuleRef string

// Continuation is a one-shot host function carried inside a Message. It is
// invoked on the owning worker's thread with the loaded module handle (nil
// if Message.Module was empty) and the worker's Engine. It must return
// immediately — never block on a promise — per spec.md §4.2's "why
// completers" rationale: the only code allowed to progress an isolate's
// event loop is the worker loop itself.
//
// A nil return means the call already resolved synchronously (its result,
// if any, was delivered on a response channel the continuation closed
// over). A non-nil return is a Completer the worker must park and drain.
type Continuation func(mod *ModuleHandle, eng *Engine) Completer

// Message is a tagged unit of work submitted to a worker. It is consumed
// exactly once by whichever worker dequeues it; dropping a Message whose
// continuation was never invoked implies the caller's response channel
// was already closed.
type Message struct {
	Module ModuleRef
	Run    Continuation
}
