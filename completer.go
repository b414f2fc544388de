package isopool

import (
	"context"
	"encoding/json"
	"fmt"

	v8 "github.com/tommie/v8go"
)

// Result is what a call builder eventually delivers on a caller's response
// channel: either a decoded value or an error (guest exception, timeout,
// or transport failure).
type Result[T any] struct {
	Value T
	Err   error
}

// Completer is a parked JS promise paired with a response channel,
// polled by a worker until it settles (spec.md §3, §4.4). Both methods
// take the owning worker's Engine because settling a promise's value into
// JSON requires running script in that isolate's context, and only the
// worker loop itself is ever allowed to touch an isolate.
type Completer interface {
	// Ready reports whether the promise has settled or the caller has
	// gone away (its context was canceled). Must not block.
	Ready(eng *Engine) bool
	// Resolve extracts the settled value (or the cancellation no-op) and
	// delivers it to the response channel. Only called after Ready
	// returns true.
	Resolve(eng *Engine)
}

// promiseCompleter implements Completer for a single typed async call.
type promiseCompleter[T any] struct {
	ctx     context.Context
	promise *v8.Promise
	respCh  chan<- Result[T]
}

// newPromiseCompleter parks promise until it settles and arranges for its
// resolved/rejected value to be JSON-decoded into T and sent on respCh.
func newPromiseCompleter[T any](ctx context.Context, promise *v8.Promise, respCh chan<- Result[T]) Completer {
	return &promiseCompleter[T]{ctx: ctx, promise: promise, respCh: respCh}
}

func (c *promiseCompleter[T]) Ready(eng *Engine) bool {
	if c.ctx.Err() != nil {
		return true
	}
	return c.promise.State() != v8.Pending
}

func (c *promiseCompleter[T]) Resolve(eng *Engine) {
	if c.ctx.Err() != nil {
		// Caller is gone; resolving would block on nobody. Per spec.md
		// §4.4 this is a no-op, not an error.
		return
	}

	var res Result[T]
	switch c.promise.State() {
	case v8.Fulfilled:
		res.Value, res.Err = decodeJSValue[T](eng, c.promise.Result())
	case v8.Rejected:
		res.Err = jsExceptionError(c.promise.Result())
	default:
		res.Err = fmt.Errorf("isopool: completer resolved while promise still pending")
	}

	select {
	case c.respCh <- res:
	case <-c.ctx.Done():
	}
}

// decodeJSValue decodes a V8 value's JSON representation into T. Per
// spec.md §4.3, the host always decodes async/sync call results off of
// their JSON-compatible wire form, never off engine-specific types.
func decodeJSValue[T any](eng *Engine, v *v8.Value) (T, error) {
	var zero T
	if v == nil || v.IsUndefined() {
		return zero, nil
	}
	raw, err := eng.jsonStringify(v)
	if err != nil {
		return zero, fmt.Errorf("isopool: serializing result: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("isopool: decoding result: %w", err)
	}
	return out, nil
}

// jsExceptionError turns a rejected promise's value (typically an Error
// object, but guest code may reject with anything) into a Go error.
func jsExceptionError(v *v8.Value) error {
	if v == nil {
		return fmt.Errorf("isopool: guest promise rejected")
	}
	return fmt.Errorf("isopool: guest promise rejected: %s", v.String())
}

// completerRegistry is a worker-local vector of outstanding completers,
// drained each iteration of the worker loop via a stable partition that
// preserves the order of the entries that remain pending (spec.md §4.4).
type completerRegistry struct {
	pending []Completer
}

func (r *completerRegistry) push(c Completer) {
	r.pending = append(r.pending, c)
}

func (r *completerRegistry) len() int {
	return len(r.pending)
}

// drainReady resolves every currently-ready completer and compacts the
// pending slice to the entries that are still not ready. The relative
// order of ready completers resolved in one pass is unspecified, matching
// spec.md §4.1's "resolution order ... is unspecified".
func (r *completerRegistry) drainReady(eng *Engine) {
	if len(r.pending) == 0 {
		return
	}
	remaining := r.pending[:0]
	var ready []Completer
	for _, c := range r.pending {
		if c.Ready(eng) {
			ready = append(ready, c)
		} else {
			remaining = append(remaining, c)
		}
	}
	r.pending = remaining
	for _, c := range ready {
		c.Resolve(eng)
	}
}
