package isopool

import (
	"context"
	"encoding/json"
	"fmt"
)

// BuildSyncCall constructs a Message that invokes fnName synchronously
// against the loaded module and decodes its JSON return value into T. The
// function named by fnName must not return a Promise: the continuation
// runs Engine.CallSync, which stringifies whatever the call returns
// without waiting on it (spec.md §4.3 — the sync call builder always
// resolves on the same turn it runs).
//
// args is marshaled to JSON and spread as the guest function's
// arguments. Send the returned Message with Pool.SendToAny or
// Pool.SendPrivate, and read resp for the result; resp is buffered so
// the worker never blocks delivering it.
func BuildSyncCall[T any](ctx context.Context, module ModuleRef, fnName string, args any) (Message, <-chan Result[T]) {
	resp := make(chan Result[T], 1)
	msg := Message{
		Module: module,
		Run: func(mod *ModuleHandle, eng *Engine) Completer {
			res := runSyncCall[T](ctx, eng, mod, fnName, args)
			select {
			case resp <- res:
			default:
			}
			return nil
		},
	}
	return msg, resp
}

func runSyncCall[T any](ctx context.Context, eng *Engine, mod *ModuleHandle, fnName string, args any) Result[T] {
	var zero T
	if ctx.Err() != nil {
		return Result[T]{Err: ctx.Err()}
	}
	if mod == nil {
		return Result[T]{Err: fmt.Errorf("isopool: module failed to load before calling %q", fnName)}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return Result[T]{Err: fmt.Errorf("isopool: marshaling arguments to %q: %w", fnName, err)}
	}
	raw, err := eng.CallSync(mod, fnName, argsJSON)
	if err != nil {
		return Result[T]{Err: err}
	}
	if len(raw) == 0 || string(raw) == "null" {
		return Result[T]{Value: zero}
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result[T]{Err: fmt.Errorf("isopool: decoding result of %q: %w", fnName, err)}
	}
	return Result[T]{Value: out}
}

// BuildAsyncCall constructs a Message that invokes fnName and parks a
// Completer on whatever it returns (a Promise, or a plain value wrapped
// in one). It never awaits the promise inline inside the continuation:
// doing so would block the worker loop and deadlock any reentrant
// guest-to-host call the promise's resolution depends on (spec.md §4.3's
// central invariant).
func BuildAsyncCall[T any](ctx context.Context, module ModuleRef, fnName string, args any) (Message, <-chan Result[T]) {
	resp := make(chan Result[T], 1)
	msg := Message{
		Module: module,
		Run: func(mod *ModuleHandle, eng *Engine) Completer {
			if ctx.Err() != nil {
				select {
				case resp <- Result[T]{Err: ctx.Err()}:
				default:
				}
				return nil
			}
			if mod == nil {
				select {
				case resp <- Result[T]{Err: fmt.Errorf("isopool: module failed to load before calling %q", fnName)}:
				default:
				}
				return nil
			}
			argsJSON, err := json.Marshal(args)
			if err != nil {
				select {
				case resp <- Result[T]{Err: fmt.Errorf("isopool: marshaling arguments to %q: %w", fnName, err)}:
				default:
				}
				return nil
			}
			promise, err := eng.CallAsync(mod, fnName, argsJSON)
			if err != nil {
				select {
				case resp <- Result[T]{Err: err}:
				default:
				}
				return nil
			}
			return newPromiseCompleter[T](ctx, promise, resp)
		},
	}
	return msg, resp
}
