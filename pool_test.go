package isopool

import (
	"context"
	"testing"
	"time"
)

func newTestPool(t *testing.T, workers int, loader *Loader) *Pool {
	t.Helper()
	pool, err := New(Config{Workers: workers}, loader)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPoolSyncCallRoundTrip(t *testing.T) {
	loader := NewLoader()
	loader.Register("test:add", `export function add(a, b) { return a + b; }`)
	pool := newTestPool(t, 1, loader)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, resp := BuildSyncCall[float64](ctx, "test:add", "add", []any{2, 3})
	if err := pool.SendToAny(ctx, msg); err != nil {
		t.Fatalf("SendToAny: %v", err)
	}

	select {
	case res := <-resp:
		if res.Err != nil {
			t.Fatalf("call error: %v", res.Err)
		}
		if res.Value != 5 {
			t.Errorf("got %v, want 5", res.Value)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for sync call result")
	}
}

func TestPoolAsyncCallRoundTrip(t *testing.T) {
	loader := NewLoader()
	loader.Register("test:async", `export async function greet(name) { return "hello " + name; }`)
	pool := newTestPool(t, 1, loader)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, resp := BuildAsyncCall[string](ctx, "test:async", "greet", []any{"world"})
	if err := pool.SendToAny(ctx, msg); err != nil {
		t.Fatalf("SendToAny: %v", err)
	}

	select {
	case res := <-resp:
		if res.Err != nil {
			t.Fatalf("call error: %v", res.Err)
		}
		if res.Value != "hello world" {
			t.Errorf("got %q, want %q", res.Value, "hello world")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for async call result")
	}
}

func TestPoolAsyncCallPropagatesRejection(t *testing.T) {
	loader := NewLoader()
	loader.Register("test:fails", `export async function boom() { throw new Error("nope"); }`)
	pool := newTestPool(t, 1, loader)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, resp := BuildAsyncCall[string](ctx, "test:fails", "boom", nil)
	if err := pool.SendToAny(ctx, msg); err != nil {
		t.Fatalf("SendToAny: %v", err)
	}

	res := <-resp
	if res.Err == nil {
		t.Fatal("expected an error from a rejected promise")
	}
}

func TestPoolSendPrivatePinsWorker(t *testing.T) {
	loader := NewLoader()
	loader.Register("test:id", `export function id() { return 1; }`)
	pool := newTestPool(t, 2, loader)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, resp := BuildSyncCall[float64](ctx, "test:id", "id", nil)
	if err := pool.SendPrivate(ctx, 1, msg); err != nil {
		t.Fatalf("SendPrivate: %v", err)
	}
	res := <-resp
	if res.Err != nil {
		t.Fatalf("call error: %v", res.Err)
	}

	handledBy := make(chan int, 1)
	if err := pool.SendPrivate(ctx, 1, Message{Run: func(mod *ModuleHandle, eng *Engine) Completer {
		handledBy <- eng.Index()
		return nil
	}}); err != nil {
		t.Fatalf("SendPrivate: %v", err)
	}
	if got := <-handledBy; got != 1 {
		t.Errorf("expected worker 1 to handle the private message, got worker %d", got)
	}
}

func TestPoolSendPrivateOutOfRange(t *testing.T) {
	pool := newTestPool(t, 1, nil)
	ctx := context.Background()
	if err := pool.SendPrivate(ctx, 5, Message{}); err == nil {
		t.Fatal("expected error for out-of-range worker index")
	}
}

func TestPoolInstallOnEachRunsOnEveryWorker(t *testing.T) {
	pool := newTestPool(t, 3, nil)
	seen := make(chan int, 3)
	err := pool.InstallOnEach(func(eng *Engine) error {
		seen <- eng.Index()
		return nil
	})
	if err != nil {
		t.Fatalf("InstallOnEach: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 installs, got %d", len(seen))
	}
}
