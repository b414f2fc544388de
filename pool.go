package isopool

import (
	"context"
	"fmt"
)

// Pool owns a fixed set of Workers and the shared dispatch channel that
// SendToAny feeds. Workers are created once in New and never resized:
// the engine platform is a process-wide singleton, and re-sizing would
// require constructing isolates after other isolates have already run,
// which spec.md §4.1 rules out.
type Pool struct {
	workers []*Worker
	shared  chan Message
	loader  *Loader
	cfg     Config
}

// New constructs a Pool of cfg.Workers workers, each with its own V8
// isolate, and starts their loops immediately. loader resolves any
// ModuleRef a caller's Message names; pass NewLoader() and Register
// modules before sending the first Message that needs them.
func New(cfg Config, loader *Loader) (*Pool, error) {
	cfg = cfg.WithDefaults()
	if loader == nil {
		loader = NewLoader()
	}

	shared := make(chan Message)
	p := &Pool{
		shared: shared,
		loader: loader,
		cfg:    cfg,
	}

	for i := 0; i < cfg.Workers; i++ {
		w, err := newWorker(i, cfg, loader, shared)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("isopool: starting pool: %w", err)
		}
		p.workers = append(p.workers, w)
	}
	for _, w := range p.workers {
		w.start()
	}
	return p, nil
}

// Workers returns the number of isolate workers in the pool.
func (p *Pool) Workers() int { return len(p.workers) }

// Worker returns the worker at index i, for callers that need session
// affinity (spec.md §4.1's "private channel" concept — e.g. pinning all
// calls for one guest session to a single isolate).
func (p *Pool) Worker(i int) *Worker {
	return p.workers[i]
}

// SendToAny enqueues msg on the shared channel; whichever worker is free
// first dequeues it. Blocks until some worker accepts it or ctx is
// canceled.
func (p *Pool) SendToAny(ctx context.Context, msg Message) error {
	select {
	case p.shared <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendPrivate enqueues msg on worker i's private channel, guaranteeing
// that worker (and no other) handles it. Blocks until accepted or ctx is
// canceled.
func (p *Pool) SendPrivate(ctx context.Context, i int, msg Message) error {
	if i < 0 || i >= len(p.workers) {
		return fmt.Errorf("isopool: worker index %d out of range [0,%d)", i, len(p.workers))
	}
	select {
	case p.workers[i].private <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InstallOnEach runs factory once against every worker's engine, on that
// worker's own goroutine, and waits for all of them to finish before
// returning. It is how host-function bindings (such as the database
// bridge's) get installed identically into every isolate without
// racing the worker loops that already started (spec.md §4.1).
func (p *Pool) InstallOnEach(factory func(eng *Engine) error) error {
	type result struct {
		i   int
		err error
	}
	results := make(chan result, len(p.workers))

	for _, w := range p.workers {
		w := w
		msg := Message{Run: func(mod *ModuleHandle, eng *Engine) Completer {
			err := factory(eng)
			results <- result{i: w.index, err: err}
			return nil
		}}
		w.Send(msg)
	}

	var firstErr error
	for range p.workers {
		r := <-results
		if r.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("isopool: installing into worker %d: %w", r.i, r.err)
		}
	}
	return firstErr
}

// Close stops every worker and disposes its isolate. After Close
// returns, the Pool must not be used again; a fresh Pool (and fresh
// isolates) must be created instead since the underlying platform is
// never reinitialized mid-process.
func (p *Pool) Close() {
	for _, w := range p.workers {
		if w != nil {
			w.Stop()
		}
	}
}
