package isopool

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Worker owns exactly one Engine and runs its entire lifetime on a single
// goroutine pinned to its own OS thread (v8go isolates are not safe to
// touch from more than one thread; spec.md §4.1). All interaction with a
// Worker happens through its private and shared message channels — never
// by calling Engine methods from outside the worker goroutine.
type Worker struct {
	index   int
	eng     *Engine
	private chan Message
	shared  <-chan Message
	slice   time.Duration
	loadTO  time.Duration

	completers completerRegistry
	log        zerolog.Logger

	stop chan struct{}
	done chan struct{}
}

func newWorker(index int, cfg Config, loader *Loader, shared <-chan Message) (*Worker, error) {
	eng, err := newEngine(index, cfg, loader)
	if err != nil {
		return nil, fmt.Errorf("isopool: creating isolate for worker %d: %w", index, err)
	}
	return &Worker{
		index:   index,
		eng:     eng,
		private: make(chan Message, 16),
		shared:  shared,
		slice:   cfg.EventLoopSlice,
		loadTO:  cfg.ModuleLoadTimeout,
		log:     currentLogger().With().Int("worker", index).Logger(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// run is the worker's cooperative loop: a fixed three-way select between
// draining settled completers, pumping the engine's event loop while work
// is pending, and receiving the next message from either channel. It
// runs on the goroutine that called start, which is locked to its OS
// thread by Pool so the isolate never migrates (spec.md §4.1, §4.2).
func (w *Worker) run() {
	defer close(w.done)
	defer w.abandonOpenTransaction(w.log)
	defer w.eng.Dispose()

	for {
		w.completers.drainReady(w.eng)

		if w.completers.len() == 0 {
			// Nothing pending: block until a message or stop arrives.
			select {
			case <-w.stop:
				return
			case msg := <-w.private:
				w.handle(msg)
			case msg := <-w.shared:
				w.handle(msg)
			}
			continue
		}

		// Completers are outstanding: pump the isolate's event loop for
		// one slice so timers/microtasks that settle them can run, but
		// stay responsive to new messages rather than starving callers
		// behind a long-running promise chain (spec.md §4.2).
		w.eng.PumpEventLoop(w.slice)
		select {
		case <-w.stop:
			return
		case msg := <-w.private:
			w.handle(msg)
		case msg := <-w.shared:
			w.handle(msg)
		case <-time.After(w.slice):
		}
	}
}

func (w *Worker) handle(msg Message) {
	log := w.log.With().Str("trace_id", uuid.NewString()).Logger()

	var mod *ModuleHandle
	if msg.Module != "" {
		m, err := w.eng.LoadModule(msg.Module, w.loadTO)
		if err != nil {
			if errors.Is(err, ErrModuleLoadTimeout) {
				log.Error().Err(err).Str("module", string(msg.Module)).Msg("module load timed out")
			} else {
				log.Error().Err(err).Str("module", string(msg.Module)).Msg("module load failed")
			}
			// The continuation is then invoked with a nil handle so it
			// can also report the failure to its caller on its response
			// channel.
			msg.Run(nil, w.eng)
			return
		}
		mod = m
	}

	c := msg.Run(mod, w.eng)
	if c == nil {
		// The invocation already settled synchronously: if it called
		// transaction_begin and never reached commit/rollback before
		// returning, the slot would otherwise hold the process-wide
		// write lock forever (spec.md §4.5 invariant 4).
		w.abandonOpenTransaction(log)
		return
	}
	w.completers.push(&transactionCleanupCompleter{inner: c, w: w, log: log})
}

// abandonOpenTransaction rolls back and releases any transaction left
// held in this worker's isolate, a safety net for guest code that calls
// the guest-visible transaction_begin() primitive directly (spec.md §6)
// and then returns or throws without reaching commit/rollback — the
// cooperative try/catch in trailbase.js's transaction() helper only
// covers callers that go through it. This is operational instrumentation
// about a side effect of a message that already delivered its own
// response, not a substitute response itself, so it doesn't collide with
// invariant 1's "exactly one of" rule.
func (w *Worker) abandonOpenTransaction(log zerolog.Logger) {
	if w.eng.txHolder == nil || w.eng.txHolder.Empty() {
		return
	}
	log.Warn().Msg("abandoning transaction left open at end of invocation")
	w.eng.txHolder.abandon()
}

// transactionCleanupCompleter wraps a message's Completer so the same
// end-of-invocation cleanup runs once an async top-level call settles,
// not just for calls that finish synchronously.
type transactionCleanupCompleter struct {
	inner Completer
	w     *Worker
	log   zerolog.Logger
}

func (c *transactionCleanupCompleter) Ready(eng *Engine) bool { return c.inner.Ready(eng) }

func (c *transactionCleanupCompleter) Resolve(eng *Engine) {
	c.inner.Resolve(eng)
	c.w.abandonOpenTransaction(c.log)
}

// start launches the worker loop on a new, OS-thread-locked goroutine. A
// v8 isolate's internal state is bound to the OS thread that created it;
// letting Go's scheduler migrate the goroutine mid-call would corrupt it
// (spec.md §4.1).
func (w *Worker) start() {
	go func() {
		runtime.LockOSThread()
		w.run()
	}()
}

// Stop signals the worker loop to exit after its current message and
// waits for it to finish disposing its isolate.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// Send enqueues msg on this worker's private channel. Blocks if the
// channel is full; callers that need non-blocking or context-bound
// submission should use a buffered call builder timeout instead.
func (w *Worker) Send(msg Message) {
	w.private <- msg
}

// Index returns the worker's position in its Pool, matching
// Engine.Index() / the guest-visible isolate_id() (spec.md §6).
func (w *Worker) Index() int { return w.index }
