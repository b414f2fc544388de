package isopool

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ScheduledJob is a guest function dispatched on a cron schedule, the
// isopool equivalent of the teacher's scheduled-worker trigger: a host
// timer, not guest code, decides when to fire, and the guest's exported
// function receives no caller-supplied arguments beyond the fire time.
type ScheduledJob struct {
	Schedule string // 5-field cron expression
	Module   ModuleRef
	Function string

	spec cronSpec
}

// Scheduler ticks once a minute (cron's finest granularity) and fans out
// every due job to Pool.SendToAny as an async call, never awaiting a
// job's promise itself — the same never-await-inline rule as any other
// call builder use (spec.md §4.3).
type Scheduler struct {
	pool *Pool
	jobs []ScheduledJob
	log  zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler validates every job's cron expression up front so a typo
// surfaces at construction time, not silently at the next tick.
func NewScheduler(pool *Pool, jobs []ScheduledJob) (*Scheduler, error) {
	parsed := make([]ScheduledJob, len(jobs))
	for i, j := range jobs {
		spec, err := parseCron(j.Schedule)
		if err != nil {
			return nil, err
		}
		j.spec = spec
		parsed[i] = j
	}
	return &Scheduler{pool: pool, jobs: parsed, log: currentLogger().With().Str("component", "scheduler").Logger()}, nil
}

// Start launches the tick loop on its own goroutine. Stop shuts it down.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.fireDue(ctx, now)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	for _, job := range s.jobs {
		if !job.spec.matches(now) {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		msg, resp := BuildAsyncCall[map[string]any](callCtx, job.Module, job.Function, []any{now.UTC().Format(time.RFC3339)})
		if err := s.pool.SendToAny(callCtx, msg); err != nil {
			s.log.Error().Err(err).Str("function", job.Function).Msg("dispatching scheduled job")
			cancel()
			continue
		}
		go func(cancel context.CancelFunc, fn string) {
			defer cancel()
			res := <-resp
			if res.Err != nil {
				s.log.Error().Err(res.Err).Str("function", fn).Msg("scheduled job failed")
			}
		}(cancel, job.Function)
	}
}

// Stop cancels the tick loop and waits for its goroutine to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}
