package isopool

import (
	"context"
	"testing"
	"time"
)

func TestSchedulerFiresDueJob(t *testing.T) {
	loader := NewLoader()
	loader.Register("test:cron", `
globalThis.__fired = 0;
export async function tick(at) { globalThis.__fired++; return globalThis.__fired; }
`)
	pool, err := New(Config{Workers: 1}, loader)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(pool.Close)

	sched, err := NewScheduler(pool, []ScheduledJob{{Schedule: "* * * * *", Module: "test:cron", Function: "tick"}})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	sched.fireDue(context.Background(), time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, resp := BuildAsyncCall[float64](ctx, "test:cron", "tick", nil)
	if err := pool.SendPrivate(ctx, 0, msg); err != nil {
		t.Fatal(err)
	}
	res := <-resp
	if res.Err != nil {
		t.Fatalf("tick call failed: %v", res.Err)
	}
	// The scheduler's dispatch ran tick once before this call did.
	if res.Value != 2 {
		t.Errorf("expected the scheduled tick to have fired once before this call, counter = %v, want 2", res.Value)
	}
}

func TestSchedulerSkipsJobsNotDue(t *testing.T) {
	pool, err := New(Config{Workers: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(pool.Close)

	sched, err := NewScheduler(pool, []ScheduledJob{{Schedule: "0 0 1 1 *", Module: "never:loaded", Function: "tick"}})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	// A schedule that never matches "now" in this test run should not
	// attempt to dispatch against a module the Loader can't resolve.
	sched.fireDue(context.Background(), time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
}
