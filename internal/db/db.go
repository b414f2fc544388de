// Package db provides the single embedded SQL connection that isopool's
// database bridge multiplexes across isolates, plus the process-wide
// write lock the transaction API serializes on.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Database is the host-side connection a Pool's database bridge is
// built on top of. It is deliberately narrower than *sql.DB: the bridge
// only ever needs row-returning queries, row-count execs, and
// transactions, so this interface is all the bridge depends on.
type Database interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Begin(ctx context.Context) (*sql.Tx, error)
	Close() error
}

// WriteLock serializes transaction_begin across every worker (spec.md
// §4.5): at most one isolate may hold an open transaction against the
// shared connection at a time, since database/sql transactions aren't
// isolate-affine and SQLite itself only allows one writer.
type WriteLock struct {
	mu sync.Mutex
}

// TryLockFor attempts to acquire the lock, retrying attempts times with
// backoff between tries, giving up once timeout has elapsed. It never
// blocks indefinitely: a caller that cannot get the lock within budget
// gets an error back instead of hanging the worker loop that called it.
func (l *WriteLock) TryLockFor(attempts int, backoff, timeout time.Duration) (func(), error) {
	deadline := time.Now().Add(timeout)
	for i := 0; i < attempts; i++ {
		if l.mu.TryLock() {
			return l.mu.Unlock, nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(backoff)
	}
	return nil, fmt.Errorf("db: could not acquire write lock within %s", timeout)
}
