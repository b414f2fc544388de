package isopool

import (
	"database/sql"
)

// txSlot is a worker-local single-transaction holder: each isolate may
// have at most one open transaction at a time (spec.md §4.5). It moves
// between two states — empty, or holding one *sql.Tx plus the release
// function that returns the process-wide write lock — and every
// transition happens on the owning worker's goroutine, so it needs no
// locking of its own.
type txSlot struct {
	tx      *sql.Tx
	release func()
}

// Empty reports whether no transaction is currently held.
func (s *txSlot) Empty() bool { return s.tx == nil }

// hold installs tx as the worker's open transaction, to be released by
// calling release. It is an error to call hold while a transaction is
// already held: spec.md explicitly rejects nested transactions rather
// than silently reusing or queuing them.
func (s *txSlot) hold(tx *sql.Tx, release func()) error {
	if s.tx != nil {
		return ErrTransactionAlreadyOpen
	}
	s.tx = tx
	s.release = release
	return nil
}

// current returns the held transaction, or an error if none is open.
func (s *txSlot) current() (*sql.Tx, error) {
	if s.tx == nil {
		return nil, ErrNoTransaction
	}
	return s.tx, nil
}

// finish commits or rolls back the held transaction and clears the slot,
// releasing the write lock last so no other worker can acquire it while
// this one is still tearing down its statement handles (spec.md §4.5's
// fixed release order: statement, then transaction, then lock).
func (s *txSlot) finish(commit bool) error {
	if s.tx == nil {
		return ErrNoTransaction
	}
	tx, release := s.tx, s.release
	s.tx, s.release = nil, nil

	var err error
	if commit {
		err = tx.Commit()
	} else {
		err = tx.Rollback()
	}
	if release != nil {
		release()
	}
	return err
}

// abandon rolls back and releases a still-open transaction without the
// caller explicitly asking, used when a worker loop reaches a top-level
// call boundary (spec.md §4.5's "implicit rollback on abandonment") or
// shuts down with one left open.
func (s *txSlot) abandon() {
	if s.tx == nil {
		return
	}
	_ = s.finish(false)
}
