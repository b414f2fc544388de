package isopool

import "errors"

// Sentinel errors returned by Engine.LoadModule and the transaction slot,
// matchable there with errors.Is, per spec.md §7's disposition table.
// The ones raised inside a guest call reach guest code as the message of
// a thrown exception or rejected promise, so a Result's Err carries their
// text, not the error value itself.
var (
	// ErrModuleLoadTimeout means a module's top-level evaluation did not
	// finish within its configured timeout and was terminated.
	ErrModuleLoadTimeout = errors.New("isopool: module load timed out")

	// ErrNoTransaction means transaction_commit/rollback was called with
	// no transaction open on the calling isolate (transaction_query and
	// transaction_execute return null in that case instead).
	ErrNoTransaction = errors.New("isopool: no transaction open")

	// ErrTransactionAlreadyOpen means transaction_begin was called while
	// a transaction was already open on the calling isolate. Nested
	// transactions are rejected outright, not flattened or queued.
	ErrTransactionAlreadyOpen = errors.New("isopool: transaction already open")

	// ErrWriteLockTimeout means transaction_begin's retry loop exhausted
	// its attempts/timeout budget without acquiring the shared write
	// lock another isolate was holding.
	ErrWriteLockTimeout = errors.New("isopool: timed out acquiring write lock")
)
