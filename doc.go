// Package isopool implements a fixed-size pool of single-threaded
// JavaScript isolates that a host application dispatches asynchronous work
// into, and a transactional bridge from guest code into an embedded SQL
// database.
//
// A Pool owns N Workers, each pinned to its own OS thread and owning
// exactly one V8 isolate. Callers build a Message with BuildSyncCall or
// BuildAsyncCall and hand it to Pool.SendToAny or Pool.SendPrivate; the
// owning worker dequeues it, loads the named module if any, and invokes
// the call against its isolate. Synchronous calls resolve immediately;
// asynchronous calls park a Completer that the worker's event loop drains
// as the underlying JS promise settles.
//
// InstallDatabaseBridge registers query/execute/transaction_* host
// functions into every worker, backed by a single embedded SQL connection
// shared (but never concurrently used) across workers.
package isopool
