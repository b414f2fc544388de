package isopool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	v8 "github.com/tommie/v8go"

	"github.com/cryguy/isopool/internal/db"
)

// DatabaseBridge installs query/execute/transaction_*/isolate_id into
// every worker of a Pool, backed by a single shared database.Database
// connection. Transactions are serialized through a single WriteLock;
// plain query()/execute() calls do not take that lock. Transaction state
// itself lives per-isolate in each Engine's txHolder (spec.md §4.5).
type DatabaseBridge struct {
	database db.Database
	lock     db.WriteLock
	cfg      Config
}

// InstallDatabaseBridge opens cfg.DataDir's SQLite file (or an in-memory
// database if DataDir is empty) and wires the database host functions
// into every worker currently in pool. Call it once, before sending any
// Message that guest code expects to see query()/execute() on.
func InstallDatabaseBridge(pool *Pool, cfg Config) (*DatabaseBridge, error) {
	cfg = cfg.WithDefaults()
	path := ""
	if cfg.DataDir != "" {
		path = cfg.DataDir + "/runtime.sqlite3"
	}
	sqliteDB, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("isopool: opening database: %w", err)
	}

	bridge := &DatabaseBridge{database: sqliteDB, cfg: cfg}
	if err := pool.InstallOnEach(bridge.install); err != nil {
		sqliteDB.Close()
		return nil, err
	}
	return bridge, nil
}

// Close closes the shared database connection. Workers keep whatever
// host functions were installed, but calls against them will start
// failing once the underlying connection is gone.
func (b *DatabaseBridge) Close() error {
	return b.database.Close()
}

// install registers the bridge's host functions as globals on eng. It
// runs once per worker via Pool.InstallOnEach, on that worker's own
// goroutine, so touching eng here is safe.
func (b *DatabaseBridge) install(eng *Engine) error {
	eng.txHolder = &txSlot{}

	iso := eng.Isolate()
	global := eng.Context().Global()

	bind := func(name string, fn v8.FunctionCallback) error {
		tmpl := v8.NewFunctionTemplate(iso, fn)
		f, err := tmpl.GetFunction(eng.Context())
		if err != nil {
			return fmt.Errorf("isopool: binding %q: %w", name, err)
		}
		return global.Set(name, f)
	}

	if err := bind("isolate_id", b.isolateID(eng)); err != nil {
		return err
	}
	if err := bind("__db_query", b.query(eng)); err != nil {
		return err
	}
	if err := bind("__db_execute", b.execute(eng)); err != nil {
		return err
	}
	if err := bind("__db_transaction_begin", b.transactionBegin(eng)); err != nil {
		return err
	}
	if err := bind("__db_transaction_query", b.transactionQuery(eng)); err != nil {
		return err
	}
	if err := bind("__db_transaction_execute", b.transactionExecute(eng)); err != nil {
		return err
	}
	if err := bind("__db_transaction_commit", b.transactionCommit(eng)); err != nil {
		return err
	}
	if err := bind("__db_transaction_rollback", b.transactionRollback(eng)); err != nil {
		return err
	}
	return installTrailbaseGlobals(eng)
}

func (b *DatabaseBridge) isolateID(eng *Engine) v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		v, _ := v8.NewValue(eng.Isolate(), int32(eng.Index()))
		return v
	}
}

// callArgs decodes the two string arguments host functions take: the SQL
// text and, optionally, the JSON.stringify'd bind-parameter array that
// the guest-side wrappers in trailbase.js pass, keeping the v8go binding
// boundary to one type (string).
func callArgs(info *v8.FunctionCallbackInfo) (sql string, args json.RawMessage, err error) {
	vals := info.Args()
	if len(vals) < 1 {
		return "", nil, fmt.Errorf("isopool: missing sql argument")
	}
	sql = vals[0].String()
	if len(vals) >= 2 && !vals[1].IsUndefined() {
		args = json.RawMessage(vals[1].String())
	}
	return sql, args, nil
}

// throwOrResolve turns a Go result into the resolved/rejected v8
// Promise every async host function returns to its JS wrapper, so guest
// code always sees query()/execute()/transaction_begin() as promises
// even though the underlying Go call already finished synchronously by
// the time the isolate observes it.
func throwOrResolve(ctx *v8.Context, value *v8.Value, err error) *v8.Value {
	resolver, rerr := v8.NewPromiseResolver(ctx)
	if rerr != nil {
		return v8.Undefined(ctx.Isolate())
	}
	if err != nil {
		msg, _ := v8.NewValue(ctx.Isolate(), err.Error())
		resolver.Reject(msg)
	} else {
		if value == nil {
			value = v8.Undefined(ctx.Isolate())
		}
		resolver.Resolve(value)
	}
	return resolver.GetPromise().Value
}

// throwOrReturn is the synchronous counterpart of throwOrResolve: the
// transaction_* primitives other than transaction_begin complete on the
// same turn they're called, so they raise a genuine JS exception on
// failure instead of a rejected promise (spec.md §4.5).
func throwOrReturn(iso *v8.Isolate, value *v8.Value, err error) *v8.Value {
	if err != nil {
		msg, _ := v8.NewValue(iso, err.Error())
		iso.ThrowException(msg)
		return nil
	}
	if value == nil {
		return v8.Undefined(iso)
	}
	return value
}

func (b *DatabaseBridge) query(eng *Engine) v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		sqlText, args, err := callArgs(info)
		if err != nil {
			return throwOrResolve(eng.Context(), nil, err)
		}
		rows, err := b.runQuery(sqlText, args)
		return b.deliverRows(eng, rows, err)
	}
}

func (b *DatabaseBridge) execute(eng *Engine) v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		sqlText, args, err := callArgs(info)
		if err != nil {
			return throwOrResolve(eng.Context(), nil, err)
		}
		result, err := b.runExec(sqlText, args)
		return b.deliverExecResult(eng, result, err)
	}
}

func (b *DatabaseBridge) runQuery(sqlText string, rawArgs json.RawMessage) (json.RawMessage, error) {
	params, err := decodeArgsArray(rawArgs)
	if err != nil {
		return nil, err
	}
	rows, err := b.database.Query(context.Background(), sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("isopool: query: %w", err)
	}
	return rowsToJSONArray(rows)
}

func (b *DatabaseBridge) runExec(sqlText string, rawArgs json.RawMessage) (json.RawMessage, error) {
	params, err := decodeArgsArray(rawArgs)
	if err != nil {
		return nil, err
	}
	result, err := b.database.Exec(context.Background(), sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("isopool: execute: %w", err)
	}
	return execResultJSON(result)
}

// rowsToJSONArray scans every row of rows into a JSON array of positional
// value arrays (Value[][]), matching the row shape spec.md §4.5 and §6
// describe for query()'s resolved value.
func rowsToJSONArray(rows *sql.Rows) (json.RawMessage, error) {
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []json.RawMessage{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row, err := rowToJSON(columns, values)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

type execResult struct {
	Changes   int64 `json:"changes"`
	LastRowID int64 `json:"last_row_id"`
}

func execResultJSON(result sql.Result) (json.RawMessage, error) {
	changes, _ := result.RowsAffected()
	lastID, _ := result.LastInsertId()
	return json.Marshal(execResult{Changes: changes, LastRowID: lastID})
}

func (b *DatabaseBridge) deliverRows(eng *Engine, raw json.RawMessage, err error) *v8.Value {
	if err != nil {
		return throwOrResolve(eng.Context(), nil, err)
	}
	val, perr := eng.ParseJSON(string(raw))
	if perr != nil {
		return throwOrResolve(eng.Context(), nil, perr)
	}
	return throwOrResolve(eng.Context(), val, nil)
}

func (b *DatabaseBridge) deliverExecResult(eng *Engine, raw json.RawMessage, err error) *v8.Value {
	return b.deliverRows(eng, raw, err)
}

// deliverSync is deliverRows' synchronous counterpart: it parses raw into
// a v8.Value and returns it directly, or throws rather than rejecting a
// promise, for the four transaction_* primitives that complete on the
// same turn they're called (spec.md §4.5).
func (b *DatabaseBridge) deliverSync(eng *Engine, raw json.RawMessage, err error) *v8.Value {
	if err != nil {
		return throwOrReturn(eng.Isolate(), nil, err)
	}
	val, perr := eng.ParseJSON(string(raw))
	if perr != nil {
		return throwOrReturn(eng.Isolate(), nil, perr)
	}
	return throwOrReturn(eng.Isolate(), val, nil)
}

// transactionBegin retries acquiring the shared write lock up to
// cfg.LockAcquireAttempts times, backing off cfg.LockAcquireBackoff
// between tries, within an overall cfg.LockAcquireTimeout budget
// (spec.md §4.5 — 200 attempts with 400µs between them, an 80ms ceiling
// with Config's defaults). It's exposed to guest code as a Promise, but
// the retry loop itself runs synchronously inside this host function and
// blocks the worker while it retries — the loop's total budget is
// bounded, so this is the one host function allowed to take bounded
// wall-clock time inline.
func (b *DatabaseBridge) transactionBegin(eng *Engine) v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		if !eng.txHolder.Empty() {
			return throwOrResolve(eng.Context(), nil, ErrTransactionAlreadyOpen)
		}
		release, err := b.lock.TryLockFor(b.cfg.LockAcquireAttempts, b.cfg.LockAcquireBackoff, b.cfg.LockAcquireTimeout)
		if err != nil {
			return throwOrResolve(eng.Context(), nil, fmt.Errorf("%w", ErrWriteLockTimeout))
		}
		tx, err := b.database.Begin(context.Background())
		if err != nil {
			release()
			return throwOrResolve(eng.Context(), nil, fmt.Errorf("isopool: beginning transaction: %w", err))
		}
		if err := eng.txHolder.hold(tx, release); err != nil {
			_ = tx.Rollback()
			release()
			return throwOrResolve(eng.Context(), nil, err)
		}
		return throwOrResolve(eng.Context(), v8.Null(eng.Isolate()), nil)
	}
}

// transactionQuery, transactionExecute, transactionCommit, and
// transactionRollback are synchronous (spec.md §4.5: once a transaction
// is open, every operation against it completes on the same turn,
// unlike the top-level query()/execute() which are async). They are
// still bound as ordinary JS functions returning plain values, not
// promises — trailbase.js's transaction(callback) helper calls them
// directly without await.
func (b *DatabaseBridge) transactionQuery(eng *Engine) v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		if eng.txHolder.Empty() {
			return v8.Null(eng.Isolate())
		}
		tx, err := eng.txHolder.current()
		if err != nil {
			return throwOrReturn(eng.Isolate(), nil, err)
		}
		sqlText, rawArgs, err := callArgs(info)
		if err != nil {
			return throwOrReturn(eng.Isolate(), nil, err)
		}
		params, err := decodeArgsArray(rawArgs)
		if err != nil {
			return throwOrReturn(eng.Isolate(), nil, err)
		}
		rows, err := tx.QueryContext(context.Background(), sqlText, params...)
		if err != nil {
			return throwOrReturn(eng.Isolate(), nil, fmt.Errorf("isopool: transaction_query: %w", err))
		}
		raw, err := rowsToJSONArray(rows)
		return b.deliverSync(eng, raw, err)
	}
}

func (b *DatabaseBridge) transactionExecute(eng *Engine) v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		if eng.txHolder.Empty() {
			return v8.Null(eng.Isolate())
		}
		tx, err := eng.txHolder.current()
		if err != nil {
			return throwOrReturn(eng.Isolate(), nil, err)
		}
		sqlText, rawArgs, err := callArgs(info)
		if err != nil {
			return throwOrReturn(eng.Isolate(), nil, err)
		}
		params, err := decodeArgsArray(rawArgs)
		if err != nil {
			return throwOrReturn(eng.Isolate(), nil, err)
		}
		result, err := tx.ExecContext(context.Background(), sqlText, params...)
		if err != nil {
			return throwOrReturn(eng.Isolate(), nil, fmt.Errorf("isopool: transaction_execute: %w", err))
		}
		raw, err := execResultJSON(result)
		return b.deliverSync(eng, raw, err)
	}
}

func (b *DatabaseBridge) transactionCommit(eng *Engine) v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		err := eng.txHolder.finish(true)
		return throwOrReturn(eng.Isolate(), v8.Null(eng.Isolate()), err)
	}
}

func (b *DatabaseBridge) transactionRollback(eng *Engine) v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		err := eng.txHolder.finish(false)
		return throwOrReturn(eng.Isolate(), v8.Null(eng.Isolate()), err)
	}
}
