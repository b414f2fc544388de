package isopool

import (
	"context"
	"database/sql"
	"testing"

	"github.com/cryguy/isopool/internal/db"
)

func openTestDB(t *testing.T) db.Database {
	t.Helper()
	d, err := db.Open("")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestTxSlotRejectsDoubleHold(t *testing.T) {
	d := openTestDB(t)
	tx1, err := d.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// The database has a single connection, which tx1 now owns, so a
	// second real Begin would wait forever; hold rejects before it ever
	// touches the second transaction, so a zero value stands in for it.
	tx2 := new(sql.Tx)

	var slot txSlot
	if err := slot.hold(tx1, func() {}); err != nil {
		t.Fatalf("first hold: %v", err)
	}
	if err := slot.hold(tx2, func() {}); err == nil {
		t.Fatal("expected error holding a second transaction on the same slot")
	}
	slot.abandon()
}

func TestTxSlotCurrentErrorsWhenEmpty(t *testing.T) {
	var slot txSlot
	if _, err := slot.current(); err == nil {
		t.Fatal("expected error from current() on an empty slot")
	}
}

func TestTxSlotFinishReleasesAndClears(t *testing.T) {
	d := openTestDB(t)
	tx, err := d.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var slot txSlot
	released := false
	if err := slot.hold(tx, func() { released = true }); err != nil {
		t.Fatal(err)
	}
	if slot.Empty() {
		t.Fatal("expected slot to report non-empty while holding a transaction")
	}
	if err := slot.finish(true); err != nil {
		t.Fatalf("finish(commit): %v", err)
	}
	if !released {
		t.Error("expected release function to run on finish")
	}
	if !slot.Empty() {
		t.Error("expected slot to be empty after finish")
	}
}

func TestTxSlotAbandonRollsBackOpenTransaction(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.Exec(context.Background(), "CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatal(err)
	}
	tx, err := d.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec("INSERT INTO t (v) VALUES (1)"); err != nil {
		t.Fatal(err)
	}

	var slot txSlot
	if err := slot.hold(tx, func() {}); err != nil {
		t.Fatal(err)
	}
	slot.abandon()

	rows, err := d.Query(context.Background(), "SELECT COUNT(*) FROM t")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var count int
	for rows.Next() {
		if err := rows.Scan(&count); err != nil {
			t.Fatal(err)
		}
	}
	if count != 0 {
		t.Errorf("expected abandoned transaction to roll back, found %d rows", count)
	}
}

func TestWriteLockTryLockForTimesOutWhenHeld(t *testing.T) {
	var lock db.WriteLock
	release, err := lock.TryLockFor(1, 0, 0)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	if _, err := lock.TryLockFor(2, 0, 0); err == nil {
		t.Fatal("expected timeout error while lock is already held")
	}
}
