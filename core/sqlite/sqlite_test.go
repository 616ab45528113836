package sqlite

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDriverInfo(t *testing.T) {
	info := GetInfo()

	if info.DriverName != DriverName() {
		t.Errorf("DriverName mismatch: info=%s, func=%s", info.DriverName, DriverName())
	}
	if info.DriverType != DriverType() {
		t.Errorf("DriverType mismatch: info=%s, func=%s", info.DriverType, DriverType())
	}
	if info.IsCGO != IsCGO() {
		t.Errorf("IsCGO mismatch: info=%v, func=%v", info.IsCGO, IsCGO())
	}
	if !strings.Contains(info.String(), info.DriverType) {
		t.Errorf("String() = %q, want it to name %s", info.String(), info.DriverType)
	}
}

func TestDriverTypeConsistency(t *testing.T) {
	switch DriverType() {
	case "purego":
		if IsCGO() {
			t.Error("IsCGO() should be false for purego driver")
		}
		if DriverName() != "sqlite" {
			t.Errorf("purego driver should use 'sqlite' name, got '%s'", DriverName())
		}
	case "cgo":
		if !IsCGO() {
			t.Error("IsCGO() should be true for cgo driver")
		}
		if DriverName() != "sqlite3" {
			t.Errorf("cgo driver should use 'sqlite3' name, got '%s'", DriverName())
		}
	default:
		t.Errorf("unknown driver type: %s", DriverType())
	}
}

func TestOpenAndReadOnly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE invocations (id INTEGER PRIMARY KEY, args TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO invocations (args) VALUES (?)`, `["status"]`); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	db.Close()

	rodb, err := OpenReadOnly(dbPath)
	if err != nil {
		t.Fatalf("failed to open read-only: %v", err)
	}
	defer rodb.Close()

	var args string
	if err := rodb.QueryRow(`SELECT args FROM invocations WHERE id = 1`).Scan(&args); err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if args != `["status"]` {
		t.Errorf("expected [\"status\"], got %q", args)
	}
	if _, err := rodb.Exec(`INSERT INTO invocations (args) VALUES ('x')`); err == nil {
		t.Error("expected write to a read-only database to fail")
	}
}

func TestMustOpen(t *testing.T) {
	db := MustOpen(filepath.Join(t.TempDir(), "test.db"))
	db.Close()
}
