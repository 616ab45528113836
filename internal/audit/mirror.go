package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sflip/radiopi/core/errors"
	"github.com/sflip/radiopi/core/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS invocations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	program TEXT NOT NULL,
	args TEXT NOT NULL,
	exit_code INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	output TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT ''
)`

const insertInvocation = `INSERT INTO invocations
	(ts, program, args, exit_code, duration_ms, output, error)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

const selectRecent = `SELECT ts, program, args, exit_code, duration_ms, output, error
	FROM invocations ORDER BY id DESC LIMIT ?`

// Mirror stores audit entries in a SQLite invocations table.
type Mirror struct {
	db     *sql.DB
	insert *sql.Stmt
}

// OpenMirror opens or creates the SQLite database at path.
func OpenMirror(path string) (*Mirror, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.NewIO("create schema in", path, err)
	}
	stmt, err := db.Prepare(insertInvocation)
	if err != nil {
		db.Close()
		return nil, errors.NewIO("prepare insert in", path, err)
	}
	return &Mirror{db: db, insert: stmt}, nil
}

// Insert stores one entry.
func (m *Mirror) Insert(e Entry) error {
	args, err := json.Marshal(e.Args)
	if err != nil {
		return errors.Wrap(err, "encode args")
	}
	output, err := json.Marshal(nonNil(e.Lines))
	if err != nil {
		return errors.Wrap(err, "encode output")
	}
	_, err = m.insert.Exec(
		e.Time.UTC().Format(time.RFC3339Nano),
		e.Program,
		string(args),
		e.ExitCode,
		e.Duration.Milliseconds(),
		string(output),
		e.Err,
	)
	if err != nil {
		return errors.NewIO("insert into", "invocations", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (m *Mirror) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return recent(ctx, m.db, limit)
}

// Close closes the database.
func (m *Mirror) Close() error {
	m.insert.Close()
	return m.db.Close()
}

// ReadHistory opens the mirror at path read-only and returns up to limit
// entries, newest first.
func ReadHistory(ctx context.Context, path string, limit int) ([]Entry, error) {
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer db.Close()
	return recent(ctx, db, limit)
}

func recent(ctx context.Context, db *sql.DB, limit int) ([]Entry, error) {
	rows, err := db.QueryContext(ctx, selectRecent, limit)
	if err != nil {
		return nil, errors.NewIO("query", "invocations", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                Entry
			ts, args, output string
			durationMS       int64
		)
		if err := rows.Scan(&ts, &e.Program, &args, &e.ExitCode, &durationMS, &output, &e.Err); err != nil {
			return nil, errors.NewIO("scan", "invocations", err)
		}
		if e.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, errors.Wrap(err, "decode timestamp")
		}
		if err := json.Unmarshal([]byte(args), &e.Args); err != nil {
			return nil, errors.Wrap(err, "decode args")
		}
		if err := json.Unmarshal([]byte(output), &e.Lines); err != nil {
			return nil, errors.Wrap(err, "decode output")
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
