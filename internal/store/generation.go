package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo — same portability reason the teacher's internal/database package picked it
)

// generation is one of the two on-disk subdirectories (spec.md §4.1: "a
// well-known directory holds a reliability.mdb/ folder with subdirectories
// a/ and b/"). Every RS table maps to one SQLite table inside
// data.mdb, keyed by the table's short name; lock.mdb is an empty file kept
// open for the generation's lifetime; no flock is taken on it.
type generation struct {
	dir      string
	db       *sql.DB
	lockFile *os.File
}

func openGeneration(dir string) (*generation, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &IoError{Op: "mkdir generation", Err: err}
	}

	lockPath := filepath.Join(dir, "lock.mdb")
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, &IoError{Op: "open lock.mdb", Err: err}
	}

	dbPath := filepath.Join(dir, "data.mdb")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		lf.Close()
		return nil, &IoError{Op: "open data.mdb", Err: err}
	}
	db.SetMaxOpenConns(1) // single-threaded reactor; avoid SQLITE_BUSY from concurrent writers

	return &generation{dir: dir, db: db, lockFile: lf}, nil
}

func (g *generation) close() error {
	var firstErr error
	if err := g.db.Close(); err != nil {
		firstErr = err
	}
	if err := g.lockFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (g *generation) ensureTable(name string) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, v BLOB NOT NULL)`, quoteIdent(name))
	_, err := g.db.Exec(q)
	if err != nil {
		return &IoError{Op: "ensure table " + name, Err: err}
	}
	return nil
}

func (g *generation) put(table, key string, value []byte) error {
	if err := g.ensureTable(table); err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`, quoteIdent(table))
	if _, err := g.db.Exec(q, key, value); err != nil {
		return &IoError{Op: "put " + table, Err: err}
	}
	return nil
}

func (g *generation) delete(table, key string) error {
	if err := g.ensureTable(table); err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE k = ?`, quoteIdent(table))
	if _, err := g.db.Exec(q, key); err != nil {
		return &IoError{Op: "delete " + table, Err: err}
	}
	return nil
}

func (g *generation) clear(table string) error {
	if err := g.ensureTable(table); err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM %s`, quoteIdent(table))
	if _, err := g.db.Exec(q); err != nil {
		return &IoError{Op: "clear " + table, Err: err}
	}
	return nil
}

func (g *generation) readAll(table string) (map[string][]byte, error) {
	if err := g.ensureTable(table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT k, v FROM %s`, quoteIdent(table))
	rows, err := g.db.Query(q)
	if err != nil {
		return nil, &IoError{Op: "read all " + table, Err: err}
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, &IoError{Op: "scan " + table, Err: err}
		}
		out[k] = v
	}
	return out, rows.Err()
}

// quoteIdent double-quotes a SQL identifier. Table names in this package
// are always short internal constants (e.g. "QUEUE_LOAD"), never user
// input, but quoting costs nothing and keeps the query builder honest.
func quoteIdent(name string) string {
	return `"` + name + `"`
}
