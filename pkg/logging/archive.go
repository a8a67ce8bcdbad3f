package logging

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS log_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_unix_ms INTEGER NOT NULL,
	level TEXT NOT NULL,
	tag TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	stack TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_log_records_ts ON log_records(ts_unix_ms);
`

// Archive is a local SQLite log archive with a row-count cap. It is a
// convenience sink, not an aggregation layer: one process, one file, and a
// tail query only.
type Archive struct {
	mu      sync.Mutex
	db      *sql.DB
	maxRows int
	diag    func(Level, string)
}

// OpenArchive opens (creating if needed) the archive database at path and
// applies the schema. maxRows <= 0 means unbounded.
func OpenArchive(path string, maxRows int, diag func(Level, string)) (*Archive, error) {
	if diag == nil {
		diag = func(Level, string) {}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(archiveSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Archive{db: db, maxRows: maxRows, diag: diag}, nil
}

// Append inserts one record and prunes the oldest rows beyond the cap.
// Failures are reported through diag and never propagated to the log call
// site.
func (a *Archive) Append(rec Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return
	}
	var errText string
	if rec.Err != nil {
		errText = rec.Err.Error()
	}
	_, err := a.db.Exec(
		`INSERT INTO log_records (ts_unix_ms, level, tag, message, error, stack, location) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Time.UnixMilli(), rec.Level.String(), rec.Tag, rec.Message, errText, rec.Stack, rec.Location,
	)
	if err != nil {
		a.diag(LevelWarning, fmt.Sprintf("archive insert: %v", err))
		return
	}
	if a.maxRows > 0 {
		_, err = a.db.Exec(
			`DELETE FROM log_records WHERE id NOT IN (SELECT id FROM log_records ORDER BY id DESC LIMIT ?)`,
			a.maxRows,
		)
		if err != nil {
			a.diag(LevelWarning, fmt.Sprintf("archive prune: %v", err))
		}
	}
}

// Tail returns the newest n archived records, newest first.
func (a *Archive) Tail(n int) ([]Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil, errors.New("archive closed")
	}
	rows, err := a.db.Query(
		`SELECT ts_unix_ms, level, tag, message, error, stack, location FROM log_records ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("archive tail: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			ms                                  int64
			level, tag, msg, errText, stack, loc string
		)
		if err := rows.Scan(&ms, &level, &tag, &msg, &errText, &stack, &loc); err != nil {
			return nil, fmt.Errorf("archive scan: %w", err)
		}
		rec := Record{
			Time:     time.UnixMilli(ms),
			Message:  msg,
			Tag:      tag,
			Stack:    stack,
			Location: loc,
		}
		if lvl, ok := ParseLevel(level); ok {
			rec.Level = lvl
		}
		if errText != "" {
			rec.Err = errors.New(errText)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Len returns the number of archived records.
func (a *Archive) Len() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return 0, errors.New("archive closed")
	}
	var n int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM log_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("archive count: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func defaultArchivePath() string {
	return filepath.Join(DefaultLogDir(), "archive.db")
}
