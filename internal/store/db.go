package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// busyTimeout is how long a write waits for another process holding the
// database, such as opsmsctl running beside the TUI.
const busyTimeout = 5 * time.Second

// DB is a profile's cache.db, holding query snapshots and the send journal.
type DB struct {
	*sql.DB
}

func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", strconv.FormatInt(busyTimeout.Milliseconds(), 10))
	q.Set("_foreign_keys", "on")
	return path + "?" + q.Encode()
}

// Open connects to the database at path, creating the file when missing.
// Call Migrate before use.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	return &DB{sqlDB}, nil
}
