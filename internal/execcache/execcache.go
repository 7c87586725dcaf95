// Package execcache remembers how host files resolve for exec: the
// interpreter line of a #! script, keyed by path and validated against the
// file's modification time and size.
package execcache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	db *sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS exec (path TEXT PRIMARY KEY NOT NULL, timestamp INT, entry BLOB) STRICT"); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{
		db: db,
	}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

var ErrNoSuchKey = errors.New("no such key")

func (d *DB) Get(path string) ([]byte, error) {
	row := d.db.QueryRow("SELECT entry FROM exec WHERE path = ?", path)
	if err := row.Err(); err != nil {
		return nil, err
	}

	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSuchKey
		}
		return nil, err
	}

	return blob, nil
}

// Put stores blob under path, replacing any stale entry.
func (d *DB) Put(path string, timestamp time.Time, blob []byte) error {
	if _, err := d.db.Exec("INSERT OR REPLACE INTO exec (path, timestamp, entry) VALUES (?, ?, ?)", path, timestamp.Unix(), blob); err != nil {
		return err
	}
	return nil
}

func (d *DB) Touch(path string, timestamp time.Time) error {
	if _, err := d.db.Exec("UPDATE exec SET timestamp = ? WHERE path = ? AND timestamp < ?", timestamp.Unix(), path, timestamp.Unix()); err != nil {
		return err
	}
	return nil
}

func (d *DB) Clean(timestamp time.Time) error {
	if _, err := d.db.Exec("DELETE FROM exec WHERE timestamp < ?", timestamp.Unix()); err != nil {
		return err
	}
	return nil
}

// An Entry is the cached resolution of one host file.
type Entry struct {
	Mtime  int64    `json:"mtime"`
	Size   int64    `json:"size"`
	Interp []string `json:"interp"`
}

// Cache is a DB shared by concurrent exec calls.
type Cache struct {
	mu  sync.Mutex
	db  *DB
	now time.Time
}

func NewCache(db *DB) *Cache {
	return &Cache{
		db:  db,
		now: time.Now().Truncate(time.Hour),
	}
}

// Lookup returns the interpreter line cached for path if the cached entry
// still matches mtime and size.
func (c *Cache) Lookup(path string, mtime time.Time, size int64) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	blob, err := c.db.Get(path)
	if err != nil {
		if errors.Is(err, ErrNoSuchKey) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var e Entry
	if err := json.Unmarshal(blob, &e); err != nil {
		return nil, false, nil
	}
	if e.Mtime != mtime.UnixNano() || e.Size != size {
		return nil, false, nil
	}
	if err := c.db.Touch(path, c.now); err != nil {
		return nil, false, err
	}
	return e.Interp, true, nil
}

func (c *Cache) Store(path string, mtime time.Time, size int64, interp []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	blob, err := json.Marshal(Entry{Mtime: mtime.UnixNano(), Size: size, Interp: interp})
	if err != nil {
		return err
	}
	return c.db.Put(path, c.now, blob)
}

// Clean drops entries not used for a week.
func (c *Cache) Clean() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.db.Clean(c.now.Add(-7 * 24 * time.Hour))
}
