package cache

import (
	"database/sql"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteProvider stores entries in a single sqlite table.
// Writes are serialized through a mutex because the driver does not
// support concurrent writers.
type SQLiteProvider struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteProvider opens (and if needed creates) the database in the given
// file. Use the filename `file::memory:?cache=shared` for an in-memory db.
func NewSQLiteProvider(filename string) (SQLiteProvider, error) {
	p := SQLiteProvider{writeMutex: &sync.Mutex{}}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return p, err
	}
	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS entries (key TEXT PRIMARY KEY, bytes BLOB)"); err != nil {
		return p, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return p, err
	}
	p.db = db
	return p, nil
}

func (s SQLiteProvider) Get(key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow("SELECT bytes FROM entries WHERE key = ?", key).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteProvider) Put(key string, value []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR REPLACE INTO entries (key, bytes) VALUES (?, ?)", key, value)
	return err
}

func (s SQLiteProvider) Delete(key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM entries WHERE key = ?", key)
	return err
}

func (s SQLiteProvider) DeletePrefix(prefix string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM entries WHERE key LIKE ?", prefix+"%")
	return err
}

func (s SQLiteProvider) Keys(prefix string, cb func(string)) error {
	rows, err := s.db.Query("SELECT key FROM entries WHERE key LIKE ? ORDER BY key", prefix+"%")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		cb(key)
	}
	return rows.Err()
}
