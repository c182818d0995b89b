package syncqueue

import (
	"database/sql"
	"strings"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore persists the pending queue in a sqlite table.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore opens (and if needed creates) the queue database in the
// given file. Use the filename `file::memory:?cache=shared` for an
// in-memory db.
func NewSQLiteStore(filename string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS pending_sync (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tag TEXT NOT NULL,
		body BLOB NOT NULL
	)`)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, writeMutex: &sync.Mutex{}}, nil
}

func (s *SQLiteStore) Append(tag string, body []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT INTO pending_sync (tag, body) VALUES (?, ?)", tag, body)
	return err
}

func (s *SQLiteStore) Pending(tag string) ([]PendingItem, error) {
	rows, err := s.db.Query("SELECT id, tag, body FROM pending_sync WHERE tag = ? ORDER BY id", tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]PendingItem, 0)
	for rows.Next() {
		var item PendingItem
		if err := rows.Scan(&item.ID, &item.Tag, &item.Body); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) Remove(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec("DELETE FROM pending_sync WHERE id IN ("+placeholders+")", args...)
	return err
}

// MemStore is a non-durable queue store for tests.
type MemStore struct {
	mutex  *sync.Mutex
	nextID int64
	items  []PendingItem
}

func NewMemStore() *MemStore {
	return &MemStore{mutex: &sync.Mutex{}, nextID: 1}
}

func (m *MemStore) Append(tag string, body []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.items = append(m.items, PendingItem{ID: m.nextID, Tag: tag, Body: body})
	m.nextID++
	return nil
}

func (m *MemStore) Pending(tag string) ([]PendingItem, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	items := make([]PendingItem, 0)
	for _, item := range m.items {
		if item.Tag == tag {
			items = append(items, item)
		}
	}
	return items, nil
}

func (m *MemStore) Remove(ids []int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	remove := make(map[int64]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	kept := m.items[:0]
	for _, item := range m.items {
		if !remove[item.ID] {
			kept = append(kept, item)
		}
	}
	m.items = kept
	return nil
}
