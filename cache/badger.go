package cache

import (
	badger "github.com/dgraph-io/badger/v3"
)

// BadgerProvider stores entries in a badger database.
type BadgerProvider struct {
	db *badger.DB
}

// NewBadgerProvider opens a badger database in the given directory.
// An empty path opens an in-memory database.
func NewBadgerProvider(path string) (*BadgerProvider, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerProvider{db: db}, nil
}

func (b *BadgerProvider) Close() error {
	return b.db.Close()
}

func (b *BadgerProvider) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (b *BadgerProvider) Put(key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *BadgerProvider) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *BadgerProvider) DeletePrefix(prefix string) error {
	return b.db.DropPrefix([]byte(prefix))
}

func (b *BadgerProvider) Keys(prefix string, cb func(string)) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			cb(string(it.Item().Key()))
		}
		return nil
	})
}
