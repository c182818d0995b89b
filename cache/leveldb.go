package cache

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBProvider stores entries in a leveldb database on disk.
type LevelDBProvider struct {
	db *leveldb.DB
}

func NewLevelDBProvider(path string) (*LevelDBProvider, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBProvider{db: db}, nil
}

func (l *LevelDBProvider) Close() error {
	return l.db.Close()
}

func (l *LevelDBProvider) Get(key string) ([]byte, bool, error) {
	value, err := l.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (l *LevelDBProvider) Put(key string, value []byte) error {
	return l.db.Put([]byte(key), value, nil)
}

func (l *LevelDBProvider) Delete(key string) error {
	return l.db.Delete([]byte(key), nil)
}

func (l *LevelDBProvider) DeletePrefix(prefix string) error {
	batch := new(leveldb.Batch)
	iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	return l.db.Write(batch, nil)
}

func (l *LevelDBProvider) Keys(prefix string, cb func(string)) error {
	iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	for iter.Next() {
		cb(string(iter.Key()))
	}
	iter.Release()
	return iter.Error()
}
