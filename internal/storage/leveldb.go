// leveldb.go - LevelDB backed KV.

package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDB persists pools in a LevelDB database directory.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates the database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open operation store: %w", err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key string) ([]byte, bool, error) {
	v, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if errors.Is(err, leveldb.ErrClosed) {
		return nil, false, ErrClosed
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

// Apply commits all writes in one synced batch.
func (l *LevelDB) Apply(writes map[string][]byte) error {
	batch := new(leveldb.Batch)
	for k, v := range writes {
		batch.Put([]byte(k), v)
	}
	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		if errors.Is(err, leveldb.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
