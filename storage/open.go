package storage

import "fmt"

// Supported values for the db_backend setting.
const (
	BackendLevelDB = "leveldb"
	BackendPebble  = "pebble"
)

// Open opens the named backend at path. A positive cacheSize wraps the
// backend in a CachedDB.
func Open(backend, path string, cacheSize int) (DB, error) {
	var (
		db  DB
		err error
	)
	switch backend {
	case "", BackendLevelDB:
		db, err = NewLevelDB(path)
	case BackendPebble:
		db, err = NewPebbleDB(path)
	default:
		return nil, fmt.Errorf("unknown db backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	if cacheSize <= 0 {
		return db, nil
	}
	cached, err := NewCachedDB(db, cacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return cached, nil
}
