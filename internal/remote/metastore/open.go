package metastore

import (
	"fmt"
	"path/filepath"
)

// Backend names a CatalogStore implementation.
type Backend string

const (
	BackendBbolt  Backend = "bbolt"
	BackendSQLite Backend = "sqlite"
)

// Open opens the catalog store of the given backend inside dataDir.
func Open(backend Backend, dataDir string, mode EditMode) (CatalogStore, error) {
	var (
		store CatalogStore
		err   error
	)
	switch backend {
	case BackendBbolt, "":
		store, err = NewBboltStore(filepath.Join(dataDir, "catalogs.db"), mode)
	case BackendSQLite:
		store, err = NewSQLiteStore(filepath.Join(dataDir, "catalogs.sqlite"), mode)
	default:
		return nil, fmt.Errorf("unknown store backend %q (want %q or %q)", backend, BackendBbolt, BackendSQLite)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
