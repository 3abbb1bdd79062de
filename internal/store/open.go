// ABOUTME: Opens a DocumentStore for a configured driver name
// ABOUTME: Drivers: file (default), sqlite, memory

package store

import (
	"fmt"
	"path/filepath"
)

// Driver names accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open returns a store for the named driver. dir is the data directory;
// sqlitePath defaults to dir/roster.db when empty.
func Open(driver, dir, sqlitePath string, opts ...Option) (*DocumentStore, error) {
	switch driver {
	case "", DriverFile:
		return NewFileStore(dir, opts...)
	case DriverSQLite:
		if sqlitePath == "" {
			sqlitePath = filepath.Join(dir, "roster.db")
		}
		return NewSQLiteStore(sqlitePath, opts...)
	case DriverMemory:
		return NewMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
