package crosspostdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var (
	// ErrDuplicate is returned when a ledger record already exists for the
	// same (guid, network) key. It is never silently overwritten.
	ErrDuplicate = errors.New("record already exists")
	// ErrTokenNotFound is returned when no credentials are stored for a network.
	ErrTokenNotFound = errors.New("token not found")
)

// StorageError wraps a backend fault. Lookups that find nothing are not
// errors and never produce a StorageError.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Open opens (creating if needed) the SQLite database at dbPath.
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); strings.TrimSpace(dir) != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}
