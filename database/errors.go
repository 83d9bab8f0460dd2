package database

import (
	"errors"

	"github.com/fulldump/ledgerdb/collection"
	"github.com/fulldump/ledgerdb/segment"
)

var (
	ErrAlreadyRegistered  = errors.New("index already registered")
	ErrIndexNotRegistered = errors.New("index not registered")
	ErrNotPersisted       = errors.New("index not persisted")
	ErrReadOnly           = errors.New("database is read only")
	ErrCorrupted          = errors.New("database is corrupted")
	ErrClosed             = errors.New("database is closed")
)

// IsFatal tells whether err leaves the database unusable. The process is
// expected to stop and the data directory to be restored or replayed.
func IsFatal(err error) bool {
	for _, fatal := range []error{
		collection.ErrCorruption,
		segment.ErrCorrupted,
		segment.ErrIncompatibleLayout,
		segment.ErrDirty,
		ErrAlreadyRegistered,
		ErrNotPersisted,
		ErrCorrupted,
	} {
		if errors.Is(err, fatal) {
			return true
		}
	}
	return false
}
