// Package errs defines the sentinel error kinds raised by the storage core.
//
// Callers branch on kind with errors.Is against these sentinels; every
// wrapping call site uses github.com/pkg/errors so the original stack
// trace survives through the pager/catalog/heap boundary.
package errs

import "github.com/pkg/errors"

var (
	// ErrCorruptFile is raised when the header page's magic does not match.
	ErrCorruptFile = errors.New("sawitdb: corrupt file")
	// ErrInvalidPageID is raised when a page-id at or beyond total pages is read.
	ErrInvalidPageID = errors.New("sawitdb: invalid page id")
	// ErrTableExists is raised by CreateTable on a name already in the catalog.
	ErrTableExists = errors.New("sawitdb: table already exists")
	// ErrTableNotFound is raised by any lookup against an unknown table name.
	ErrTableNotFound = errors.New("sawitdb: table not found")
	// ErrRecordTooLarge is raised when an encoded record cannot fit any page.
	ErrRecordTooLarge = errors.New("sawitdb: record too large")
	// ErrCatalogFull is raised when the header page has no room for another entry.
	ErrCatalogFull = errors.New("sawitdb: catalog full")
	// ErrIO is raised when WritePage is handed a buffer of the wrong size.
	// Underlying file I/O failures are returned wrapped with context but
	// are not tagged with ErrIO.
	ErrIO = errors.New("sawitdb: io error")
)

// Wrap annotates err with msg while preserving errors.Is/As against the sentinel.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf annotates err with a formatted msg.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
