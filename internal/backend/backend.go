// Package backend defines the database-agnostic dictionary storage
// interface used by handlers, and the errors its implementations surface.
package backend

import (
	"context"
	"errors"
)

// StopDBName is the sentinel dictionary name that halts wildcard iteration.
const StopDBName = "--exit--"

// Sentinel errors. BackendError wraps any underlying driver failure; the
// session maps it to "420 Server temporarily unavailable" and ends the
// session, mirroring the teacher's translation-at-the-boundary pattern
// (smtpd's error handling, generalized from net/db-specific exceptions to
// a single wrapped error type).
var (
	ErrInvalidDictionary = errors.New("backend: invalid dictionary")
	ErrVirtualDictionary = errors.New("backend: dictionary is virtual")
)

// BackendError wraps a failure from the underlying storage driver.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string { return "backend: " + e.Err.Error() }
func (e *BackendError) Unwrap() error { return e.Err }

// NewBackendError wraps err as a BackendError, or returns nil if err is nil.
func NewBackendError(err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Err: err}
}

// DictionaryInfo describes one entry returned by ListDictionaries.
type DictionaryInfo struct {
	Name      string
	Virtual   bool
	ShortDesc string
}

// Backend is the database-agnostic dictionary storage interface. All
// operations may fail with a *BackendError. Open may be lazy, deferred to
// the first query, provided errors surface on that first query.
type Backend interface {
	Open(ctx context.Context) error
	Close() error

	// ListDictionaries returns all dictionaries in db_order.
	ListDictionaries(ctx context.Context) ([]DictionaryInfo, error)

	// DictionaryInfo returns whether name is virtual and its info text, if
	// any. It fails with ErrInvalidDictionary when name is unknown or is
	// the sentinel "--exit--".
	DictionaryInfo(ctx context.Context, name string) (virtual bool, info string, err error)

	// Words returns the headwords of a real dictionary. It fails with
	// ErrVirtualDictionary if name is virtual.
	Words(ctx context.Context, name string) ([]string, error)

	// ExpandVirtual returns the member real dictionaries of a virtual
	// dictionary, in db_order. It fails with ErrVirtualDictionary if name
	// is not virtual.
	ExpandVirtual(ctx context.Context, name string) ([]string, error)

	// Definitions returns the definition texts for headword in dictionary
	// name.
	Definitions(ctx context.Context, name, headword string) ([]string, error)
}
