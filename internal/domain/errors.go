package domain

import "errors"

// Sync failure kinds. None of them is retried inside a run.
var (
	// ErrAuth indicates the store rejected the credentials or the token handshake failed.
	ErrAuth = errors.New("authorization failed")

	// ErrFetch indicates a network, status or decode failure while paging the source.
	ErrFetch = errors.New("fetch failed")

	// ErrStoreRead indicates the store could not be read.
	ErrStoreRead = errors.New("store read failed")

	// ErrStoreWrite indicates the store could not be written. A backup taken
	// earlier in the run stays intact.
	ErrStoreWrite = errors.New("store write failed")

	// ErrBackupWrite indicates the snapshot could not be written; the store
	// is left untouched.
	ErrBackupWrite = errors.New("backup write failed")
)

// SyncError ties a failure kind to the operation that produced it.
type SyncError struct {
	Kind error
	Op   string
	Err  error
}

// NewSyncError wraps err as a failure of kind raised by op.
func NewSyncError(kind error, op string, err error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Err: err}
}

func (e *SyncError) Error() string {
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func (e *SyncError) Is(target error) bool {
	return target == e.Kind
}
