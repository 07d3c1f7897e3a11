package store

import "errors"

// Sentinel errors returned by Store implementations.
var (
	// ErrConversationNotFound is returned when a conversation has no rows.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrTurnZeroExists is returned when SeedTurnZero is called on a
	// conversation that already has a turn-zero.
	ErrTurnZeroExists = errors.New("turn-zero already exists")

	// ErrTurnZeroMissing is returned when an operation requires turn-zero
	// to exist and it does not.
	ErrTurnZeroMissing = errors.New("turn-zero does not exist")

	// ErrBusy indicates the storage backend is contended; callers should
	// retry with backoff (see internal/retry).
	ErrBusy = errors.New("storage busy")

	// ErrCorruption is fatal: a foreign-key or invariant violation was
	// detected. The caller's save_turns has been rolled back.
	ErrCorruption = errors.New("storage corruption")
)

// StorageError wraps a backend-specific failure with enough context to
// classify it without string matching.
type StorageError struct {
	Op    string
	Key   string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return "store: " + e.Op + " " + e.Key + ": " + e.Err.Error()
	}
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err with operation and key context.
func NewStorageError(op, key string, err error) *StorageError {
	return &StorageError{Op: op, Key: key, Err: err}
}
