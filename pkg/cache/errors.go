package cache

import "fmt"

// CorruptError reports a persisted cache whose top-level structure could not
// be read. It is recoverable: the caller proceeds with an empty store.
type CorruptError struct {
	Source string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("cache at %s is unreadable: %v", e.Source, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// EntryError reports a single malformed record encountered during load. The
// record is skipped; the load continues.
type EntryError struct {
	UniqueID string
	Reason   string
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("cache entry %q: %s", e.UniqueID, e.Reason)
}

// PersistError reports a failure to write or rotate the persisted cache. The
// in-memory state is left intact so the caller can decide whether to retry.
type PersistError struct {
	Source string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("saving cache to %s: %v", e.Source, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
