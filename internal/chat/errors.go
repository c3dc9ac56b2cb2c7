package chat

import "fmt"

// ValidationError rejects a malformed turn before any side effect. The
// message is safe to echo to the caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// StorageError wraps a memory or profile store failure on the read path.
// Detail is logged, never echoed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// ModelError wraps a model backend failure. Fatal for the turn; detail is
// logged, never echoed.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string { return fmt.Sprintf("model backend: %v", e.Err) }
func (e *ModelError) Unwrap() error { return e.Err }
