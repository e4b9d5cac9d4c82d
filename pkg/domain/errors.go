package domain

import "fmt"

// ErrNotFound reports a read, update, or delete against an id that is not
// present in the store. Always recoverable for the caller and never the
// result of a partial mutation.
type ErrNotFound struct {
	ID uint64
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("an item with id=%d not found", e.ID)
}

// ErrInvalidInput reports a payload precondition failure. It is raised before
// any state is touched, so the store is guaranteed unchanged.
type ErrInvalidInput struct {
	Field  string
	Reason string
}

func (e ErrInvalidInput) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrStorage wraps a failure in the durable layer: encode or decode errors,
// records over the size bound, counter writes, identifier exhaustion, or
// driver I/O. The operation that raised it did not complete; the service
// keeps counter and map mutually consistent across it.
type ErrStorage struct {
	Op  string
	Err error
}

func (e ErrStorage) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage failure in %s", e.Op)
	}
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying driver error for errors.Is / errors.As.
func (e ErrStorage) Unwrap() error { return e.Err }
