package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when the owner has no item with the given id.
	ErrNotFound = errors.New("link not found")

	// ErrInvalidLink is returned when url/title fail validation.
	ErrInvalidLink = errors.New("invalid link")

	// ErrStaleResponse matches every StaleResponseError.
	ErrStaleResponse = errors.New("stale response")
)

// WriteError reports that the durable store rejected a create or delete.
// It is surfaced to the user; nothing retries it automatically.
type WriteError struct {
	Op  string // "create" | "delete"
	ID  string // item id, empty for create
	Err error
}

func (e *WriteError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SubscriptionError reports that a change-feed channel failed to
// establish or dropped. It is recovered internally through a resync.
type SubscriptionError struct {
	Owner string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription for %s: %v", e.Owner, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// StaleResponseError reports a write completion that arrived after the
// active identity changed. The result is discarded, never applied.
type StaleResponseError struct {
	Op       string
	Identity string
}

func (e *StaleResponseError) Error() string {
	return fmt.Sprintf("%s completed for %s after identity changed", e.Op, e.Identity)
}

func (e *StaleResponseError) Is(target error) bool {
	return target == ErrStaleResponse
}
