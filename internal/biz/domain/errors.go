package domain

import (
	"errors"
	"fmt"
)

// ErrMediaUnavailable is returned when media cannot be referenced without a download
var ErrMediaUnavailable = errors.New("media reference unavailable")

// StoreError is a mapping store operation that failed after retries
type StoreError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DestinationErrorKind classifies a platform rejection
type DestinationErrorKind string

const (
	DestPermission DestinationErrorKind = "permission"
	DestBanned     DestinationErrorKind = "banned"
	DestPrivate    DestinationErrorKind = "private"
	DestNotFound   DestinationErrorKind = "not_found"
	DestGeneric    DestinationErrorKind = "generic"
)

// DestinationError is a send/edit/delete rejected for one destination chat
type DestinationError struct {
	Chat string
	Op   string
	Kind DestinationErrorKind
	Code int
	Err  error
}

func (e *DestinationError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s to %s: %s (code %d): %v", e.Op, e.Chat, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s to %s: %s: %v", e.Op, e.Chat, e.Kind, e.Err)
}

func (e *DestinationError) Unwrap() error {
	return e.Err
}

// DestinationErrorKindOf returns the kind of a DestinationError in err's chain, generic otherwise
func DestinationErrorKindOf(err error) DestinationErrorKind {
	var de *DestinationError
	if errors.As(err, &de) {
		return de.Kind
	}
	return DestGeneric
}

// IsPermissionError reports whether err is a permission rejection eligible for join recovery
func IsPermissionError(err error) bool {
	return err != nil && DestinationErrorKindOf(err) == DestPermission
}
