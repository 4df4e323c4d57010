package models

import (
	"errors"
	"fmt"
)

// ErrTransport indicates a save or listing request could not complete.
var ErrTransport = errors.New("backend unreachable")

// ErrUnknownUnit is returned when a ref is not part of the current listings.
var ErrUnknownUnit = errors.New("unknown production unit")

// ErrSaveInFlight is returned when waiting for an earlier save of the same
// field is abandoned.
var ErrSaveInFlight = errors.New("previous save still in flight")

// ValidationError reports input that could not be normalized.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PreconditionError reports a field mutation attempted out of sequence.
type PreconditionError struct {
	Field  Field
	Stage  Stage
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot set %s while %s: %s", e.Field, e.Stage, e.Reason)
}

// ServerRejectionError carries the backend's reason for refusing a save.
type ServerRejectionError struct {
	Message string
}

func (e *ServerRejectionError) Error() string {
	if e.Message == "" {
		return "backend rejected the update"
	}
	return "backend rejected the update: " + e.Message
}

// ListingError reports a failed fetch of one collection.
type ListingError struct {
	Kind UnitKind
	Err  error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("fetch %s units: %v", e.Kind, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }
