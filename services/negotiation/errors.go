package negotiation

import (
	"errors"
	"fmt"
)

var (
	// ErrNothingToConfirm is returned when a respondent confirms but no slot is held.
	ErrNothingToConfirm = errors.New("no held slot to confirm")
	// ErrRequestClosed is returned for replies or actions on a terminal request.
	ErrRequestClosed = errors.New("request is closed")
)

// UnknownRequestError reports a correlation token the registry does not know.
type UnknownRequestError struct {
	ID string
}

func (e *UnknownRequestError) Error() string {
	return fmt.Sprintf("unknown request %q", e.ID)
}

// UnavailableError reports that the requester has no free slot to offer, or
// that their calendar could not be read.
type UnavailableError struct {
	Identity string
	Err      error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("availability for %s could not be read: %v", e.Identity, e.Err)
	}
	return fmt.Sprintf("%s has no available slots", e.Identity)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// ValidationError reports a bad initiation parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
