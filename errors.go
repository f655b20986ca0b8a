package eventhub

import (
	"errors"
	"fmt"
)

// ErrScopeClosed is returned by every operation attempted after the scope has been closed.
var ErrScopeClosed = errors.New("eventhub: scope has been closed")

type (
	// ArgumentError indicates a required constructor or opener input was missing or invalid.
	ArgumentError struct {
		Argument string
		Reason   string
	}

	// LinkCreationError indicates a link could not be attached or tracked.
	LinkCreationError struct {
		Address string
		Inner   error
	}

	// AuthorizationError indicates a CBS token could not be obtained or was rejected by the service.
	AuthorizationError struct {
		Audience string
		Inner    error
	}
)

func (e ArgumentError) Error() string {
	return fmt.Sprintf("eventhub: invalid argument %q: %s", e.Argument, e.Reason)
}

func (e LinkCreationError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("eventhub: could not create link for %q", e.Address)
	}
	return fmt.Sprintf("eventhub: could not create link for %q: %v", e.Address, e.Inner)
}

func (e LinkCreationError) Unwrap() error {
	return e.Inner
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("eventhub: authorization failed for %q: %v", e.Audience, e.Inner)
}

func (e AuthorizationError) Unwrap() error {
	return e.Inner
}
