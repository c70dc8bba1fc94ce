package tokenmanager

import (
	"errors"
	"fmt"
)

// ErrNotAuthorized is returned when no token record exists and interactive
// authorization is not available in the current execution mode.
var ErrNotAuthorized = errors.New("not authorized yet: run the 'auth' command first")

// ErrReauthorizationRequired is returned when the stored refresh token was
// rejected by the provider and interactive authorization is not available in
// the current execution mode.
var ErrReauthorizationRequired = errors.New("stored refresh token no longer works: re-run the 'auth' command")

// RefreshError indicates the refresh exchange failed for a reason other than
// a rejected refresh token, e.g. a network failure or provider outage. The
// stored record is left as-is; the caller may retry.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refreshing access token: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
