package authserver

import (
	"errors"
	"fmt"
)

// ErrCallbackTimeout is returned when no callback arrives within the
// configured wait. Distinct from a provider-reported error: the operator
// simply never completed the approval.
var ErrCallbackTimeout = errors.New("no authorization callback received within the configured timeout")

// BindError indicates the HTTPS listener could not be started at all:
// missing or unreadable TLS material, port already in use, or insufficient
// privilege for the bind. It is a startup failure, not an authorization
// failure.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("starting callback listener on %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// CallbackError indicates the callback arrived but was unusable: the
// provider reported a denial, the state parameter did not match, or the
// request was malformed.
type CallbackError struct {
	Reason string
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("authorization callback failed: %s", e.Reason)
}

// ExchangeError indicates the authorization code could not be exchanged for
// tokens at the provider's token endpoint.
type ExchangeError struct {
	Err error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchanging authorization code: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
