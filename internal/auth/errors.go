package auth

import (
	"errors"
	"fmt"
)

// Failure kinds shared by the auth flow. Callers map them onto response codes with
// errors.Is; the finer token reasons wrap ErrUnauthenticated so they collapse to a
// single outward 401.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrValidation      = errors.New("validation failed")
)

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)

	ErrTokenMissing   = fmt.Errorf("%w: missing token", ErrUnauthenticated)
	ErrTokenMalformed = fmt.Errorf("%w: malformed token", ErrUnauthenticated)
	ErrTokenSignature = fmt.Errorf("%w: token signature mismatch", ErrUnauthenticated)
	ErrTokenExpired   = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrTokenStale     = fmt.Errorf("%w: token no longer matches account", ErrUnauthenticated)
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return ErrValidation
}
