package users

import (
	"errors"
	"fmt"

	"github.com/Togather-Foundation/agenda/internal/storage"
)

// RegistrationError reports a self-service registration that lost to an
// existing account. Field names the identifier that collided.
type RegistrationError struct {
	Field string
	Err   error
}

func (e *RegistrationError) Error() string {
	if e.Field == "" {
		return "registration failed: account already exists"
	}
	return fmt.Sprintf("registration failed: %s already registered", e.Field)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

func registrationError(err error) error {
	var conflict *storage.ConflictError
	if errors.As(err, &conflict) {
		return &RegistrationError{Field: conflict.Field, Err: err}
	}
	return err
}
