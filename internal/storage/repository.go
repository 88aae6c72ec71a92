package storage

import "context"

// Repository groups data access by domain.
type Repository interface {
	Users() UserRepository
	Events() EventRepository

	// WithTx runs fn inside one transaction. The repository passed to fn is bound
	// to it; any error from fn rolls everything back.
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
