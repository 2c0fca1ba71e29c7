package schema

import "context"

// Store is the narrow surface the anonymisation engine consumes from the
// storage layer: record CRUD with atomic save, and relation traversal by
// field value. Transaction and durability guarantees are the store's own.
type Store interface {
	// Get loads one record by primary key. Returns sentinel.ErrNotFound
	// (wrapped) if it does not exist.
	Get(ctx context.Context, entityType string, pk any) (*Record, error)

	// Save persists the record atomically, running any validation hook
	// first. A validation failure leaves the stored state untouched.
	Save(ctx context.Context, rec *Record) error

	// Delete removes the record after applying the delete policy of every
	// relation pointing at it, and runs the registered delete hooks.
	Delete(ctx context.Context, rec *Record) error

	// All returns every record of the type, in insertion order.
	All(ctx context.Context, entityType string) ([]*Record, error)

	// FindByField returns the records whose named field matches the value,
	// compared in text form (primary keys are heterogeneous).
	FindByField(ctx context.Context, entityType, field string, value any) ([]*Record, error)
}

// DeleteHook runs before or after a record delete. Pre-delete hooks are
// where the cascade resolver converts deletes into anonymisation of
// dependents.
type DeleteHook func(ctx context.Context, rec *Record) error

// ValidateFunc vets a record before it is persisted.
type ValidateFunc func(rec *Record) error
