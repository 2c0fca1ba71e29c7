package eventlog

import "context"

// Store is the append-only event log. Two primary queries: per-target
// history (is this anonymised, when, by whom) and the global chronological
// scan used by replay after a restore.
type Store interface {
	Append(ctx context.Context, entry Entry) error

	// ForTarget returns all entries for (entityType, pk) ordered by time.
	ForTarget(ctx context.Context, entityType, pk string) ([]Entry, error)

	// All returns every entry in chronological order.
	All(ctx context.Context) ([]Entry, error)

	// AttachError sets the error message on the most recent entry for the
	// target. A missing entry is reported as an error - anonymisation is
	// never attempted before a log entry exists, so silence would hide a
	// broken invariant.
	AttachError(ctx context.Context, entityType, pk, message string) error
}
