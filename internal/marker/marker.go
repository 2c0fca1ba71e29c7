package marker

import (
	"context"
	"time"
)

// Marker is durable proof that a record has been anonymised. It references
// its record softly by type name and primary key in text form, since the
// key's concrete kind is not statically known, and survives even if the
// record itself becomes stale.
type Marker struct {
	EntityType string
	PK         string
	CreatedAt  time.Time
}

// Store holds at most one marker per (entity type, pk). Markers are created
// on first successful anonymisation, never mutated and never deleted by the
// engine.
type Store interface {
	// Create records the marker, a no-op if one already exists. Duplicate
	// markers would break the existence check's at-most-one property.
	Create(ctx context.Context, entityType, pk string) error

	// CreateBatch records many markers in one write, the bulk execution
	// path for batch anonymisation.
	CreateBatch(ctx context.Context, markers []Marker) error

	// Exists answers is_anonymised(entityType, pk).
	Exists(ctx context.Context, entityType, pk string) (bool, error)
}
