package privacy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"veil/internal/eventlog"
	"veil/internal/schema"
	"veil/pkg/platform/sentinel"
)

// Replayer re-applies the event log to current records, the recovery
// mechanism after a data restore reverts anonymisation state. It is
// idempotent and safe to re-run.
type Replayer struct {
	log    eventlog.Store
	store  schema.Store
	types  map[string]*schema.EntityType
	engine *Engine
	logger *slog.Logger
}

func NewReplayer(log eventlog.Store, store schema.Store, engine *Engine, types []*schema.EntityType, opts ...ReplayerOption) (*Replayer, error) {
	if log == nil {
		return nil, fmt.Errorf("event log store is required")
	}
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	byName := make(map[string]*schema.EntityType, len(types))
	for _, t := range types {
		byName[t.Name] = t
	}
	r := &Replayer{log: log, store: store, types: byName, engine: engine, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type ReplayerOption func(*Replayer)

func WithReplayerLogger(logger *slog.Logger) ReplayerOption {
	return func(r *Replayer) { r.logger = logger }
}

// Rerun scans the log chronologically. Logged deletes re-delete the target
// if it still exists; logged anonymisations force re-anonymise it, since a
// restored record may be in its pre-anonymisation shape and fields added by
// schema evolution since then must be covered too. Recursion markers and
// already-anonymised entries are trail decoration, not outcomes, and are
// skipped.
func (r *Replayer) Rerun(ctx context.Context) error {
	entries, err := r.log.All(ctx)
	if err != nil {
		return fmt.Errorf("load event log: %w", err)
	}
	for _, entry := range entries {
		target, err := r.target(ctx, entry)
		if err != nil {
			return err
		}
		if target == nil {
			continue
		}

		switch entry.Event {
		case eventlog.EventDelete:
			if err := r.store.Delete(ctx, target); err != nil {
				return fmt.Errorf("replay delete of %s pk=%s: %w", entry.EntityType, entry.TargetPK, err)
			}
		case eventlog.EventAnonymise:
			if err := r.engine.Anonymise(ctx, target, Options{Force: true, Actor: entry.ActingUser}); err != nil {
				return fmt.Errorf("replay anonymise of %s pk=%s: %w", entry.EntityType, entry.TargetPK, err)
			}
		}
	}
	return nil
}

func (r *Replayer) target(ctx context.Context, entry eventlog.Entry) (*schema.Record, error) {
	t, ok := r.types[entry.EntityType]
	if !ok {
		// Type no longer exists; nothing to re-apply.
		r.logger.Debug("skipping log entry for unknown type", "entity_type", entry.EntityType)
		return nil, nil
	}
	rec, err := r.store.Get(ctx, t.Name, entry.TargetPK)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s pk=%s: %w", entry.EntityType, entry.TargetPK, err)
	}
	return rec, nil
}
