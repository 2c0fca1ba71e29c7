package privacy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"veil/internal/eventlog"
	"veil/internal/marker"
	"veil/internal/privacy/metrics"
	"veil/internal/schema"
	"veil/pkg/platform/sentinel"
)

// ErrRecursionTooDeep is returned when graph anonymisation descends past
// the depth limit. The marker check is the real cycle guard; the limit is a
// defensive secondary measure.
var ErrRecursionTooDeep = errors.New("anonymisation recursion too deep")

const defaultMaxDepth = 10

// Hook observes anonymisation of a record. Pre-hooks run before any field
// is mutated, post-hooks after the record and marker are persisted, both
// synchronously in registration order.
type Hook func(ctx context.Context, rec *schema.Record)

// Options control one anonymise call.
type Options struct {
	// Force re-anonymises an already-anonymised record. It never creates a
	// duplicate marker, but does append a fresh log entry. Recursive
	// descents are never forced.
	Force bool

	// Actor is the acting-user identifier stamped on log entries.
	Actor string

	// Bulk defers marker creation to a single batched insert once the call
	// completes. Use only when no per-record marker is needed mid-batch.
	Bulk bool
}

// Engine runs the anonymise state machine: idempotence check,
// descriptor-driven field loop, depth-first descent into related records,
// event emission. It has no concurrency of its own and runs inside the
// caller's unit of work.
type Engine struct {
	registry *Registry
	store    schema.Store
	markers  marker.Store
	log      eventlog.Store

	logger   *slog.Logger
	metrics  *metrics.Metrics
	maxDepth int
	dbGate   bool

	pre  []Hook
	post []Hook
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics wires prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxDepth overrides the recursion depth limit.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) { e.maxDepth = depth }
}

// WithDatabaseAnonymisation enables AnonymiseDatabase. Off by default so a
// whole-database wipe cannot be triggered by accident.
func WithDatabaseAnonymisation(enabled bool) Option {
	return func(e *Engine) { e.dbGate = enabled }
}

func NewEngine(registry *Registry, store schema.Store, markers marker.Store, log eventlog.Store, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if markers == nil {
		return nil, fmt.Errorf("marker store is required")
	}
	if log == nil {
		return nil, fmt.Errorf("event log store is required")
	}
	e := &Engine{
		registry: registry,
		store:    store,
		markers:  markers,
		log:      log,
		logger:   slog.Default(),
		maxDepth: defaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// OnPreAnonymise registers an observer invoked before a record is mutated.
func (e *Engine) OnPreAnonymise(h Hook) {
	e.pre = append(e.pre, h)
}

// OnPostAnonymise registers an observer invoked after a record is persisted.
func (e *Engine) OnPostAnonymise(h Hook) {
	e.post = append(e.post, h)
}

// run carries per-call state through the recursive descent. visited is the
// within-call cycle guard: a record reached twice in one operation is
// treated as already anonymised.
type run struct {
	visited map[string]bool
	pending []marker.Marker
	bulk    bool
}

func newRun(bulk bool) *run {
	return &run{visited: make(map[string]bool), bulk: bulk}
}

func runKey(entityType, pk string) string {
	return entityType + "\x00" + pk
}

// Anonymise anonymises one record and, depth-first, the related records its
// descriptor names. Already-anonymised records are a no-op unless forced.
func (e *Engine) Anonymise(ctx context.Context, rec *schema.Record, opts Options) error {
	r := newRun(opts.Bulk)
	if err := e.anonymise(ctx, rec, opts, 0, r); err != nil {
		e.metrics.IncrementErrors()
		// Related records persisted before the failure keep their markers.
		if flushErr := e.flushMarkers(ctx, r); flushErr != nil {
			e.logger.Error("flush markers after failure", "error", flushErr)
		}
		return err
	}
	return e.flushMarkers(ctx, r)
}

// AnonymiseBatch anonymises a collection. Records already anonymised no-op
// individually, so a crashed batch is safely resumable by re-running it.
func (e *Engine) AnonymiseBatch(ctx context.Context, recs []*schema.Record, opts Options) error {
	r := newRun(opts.Bulk)
	for _, rec := range recs {
		if err := e.anonymise(ctx, rec, opts, 0, r); err != nil {
			e.metrics.IncrementErrors()
			// Records before this one are persisted; their markers must
			// not be lost.
			if flushErr := e.flushMarkers(ctx, r); flushErr != nil {
				e.logger.Error("flush markers after batch failure", "error", flushErr)
			}
			return err
		}
	}
	return e.flushMarkers(ctx, r)
}

// AnonymiseDatabase anonymises every record of every type allowed to
// anonymise. Gated behind WithDatabaseAnonymisation.
func (e *Engine) AnonymiseDatabase(ctx context.Context, opts Options) error {
	if !e.dbGate {
		return fmt.Errorf("database anonymisation is not enabled")
	}
	for _, name := range e.registry.TypesAllowedToAnonymise() {
		recs, err := e.store.All(ctx, name)
		if err != nil {
			return fmt.Errorf("load %s records: %w", name, err)
		}
		if err := e.AnonymiseBatch(ctx, recs, opts); err != nil {
			return err
		}
	}
	return nil
}

// IsAnonymised answers whether a marker exists for (entityType, pk).
func (e *Engine) IsAnonymised(ctx context.Context, entityType string, pk any) (bool, error) {
	return e.markers.Exists(ctx, entityType, schema.ValueString(pk))
}

// Export returns the export mapping for a record per its descriptor.
func (e *Engine) Export(rec *schema.Record) (map[string]string, error) {
	desc, ok := e.registry.DescriptorFor(rec.Type.Name)
	if !ok {
		return nil, fmt.Errorf("model %s is not registered for anonymisation: %w", rec.Type.Name, sentinel.ErrNotFound)
	}
	return desc.Export(rec), nil
}

// Search fans the term out across all registered types.
func (e *Engine) Search(ctx context.Context, term string) ([]SearchResult, error) {
	return e.registry.Search(ctx, e.store, term)
}

func (e *Engine) anonymise(ctx context.Context, rec *schema.Record, opts Options, depth int, r *run) error {
	desc, ok := e.registry.DescriptorFor(rec.Type.Name)
	if !ok {
		return fmt.Errorf("model %s is not registered for anonymisation", rec.Type.Name)
	}
	if !desc.CanAnonymise() {
		// Permanently retained: silent no-op, no log entry.
		e.logger.Debug("skipping retained type", "entity_type", rec.Type.Name, "pk", rec.PKString())
		return nil
	}
	if depth >= e.maxDepth {
		return fmt.Errorf("%w: %d levels reached at %s pk=%s, check the descriptor graph for loops",
			ErrRecursionTooDeep, e.maxDepth, rec.Type.Name, rec.PKString())
	}

	pk := rec.PKString()
	key := runKey(rec.Type.Name, pk)
	marked := r.visited[key]
	if !marked {
		var err error
		marked, err = e.markers.Exists(ctx, rec.Type.Name, pk)
		if err != nil {
			return fmt.Errorf("check marker for %s pk=%s: %w", rec.Type.Name, pk, err)
		}
	}
	if marked && !opts.Force {
		e.metrics.IncrementAlreadyAnonymised()
		return e.log.Append(ctx, eventlog.New(eventlog.EventAlreadyAnonymised, rec.Type.Name, pk, opts.Actor))
	}
	r.visited[key] = true

	for _, h := range e.pre {
		h(ctx, rec)
	}

	recurses := false
	for _, name := range desc.AnonymiseFields() {
		if class, _ := desc.class(name); class != classPlain {
			recurses = true
			break
		}
	}
	if recurses {
		if err := e.log.Append(ctx, eventlog.New(eventlog.EventRecursiveStart, rec.Type.Name, pk, opts.Actor)); err != nil {
			return err
		}
	}

	// Descents are never forced: the marker check is what terminates
	// cycles, and forcing it away would loop.
	childOpts := opts
	childOpts.Force = false

	for _, name := range desc.AnonymiseFields() {
		class, _ := desc.class(name)
		switch class {
		case classPlain:
			if err := desc.AnonymiseField(rec, name); err != nil {
				return err
			}
		case classFK:
			if err := e.descendFK(ctx, rec, name, childOpts, depth, r); err != nil {
				return err
			}
		case classSet:
			if err := e.descendSet(ctx, rec, name, childOpts, depth, r); err != nil {
				return err
			}
		}
	}

	if recurses {
		if err := e.log.Append(ctx, eventlog.New(eventlog.EventRecursiveEnd, rec.Type.Name, pk, opts.Actor)); err != nil {
			return err
		}
	}

	if err := e.log.Append(ctx, eventlog.New(eventlog.EventAnonymise, rec.Type.Name, pk, opts.Actor)); err != nil {
		return err
	}

	if err := e.store.Save(ctx, rec); err != nil {
		// The attempt still fails, but the failure is now auditable.
		if attachErr := e.log.AttachError(ctx, rec.Type.Name, pk, err.Error()); attachErr != nil {
			e.logger.Error("attach save error to event log", "entity_type", rec.Type.Name, "pk", pk, "error", attachErr)
		}
		return err
	}

	if !marked {
		if r.bulk {
			r.pending = append(r.pending, marker.Marker{EntityType: rec.Type.Name, PK: pk})
		} else if err := e.markers.Create(ctx, rec.Type.Name, pk); err != nil {
			return fmt.Errorf("create marker for %s pk=%s: %w", rec.Type.Name, pk, err)
		}
	}

	e.metrics.IncrementAnonymised()
	e.logger.Info("anonymised record", "entity_type", rec.Type.Name, "pk", pk, "forced", opts.Force)

	for _, h := range e.post {
		h(ctx, rec)
	}
	return nil
}

func (e *Engine) descendFK(ctx context.Context, rec *schema.Record, name string, opts Options, depth int, r *run) error {
	value := rec.Get(name)
	if value == nil {
		return nil
	}
	field, _ := rec.Type.Field(name)
	related, err := e.store.Get(ctx, field.RelatedType, value)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil // stale reference
		}
		return fmt.Errorf("load %s.%s target: %w", rec.Type.Name, name, err)
	}
	return e.anonymise(ctx, related, opts, depth+1, r)
}

func (e *Engine) descendSet(ctx context.Context, rec *schema.Record, name string, opts Options, depth int, r *run) error {
	if field, ok := rec.Type.Field(name); ok && field.Kind == schema.KindManyToMany {
		pks, _ := rec.Get(name).([]any)
		for _, pk := range pks {
			related, err := e.store.Get(ctx, field.RelatedType, pk)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					continue
				}
				return fmt.Errorf("load %s.%s member: %w", rec.Type.Name, name, err)
			}
			if err := e.anonymise(ctx, related, opts, depth+1, r); err != nil {
				return err
			}
		}
		return nil
	}

	rel, ok := rec.Type.ReverseRelation(name)
	if !ok {
		return fmt.Errorf("set_field %s on %s resolves to nothing: %w", name, rec.Type.Name, sentinel.ErrNotFound)
	}
	members, err := e.store.FindByField(ctx, rel.RelatedType, rel.RelatedField, rec.PK())
	if err != nil {
		return fmt.Errorf("load %s.%s members: %w", rec.Type.Name, name, err)
	}
	for _, member := range members {
		if err := e.anonymise(ctx, member, opts, depth+1, r); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) flushMarkers(ctx context.Context, r *run) error {
	if !r.bulk || len(r.pending) == 0 {
		return nil
	}
	if err := e.markers.CreateBatch(ctx, r.pending); err != nil {
		return fmt.Errorf("create marker batch: %w", err)
	}
	r.pending = nil
	return nil
}
