package privacy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"veil/internal/schema"
)

// RetentionPolicy bounds how long the records linked to it may keep their
// personal data. Records opt in by carrying a relation field pointing at
// the policy record; once the policy expires, Retention.Sweep anonymises
// them.
type RetentionPolicy struct {
	PK          any
	Description string

	// StartDate is when the retention clock started.
	StartDate time.Time

	// PolicyLength is how long records are kept after StartDate. Zero
	// means the policy never expires and its records are retained.
	PolicyLength time.Duration
}

// ShouldBeAnonymised reports whether records under the policy are past
// their retention period at the given time.
func (p RetentionPolicy) ShouldBeAnonymised(now time.Time) bool {
	if p.PolicyLength == 0 {
		return false
	}
	return now.After(p.StartDate.Add(p.PolicyLength))
}

// Retention drives time-based anonymisation: it finds the records of every
// registered type linked to an expired policy and feeds them to the engine
// in batch. It holds no schedule of its own; callers invoke Sweep from
// whatever cron or worker loop they run.
type Retention struct {
	registry   *Registry
	engine     *Engine
	store      schema.Store
	policyType string
	now        func() time.Time
	logger     *slog.Logger
}

func NewRetention(registry *Registry, engine *Engine, store schema.Store, policyType string, opts ...RetentionOption) (*Retention, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if policyType == "" {
		return nil, fmt.Errorf("policy entity type name is required")
	}
	r := &Retention{
		registry:   registry,
		engine:     engine,
		store:      store,
		policyType: policyType,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type RetentionOption func(*Retention)

func WithRetentionLogger(logger *slog.Logger) RetentionOption {
	return func(r *Retention) { r.logger = logger }
}

// WithRetentionClock overrides the time source.
func WithRetentionClock(now func() time.Time) RetentionOption {
	return func(r *Retention) { r.now = now }
}

// RelatedRecords returns every record of a registered type whose relation
// field points at the policy.
func (r *Retention) RelatedRecords(ctx context.Context, policy RetentionPolicy) ([]*schema.Record, error) {
	var out []*schema.Record
	for _, name := range r.registry.RegisteredTypes() {
		desc, _ := r.registry.DescriptorFor(name)
		for _, f := range desc.EntityType().Fields {
			if !f.Kind.IsRelation() || f.RelatedType != r.policyType {
				continue
			}
			recs, err := r.store.FindByField(ctx, name, f.Name, policy.PK)
			if err != nil {
				return nil, fmt.Errorf("find %s.%s records under policy %v: %w", name, f.Name, policy.PK, err)
			}
			out = append(out, recs...)
		}
	}
	return out, nil
}

// Sweep anonymises the records of every expired policy. Records already
// anonymised no-op individually, so repeated sweeps are safe.
func (r *Retention) Sweep(ctx context.Context, policies []RetentionPolicy, opts Options) error {
	now := r.now()
	for _, p := range policies {
		if !p.ShouldBeAnonymised(now) {
			continue
		}
		recs, err := r.RelatedRecords(ctx, p)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			continue
		}
		if err := r.engine.AnonymiseBatch(ctx, recs, opts); err != nil {
			return fmt.Errorf("sweep policy %v: %w", p.PK, err)
		}
		r.logger.Info("retention sweep anonymised records",
			"policy", p.PK, "description", p.Description, "records", len(recs))
	}
	return nil
}
