package privacy

import (
	"github.com/prometheus/client_golang/prometheus"

	"veil/internal/eventlog"
	"veil/internal/marker"
	"veil/internal/platform/logger"
	"veil/internal/privacy/metrics"
	"veil/internal/schema"
)

// harness wires a registry, memory stores and engine around the standard
// test schema: a private target with a blank char field, and a dependent
// with a one-to-one relation that anonymises when the target is deleted.
type harness struct {
	registry *Registry
	store    *schema.InMemoryStore
	markers  *marker.InMemoryStore
	log      *eventlog.InMemoryStore
	metrics  *metrics.Metrics
	engine   *Engine
	cascade  *Cascade
}

func newHarness() *harness {
	h := &harness{
		registry: NewRegistry(nil),
		store:    schema.NewInMemoryStore(),
		markers:  marker.NewInMemoryStore(),
		log:      eventlog.NewInMemoryStore(),
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	var err error
	h.engine, err = NewEngine(h.registry, h.store, h.markers, h.log,
		WithLogger(logger.New()), WithMetrics(h.metrics))
	if err != nil {
		panic(err)
	}
	h.cascade, err = NewCascade(h.registry, h.engine, h.log)
	if err != nil {
		panic(err)
	}
	h.cascade.Install(h.store)
	return h
}

func privateTargetType() *schema.EntityType {
	return schema.MustEntityType("PrivateTargetModel", []schema.Field{
		{Name: "id", Kind: schema.KindInt, PrimaryKey: true},
		{Name: "chars", Kind: schema.KindChar, Blank: true},
	})
}

func oneToOneType() *schema.EntityType {
	return schema.MustEntityType("OneToOneFieldModel", []schema.Field{
		{Name: "id", Kind: schema.KindInt, PrimaryKey: true},
		{Name: "chars", Kind: schema.KindChar, Blank: true},
		{
			Name: "target", Kind: schema.KindOneToOne, Null: true,
			RelatedType: "PrivateTargetModel",
			OnDelete:    schema.MustAnonymise(schema.SetNull),
		},
	})
}

// registerPair enrolls the target/dependent pair and finalises the
// registry.
func (h *harness) registerPair() (*schema.EntityType, *schema.EntityType) {
	target := privateTargetType()
	dep := oneToOneType()
	h.store.RegisterType(target)
	h.store.RegisterType(dep)
	if err := h.registry.Register(target, &Descriptor{Fields: []string{"chars"}}); err != nil {
		panic(err)
	}
	if err := h.registry.Register(dep, &Descriptor{Fields: []string{"chars"}}); err != nil {
		panic(err)
	}
	if err := h.registry.Finalise([]*schema.EntityType{target, dep}); err != nil {
		panic(err)
	}
	return target, dep
}

func entriesOf(entries []eventlog.Entry) []eventlog.Event {
	out := make([]eventlog.Event, len(entries))
	for i, e := range entries {
		out[i] = e.Event
	}
	return out
}
